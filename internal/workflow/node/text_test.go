package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTailByRunes(t *testing.T) {
	assert.Equal(t, "", TailByRunes("abc", 0))
	assert.Equal(t, "abc", TailByRunes("abc", 5))
	assert.Equal(t, "...def", TailByRunes("abcdef", 3))
	assert.Equal(t, "...第五条", TailByRunes("合同法第五条", 3))
}

func TestPromptSlot(t *testing.T) {
	assert.Equal(t, "(none)", PromptSlot("  \n"))
	assert.Equal(t, "issue", PromptSlot(" issue "))
}
