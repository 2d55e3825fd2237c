package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitPassages_PrefersSentenceEnd(t *testing.T) {
	got := splitPassages("First sentence here. Second sentence here. Third one.", 30, 0)
	assert.Equal(t, []string{"First sentence here.", "Second sentence here.", "Third one."}, got)
}

func TestSplitPassages_PrefersParagraph(t *testing.T) {
	got := splitPassages("Alpha beta. Gamma\r\n\r\nDelta epsilon zeta", 20, 0)
	assert.Equal(t, []string{"Alpha beta. Gamma", "Delta epsilon zeta"}, got)
}

func TestSplitPassages_OverlapStartsAtWord(t *testing.T) {
	got := splitPassages("one two three four five six seven eight nine ten", 20, 8)
	assert.Equal(t, []string{"one two three four", "four five six seven", "seven eight nine ten"}, got)
}

func TestSplitPassages_Edges(t *testing.T) {
	assert.Nil(t, splitPassages("   ", 10, 0))
	assert.Equal(t, []string{"short"}, splitPassages(" short ", 10, 2))
	assert.Equal(t, []string{"no limit at all"}, splitPassages("no limit at all", 0, 0))
	// 无空白时硬切
	assert.Equal(t, []string{"abcdefghij", "klmno"}, splitPassages("abcdefghijklmno", 10, 0))
}
