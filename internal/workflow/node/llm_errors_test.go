package node

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsResponseFormatUnsupportedError(t *testing.T) {
	assert.False(t, IsResponseFormatUnsupportedError(nil))
	assert.True(t, IsResponseFormatUnsupportedError(errors.New("Unknown parameter: 'response_format'")))
	assert.False(t, IsResponseFormatUnsupportedError(errors.New("status code: 503")))
}

func TestIsPermanentLLMError(t *testing.T) {
	assert.False(t, IsPermanentLLMError(nil))
	assert.True(t, IsPermanentLLMError(errors.New("error, status code: 401, message: Invalid API key")))
	assert.True(t, IsPermanentLLMError(errors.New("This model's maximum context length is 8192 tokens")))
	assert.False(t, IsPermanentLLMError(errors.New("error, status code: 429, message: rate limited")))
	assert.False(t, IsPermanentLLMError(errors.New("status code: 400, response_format is not supported")))
}
