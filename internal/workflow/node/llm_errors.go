package node

import "strings"

// IsResponseFormatUnsupportedError provider 拒绝 response_format 参数
func IsResponseFormatUnsupportedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "response_format"), strings.Contains(msg, "json_schema"), strings.Contains(msg, "response_schema"):
		return true
	case strings.Contains(msg, "unknown parameter") && strings.Contains(msg, "response"):
		return true
	default:
		return false
	}
}

// permanentMarkers 重试无法恢复的 provider 错误
var permanentMarkers = []string{
	"status code: 400",
	"status code: 401",
	"status code: 403",
	"status code: 404",
	"invalid api key",
	"incorrect api key",
	"model_not_found",
	"context_length_exceeded",
	"maximum context length",
}

// IsPermanentLLMError 鉴权失败、模型不存在或上下文超长，重试无意义
func IsPermanentLLMError(err error) bool {
	if err == nil || IsResponseFormatUnsupportedError(err) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range permanentMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
