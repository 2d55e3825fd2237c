package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyOutput 模型返回空内容
var ErrEmptyOutput = errors.New("empty llm output")

// ExtractJSONObject 截取模型输出中第一个括号配平的 JSON 对象或数组。
// 模型常在 JSON 前后附带说明文字或 markdown 代码块；找不到配平片段时原样返回去空白后的输入。
func ExtractJSONObject(s string) string {
	raw := strings.TrimSpace(s)
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return raw
	}
	if end := matchingClose(raw, start); end > start {
		return raw[start : end+1]
	}
	return raw
}

// matchingClose 返回与 raw[start] 配平的闭括号下标，忽略字符串内的括号
func matchingClose(raw string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// DecodeJSONObject 截取并解析模型输出中的 JSON 对象，返回截取后的原文
func DecodeJSONObject(s string, v any) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", ErrEmptyOutput
	}
	raw := ExtractJSONObject(s)
	if !strings.HasPrefix(raw, "{") {
		return raw, fmt.Errorf("llm output is not a json object")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return raw, fmt.Errorf("decode llm json: %w", err)
	}
	return raw, nil
}
