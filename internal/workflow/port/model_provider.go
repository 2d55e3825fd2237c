// Package port 定义工作流层依赖的外部能力
package port

import (
	"context"

	"github.com/cloudwego/eino/components/model"
)

// ChatModelProvider 按 provider 名称提供 ChatModel
type ChatModelProvider interface {
	ChatModel(ctx context.Context, provider string) (model.BaseChatModel, error)
	// Resolve 空名称解析为默认 provider，结果用于指标标签与日志
	Resolve(provider string) string
}
