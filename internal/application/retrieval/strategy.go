package retrieval

import "legal-rag-api/internal/domain/entity"

// plan 策略对应的通道集合
type plan struct {
	channels []entity.Channel
	// scopeSemantic 语义通道按抽取出的法域硬过滤
	scopeSemantic bool
}

// strategyTable 策略 -> 通道。新增策略只需修改此表（权重覆盖见 retrieval.strategy_weights）
var strategyTable = map[entity.RetrievalStrategy]plan{
	entity.StrategySemanticOnly: {channels: []entity.Channel{entity.ChannelSemantic}},
	entity.StrategyKeywordOnly:  {channels: []entity.Channel{entity.ChannelKeyword}},
	entity.StrategyHybrid: {
		channels: []entity.Channel{entity.ChannelSemantic, entity.ChannelKeyword, entity.ChannelMetadata},
	},
	entity.StrategyMetadataScoped: {
		channels:      []entity.Channel{entity.ChannelSemantic, entity.ChannelKeyword, entity.ChannelMetadata},
		scopeSemantic: true,
	},
}

// planFor 未知策略按 hybrid 处理
func planFor(s entity.RetrievalStrategy) plan {
	if p, ok := strategyTable[s]; ok {
		return p
	}
	return strategyTable[entity.StrategyHybrid]
}
