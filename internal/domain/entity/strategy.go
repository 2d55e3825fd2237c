package entity

// RetrievalStrategy 检索策略（封闭枚举）
type RetrievalStrategy string

const (
	StrategySemanticOnly   RetrievalStrategy = "semantic_only"
	StrategyKeywordOnly    RetrievalStrategy = "keyword_only"
	StrategyHybrid         RetrievalStrategy = "hybrid"
	StrategyMetadataScoped RetrievalStrategy = "metadata_scoped"
)

// Strategies 全部策略
var Strategies = []RetrievalStrategy{
	StrategySemanticOnly,
	StrategyKeywordOnly,
	StrategyHybrid,
	StrategyMetadataScoped,
}

// Valid 是否为已知策略
func (s RetrievalStrategy) Valid() bool {
	for _, v := range Strategies {
		if v == s {
			return true
		}
	}
	return false
}

// ParseStrategy 解析策略标签，未知标签返回 false
func ParseStrategy(label string) (RetrievalStrategy, bool) {
	s := RetrievalStrategy(label)
	return s, s.Valid()
}

// Channel 检索通道
type Channel string

const (
	ChannelSemantic Channel = "semantic"
	ChannelKeyword  Channel = "keyword"
	ChannelMetadata Channel = "metadata"
)

// ChannelOrder 通道的固定顺序，去重时文本字段取最先出现的通道
var ChannelOrder = []Channel{ChannelSemantic, ChannelKeyword, ChannelMetadata}
