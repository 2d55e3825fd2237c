package retrieval

import (
	"sort"

	"legal-rag-api/internal/config"
	"legal-rag-api/internal/domain/entity"
)

type passageKey struct {
	documentID string
	passageID  string
}

type fusedEntry struct {
	item     entity.EvidenceItem
	semantic float64
	keyword  float64
	exact    bool
	tagSeen  map[string]bool
}

// normalize 通道内 min-max 归一化，单元素或常量通道统一为 1.0
func normalize(cands []Candidate) []float64 {
	out := make([]float64, len(cands))
	if len(cands) == 0 {
		return out
	}
	lo, hi := cands[0].Score, cands[0].Score
	for _, c := range cands[1:] {
		if c.Score < lo {
			lo = c.Score
		}
		if c.Score > hi {
			hi = c.Score
		}
	}
	span := hi - lo
	for i, c := range cands {
		if span == 0 {
			out[i] = 1.0
			continue
		}
		out[i] = (c.Score - lo) / span
	}
	return out
}

// Fuse 融合多通道结果：归一化、加权、按文档去重、排序、截断 top-K 并编号
func Fuse(results []ChannelResult, w config.FusionWeights, topK int) entity.EvidenceSet {
	byChannel := make(map[entity.Channel][]Candidate, len(results))
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		byChannel[r.Channel] = append(byChannel[r.Channel], r.Candidates...)
	}

	entries := make(map[passageKey]*fusedEntry)
	var order []passageKey
	for _, ch := range entity.ChannelOrder {
		cands := byChannel[ch]
		norms := normalize(cands)
		for i, c := range cands {
			key := passageKey{documentID: c.DocumentID, passageID: c.PassageID}
			e, ok := entries[key]
			if !ok {
				e = &fusedEntry{
					item: entity.EvidenceItem{
						DocumentID:  c.DocumentID,
						PassageID:   c.PassageID,
						Title:       c.Title,
						PassageText: c.Text,
					},
					tagSeen: map[string]bool{},
				}
				entries[key] = e
				order = append(order, key)
			}
			switch ch {
			case entity.ChannelSemantic:
				if norms[i] > e.semantic {
					e.semantic = norms[i]
				}
			case entity.ChannelKeyword:
				if norms[i] > e.keyword {
					e.keyword = norms[i]
				}
			case entity.ChannelMetadata:
				e.exact = true
			}
			if c.ExactMatch {
				e.exact = true
			}
			if !containsString(e.item.SourceChannels, string(ch)) {
				e.item.SourceChannels = append(e.item.SourceChannels, string(ch))
			}
			for _, t := range c.Tags {
				if !e.tagSeen[t] {
					e.tagSeen[t] = true
					e.item.MetadataTags = append(e.item.MetadataTags, t)
				}
			}
		}
	}

	// 同一文档只保留融合得分最高的段落
	best := make(map[string]entity.EvidenceItem)
	for _, key := range order {
		e := entries[key]
		it := e.item
		it.SemanticScore = e.semantic
		it.KeywordScore = e.keyword
		it.MetadataMatch = e.exact
		exact := 0.0
		if e.exact {
			exact = 1.0
		}
		it.FusedScore = w.Semantic*e.semantic + w.Keyword*e.keyword + w.MetadataBoost*exact

		cur, ok := best[it.DocumentID]
		if !ok || it.FusedScore > cur.FusedScore ||
			(it.FusedScore == cur.FusedScore && it.PassageID < cur.PassageID) {
			best[it.DocumentID] = it
		}
	}

	set := make(entity.EvidenceSet, 0, len(best))
	for _, it := range best {
		set = append(set, it)
	}
	sort.Slice(set, func(i, j int) bool {
		if set[i].FusedScore != set[j].FusedScore {
			return set[i].FusedScore > set[j].FusedScore
		}
		if set[i].DocumentID != set[j].DocumentID {
			return set[i].DocumentID < set[j].DocumentID
		}
		return set[i].PassageID < set[j].PassageID
	})
	if topK > 0 && len(set) > topK {
		set = set[:topK]
	}
	for i := range set {
		set[i].Rank = i + 1
	}
	return set
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
