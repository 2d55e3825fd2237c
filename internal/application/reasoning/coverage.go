package reasoning

import (
	"fmt"
	"strings"

	"legal-rag-api/internal/domain/entity"
	wfmodel "legal-rag-api/internal/workflow/model"
)

// validDocs 过滤掉证据集之外的 document_id 并去重
func validDocs(evidence entity.EvidenceSet, ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] || !evidence.Contains(id) {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// sanitizeMapping 校验争点映射，未知争点与未知文档都被丢弃
func sanitizeMapping(evidence entity.EvidenceSet, issues []wfmodel.Issue, mapping []wfmodel.IssueEvidence) map[string][]string {
	known := make(map[string]bool, len(issues))
	for _, is := range issues {
		known[is.ID] = true
	}
	out := make(map[string][]string, len(issues))
	for _, m := range mapping {
		id := strings.TrimSpace(m.IssueID)
		if !known[id] {
			continue
		}
		out[id] = validDocs(evidence, append(out[id], m.DocumentIDs...))
	}
	return out
}

// assessCoverage 按阈值确定性地计算每个争点的覆盖度
func assessCoverage(evidence entity.EvidenceSet, issues []wfmodel.Issue, mapping map[string][]string, minPerIssue int, minScore float64) []IssueCoverage {
	out := make([]IssueCoverage, 0, len(issues))
	for _, is := range issues {
		docs := mapping[is.ID]
		count := 0
		for _, id := range docs {
			if it, ok := evidence.Get(id); ok && it.FusedScore >= minScore {
				count++
			}
		}
		out = append(out, IssueCoverage{
			IssueID:       is.ID,
			Description:   is.Description,
			DocumentIDs:   docs,
			EvidenceCount: count,
			LowConfidence: count < minPerIssue,
		})
	}
	return out
}

func describeCoverage(cov []IssueCoverage) string {
	lines := make([]string, 0, len(cov))
	for _, c := range cov {
		level := "adequate"
		if c.LowConfidence {
			level = "LOW confidence"
		}
		lines = append(lines, fmt.Sprintf("- %s (%s): %d supporting passage(s), %s", c.IssueID, c.Description, c.EvidenceCount, level))
	}
	return strings.Join(lines, "\n")
}

// filterCitations 只保留证据集内的文档，按答案中的出现顺序
func filterCitations(evidence entity.EvidenceSet, ids []string) []entity.Citation {
	docs := validDocs(evidence, ids)
	out := make([]entity.Citation, 0, len(docs))
	for _, id := range docs {
		it, _ := evidence.Get(id)
		out = append(out, entity.Citation{DocumentID: id, Title: it.Title, Rank: it.Rank})
	}
	return out
}
