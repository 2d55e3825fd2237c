package retrieval

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"legal-rag-api/internal/domain/repository"
)

// knownJurisdictions 关键词 -> 规范化法域
var knownJurisdictions = map[string]string{
	"federal":              "federal",
	"california":           "california",
	"new york":             "new york",
	"texas":                "texas",
	"delaware":             "delaware",
	"florida":              "florida",
	"england and wales":    "england and wales",
	"england":              "england and wales",
	"scotland":             "scotland",
	"united kingdom":       "united kingdom",
	"uk":                   "united kingdom",
	"european union":       "european union",
	"eu":                   "european union",
	"india":                "india",
	"australia":            "australia",
	"canada":               "canada",
	"ontario":              "ontario",
	"singapore":            "singapore",
	"ireland":              "ireland",
	"new south wales":      "new south wales",
	"district of columbia": "district of columbia",
}

var (
	actPattern     = regexp.MustCompile(`\b((?:[A-Z][A-Za-z'&-]*\s+){1,6}Act)\b`)
	sectionPattern = regexp.MustCompile(`(?i)(?:\bsection|\bsec\.|§|\barticle|\bart\.)\s*(\d+[A-Za-z]?)`)
	betweenPattern = regexp.MustCompile(`(?i)\bbetween\s+((?:19|20)\d{2})\s+and\s+((?:19|20)\d{2})\b`)
	yearPattern    = regexp.MustCompile(`(?i)\b(before|prior to|after|since|until|in|as of|from)\s+((?:19|20)\d{2})\b`)
)

// ExtractMetadataFilter 从问题中抽取法域、法案名、条款与时间范围
func ExtractMetadataFilter(question string) repository.MetadataFilter {
	var f repository.MetadataFilter

	f.Jurisdictions = extractJurisdictions(question)

	seenAct := map[string]bool{}
	for _, m := range actPattern.FindAllStringSubmatch(question, -1) {
		act := strings.TrimSpace(m[1])
		// 去掉句首常见虚词
		for _, lead := range []string{"The ", "Under ", "Does ", "Is ", "What ", "How ", "In "} {
			act = strings.TrimPrefix(act, lead)
		}
		if act == "Act" || seenAct[strings.ToLower(act)] {
			continue
		}
		seenAct[strings.ToLower(act)] = true
		f.ActNames = append(f.ActNames, act)
	}

	seenSec := map[string]bool{}
	for _, m := range sectionPattern.FindAllStringSubmatch(question, -1) {
		if !seenSec[m[1]] {
			seenSec[m[1]] = true
			f.Sections = append(f.Sections, m[1])
		}
	}

	if m := betweenPattern.FindStringSubmatch(question); m != nil {
		from, to := yearOf(m[1]), yearOf(m[2])
		if to < from {
			from, to = to, from
		}
		f.EffectiveFrom = yearStart(from)
		f.EffectiveTo = yearEnd(to)
		return f
	}

	for _, m := range yearPattern.FindAllStringSubmatch(question, -1) {
		y := yearOf(m[2])
		switch strings.ToLower(m[1]) {
		case "before", "prior to":
			f.EffectiveTo = yearEnd(y - 1)
		case "until", "in", "as of":
			f.EffectiveTo = yearEnd(y)
		case "after":
			f.EffectiveFrom = yearStart(y + 1)
		case "since", "from":
			f.EffectiveFrom = yearStart(y)
		}
	}
	return f
}

func extractJurisdictions(question string) []string {
	lower := strings.ToLower(question)
	found := map[string]bool{}
	// 以单词边界匹配，避免 "eu" 命中 "neutral"
	tokens := " " + strings.Join(strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}), " ") + " "
	for key, canonical := range knownJurisdictions {
		if strings.Contains(tokens, " "+key+" ") {
			found[canonical] = true
		}
	}
	out := make([]string, 0, len(found))
	for j := range found {
		out = append(out, j)
	}
	sort.Strings(out)
	return out
}

// HasCitation 问题中是否包含条款引用
func HasCitation(question string) bool {
	return sectionPattern.MatchString(question)
}

// MatchesFilter 段落元数据是否精确满足过滤条件
func MatchesFilter(f repository.MetadataFilter, jurisdiction, actName, section string, effectiveAt *time.Time) bool {
	if f.IsEmpty() {
		return false
	}
	if len(f.Jurisdictions) > 0 && !containsFold(f.Jurisdictions, jurisdiction) {
		return false
	}
	if len(f.ActNames) > 0 && !containsFold(f.ActNames, actName) {
		return false
	}
	if len(f.Sections) > 0 && !containsFold(f.Sections, section) {
		return false
	}
	if f.EffectiveFrom != nil || f.EffectiveTo != nil {
		if effectiveAt == nil {
			return false
		}
		if f.EffectiveFrom != nil && effectiveAt.Before(*f.EffectiveFrom) {
			return false
		}
		if f.EffectiveTo != nil && effectiveAt.After(*f.EffectiveTo) {
			return false
		}
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func yearOf(s string) int {
	y, _ := strconv.Atoi(s)
	return y
}

func yearStart(y int) *time.Time {
	t := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	return &t
}

func yearEnd(y int) *time.Time {
	t := time.Date(y, time.December, 31, 23, 59, 59, 0, time.UTC)
	return &t
}
