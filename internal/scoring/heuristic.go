// Package scoring ranks stored job postings against a candidate profile.
package scoring

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spigell/job-aggregator/internal/ledger"
)

const (
	seniorPenalty = 5.0
	juniorBonus   = 2.0
)

var (
	seniorKeywords = []string{"senior", "lead", "staff", "principal"}
	juniorKeywords = []string{"junior", "intern"}
)

// Result is the outcome of scoring one job posting.
type Result struct {
	Score   float64
	Matched []string
	Missing []string
	Reasons ledger.Document
}

// Score matches profile skills against the job's text. A skill matches when it
// occurs as a substring of the title, company, url or raw payload; the ratio of
// matched skills is scaled to 0..100 and nudged by seniority words in the title.
func Score(skills []string, title, company, url *string, raw ledger.Document) Result {
	normalized := NormalizeSkills(skills)
	text := haystack(title, company, url, raw)

	matched := make([]string, 0, len(normalized))
	missing := make([]string, 0, len(normalized))
	for _, skill := range normalized {
		if strings.Contains(text, skill) {
			matched = append(matched, skill)
		} else {
			missing = append(missing, skill)
		}
	}

	ratio := 0.0
	if len(normalized) > 0 {
		ratio = float64(len(matched)) / float64(len(normalized))
	}

	score := ratio*100 + titleAdjustment(title)
	score = min(100, max(0, score))

	return Result{
		Score:   score,
		Matched: matched,
		Missing: missing,
		Reasons: ledger.Document{
			"match_ratio": ratio,
			"counts": ledger.Document{
				"skills_total": len(normalized),
				"matched":      len(matched),
				"missing":      len(missing),
			},
			"signals": ledger.Document{
				"title":   optional(title),
				"company": optional(company),
			},
		},
	}
}

// NormalizeSkills lowercases, trims and collapses whitespace, dropping empty
// and repeated entries while keeping first-seen order.
func NormalizeSkills(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func titleAdjustment(title *string) float64 {
	if title == nil || *title == "" {
		return 0
	}
	t := strings.ToLower(*title)

	adj := 0.0
	if containsAny(t, seniorKeywords) {
		adj -= seniorPenalty
	}
	if containsAny(t, juniorKeywords) {
		adj += juniorBonus
	}
	return adj
}

func haystack(title, company, url *string, raw ledger.Document) string {
	parts := make([]string, 0, 4)
	for _, p := range []*string{title, company, url} {
		if p != nil && *p != "" {
			parts = append(parts, *p)
		}
	}
	if raw != nil {
		parts = append(parts, rawText(raw))
	}
	return strings.ToLower(strings.Join(parts, "\n"))
}

// rawText is the compact JSON form of the payload; %v is the fallback for
// values JSON cannot represent.
func rawText(raw ledger.Document) string {
	data, err := json.Marshal(map[string]any(raw))
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(raw))
	}
	return string(data)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
