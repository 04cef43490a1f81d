package usecase

import (
	"sort"
	"strings"
)

const (
	verificationWeight = 4
	reactionWeight     = 3
	recencyWeight      = 2
	longQueryPenalty   = 1
	longQueryChars     = 120
)

var (
	verificationTerms = []string{
		"official", "press release", "confirm", "statement", "announce", "filing",
		"8-k", "10-q", "10-k", "regulator", "according to", "transcript",
	}
	reactionTerms = []string{
		"market reaction", "react", "rally", "selloff", "sell-off", "futures",
		"investors", "traders", "shares jump", "shares fall", "surge", "plunge", "analyst",
	}
	recencyTerms = []string{
		"today", "latest", "breaking", "this week", "this morning", "overnight", "current",
	}
)

// scoreQuery weights a candidate web query. Each term family counts once.
func scoreQuery(q string) int {
	lq := strings.ToLower(q)
	s := 0
	if containsAny(lq, verificationTerms) {
		s += verificationWeight
	}
	if containsAny(lq, reactionTerms) {
		s += reactionWeight
	}
	if containsAny(lq, recencyTerms) {
		s += recencyWeight
	}
	if len(q) > longQueryChars {
		s -= longQueryPenalty
	}
	return s
}

// RankQueries dedupes candidates case-insensitively and returns the best
// limit of them, never more than MaxRankedQueries. Ties keep input order.
func RankQueries(candidates []string, limit int) []string {
	limit = clampInt(limit, 0, MaxRankedQueries)
	type scored struct {
		q     string
		score int
	}
	seen := make(map[string]struct{}, len(candidates))
	list := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		q := strings.Join(strings.Fields(c), " ")
		if q == "" {
			continue
		}
		k := strings.ToLower(q)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		list = append(list, scored{q: q, score: scoreQuery(q)})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].score > list[j].score })
	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.q
	}
	return out
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
