package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankQueries_PrefersVerification(t *testing.T) {
	got := RankQueries([]string{
		"AAPL stock price today",
		"Official press release confirms Apple buyback size",
		"analyst reaction to Apple buyback",
	}, 5)
	assert.Equal(t, []string{
		"Official press release confirms Apple buyback size",
		"analyst reaction to Apple buyback",
	}, got)
}

func TestRankQueries_DedupesAndKeepsOrderOnTies(t *testing.T) {
	got := RankQueries([]string{"Fed  decision", "fed decision", "  ", "ECB minutes"}, 2)
	assert.Equal(t, []string{"Fed decision", "ECB minutes"}, got)
}

func TestRankQueries_PenalizesLongQueries(t *testing.T) {
	long := "what " + strings.Repeat("does this very long question mean ", 5)
	got := RankQueries([]string{long, "copper supply"}, 1)
	assert.Equal(t, []string{"copper supply"}, got)
}

func TestRankQueries_Limits(t *testing.T) {
	assert.Empty(t, RankQueries([]string{"a", "b"}, 0))
	assert.Empty(t, RankQueries(nil, 2))
	assert.Len(t, RankQueries([]string{"a", "b", "c", "d"}, 10), MaxRankedQueries)
}
