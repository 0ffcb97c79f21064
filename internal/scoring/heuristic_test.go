package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/job-aggregator/internal/ledger"
)

func str(s string) *string { return &s }

func TestScoreMatchesSkillsInRawPayload(t *testing.T) {
	res := Score(
		[]string{"Python", "SQL"},
		str("Python Engineer"), str("Acme"), str("https://example.com"),
		ledger.Document{"desc": "python and postgres"},
	)

	assert.Equal(t, []string{"python"}, res.Matched)
	assert.Equal(t, []string{"sql"}, res.Missing)
	assert.Equal(t, 50.0, res.Score)

	assert.Equal(t, 0.5, res.Reasons["match_ratio"])
	counts := res.Reasons.Sub("counts")
	assert.Equal(t, 2, counts["skills_total"])
	assert.Equal(t, 1, counts["matched"])
	assert.Equal(t, 1, counts["missing"])
	signals := res.Reasons.Sub("signals")
	assert.Equal(t, "Python Engineer", signals["title"])
	assert.Equal(t, "Acme", signals["company"])
}

func TestScoreEmptySkills(t *testing.T) {
	res := Score(nil, str("Senior Go"), nil, nil, ledger.Document{"desc": "go"})

	assert.Equal(t, 0.0, res.Score)
	assert.NotNil(t, res.Matched)
	assert.Empty(t, res.Matched)
	assert.NotNil(t, res.Missing)
	assert.Empty(t, res.Missing)
	assert.Equal(t, 0.0, res.Reasons["match_ratio"])
}

func TestScoreTitleAdjustments(t *testing.T) {
	raw := ledger.Document{"stack": "go"}

	tests := []struct {
		name  string
		title *string
		want  float64
	}{
		{name: "no keywords", title: str("Backend Engineer"), want: 100},
		{name: "senior penalty", title: str("Senior Backend Engineer"), want: 95},
		{name: "junior bonus is clamped", title: str("Junior Go Developer"), want: 100},
		{name: "both adjustments add up", title: str("Lead Intern Program"), want: 97},
		{name: "missing title", title: nil, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Score([]string{"go"}, tt.title, nil, nil, raw)
			assert.Equal(t, tt.want, res.Score)
		})
	}
}

func TestScoreClampsAtZero(t *testing.T) {
	res := Score([]string{"rust"}, str("Staff Engineer"), nil, nil, ledger.Document{})
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, []string{"rust"}, res.Missing)
}

func TestScoreIsSubstringBased(t *testing.T) {
	res := Score([]string{"go"}, str("Django developer"), nil, nil, nil)
	assert.Equal(t, []string{"go"}, res.Matched)
}

func TestScoreToleratesUnencodableRaw(t *testing.T) {
	res := Score([]string{"nan"}, nil, nil, nil, ledger.Document{"x": math.NaN()})
	require.Equal(t, []string{"nan"}, res.Matched)
}

func TestNormalizeSkills(t *testing.T) {
	got := NormalizeSkills([]string{"  Machine\t\tLearning ", "machine learning", "", "   ", "SQL", "sql"})
	assert.Equal(t, []string{"machine learning", "sql"}, got)
}
