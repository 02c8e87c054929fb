package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"clinica", "clinica", 0},
		{"são", "sao", 1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, Levenshtein(tt.a, tt.b))
			assert.Equal(t, tt.want, Levenshtein(tt.b, tt.a))
		})
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, Similarity("", ""), 1e-9)
	assert.InDelta(t, 1.0, Similarity("clinica vida", "clinica vida"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("abc", "xyz"), 1e-9)
	// 23 runes vs 28 runes, distance 5.
	assert.InDelta(t, 23.0/28.0, Similarity("clinica fertilidade sul", "clinica fertilidade sul ltda"), 1e-9)
	assert.GreaterOrEqual(t, Similarity("clinica fertilidade sul", "clinica fertilidade sol"), 0.85)
}

func TestLengthBound(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, LengthBound(0, 0), 1e-9)
	assert.InDelta(t, 0.5, LengthBound(5, 10), 1e-9)
	assert.GreaterOrEqual(t, LengthBound(23, 28), Similarity("clinica fertilidade sul", "clinica fertilidade sul ltda"))
}
