package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextSimilarityIdentical(t *testing.T) {
	for _, s := range []string{"Jane Doe", "x", "City Library", "  padded  "} {
		assert.Equal(t, 1.0, TextSimilarity(s, s), "TextSimilarity(%q, %q)", s, s)
	}
}

func TestTextSimilarityEmpty(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"both empty", "", ""},
		{"a empty", "", "Jane"},
		{"b empty", "Jane", ""},
		{"whitespace only", "   ", "Jane"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 0.0, TextSimilarity(tt.a, tt.b))
		})
	}
}

func TestTextSimilarityCaseInsensitive(t *testing.T) {
	assert.Equal(t, 1.0, TextSimilarity("JANE DOE", "jane doe"))
}

func TestTextSimilaritySymmetric(t *testing.T) {
	pairs := [][2]string{
		{"Jane Doe", "John Doe"},
		{"Central Station", "Central Park"},
		{"abcab", "bcaba"},
		{"Unknown Person", "Jane Doe"},
	}
	for _, p := range pairs {
		ab := TextSimilarity(p[0], p[1])
		ba := TextSimilarity(p[1], p[0])
		assert.Equal(t, ab, ba, "not symmetric for %q/%q", p[0], p[1])
		assert.True(t, ab >= 0 && ab <= 1)
	}
}

func TestTextSimilarityRatio(t *testing.T) {
	// "jane doe" vs "john doe": matching blocks "j", "n", " doe" -> 2*6/16
	got := TextSimilarity("Jane Doe", "John Doe")
	assert.InDelta(t, 0.75, got, 1e-9)

	assert.Equal(t, 0.0, TextSimilarity("abc", "xyz"))
}

func TestAgeSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"34", "34", 1},
		{" 34", "34 ", 1},
		{"34", "35", 0},
		{"", "34", 0},
		{"N/A", "N/A", 0},
		{"n/a", "n/a", 0},
		{"", "", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, AgeSimilarity(tt.a, tt.b), "AgeSimilarity(%q, %q)", tt.a, tt.b)
	}
}

func TestCombinedContextScoreIsMax(t *testing.T) {
	assert.Equal(t, 0.9, CombinedContextScore(0.9, 0.1, 0))
	assert.Equal(t, 1.0, CombinedContextScore(0.2, 0.3, 1))
	assert.Equal(t, 0.0, CombinedContextScore(0, 0, 0))
}

func TestCombinedContextScoreMonotonic(t *testing.T) {
	steps := []float64{0, 0.1, 0.25, 0.5, 0.72, 0.9, 1}
	base := [3]float64{0.3, 0.6, 0}

	for arg := 0; arg < 3; arg++ {
		prev := math.Inf(-1)
		for _, v := range steps {
			in := base
			in[arg] = v
			got := CombinedContextScore(in[0], in[1], in[2])
			assert.GreaterOrEqual(t, got, prev, "arg %d value %v", arg, v)
			prev = got
		}
	}
}

func TestFaceConfidence(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{0, 100},
		{0.2, 80},
		{0.6, 40},
		{1, 0},
		{1.4, 0},
		{-0.5, 100},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, FaceConfidence(tt.distance), 1e-9, "FaceConfidence(%v)", tt.distance)
	}
}
