package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Will Trump end Department of Education in 2025?", "will trump end department of education in 2025"},
		{"GOVERNMENT   Shutdown", "government shutdown"},
		{"  $200k by Dec. 31  ", "200k by dec 31"},
		{"???", ""},
		{"Élection présidentielle", "élection présidentielle"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestRatio(t *testing.T) {
	assert.InDelta(t, 66.667, Ratio("abc", "abd"), 0.001)
	assert.Equal(t, 100.0, Ratio("", ""))
	assert.Equal(t, 0.0, Ratio("abc", ""))
	assert.Equal(t, 100.0, Ratio("same", "same"))
}

func TestPartialRatio(t *testing.T) {
	assert.Equal(t, 100.0, PartialRatio("abc", "xxabcxx"))
	assert.Equal(t, 100.0, PartialRatio("trump", "will trump win"))
	assert.Equal(t, 100.0, PartialRatio("will trump win", "trump"), "argument order must not matter")
	assert.Equal(t, 0.0, PartialRatio("xyz", "abcdef"))
	assert.Equal(t, 0.0, PartialRatio("", "abc"))
}

func TestTokenSortRatio(t *testing.T) {
	assert.Equal(t, 100.0, TokenSortRatio("b a", "a b"))
	assert.Equal(t, 100.0, TokenSortRatio("shutdown government", "government shutdown"))
}

func TestTokenSetRatio(t *testing.T) {
	assert.Equal(t, 100.0, TokenSetRatio("fed rate", "fed rate hike"))
	assert.Equal(t, 100.0, TokenSetRatio("trump end department of education", "will trump end department of education in 2025"))
	assert.InDelta(t, 38.095, TokenSetRatio("apple pie", "banana split"), 0.001)
	assert.Equal(t, 0.0, TokenSetRatio("", "anything"))
}
