package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRankedIDs(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{
			name:     "one id per line",
			text:     "factorial-calculator\ndata-statistician\n",
			expected: []string{"factorial-calculator", "data-statistician"},
		},
		{
			name:     "list markers and padding",
			text:     "  - factorial-calculator\n-  data-statistician  ",
			expected: []string{"factorial-calculator", "data-statistician"},
		},
		{
			name:     "blank lines are skipped",
			text:     "\nfactorial-calculator\n\n\ndata-statistician\n",
			expected: []string{"factorial-calculator", "data-statistician"},
		},
		{
			name:     "none means no relevant skill",
			text:     "none",
			expected: nil,
		},
		{
			name:     "none is case insensitive",
			text:     "None",
			expected: nil,
		},
		{
			name:     "empty response",
			text:     "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseRankedIDs(tt.text))
		})
	}
}

func TestNewAnthropicRanker(t *testing.T) {
	t.Run("default model", func(t *testing.T) {
		r := NewAnthropicRanker("")
		assert.NotEmpty(t, r.model)
	})

	t.Run("explicit model", func(t *testing.T) {
		r := NewAnthropicRanker("claude-sonnet-4-0")
		assert.Equal(t, "claude-sonnet-4-0", string(r.model))
	})
}
