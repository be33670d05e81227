package match

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/skillforge/pkg/skills"
)

func testDescriptors() []skills.Descriptor {
	return []skills.Descriptor{
		{
			ID:          "factorial-calculator",
			Name:        "factorial-calculator",
			Description: "Computes the factorial of a non-negative integer.",
		},
		{
			ID:          "calculate-square-root",
			Name:        "calculate-square-root",
			Description: "Computes the square root of a number.",
		},
		{
			ID:          "data-statistician",
			Name:        "data-statistician",
			Description: "Computes descriptive statistics over a list of numbers.",
		},
	}
}

func TestMatchByName(t *testing.T) {
	m := NewMatcher()

	matches, err := m.Match(context.Background(), "factorial", testDescriptors(), SearchName)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "factorial-calculator", matches[0].ID)
}

func TestMatchByDescription(t *testing.T) {
	m := NewMatcher()

	matches, err := m.Match(context.Background(), "square root", testDescriptors(), SearchDescription)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "calculate-square-root", matches[0].ID)
}

func TestMatchAllFields(t *testing.T) {
	m := NewMatcher()

	// "computes" appears only in descriptions, so SearchName finds nothing
	// while SearchAll finds everything.
	matches, err := m.Match(context.Background(), "computes", testDescriptors(), SearchName)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = m.Match(context.Background(), "computes", testDescriptors(), SearchAll)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestMatchRequiresAllTokens(t *testing.T) {
	m := NewMatcher()

	matches, err := m.Match(context.Background(), "factorial statistics", testDescriptors(), SearchAll)
	require.NoError(t, err)
	assert.Empty(t, matches, "no single descriptor contains every query token")
}

func TestMatchNoResults(t *testing.T) {
	m := NewMatcher()

	matches, err := m.Match(context.Background(), "nonexistent-xyz", testDescriptors(), SearchAll)
	require.NoError(t, err)
	assert.Empty(t, matches, "an empty result is valid and not an error")
}

func TestMatchCaseInsensitive(t *testing.T) {
	m := NewMatcher()

	matches, err := m.Match(context.Background(), "FACTORIAL", testDescriptors(), SearchName)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "factorial-calculator", matches[0].ID)
}

func TestMatchEmptyQuery(t *testing.T) {
	m := NewMatcher()

	matches, err := m.Match(context.Background(), "   ", testDescriptors(), SearchAll)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatchUnknownSearchType(t *testing.T) {
	m := NewMatcher()

	_, err := m.Match(context.Background(), "factorial", testDescriptors(), SearchType("fuzzy"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fuzzy")
}

func TestMatchDeterministicOrdering(t *testing.T) {
	m := NewMatcher()
	descriptors := []skills.Descriptor{
		{ID: "calc-b", Name: "calc-b", Description: "short calc"},
		{ID: "calc-a", Name: "calc-a", Description: "short calc"},
		{ID: "calc-long", Name: "calc-long", Description: "a much longer calc description field"},
	}

	// Longer matched field wins; ties break on ascending id. Two identical
	// inputs always produce identical orderings.
	for i := 0; i < 3; i++ {
		matches, err := m.Match(context.Background(), "calc", descriptors, SearchDescription)
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, "calc-long", matches[0].ID)
		assert.Equal(t, "calc-a", matches[1].ID)
		assert.Equal(t, "calc-b", matches[2].ID)
	}
}

// stubRanker returns a fixed answer or error for every query.
type stubRanker struct {
	ids []string
	err error
}

func (s *stubRanker) Rank(ctx context.Context, query string, candidates []skills.Descriptor) ([]string, error) {
	return s.ids, s.err
}

func TestMatchWithRanker(t *testing.T) {
	descriptors := testDescriptors()

	t.Run("ranked order is accepted verbatim", func(t *testing.T) {
		m := NewMatcher(WithRanker(&stubRanker{ids: []string{"data-statistician", "factorial-calculator"}}))
		matches, err := m.Match(context.Background(), "number crunching", descriptors, SearchAll)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "data-statistician", matches[0].ID)
		assert.Equal(t, "factorial-calculator", matches[1].ID)
	})

	t.Run("ranker error falls back to baseline", func(t *testing.T) {
		m := NewMatcher(WithRanker(&stubRanker{err: errors.New("api unavailable")}))
		matches, err := m.Match(context.Background(), "factorial", descriptors, SearchName)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "factorial-calculator", matches[0].ID)
	})

	t.Run("empty ranker result falls back to baseline", func(t *testing.T) {
		m := NewMatcher(WithRanker(&stubRanker{ids: nil}))
		matches, err := m.Match(context.Background(), "factorial", descriptors, SearchName)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "factorial-calculator", matches[0].ID)
	})

	t.Run("all unknown ids fall back to baseline", func(t *testing.T) {
		m := NewMatcher(WithRanker(&stubRanker{ids: []string{"hallucinated-skill", "another-fake"}}))
		matches, err := m.Match(context.Background(), "factorial", descriptors, SearchName)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "factorial-calculator", matches[0].ID)
	})

	t.Run("unknown and duplicate ids are dropped", func(t *testing.T) {
		m := NewMatcher(WithRanker(&stubRanker{ids: []string{
			"hallucinated-skill",
			"calculate-square-root",
			"calculate-square-root",
			"data-statistician",
		}}))
		matches, err := m.Match(context.Background(), "anything", descriptors, SearchAll)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "calculate-square-root", matches[0].ID)
		assert.Equal(t, "data-statistician", matches[1].ID)
	})
}
