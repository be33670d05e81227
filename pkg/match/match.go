// Package match ranks skill descriptors against a free-text query. A
// deterministic token-containment baseline always works; an optional Ranker
// collaborator (e.g. an LLM) can be plugged in, with mandatory fallback to
// the baseline when it is unavailable or returns nothing usable.
package match

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/skillforge/skillforge/pkg/logger"
	"github.com/skillforge/skillforge/pkg/skills"
)

// SearchType selects which descriptor fields the baseline matcher targets.
type SearchType string

const (
	// SearchName matches against skill ids and display names.
	SearchName SearchType = "name"
	// SearchDescription matches against skill descriptions.
	SearchDescription SearchType = "description"
	// SearchAll matches against all metadata fields.
	SearchAll SearchType = "all"
)

// Ranker is the external semantic-selection collaborator. It returns skill
// ids ordered by descending relevance. The matcher functions correctly with
// no Ranker configured.
type Ranker interface {
	Rank(ctx context.Context, query string, candidates []skills.Descriptor) ([]string, error)
}

// Matcher produces ranked candidate skills for a query.
type Matcher struct {
	ranker Ranker
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithRanker plugs in an external semantic ranker.
func WithRanker(r Ranker) Option {
	return func(m *Matcher) {
		m.ranker = r
	}
}

// NewMatcher creates a matcher. Without options it uses only the
// deterministic baseline.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match returns the descriptors relevant to the query, most relevant first.
// An empty result is valid and not an error. When a Ranker is configured its
// ranked id list is accepted verbatim; on error or an empty/invalid result
// the deterministic baseline is used instead.
func (m *Matcher) Match(ctx context.Context, query string, descriptors []skills.Descriptor, searchType SearchType) ([]skills.Descriptor, error) {
	switch searchType {
	case SearchName, SearchDescription, SearchAll:
	default:
		return nil, errors.Errorf("unknown search type %q", searchType)
	}

	if m.ranker != nil {
		ranked, err := m.ranker.Rank(ctx, query, descriptors)
		if err != nil {
			logger.G(ctx).WithError(err).Warn("ranker unavailable, falling back to baseline match")
		} else if matches := resolveRanked(ranked, descriptors); len(matches) > 0 {
			return matches, nil
		}
	}

	return baseline(query, descriptors, searchType), nil
}

// resolveRanked maps a ranked id list back to descriptors, preserving order
// and dropping ids the registry does not know.
func resolveRanked(ids []string, descriptors []skills.Descriptor) []skills.Descriptor {
	byID := make(map[string]skills.Descriptor, len(descriptors))
	for _, d := range descriptors {
		byID[d.ID] = d
	}

	var out []skills.Descriptor
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		d, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, d)
	}
	return out
}

// baseline performs case-insensitive token containment: a descriptor matches
// when every query token appears in the targeted field(s). Results are
// ordered by descending matched-field length, then ascending id.
func baseline(query string, descriptors []skills.Descriptor, searchType SearchType) []skills.Descriptor {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return nil
	}

	type scored struct {
		desc     skills.Descriptor
		fieldLen int
	}

	var matches []scored
	for _, d := range descriptors {
		field := targetField(d, searchType)
		ok := true
		for _, tok := range tokens {
			if !strings.Contains(field, tok) {
				ok = false
				break
			}
		}
		if ok {
			matches = append(matches, scored{desc: d, fieldLen: len(field)})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].fieldLen != matches[j].fieldLen {
			return matches[i].fieldLen > matches[j].fieldLen
		}
		return matches[i].desc.ID < matches[j].desc.ID
	})

	out := make([]skills.Descriptor, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.desc)
	}
	return out
}

func targetField(d skills.Descriptor, searchType SearchType) string {
	switch searchType {
	case SearchName:
		return strings.ToLower(d.ID + " " + d.Name)
	case SearchDescription:
		return strings.ToLower(d.Description)
	default:
		return strings.ToLower(d.ID + " " + d.Name + " " + d.Description)
	}
}
