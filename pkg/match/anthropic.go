package match

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"

	"github.com/skillforge/skillforge/pkg/skills"
)

const rankPromptTemplate = `You are selecting skills for an agent. Below is the list of available skills with their metadata.

Skills:
%s

Query: %s

Respond with the ids of the skills relevant to the query, one id per line, most relevant first. Respond with exactly "none" if no skill is relevant. Do not include any other text.`

// AnthropicRanker ranks skills by semantic relevance using the Anthropic
// messages API. Only descriptor metadata is sent; instruction bodies and
// resources are never part of selection.
type AnthropicRanker struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicRanker creates a ranker backed by the Anthropic API. The
// client reads its credentials from the environment.
func NewAnthropicRanker(model string) *AnthropicRanker {
	m := anthropic.Model(model)
	if model == "" {
		m = anthropic.ModelClaude3_7SonnetLatest
	}
	return &AnthropicRanker{
		client:    anthropic.NewClient(),
		model:     m,
		maxTokens: 256,
	}
}

// Rank implements Ranker. The call is retried a few times on transient
// failures; a persistent failure is returned to the matcher, which falls
// back to its deterministic baseline.
func (r *AnthropicRanker) Rank(ctx context.Context, query string, candidates []skills.Descriptor) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var listing strings.Builder
	for _, d := range candidates {
		fmt.Fprintf(&listing, "- id: %s | name: %s | description: %s\n", d.ID, d.Name, d.Description)
	}
	prompt := fmt.Sprintf(rankPromptTemplate, listing.String(), query)

	var message *anthropic.Message
	err := retry.Do(
		func() error {
			var err error
			message, err = r.client.Messages.New(ctx, anthropic.MessageNewParams{
				MaxTokens: r.maxTokens,
				Model:     r.model,
				Messages: []anthropic.MessageParam{
					anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
				},
			})
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to rank skills")
	}

	var text string
	for _, block := range message.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += b.Text
		}
	}

	return parseRankedIDs(text), nil
}

// parseRankedIDs extracts one id per line, tolerating list markers. A bare
// "none" answer yields an empty ranking.
func parseRankedIDs(text string) []string {
	var ids []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "none") {
			return nil
		}
		ids = append(ids, line)
	}
	return ids
}
