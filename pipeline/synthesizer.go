package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/llm"
)

type synthesizer struct {
	llm          llm.Client
	prompt       string
	directPrompt string
	maxItems     int
	tokenBudget  int
	counter      TokenCounter
	logger       *slog.Logger
}

func newSynthesizer(client llm.Client, cfg *Config, logger *slog.Logger) *synthesizer {
	counter := cfg.counter
	if counter == nil {
		counter = estimatingCounter{}
	}
	return &synthesizer{
		llm:          client,
		prompt:       cfg.SynthesisPrompt,
		directPrompt: cfg.DirectPrompt,
		maxItems:     cfg.MaxContextItems,
		tokenBudget:  cfg.ContextTokenBudget,
		counter:      counter,
		logger:       logger,
	}
}

// Compose writes the final answer. With evidence it grounds the answer in a
// numbered context block; without it falls back to model knowledge. The
// returned slice holds exactly the items that made it into the context after
// budget truncation, in citation order.
func (s *synthesizer) Compose(ctx context.Context, query Query, items []evidence.Item) (string, []evidence.Item, error) {
	if s.llm == nil {
		return "", nil, fmt.Errorf("synthesizer LLM is not configured")
	}

	used := s.fitBudget(items)

	var systemPrompt string
	var sb strings.Builder
	fmt.Fprintf(&sb, "QUESTION:\n%s\n", query.Text)

	if len(query.Attachments) > 0 {
		sb.WriteString("\nUSER DOCUMENTS:\n")
		for _, att := range query.Attachments {
			sb.WriteString(strings.TrimSpace(att))
			sb.WriteString("\n")
		}
	}

	if len(used) == 0 {
		systemPrompt = s.directPrompt
		sb.WriteString("\nTASK: Answer the question from your knowledge. Respond in the language of the question.\n")
	} else {
		systemPrompt = s.prompt
		sb.WriteString("\nEVIDENCE:\n")
		for idx, item := range used {
			locator := item.Locator
			if locator == "" {
				locator = string(item.Source)
			}
			fmt.Fprintf(&sb, "[%d] (%s) %s\n%s\n\n", idx+1, item.Source, locator, strings.TrimSpace(item.Content))
		}
		sb.WriteString("TASK: Answer the question using the evidence above, citing [n] for every factual claim.\n")
	}

	messages := []*llm.Message{
		llm.NewMessage(llm.RoleSystem, systemPrompt),
		llm.NewMessage(llm.RoleUser, sb.String()),
	}

	resp, err := s.llm.Complete(ctx, messages)
	if err != nil {
		return "", nil, fmt.Errorf("synthesis generation failed: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", nil, fmt.Errorf("synthesizer returned empty response")
	}
	return strings.TrimSpace(resp.Content), used, nil
}

// fitBudget trims the evidence list to the item cap and then to the token
// budget, always keeping a prefix so citation order is stable.
func (s *synthesizer) fitBudget(items []evidence.Item) []evidence.Item {
	if s.maxItems > 0 && len(items) > s.maxItems {
		items = items[:s.maxItems]
	}
	if s.tokenBudget <= 0 {
		return items
	}

	total := 0
	for idx, item := range items {
		count, err := s.counter.CountTokens(item.Content)
		if err != nil {
			s.logger.Debug("token count failed, estimating", "error", err)
			count = len(item.Content) / 4
		}
		total += count
		if total > s.tokenBudget && idx > 0 {
			s.logger.Debug("evidence truncated to token budget", "kept", idx, "dropped", len(items)-idx)
			return items[:idx]
		}
	}
	return items
}

// estimatingCounter approximates tokens at four characters each.
type estimatingCounter struct{}

func (estimatingCounter) CountTokens(text string) (int, error) {
	return len(text) / 4, nil
}
