package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/llm"
)

type evaluator struct {
	llm          llm.Client
	prompt       string
	maxFollowups int
	logger       *slog.Logger
}

func newEvaluator(client llm.Client, cfg *Config, logger *slog.Logger) *evaluator {
	return &evaluator{
		llm:          client,
		prompt:       cfg.EvaluatorPrompt,
		maxFollowups: cfg.MaxFollowups,
		logger:       logger,
	}
}

// Evaluate judges whether the answer resolves the question. The evaluator
// fails open: with no LLM configured, or when the model output cannot be
// parsed, the answer is treated as complete so a broken reviewer can never
// wedge the pipeline into extra passes or block a response.
func (e *evaluator) Evaluate(ctx context.Context, question, answer, evidenceSummary string, available []evidence.SourceKind) Evaluation {
	if e.llm == nil {
		return Evaluation{Complete: true, CompletenessScore: 1}
	}

	systemPrompt := strings.ReplaceAll(e.prompt, "{{max_followups}}", strconv.Itoa(e.maxFollowups))
	systemPrompt = strings.ReplaceAll(systemPrompt, "{{sources}}", joinKinds(available))

	var sb strings.Builder
	fmt.Fprintf(&sb, "QUESTION:\n%s\n\nDRAFT ANSWER:\n%s\n", question, answer)
	if evidenceSummary != "" {
		fmt.Fprintf(&sb, "\nEVIDENCE SUMMARY:\n%s\n", evidenceSummary)
	}
	sb.WriteString("\nReturn JSON only.")

	messages := []*llm.Message{
		llm.NewMessage(llm.RoleSystem, systemPrompt),
		llm.NewMessage(llm.RoleUser, sb.String()),
	}

	resp, err := e.llm.Complete(ctx, messages)
	if err != nil {
		e.logger.Warn("evaluation failed, accepting answer", "error", err)
		return Evaluation{Complete: true, CompletenessScore: 0.5,
			Issues: []string{fmt.Sprintf("evaluation unavailable: %v", err)}}
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return Evaluation{Complete: true, CompletenessScore: 0.5,
			Issues: []string{"evaluator returned empty response"}}
	}

	eval, err := decodeJSON[Evaluation](resp.Content)
	if err != nil {
		e.logger.Warn("evaluator output invalid, accepting answer", "error", err)
		return Evaluation{Complete: true, CompletenessScore: 0.5,
			Issues: []string{fmt.Sprintf("evaluator output invalid: %v", err)}}
	}

	if eval.CompletenessScore < 0 {
		eval.CompletenessScore = 0
	}
	if eval.CompletenessScore > 1 {
		eval.CompletenessScore = 1
	}
	if eval.Complete {
		eval.Followups = nil
	} else if len(eval.Followups) > e.maxFollowups {
		eval.Followups = eval.Followups[:e.maxFollowups]
	}
	return *eval
}
