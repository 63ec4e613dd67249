package pipeline

import (
	"context"
	"log/slog"

	"github.com/snapsolve/snapsolve/internal/provider"
	"github.com/snapsolve/snapsolve/internal/routing"
	"github.com/snapsolve/snapsolve/pkg/models"
)

// FollowUpResult is the reply produced for a follow-up question.
type FollowUpResult struct {
	Reply      string `json:"reply"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokens_used"`
}

// FollowUp answers follow-up questions over a solved problem's conversation
// history. Two stages: pass the stored history through unchanged, then
// generate a reply at strong tier. No retry, no verification; failures are
// the caller's problem.
type FollowUp struct {
	selector *routing.Selector
	logger   *slog.Logger
}

// NewFollowUp creates a FollowUp pipeline.
func NewFollowUp(selector *routing.Selector, logger *slog.Logger) *FollowUp {
	if logger == nil {
		logger = slog.Default()
	}
	return &FollowUp{
		selector: selector,
		logger:   logger.With("component", "followup"),
	}
}

// Reply generates an answer to userMessage given the prior turns.
func (f *FollowUp) Reply(ctx context.Context, turns []models.ConversationTurn, userMessage string, subject models.Subject) (*FollowUpResult, error) {
	handle, err := f.selector.Generation("", subject, 0)
	if err != nil {
		return nil, err
	}

	completion, err := handle.Provider.Complete(ctx, &provider.Request{
		Model:    handle.Model,
		System:   followUpSystem,
		Messages: followUpMessages(turns, userMessage),
	})
	if err != nil {
		return nil, err
	}

	return &FollowUpResult{
		Reply:      completion.Text,
		Provider:   completion.Provider,
		Model:      completion.Model,
		TokensUsed: completion.Usage.InputTokens + completion.Usage.OutputTokens,
	}, nil
}
