package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/snapsolve/snapsolve/internal/retry"
	"github.com/snapsolve/snapsolve/pkg/models"
)

// GoogleProvider implements Provider for Google Gemini models via the Gen AI
// SDK.
type GoogleProvider struct {
	client *genai.Client
	policy retry.Config
}

// GoogleConfig configures a GoogleProvider.
type GoogleConfig struct {
	APIKey     string
	MaxRetries int
	RetryDelay time.Duration
}

// NewGoogleProvider creates a provider from config. The API key is required.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	return &GoogleProvider{
		client: client,
		policy: retry.Linear(cfg.MaxRetries+1, cfg.RetryDelay),
	}, nil
}

// Name returns "google".
func (p *GoogleProvider) Name() string {
	return "google"
}

// Complete sends a non-streaming generate-content request.
func (p *GoogleProvider) Complete(ctx context.Context, req *Request) (*Completion, error) {
	contents := convertGoogleMessages(req.Messages)
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(req.Temperature)
	}

	resp, err := retry.DoWithValue(ctx, p.policy, func() (*genai.GenerateContentResponse, error) {
		r, callErr := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
		if callErr != nil && !IsRetryable(callErr) {
			return nil, retry.Permanent(callErr)
		}
		return r, callErr
	})
	if err != nil {
		return nil, &Error{Provider: "google", Model: req.Model, Cause: unwrapPermanent(err)}
	}

	var text strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}

	usage := Usage{}
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return &Completion{
		Text:     text.String(),
		Provider: "google",
		Model:    req.Model,
		Usage:    usage,
	}, nil
}

func convertGoogleMessages(messages []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := genai.RoleUser
		if msg.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	return out
}
