package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/snapsolve/snapsolve/internal/retry"
	"github.com/snapsolve/snapsolve/pkg/models"
)

// AnthropicProvider implements Provider for Anthropic Claude models.
//
// Transient failures (rate limits, overload) are retried with linear backoff
// before the error is surfaced to the caller.
type AnthropicProvider struct {
	client anthropic.Client
	policy retry.Config
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
}

// NewAnthropicProvider creates a provider from config. The API key is
// required.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(options...),
		policy: retry.Linear(cfg.MaxRetries+1, cfg.RetryDelay),
	}, nil
}

// Name returns "anthropic".
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete sends a non-streaming messages request.
func (p *AnthropicProvider) Complete(ctx context.Context, req *Request) (*Completion, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  convertAnthropicMessages(req.Messages),
		MaxTokens: int64(maxTokensOrDefault(req.MaxTokens)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}

	message, err := retry.DoWithValue(ctx, p.policy, func() (*anthropic.Message, error) {
		m, callErr := p.client.Messages.New(ctx, params)
		if callErr != nil && !IsRetryable(callErr) {
			return nil, retry.Permanent(callErr)
		}
		return m, callErr
	})
	if err != nil {
		return nil, &Error{Provider: "anthropic", Model: req.Model, Cause: unwrapPermanent(err)}
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Completion{
		Text:     text.String(),
		Provider: "anthropic",
		Model:    req.Model,
		Usage: Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		},
	}, nil
}

func convertAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		switch msg.Role {
		case models.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(block))
		default:
			// System content arrives via Request.System; a stray system turn
			// in history is delivered as user context.
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return 4096
	}
	return n
}

// unwrapPermanent strips the retry marker so Error.Cause is the SDK error.
func unwrapPermanent(err error) error {
	var permanent *retry.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}
