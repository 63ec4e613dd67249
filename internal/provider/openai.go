package provider

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/snapsolve/snapsolve/internal/retry"
	"github.com/snapsolve/snapsolve/pkg/models"
)

// OpenAIProvider implements Provider for OpenAI GPT models.
type OpenAIProvider struct {
	client *openai.Client
	policy retry.Config
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
}

// NewOpenAIProvider creates a provider from config. The API key is required.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		policy: retry.Linear(cfg.MaxRetries+1, cfg.RetryDelay),
	}, nil
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Complete sends a non-streaming chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req *Request) (*Completion, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    convertOpenAIMessages(req.Messages, req.System),
		MaxTokens:   maxTokensOrDefault(req.MaxTokens),
		Temperature: req.Temperature,
	}

	resp, err := retry.DoWithValue(ctx, p.policy, func() (openai.ChatCompletionResponse, error) {
		r, callErr := p.client.CreateChatCompletion(ctx, chatReq)
		if callErr != nil && !IsRetryable(callErr) {
			return r, retry.Permanent(callErr)
		}
		return r, callErr
	})
	if err != nil {
		return nil, &Error{Provider: "openai", Model: req.Model, Cause: unwrapPermanent(err)}
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Provider: "openai", Model: req.Model, Message: "empty response"}
	}

	return &Completion{
		Text:     resp.Choices[0].Message.Content,
		Provider: "openai",
		Model:    req.Model,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func convertOpenAIMessages(messages []Message, system string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case models.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case models.RoleSystem:
			role = openai.ChatMessageRoleSystem
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return out
}
