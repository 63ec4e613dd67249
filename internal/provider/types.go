// Package provider defines the chat-completion capability boundary and its
// adapters for the Anthropic, OpenAI, and Google backends.
//
// Every external model call in the system goes through the Provider interface
// so timeout and retry policy can be applied at a single invocation point.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/snapsolve/snapsolve/pkg/models"
)

// Tier is a cost/quality level of a provider. Generation uses the strong
// tier; classification, verification, and evaluation use the fast tier.
type Tier string

const (
	TierFast   Tier = "fast"
	TierStrong Tier = "strong"
)

// Message is a single role-tagged message in a completion request.
type Message struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

// Request contains the parameters for one completion call.
type Request struct {
	// Model is the backend model identifier. Required; the registry resolves
	// it from (provider, tier) before the call.
	Model string `json:"model"`

	// System is the system prompt, handled separately from Messages because
	// most backends take it out of band.
	System string `json:"system,omitempty"`

	// Messages is the conversation in chronological order.
	Messages []Message `json:"messages"`

	// MaxTokens bounds the response length. Zero means the adapter default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls sampling. The pipeline keeps this low (0.1) so
	// structured output stays parseable.
	Temperature float32 `json:"temperature,omitempty"`
}

// Usage is the token-usage pair reported by a backend.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Completion is the result of one completion call.
type Completion struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Usage    Usage  `json:"usage"`
}

// Provider is a chat-completion backend.
//
// Implementations must be safe for concurrent use; the solve pipeline issues
// calls from many request goroutines at once.
type Provider interface {
	// Complete sends the request and blocks until the full response arrives
	// or ctx is done.
	Complete(ctx context.Context, req *Request) (*Completion, error)

	// Name returns the stable lowercase provider identifier.
	Name() string
}

// Error is a structured failure from a provider call.
type Error struct {
	// Provider is the provider name the call was routed to.
	Provider string

	// Model is the model the call used.
	Model string

	// Message is the human-readable description.
	Message string

	// Cause is the underlying SDK or transport error.
	Cause error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Cause)
	}
	return fmt.Sprintf("%s: provider call failed", e.Provider)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the error looks transient (rate limit, server
// error, transport failure) rather than a bad request.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"rate limit", "rate_limit", "429", "too many requests",
		"overloaded", "500", "502", "503", "529",
		"connection", "timeout", "temporarily",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
