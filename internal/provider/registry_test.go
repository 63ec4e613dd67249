package provider

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, req *Request) (*Completion, error) {
	return &Completion{Text: "ok", Provider: s.name, Model: req.Model}, nil
}

func TestRegistry_Order(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubProvider{name: "anthropic"}, nil)
	r.Register(&stubProvider{name: "openai"}, nil)
	r.Register(&stubProvider{name: "google"}, nil)

	order := r.Order()
	want := []string{"anthropic", "openai", "google"}
	if len(order) != len(want) {
		t.Fatalf("order length = %d, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestRegistry_ReRegisterKeepsPosition(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubProvider{name: "anthropic"}, nil)
	r.Register(&stubProvider{name: "openai"}, nil)
	r.Register(&stubProvider{name: "anthropic"}, map[Tier]string{TierStrong: "other-model"})

	order := r.Order()
	if len(order) != 2 || order[0] != "anthropic" {
		t.Fatalf("order = %v, want [anthropic openai]", order)
	}

	h, err := r.Resolve("anthropic", TierStrong)
	if err != nil {
		t.Fatal(err)
	}
	if h.Model != "other-model" {
		t.Errorf("model = %q, want override", h.Model)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubProvider{name: "openai"}, nil)

	h, err := r.Resolve("openai", TierFast)
	if err != nil {
		t.Fatal(err)
	}
	if h.Model != "gpt-4o-mini" {
		t.Errorf("fast model = %q, want default gpt-4o-mini", h.Model)
	}
	if h.Tier != TierFast {
		t.Errorf("tier = %q, want fast", h.Tier)
	}

	if _, err := r.Resolve("missing", TierStrong); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("429 too many requests"), true},
		{errors.New("server overloaded"), true},
		{errors.New("connection refused"), true},
		{errors.New("invalid api key"), false},
		{context.Canceled, false},
		{context.DeadlineExceeded, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
