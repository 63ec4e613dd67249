package routing

import (
	"context"
	"testing"

	"github.com/snapsolve/snapsolve/internal/provider"
	"github.com/snapsolve/snapsolve/pkg/models"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, req *provider.Request) (*provider.Completion, error) {
	return &provider.Completion{Text: "ok", Provider: s.name, Model: req.Model}, nil
}

func newTestRegistry(t *testing.T) *provider.Registry {
	t.Helper()
	r := provider.NewRegistry()
	for _, name := range []string{"anthropic", "openai", "google"} {
		r.Register(&stubProvider{name: name}, map[provider.Tier]string{
			provider.TierStrong: name + "-strong",
			provider.TierFast:   name + "-fast",
		})
	}
	return r
}

func TestSelector_FirstAttempt(t *testing.T) {
	s := NewSelector(newTestRegistry(t))

	tests := []struct {
		name      string
		preferred string
		subject   models.Subject
		want      string
	}{
		{"preferred wins", "google", models.SubjectMath, "google"},
		{"math affinity", "", models.SubjectMath, "anthropic"},
		{"physics affinity", "", models.SubjectPhysics, "anthropic"},
		{"chemistry affinity", "", models.SubjectChemistry, "openai"},
		{"english affinity", "", models.SubjectEnglish, "openai"},
		{"unknown subject falls back", "", models.Subject("history"), "anthropic"},
		{"unknown preferred falls back to affinity", "bogus", models.SubjectBiology, "openai"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := s.Generation(tt.preferred, tt.subject, 0)
			if err != nil {
				t.Fatal(err)
			}
			if h.Name != tt.want {
				t.Errorf("provider = %q, want %q", h.Name, tt.want)
			}
			if h.Tier != provider.TierStrong {
				t.Errorf("tier = %q, want strong", h.Tier)
			}
		})
	}
}

func TestSelector_RetryRotation(t *testing.T) {
	s := NewSelector(newTestRegistry(t))

	// Base for math is anthropic (index 0); rotation walks openai, google,
	// then wraps back to anthropic.
	want := []string{"anthropic", "openai", "google", "anthropic"}
	var prev string
	for attempt, expected := range want {
		h, err := s.Generation("", models.SubjectMath, attempt)
		if err != nil {
			t.Fatal(err)
		}
		if h.Name != expected {
			t.Errorf("attempt %d: provider = %q, want %q", attempt, h.Name, expected)
		}
		if attempt > 0 && attempt < len(want)-1 && h.Name == prev {
			t.Errorf("attempt %d reused provider %q", attempt, prev)
		}
		prev = h.Name
	}
}

func TestSelector_FastTierRoles(t *testing.T) {
	s := NewSelector(newTestRegistry(t))

	verify, err := s.Verification()
	if err != nil {
		t.Fatal(err)
	}
	if verify.Name != "google" || verify.Tier != provider.TierFast {
		t.Errorf("verification = %s/%s, want google/fast", verify.Name, verify.Tier)
	}

	classify, err := s.Classification()
	if err != nil {
		t.Fatal(err)
	}
	if classify.Tier != provider.TierFast {
		t.Errorf("classification tier = %q, want fast", classify.Tier)
	}
}

func TestSelector_VerificationFallsBackWhenCheckerMissing(t *testing.T) {
	r := provider.NewRegistry()
	r.Register(&stubProvider{name: "openai"}, nil)
	s := NewSelector(r)

	h, err := s.Verification()
	if err != nil {
		t.Fatal(err)
	}
	if h.Name != "openai" {
		t.Errorf("provider = %q, want openai", h.Name)
	}
}

func TestSelector_NoProviders(t *testing.T) {
	s := NewSelector(provider.NewRegistry())
	if _, err := s.Generation("", models.SubjectMath, 0); err == nil {
		t.Error("expected error with empty registry")
	}
}
