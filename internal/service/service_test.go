package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/snapsolve/snapsolve/internal/evaluate"
	"github.com/snapsolve/snapsolve/internal/pipeline"
	"github.com/snapsolve/snapsolve/internal/provider"
	"github.com/snapsolve/snapsolve/internal/quota"
	"github.com/snapsolve/snapsolve/internal/routing"
	"github.com/snapsolve/snapsolve/internal/storage"
	"github.com/snapsolve/snapsolve/internal/vision"
	"github.com/snapsolve/snapsolve/pkg/models"
)

const solvedJSON = `{"question_type":"equation","knowledge_points":["linear equations"],
	"steps":[{"step":1,"description":"Subtract 5 from both sides","calculation":"2x = 10"},
	{"step":2,"description":"Divide by 2","calculation":"x = 5"}],
	"final_answer":"x = 5","explanation":"Isolate x.","tips":""}`

type scriptedProvider struct {
	name string
	mu   sync.Mutex
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Complete(ctx context.Context, req *provider.Request) (*provider.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var text string
	switch {
	case strings.Contains(req.System, "classify"):
		text = `{"subject":"math","problem_type":"equation","difficulty":"easy","knowledge_points":["linear equations"]}`
	case strings.Contains(req.System, "independently check"):
		text = `{"is_correct":true,"confidence":0.95,"independent_answer":"x = 5"}`
	case strings.Contains(req.System, "grade a tutor"):
		text = `{"correctness":1,"completeness":0.9,"clarity":0.9,"pedagogy":0.8,"format":0.9,"overall":0.9}`
	case strings.Contains(req.System, "follow-up"):
		text = "You divide by 2 because both sides share that factor."
	default:
		text = solvedJSON
	}
	return &provider.Completion{
		Text:     text,
		Provider: p.name,
		Model:    req.Model,
		Usage:    provider.Usage{InputTokens: 15, OutputTokens: 30},
	}, nil
}

type env struct {
	svc   *ScanService
	store *storage.MemoryStore
	eval  *evaluate.Evaluator
}

func newEnv(t *testing.T) *env {
	t.Helper()

	registry := provider.NewRegistry()
	for _, name := range []string{"anthropic", "openai", "google"} {
		registry.Register(&scriptedProvider{name: name}, nil)
	}
	selector := routing.NewSelector(registry)

	solver := pipeline.NewSolver(
		&vision.StaticExtractor{Text: "Find x: 2x + 5 = 15"},
		selector, nil, nil,
	)
	store := storage.NewMemoryStore()
	evaluator := evaluate.NewEvaluator(selector, store, nil)
	admission := quota.NewController(quota.NewMemoryStore(), quota.NewMemorySettings(nil), nil)

	svc := NewScanService(solver, pipeline.NewFollowUp(selector, nil), admission, store, nil, Options{
		Evaluator: evaluator,
	})
	return &env{svc: svc, store: store, eval: evaluator}
}

func userID() quota.Identity {
	return quota.UserIdentity("user-1", 5, true)
}

func TestSolve_PersistsScanSolutionAndConversation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	done := make(chan error, 1)
	e.eval.OnDone(func(err error) { done <- err })

	result, err := e.svc.Solve(ctx, userID(), pipeline.Input{Text: "2x + 5 = 15"})
	if err != nil {
		t.Fatal(err)
	}

	if result.Scan.ID == "" {
		t.Fatal("scan must be persisted with an ID")
	}
	if result.Scan.Subject != models.SubjectMath {
		t.Errorf("subject = %q, want math", result.Scan.Subject)
	}
	if result.Solution.FinalAnswer != "x = 5" {
		t.Errorf("final answer = %q", result.Solution.FinalAnswer)
	}
	if result.Solution.Verification != models.VerifyPass {
		t.Errorf("verification = %q, want pass", result.Solution.Verification)
	}
	if result.Quota.Used != 1 || result.Quota.Remaining != 4 {
		t.Errorf("quota = %+v, want used 1 of 5", result.Quota)
	}

	turns, err := e.store.GetTurns(ctx, result.Scan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("seed turns = %d, want 2", len(turns))
	}
	if turns[0].Role != models.RoleSystem || !strings.HasPrefix(turns[0].Content, "Problem: ") {
		t.Errorf("turn[0] = (%s, %q)", turns[0].Role, turns[0].Content)
	}
	if turns[1].Role != models.RoleAssistant || !strings.Contains(turns[1].Content, "Answer: x = 5") {
		t.Errorf("turn[1] = (%s, %q)", turns[1].Role, turns[1].Content)
	}
	if !strings.Contains(turns[1].Content, "1. Subtract 5 from both sides") {
		t.Errorf("assistant summary missing steps: %q", turns[1].Content)
	}

	// The detached evaluation eventually writes the quality score.
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("deep evaluation never completed")
	}
	solution, _ := e.store.GetSolutionByScan(ctx, result.Scan.ID)
	if solution.QualityScore != 0.9 {
		t.Errorf("quality score = %v, want 0.9 from evaluation", solution.QualityScore)
	}
}

func TestSolve_RejectsWhenQuotaExhausted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := quota.UserIdentity("user-2", 1, true)

	if _, err := e.svc.Solve(ctx, id, pipeline.Input{Text: "2x+5=15"}); err != nil {
		t.Fatal(err)
	}

	_, err := e.svc.Solve(ctx, id, pipeline.Input{Text: "3x+1=10"})
	if !quota.IsExceeded(err) {
		t.Fatalf("error = %v, want quota exceeded", err)
	}
}

func TestSolve_RejectsEmptyInput(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Solve(context.Background(), userID(), pipeline.Input{Text: "   "})
	if err != ErrEmptyInput {
		t.Fatalf("error = %v, want ErrEmptyInput", err)
	}

	// Empty input must not consume quota.
	info, err := e.svc.QuotaStatus(context.Background(), userID())
	if err != nil {
		t.Fatal(err)
	}
	if info.Used != 0 {
		t.Errorf("used = %d, want 0 after rejected input", info.Used)
	}
}

func TestFollowUp_AppendsExchange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	result, err := e.svc.Solve(ctx, userID(), pipeline.Input{Text: "2x + 5 = 15"})
	if err != nil {
		t.Fatal(err)
	}

	reply, err := e.svc.FollowUp(ctx, result.Scan.ID, "why divide by 2?")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Reply == "" {
		t.Fatal("empty follow-up reply")
	}
	if reply.TokensUsed == 0 {
		t.Error("tokens used must be reported")
	}

	turns, _ := e.store.GetTurns(ctx, result.Scan.ID)
	if len(turns) != 4 {
		t.Fatalf("turns = %d, want 4 (2 seed + user + assistant)", len(turns))
	}
	if turns[2].Role != models.RoleUser || turns[2].Content != "why divide by 2?" {
		t.Errorf("turn[2] = (%s, %q)", turns[2].Role, turns[2].Content)
	}
	if turns[3].Role != models.RoleAssistant {
		t.Errorf("turn[3] role = %s, want assistant", turns[3].Role)
	}
}

func TestFollowUp_UnknownScan(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.FollowUp(context.Background(), "no-such-scan", "hello?")
	if err != storage.ErrNotFound {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestGetScanAndHistory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.svc.Solve(ctx, userID(), pipeline.Input{Text: "2x + 5 = 15"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := e.svc.GetScan(ctx, first.Scan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Solution == nil || got.Solution.ScanID != first.Scan.ID {
		t.Errorf("GetScan solution = %+v", got.Solution)
	}

	scans, err := e.svc.History(ctx, "user-1", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(scans) != 1 {
		t.Errorf("history len = %d, want 1", len(scans))
	}
}
