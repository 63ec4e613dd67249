// Package evaluate scores accepted solutions on rubric axes in the
// background, after the solve response has been returned.
package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/snapsolve/snapsolve/internal/provider"
	"github.com/snapsolve/snapsolve/internal/routing"
	"github.com/snapsolve/snapsolve/internal/storage"
	"github.com/snapsolve/snapsolve/pkg/models"
)

// DefaultTimeout bounds one background evaluation. The task runs detached
// from the request, so this is its only deadline.
const DefaultTimeout = 60 * time.Second

const evalSystem = `You grade a tutor's solution to a school homework problem.
Score each axis from 0.0 to 1.0. Respond with a single JSON object:
{"correctness": 0.0, "completeness": 0.0, "clarity": 0.0, "pedagogy": 0.0,
"format": 0.0, "overall": 0.0, "suggestions": "..."}. No other text.`

func evalMessages(scan *models.ScanRecord, answer string, steps []models.SolutionStep) []provider.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\nGrade level: %s\n\nProblem:\n%s\n\nFinal answer:\n%s\n",
		scan.Subject, scan.GradeLevel, scan.ProblemText, answer)
	if len(steps) > 0 {
		b.WriteString("\nSteps:\n")
		for _, step := range steps {
			fmt.Fprintf(&b, "%d. %s", step.Step, step.Description)
			if step.Calculation != "" {
				fmt.Fprintf(&b, " (%s)", step.Calculation)
			}
			b.WriteString("\n")
		}
	}
	return []provider.Message{{Role: "user", Content: b.String()}}
}

// Evaluator runs the deep quality evaluation and writes results back to the
// solution store. It never surfaces errors to the solve flow.
type Evaluator struct {
	selector  *routing.Selector
	solutions storage.SolutionStore
	logger    *slog.Logger
	timeout   time.Duration

	// onDone, when set, is called after a detached run finishes. Used to
	// record metrics and by tests to synchronize.
	onDone func(err error)
}

// NewEvaluator creates an Evaluator over the given selector and store.
func NewEvaluator(selector *routing.Selector, solutions storage.SolutionStore, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		selector:  selector,
		solutions: solutions,
		logger:    logger.With("component", "evaluate"),
		timeout:   DefaultTimeout,
	}
}

// OnDone registers a completion hook for detached runs.
func (e *Evaluator) OnDone(fn func(err error)) {
	e.onDone = fn
}

// Detach starts the evaluation in the background and returns immediately.
// The detached task gets its own deadline, independent of the request
// context that spawned it. Failures are logged, never propagated.
func (e *Evaluator) Detach(scan *models.ScanRecord, solution *models.Solution) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("evaluation panicked", "scan_id", scan.ID, "panic", r)
				if e.onDone != nil {
					e.onDone(fmt.Errorf("evaluate: panic: %v", r))
				}
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		err := e.Evaluate(ctx, scan, solution)
		if err != nil {
			e.logger.Warn("evaluation failed", "scan_id", scan.ID, "error", err)
		}
		if e.onDone != nil {
			e.onDone(err)
		}
	}()
}

// Evaluate scores the solution and persists the result.
func (e *Evaluator) Evaluate(ctx context.Context, scan *models.ScanRecord, solution *models.Solution) error {
	handle, err := e.selector.Evaluation()
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	completion, err := handle.Provider.Complete(ctx, &provider.Request{
		Model:       handle.Model,
		System:      evalSystem,
		Messages:    evalMessages(scan, solution.FinalAnswer, solution.Steps),
		MaxTokens:   1024,
		Temperature: 0,
	})
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	eval, err := parseEvaluation(completion.Text)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	if err := e.solutions.UpdateEvaluation(ctx, solution.ID, eval.Overall, eval); err != nil {
		return fmt.Errorf("evaluate: store result: %w", err)
	}

	e.logger.Info("solution evaluated",
		"scan_id", scan.ID,
		"solution_id", solution.ID,
		"overall", eval.Overall,
		"provider", completion.Provider)
	return nil
}

// parseEvaluation decodes the model's rubric JSON. Missing axes score zero;
// out-of-range values are clamped into [0,1].
func parseEvaluation(text string) (*models.Evaluation, error) {
	var raw struct {
		Correctness  *float64 `json:"correctness"`
		Completeness *float64 `json:"completeness"`
		Clarity      *float64 `json:"clarity"`
		Pedagogy     *float64 `json:"pedagogy"`
		Format       *float64 `json:"format"`
		Overall      *float64 `json:"overall"`
		Suggestions  string   `json:"suggestions"`
	}
	if err := decodeLoose(text, &raw); err != nil {
		return nil, err
	}

	return &models.Evaluation{
		Correctness:  axisScore(raw.Correctness),
		Completeness: axisScore(raw.Completeness),
		Clarity:      axisScore(raw.Clarity),
		Pedagogy:     axisScore(raw.Pedagogy),
		Format:       axisScore(raw.Format),
		Overall:      axisScore(raw.Overall),
		Suggestions:  raw.Suggestions,
	}, nil
}

func axisScore(v *float64) float64 {
	if v == nil {
		return 0
	}
	switch {
	case *v < 0:
		return 0
	case *v > 1:
		return 1
	}
	return *v
}

// decodeLoose accepts either a bare JSON object or one embedded in
// surrounding prose.
func decodeLoose(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), v); err != nil {
		return fmt.Errorf("malformed rubric JSON: %w", err)
	}
	return nil
}
