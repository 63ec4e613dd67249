// Package service orchestrates the solve flow end to end: quota admission,
// the solve pipeline, persistence, conversation seeding, and the detached
// deep evaluation.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/snapsolve/snapsolve/internal/evaluate"
	"github.com/snapsolve/snapsolve/internal/observability"
	"github.com/snapsolve/snapsolve/internal/pipeline"
	"github.com/snapsolve/snapsolve/internal/quota"
	"github.com/snapsolve/snapsolve/internal/storage"
	"github.com/snapsolve/snapsolve/pkg/models"
)

// ScanResult is the response payload for one solved problem.
type ScanResult struct {
	Scan     *models.ScanRecord `json:"scan"`
	Solution *models.Solution   `json:"solution"`
	Quota    models.QuotaInfo   `json:"quota"`
}

// FollowUpResult is the response payload for one follow-up exchange.
type FollowUpResult struct {
	Reply      string `json:"reply"`
	TokensUsed int    `json:"tokens_used"`
}

// ScanService wires admission, solving, persistence, and evaluation.
type ScanService struct {
	solver    *pipeline.Solver
	followUp  *pipeline.FollowUp
	admission *quota.Controller
	store     storage.Store
	evaluator *evaluate.Evaluator
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// Options configures optional ScanService collaborators.
type Options struct {
	// Evaluator, when set, runs the background deep evaluation after each
	// accepted solution.
	Evaluator *evaluate.Evaluator

	// Metrics, when set, records solve and admission metrics.
	Metrics *observability.Metrics
}

// NewScanService creates the orchestration service.
func NewScanService(
	solver *pipeline.Solver,
	followUp *pipeline.FollowUp,
	admission *quota.Controller,
	store storage.Store,
	logger *slog.Logger,
	opts Options,
) *ScanService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScanService{
		solver:    solver,
		followUp:  followUp,
		admission: admission,
		store:     store,
		evaluator: opts.Evaluator,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "service"),
	}
}

// Solve admits the caller against their quota, runs the solve pipeline, and
// persists the scan, solution, and seed conversation. The deep evaluation is
// detached after persistence and never delays the response.
func (s *ScanService) Solve(ctx context.Context, id quota.Identity, input pipeline.Input) (*ScanResult, error) {
	if len(input.Image) == 0 && strings.TrimSpace(input.Text) == "" {
		return nil, ErrEmptyInput
	}

	info, err := s.admission.Admit(ctx, id)
	s.recordQuota(id, err)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	state, err := s.solver.Run(ctx, input)
	if err != nil {
		s.countScan(state, "error")
		return nil, err
	}
	s.countScan(state, "ok")
	s.recordPipeline(state, time.Since(start))

	scan, solution, err := s.persist(ctx, id, state)
	if err != nil {
		return nil, err
	}

	if s.evaluator != nil {
		s.evaluator.Detach(scan, solution)
	}

	s.logger.Info("scan solved",
		"scan_id", scan.ID,
		"subject", scan.Subject,
		"attempts", solution.Attempts,
		"verification", solution.Verification,
		"caution", solution.Caution)

	return &ScanResult{Scan: scan, Solution: solution, Quota: info}, nil
}

// FollowUp answers a follow-up question about a solved scan and appends both
// sides of the exchange to the conversation.
func (s *ScanService) FollowUp(ctx context.Context, scanID, message string) (*FollowUpResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyInput
	}

	scan, err := s.store.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}

	turns, err := s.store.GetTurns(ctx, scanID)
	if err != nil {
		return nil, err
	}

	history := make([]models.ConversationTurn, len(turns))
	for i, turn := range turns {
		history[i] = *turn
	}

	reply, err := s.followUp.Reply(ctx, history, message, scan.Subject)
	if err != nil {
		return nil, err
	}

	// The exchange is only recorded once the reply succeeded, so a failed
	// follow-up leaves the conversation untouched.
	if err := s.store.AppendTurn(ctx, &models.ConversationTurn{
		ScanID: scanID, Role: models.RoleUser, Content: message,
	}); err != nil {
		return nil, err
	}
	if err := s.store.AppendTurn(ctx, &models.ConversationTurn{
		ScanID: scanID, Role: models.RoleAssistant, Content: reply.Reply,
	}); err != nil {
		return nil, err
	}

	return &FollowUpResult{Reply: reply.Reply, TokensUsed: reply.TokensUsed}, nil
}

// QuotaStatus reports current usage without consuming quota.
func (s *ScanService) QuotaStatus(ctx context.Context, id quota.Identity) (models.QuotaInfo, error) {
	return s.admission.Status(ctx, id)
}

// GetScan returns a previously solved scan with its solution.
func (s *ScanService) GetScan(ctx context.Context, scanID string) (*ScanResult, error) {
	scan, err := s.store.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	solution, err := s.store.GetSolutionByScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	return &ScanResult{Scan: scan, Solution: solution}, nil
}

// History lists a user's past scans, newest first.
func (s *ScanService) History(ctx context.Context, userID string, limit, offset int) ([]*models.ScanRecord, error) {
	return s.store.ListScans(ctx, userID, limit, offset)
}

// Conversation returns the full conversation for a scan.
func (s *ScanService) Conversation(ctx context.Context, scanID string) ([]*models.ConversationTurn, error) {
	if _, err := s.store.GetScan(ctx, scanID); err != nil {
		return nil, err
	}
	return s.store.GetTurns(ctx, scanID)
}

func (s *ScanService) persist(ctx context.Context, id quota.Identity, state *pipeline.State) (*models.ScanRecord, *models.Solution, error) {
	scan := &models.ScanRecord{
		UserID:          id.UserID,
		ProblemText:     state.ProblemText,
		TextConfidence:  state.TextConfidence,
		Subject:         state.Subject,
		ProblemType:     state.ProblemType,
		Difficulty:      state.Difficulty,
		KnowledgePoints: state.KnowledgePoints,
		GradeLevel:      state.Input.GradeLevel,
	}
	if err := s.store.CreateScan(ctx, scan); err != nil {
		return nil, nil, fmt.Errorf("persist scan: %w", err)
	}

	final := state.Final
	solution := &models.Solution{
		ScanID:           scan.ID,
		Provider:         state.Provider,
		Model:            state.Model,
		Content:          state.RawSolution,
		Steps:            final.Steps,
		FinalAnswer:      final.FinalAnswer,
		Explanation:      final.Explanation,
		Tips:             final.Tips,
		KnowledgePoints:  final.KnowledgePoints,
		Verification:     state.Verification.Outcome,
		VerifyConfidence: state.Verification.Confidence,
		Caution:          state.Caution,
		PromptTokens:     state.Usage.InputTokens,
		CompletionTokens: state.Usage.OutputTokens,
		Attempts:         state.Attempts(),
		RelatedFormulas:  final.RelatedFormulas,
	}
	if err := s.store.CreateSolution(ctx, solution); err != nil {
		return nil, nil, fmt.Errorf("persist solution: %w", err)
	}

	s.seedConversation(ctx, scan, solution)
	return scan, solution, nil
}

// seedConversation writes the first two turns so follow-ups have context: a
// system turn carrying the problem and an assistant turn summarizing the
// answer. Seeding failures are logged, not fatal; the solve already
// succeeded.
func (s *ScanService) seedConversation(ctx context.Context, scan *models.ScanRecord, solution *models.Solution) {
	turns := []*models.ConversationTurn{
		{ScanID: scan.ID, Role: models.RoleSystem, Content: "Problem: " + scan.ProblemText},
		{ScanID: scan.ID, Role: models.RoleAssistant, Content: solutionSummary(solution)},
	}
	for _, turn := range turns {
		if err := s.store.AppendTurn(ctx, turn); err != nil {
			s.logger.Warn("conversation seed failed", "scan_id", scan.ID, "error", err)
			return
		}
	}
}

// solutionSummary renders a readable recap of the solution instead of the
// raw model JSON.
func solutionSummary(solution *models.Solution) string {
	var parts []string
	if solution.FinalAnswer != "" {
		parts = append(parts, "Answer: "+solution.FinalAnswer)
	}
	if len(solution.Steps) > 0 {
		parts = append(parts, "Steps:")
		for _, step := range solution.Steps {
			parts = append(parts, fmt.Sprintf("  %d. %s", step.Step, step.Description))
		}
	}
	if len(parts) == 0 {
		return solution.Content
	}
	return strings.Join(parts, "\n")
}

func (s *ScanService) recordQuota(id quota.Identity, err error) {
	if s.metrics == nil {
		return
	}
	kind := "guest"
	if id.UserID != "" {
		kind = "user"
	}
	decision := "admitted"
	if err != nil {
		decision = "rejected"
	}
	s.metrics.QuotaDecisions.WithLabelValues(kind, decision).Inc()
}

func (s *ScanService) countScan(state *pipeline.State, status string) {
	if s.metrics == nil {
		return
	}
	subject := "unknown"
	if state != nil && state.Subject != "" {
		subject = string(state.Subject)
	}
	s.metrics.ScanCounter.WithLabelValues(subject, status).Inc()
}

func (s *ScanService) recordPipeline(state *pipeline.State, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.PipelineDuration.WithLabelValues(string(state.Subject)).Observe(elapsed.Seconds())
	s.metrics.PipelineAttempts.Observe(float64(state.Attempts()))
	s.metrics.VerifyOutcomes.WithLabelValues(string(state.Verification.Outcome)).Inc()
	if state.Caution {
		s.metrics.CautionCounter.Inc()
	}
	if state.Provider != "" {
		s.metrics.LLMTokens.WithLabelValues(state.Provider, state.Model, "prompt").
			Add(float64(state.Usage.InputTokens))
		s.metrics.LLMTokens.WithLabelValues(state.Provider, state.Model, "completion").
			Add(float64(state.Usage.OutputTokens))
	}
}
