package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/snapsolve/snapsolve/internal/provider"
	"github.com/snapsolve/snapsolve/internal/routing"
	"github.com/snapsolve/snapsolve/internal/vision"
	"github.com/snapsolve/snapsolve/pkg/models"
)

// VerifyTimeout bounds the independent answer check. On expiry the in-flight
// call is cancelled and verification reports indeterminate.
const VerifyTimeout = 5 * time.Second

// acceptConfidence is the confidence at or above which a pass outcome is a
// definite acceptance signal.
const acceptConfidence = 0.8

// GenerationError is the fatal pipeline failure: the generation call itself
// failed, so there is no solution text to work with. It is distinct from a
// quota rejection and from every degraded-continue fallback.
type GenerationError struct {
	Provider string
	Attempt  int
	Cause    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("pipeline: generation failed on %s (attempt %d): %v", e.Provider, e.Attempt+1, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// IsGenerationError reports whether err is a fatal generation failure.
func IsGenerationError(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr)
}

// Solver runs the solve state machine.
type Solver struct {
	extractor     vision.Extractor
	selector      *routing.Selector
	retriever     Retriever
	logger        *slog.Logger
	verifyTimeout time.Duration
}

// NewSolver creates a Solver. retriever may be nil (no retrieval backend);
// extractor may be nil when only text input is expected.
func NewSolver(extractor vision.Extractor, selector *routing.Selector, retriever Retriever, logger *slog.Logger) *Solver {
	if retriever == nil {
		retriever = NopRetriever{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Solver{
		extractor:     extractor,
		selector:      selector,
		retriever:     retriever,
		logger:        logger.With("component", "pipeline"),
		verifyTimeout: VerifyTimeout,
	}
}

// SetVerifyTimeout overrides the verification deadline. Zero or negative
// values keep the current timeout.
func (s *Solver) SetVerifyTimeout(d time.Duration) {
	if d > 0 {
		s.verifyTimeout = d
	}
}

// verdict is the conditional edge decision after verification.
type verdict int

const (
	verdictAccept verdict = iota
	verdictRetry
	verdictAcceptWithCaution
)

// Run executes the pipeline to completion. The returned State always reflects
// every stage that ran; the error is non-nil only for the one fatal case, a
// failed generation call.
func (s *Solver) Run(ctx context.Context, in Input) (*State, error) {
	st := &State{Input: in}

	s.extract(ctx, st)
	s.classify(ctx, st)
	s.retrieve(ctx, st)

	for {
		if err := s.generate(ctx, st); err != nil {
			return st, err
		}
		s.verify(ctx, st)

		decision := routeAfterVerify(st)
		if decision == verdictRetry {
			st.Attempt++
			s.logger.Info("verification failed, retrying generation",
				"attempt", st.Attempt, "confidence", st.Verification.Confidence)
			continue
		}
		if decision == verdictAcceptWithCaution {
			st.Caution = true
			s.logger.Warn("accepting unverified solution after retries exhausted",
				"attempts", st.Attempts())
		}
		break
	}

	s.enrich(st)
	return st, nil
}

// routeAfterVerify implements the conditional edge: a definite pass or any
// inconclusive outcome accepts; a definite fail retries until MaxRetries,
// then accepts with the caution flag.
func routeAfterVerify(st *State) verdict {
	v := st.Verification
	switch {
	case v.Outcome == models.VerifyPass && v.Confidence >= acceptConfidence:
		return verdictAccept
	case v.Outcome == models.VerifyFail:
		if st.Attempt < MaxRetries {
			return verdictRetry
		}
		return verdictAcceptWithCaution
	default:
		// Indeterminate outcomes and passes below the definite threshold are
		// inconclusive, not rejections: accept.
		return verdictAccept
	}
}

// extract populates ProblemText. Typed text is used as-is; image input goes
// through the extractor. Failure degrades to empty text, never aborts.
func (s *Solver) extract(ctx context.Context, st *State) {
	if len(st.Input.Image) == 0 {
		if st.Input.Text == "" {
			st.annotate(StageExtract, "no image or text provided")
			return
		}
		st.ProblemText = st.Input.Text
		st.TextConfidence = 1.0
		return
	}

	if s.extractor == nil {
		st.annotate(StageExtract, "no extractor configured")
		return
	}

	result, err := s.extractor.ExtractText(ctx, st.Input.Image)
	if err != nil {
		s.logger.Warn("extraction failed", "error", err)
		st.annotate(StageExtract, err.Error())
		return
	}
	st.ProblemText = result.Text
	st.TextConfidence = result.Confidence
}

// classify infers subject, type, difficulty, and knowledge points with a
// fast-tier call, falling back to keyword matching when the call or its
// parse fails. A caller-supplied subject always overrides the inference.
func (s *Solver) classify(ctx context.Context, st *State) {
	inferred, err := s.classifyModel(ctx, st)
	if err != nil {
		s.logger.Warn("classification degraded to keyword heuristic", "error", err)
		st.annotate(StageClassify, err.Error())
		inferred = classification{
			Subject:     detectSubjectFallback(st.ProblemText),
			ProblemType: "unknown",
			Difficulty:  models.DifficultyMedium,
		}
	}

	st.Subject = inferred.Subject
	if st.Input.Subject != "" {
		st.Subject = st.Input.Subject
	}
	st.ProblemType = inferred.ProblemType
	st.Difficulty = inferred.Difficulty
	st.KnowledgePoints = inferred.KnowledgePoints
}

type classification struct {
	Subject         models.Subject    `json:"subject"`
	ProblemType     string            `json:"problem_type"`
	Difficulty      models.Difficulty `json:"difficulty"`
	KnowledgePoints []string          `json:"knowledge_points"`
}

func (s *Solver) classifyModel(ctx context.Context, st *State) (classification, error) {
	handle, err := s.selector.Classification()
	if err != nil {
		return classification{}, err
	}

	completion, err := handle.Provider.Complete(ctx, &provider.Request{
		Model:       handle.Model,
		System:      classifySystem,
		Messages:    classifyMessages(st.ProblemText, st.gradeLevel()),
		Temperature: 0.1,
	})
	if err != nil {
		return classification{}, err
	}

	var parsed classification
	if err := decodeLoose(completion.Text, &parsed); err != nil {
		return classification{}, err
	}
	if parsed.Subject == "" {
		parsed.Subject = models.SubjectMath
	}
	if parsed.ProblemType == "" {
		parsed.ProblemType = "unknown"
	}
	if parsed.Difficulty == "" {
		parsed.Difficulty = models.DifficultyMedium
	}
	return parsed, nil
}

// retrieve fetches reference material. It never fails the pipeline.
func (s *Solver) retrieve(ctx context.Context, st *State) {
	formulas, similar, err := s.retriever.Retrieve(ctx, st.ProblemText, st.Subject)
	if err != nil {
		s.logger.Warn("retrieval failed", "error", err)
		st.annotate(StageRetrieve, err.Error())
		return
	}
	st.Formulas = formulas
	st.SimilarProblems = similar
}

// generate produces the structured solution at strong tier. A provider
// invocation error is fatal; unparseable output degrades to a minimal
// structure carrying the raw text as the final answer.
func (s *Solver) generate(ctx context.Context, st *State) error {
	handle, err := s.selector.Generation(st.Input.PreferredProvider, st.Subject, st.Attempt)
	if err != nil {
		return &GenerationError{Attempt: st.Attempt, Cause: err}
	}

	completion, err := handle.Provider.Complete(ctx, &provider.Request{
		Model:       handle.Model,
		System:      solveSystem,
		Messages:    solveMessages(st),
		Temperature: 0.1,
	})
	if err != nil {
		return &GenerationError{Provider: handle.Name, Attempt: st.Attempt, Cause: err}
	}

	st.RawSolution = completion.Text
	st.Provider = completion.Provider
	st.Model = completion.Model
	st.Usage.InputTokens += completion.Usage.InputTokens
	st.Usage.OutputTokens += completion.Usage.OutputTokens

	var parsed ParsedSolution
	if err := decodeLoose(completion.Text, &parsed); err != nil {
		s.logger.Warn("solution output unparseable, keeping raw text", "provider", handle.Name)
		st.annotate(StageGenerate, "unparseable solution output")
		parsed = ParsedSolution{
			QuestionType: "unknown",
			FinalAnswer:  completion.Text,
		}
	}
	st.Parsed = parsed
	return nil
}

type verifyReport struct {
	IsCorrect         bool    `json:"is_correct"`
	Confidence        float64 `json:"confidence"`
	IndependentAnswer string  `json:"independent_answer"`
	ErrorDescription  string  `json:"error_description"`
}

// verify runs the independent answer check with a hard timeout. It is never
// fatal: timeout, provider error, parse failure, and a missing final answer
// all yield indeterminate with confidence 0.
func (s *Solver) verify(ctx context.Context, st *State) {
	if st.Parsed.FinalAnswer == "" {
		st.Verification = models.Verification{
			Outcome: models.VerifyIndeterminate,
			Reason:  "no answer to verify",
		}
		return
	}

	handle, err := s.selector.Verification()
	if err != nil {
		st.Verification = indeterminate(err.Error())
		st.annotate(StageVerify, err.Error())
		return
	}

	verifyCtx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	completion, err := handle.Provider.Complete(verifyCtx, &provider.Request{
		Model:       handle.Model,
		System:      verifySystem,
		Messages:    verifyMessages(st),
		Temperature: 0.1,
	})
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) || verifyCtx.Err() != nil {
			reason = "timeout"
		}
		s.logger.Warn("verification unavailable", "reason", reason)
		st.Verification = indeterminate(reason)
		st.annotate(StageVerify, reason)
		return
	}

	var report verifyReport
	if err := decodeLoose(completion.Text, &report); err != nil {
		s.logger.Warn("verification output unparseable")
		st.Verification = indeterminate("unparseable verification output")
		st.annotate(StageVerify, "unparseable verification output")
		return
	}

	outcome := models.VerifyFail
	if report.IsCorrect {
		outcome = models.VerifyPass
	}
	st.Verification = models.Verification{
		Outcome:           outcome,
		Confidence:        report.Confidence,
		IndependentAnswer: report.IndependentAnswer,
		Reason:            report.ErrorDescription,
	}.Normalize()
}

func indeterminate(reason string) models.Verification {
	return models.Verification{Outcome: models.VerifyIndeterminate, Reason: reason}
}

// enrich assembles the terminal payload: parsed solution plus reference
// material, difficulty, and the quality signal the result was accepted under.
func (s *Solver) enrich(st *State) {
	knowledge := st.KnowledgePoints
	if len(knowledge) == 0 {
		knowledge = st.Parsed.KnowledgePoints
	}
	st.Final = &FinalSolution{
		Steps:           st.Parsed.Steps,
		FinalAnswer:     st.Parsed.FinalAnswer,
		Explanation:     st.Parsed.Explanation,
		Tips:            st.Parsed.Tips,
		KnowledgePoints: knowledge,
		RelatedFormulas: st.Formulas,
		Difficulty:      st.Difficulty,
		Verification:    st.Verification,
		Caution:         st.Caution,
	}
}
