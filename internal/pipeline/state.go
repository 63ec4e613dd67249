// Package pipeline implements the solve workflow: a fixed-topology state
// machine that extracts a problem, classifies it, retrieves reference
// material, generates a solution, verifies it independently, and enriches
// the accepted result.
//
// Stage ordering is fixed; the only loop is generate→verify, bounded by
// MaxRetries. Each stage owns the state fields it writes and treats upstream
// fields as read-only.
package pipeline

import (
	"github.com/snapsolve/snapsolve/internal/provider"
	"github.com/snapsolve/snapsolve/pkg/models"
)

// MaxRetries bounds the generate→verify loop: at most this many retries
// after the first attempt.
const MaxRetries = 2

// Stage names a pipeline stage, used in annotations and logs.
type Stage string

const (
	StageExtract  Stage = "extract"
	StageClassify Stage = "classify"
	StageRetrieve Stage = "retrieve"
	StageGenerate Stage = "generate"
	StageVerify   Stage = "verify"
	StageEnrich   Stage = "enrich"
)

// Annotation records a degraded-continue event: the stage fell back to a
// safe default instead of failing the request. Annotations are observability
// payload only; they never alter control flow past their own stage.
type Annotation struct {
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
}

// Input is the request that enters the pipeline.
type Input struct {
	// Image is the photographed problem; nil when Text is supplied directly.
	Image []byte

	// Text is the typed problem statement, used as-is when present.
	Text string

	// Subject, when set by the caller, overrides classification.
	Subject models.Subject

	// GradeLevel tunes prompt difficulty. Empty means DefaultGradeLevel.
	GradeLevel string

	// PreferredProvider pins the first generation attempt to one provider.
	PreferredProvider string
}

// DefaultGradeLevel applies when the caller does not specify one.
const DefaultGradeLevel = "middle school"

// ParsedSolution is the structured payload parsed from generation output.
type ParsedSolution struct {
	QuestionType    string                `json:"question_type"`
	KnowledgePoints []string              `json:"knowledge_points"`
	Steps           []models.SolutionStep `json:"steps"`
	FinalAnswer     string                `json:"final_answer"`
	Explanation     string                `json:"explanation"`
	Tips            string                `json:"tips"`
}

// FinalSolution is the enriched terminal payload.
type FinalSolution struct {
	Steps           []models.SolutionStep `json:"steps"`
	FinalAnswer     string                `json:"final_answer"`
	Explanation     string                `json:"explanation,omitempty"`
	Tips            string                `json:"tips,omitempty"`
	KnowledgePoints []string              `json:"knowledge_points,omitempty"`
	RelatedFormulas []models.FormulaRef   `json:"related_formulas,omitempty"`
	Difficulty      models.Difficulty     `json:"difficulty"`
	Verification    models.Verification   `json:"verification"`

	// Caution marks a solution accepted after verification kept failing and
	// retries ran out: the disagreement is unresolved.
	Caution bool `json:"caution,omitempty"`
}

// State accumulates the outputs of each stage for one solve request. It is
// request-local: nothing in it is shared across requests.
type State struct {
	Input Input

	// Written by extract.
	ProblemText    string
	TextConfidence float64

	// Written by classify.
	Subject         models.Subject
	ProblemType     string
	Difficulty      models.Difficulty
	KnowledgePoints []string

	// Written by retrieve.
	Formulas        []models.FormulaRef
	SimilarProblems []models.SimilarProblem

	// Written by generate. Usage accumulates across retry attempts.
	RawSolution string
	Parsed      ParsedSolution
	Provider    string
	Model       string
	Usage       provider.Usage

	// Written by verify and the conditional edge.
	Verification models.Verification
	Attempt      int
	Caution      bool

	// Written by enrich.
	Final *FinalSolution

	Annotations []Annotation
}

// Attempts reports the number of generation attempts made (1-based).
func (s *State) Attempts() int {
	return s.Attempt + 1
}

func (s *State) annotate(stage Stage, reason string) {
	s.Annotations = append(s.Annotations, Annotation{Stage: stage, Reason: reason})
}

func (s *State) gradeLevel() string {
	if s.Input.GradeLevel != "" {
		return s.Input.GradeLevel
	}
	return DefaultGradeLevel
}
