package models

import "time"

// SolutionStep is one step of a worked solution.
type SolutionStep struct {
	Step        int    `json:"step"`
	Description string `json:"description"`
	Formula     string `json:"formula,omitempty"`
	Calculation string `json:"calculation,omitempty"`
}

// Solution is the durable record of a generated solution for a scan, including
// the verification outcome it was accepted under and the token cost of
// producing it. QualityScore and Evaluation are filled in later by the
// background deep evaluation, not by the solve pipeline.
type Solution struct {
	ID               string          `json:"id"`
	ScanID           string          `json:"scan_id"`
	Provider         string          `json:"provider"`
	Model            string          `json:"model"`
	Content          string          `json:"content"`
	Steps            []SolutionStep  `json:"steps,omitempty"`
	FinalAnswer      string          `json:"final_answer"`
	Explanation      string          `json:"explanation,omitempty"`
	Tips             string          `json:"tips,omitempty"`
	KnowledgePoints  []string        `json:"knowledge_points,omitempty"`
	Verification     VerifyOutcome   `json:"verification"`
	VerifyConfidence float64         `json:"verify_confidence"`
	Caution          bool            `json:"caution,omitempty"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	Attempts         int             `json:"attempts"`
	RelatedFormulas  []FormulaRef    `json:"related_formulas,omitempty"`
	QualityScore     float64         `json:"quality_score,omitempty"`
	Evaluation       *Evaluation     `json:"evaluation,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// FormulaRef is a reference-material formula attached to a solution.
type FormulaRef struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	LaTeX       string `json:"latex,omitempty"`
	Description string `json:"description,omitempty"`
}

// SimilarProblem is a previously solved problem retrieved as generation context.
type SimilarProblem struct {
	ScanID      string `json:"scan_id,omitempty"`
	ProblemText string `json:"problem_text"`
	FinalAnswer string `json:"final_answer,omitempty"`
}

// Evaluation is the per-axis quality breakdown produced by the background deep
// evaluation. All axis scores are in [0,1].
type Evaluation struct {
	Correctness  float64 `json:"correctness"`
	Completeness float64 `json:"completeness"`
	Clarity      float64 `json:"clarity"`
	Pedagogy     float64 `json:"pedagogy"`
	Format       float64 `json:"format"`
	Overall      float64 `json:"overall"`
	Suggestions  string  `json:"suggestions,omitempty"`
}
