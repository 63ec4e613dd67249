package models

// VerifyOutcome is the tri-state result of the independent answer check.
//
// Indeterminate means "no reliable signal": the checker timed out, errored,
// reported low confidence, or had nothing to check. It is treated as
// acceptance downstream, never as a rejection.
type VerifyOutcome string

const (
	VerifyPass          VerifyOutcome = "pass"
	VerifyFail          VerifyOutcome = "fail"
	VerifyIndeterminate VerifyOutcome = "indeterminate"
)

// MinVerifyConfidence is the floor below which a definite pass/fail judgment
// is coerced to indeterminate.
const MinVerifyConfidence = 0.6

// Verification carries the outcome of one independent answer check.
type Verification struct {
	Outcome           VerifyOutcome `json:"outcome"`
	Confidence        float64       `json:"confidence"`
	IndependentAnswer string        `json:"independent_answer,omitempty"`
	Reason            string        `json:"reason,omitempty"`
}

// Normalize applies the confidence floor: a pass or fail reported with
// confidence below MinVerifyConfidence carries no information and becomes
// indeterminate.
func (v Verification) Normalize() Verification {
	if v.Outcome != VerifyIndeterminate && v.Confidence < MinVerifyConfidence {
		v.Outcome = VerifyIndeterminate
	}
	return v
}
