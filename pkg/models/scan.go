package models

import "time"

// Subject identifies the school subject of a problem.
type Subject string

const (
	SubjectMath      Subject = "math"
	SubjectPhysics   Subject = "physics"
	SubjectChemistry Subject = "chemistry"
	SubjectBiology   Subject = "biology"
	SubjectEnglish   Subject = "english"
	SubjectChinese   Subject = "chinese"
)

// Difficulty is a coarse difficulty label assigned during classification.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ScanRecord is the durable record of one submitted problem: the input image or
// text, what extraction produced, and how the problem was classified.
type ScanRecord struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id,omitempty"`
	ImageURL        string     `json:"image_url,omitempty"`
	ProblemText     string     `json:"problem_text"`
	TextConfidence  float64    `json:"text_confidence"`
	Subject         Subject    `json:"subject"`
	ProblemType     string     `json:"problem_type"`
	Difficulty      Difficulty `json:"difficulty"`
	KnowledgePoints []string   `json:"knowledge_points,omitempty"`
	GradeLevel      string     `json:"grade_level,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
