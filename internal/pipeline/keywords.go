package pipeline

import (
	"strings"

	"github.com/snapsolve/snapsolve/pkg/models"
)

// subjectKeywords backs the deterministic classification fallback: when the
// model call fails, the subject with the highest keyword overlap wins.
var subjectKeywords = map[models.Subject][]string{
	models.SubjectMath: {
		"x", "y", "solve", "equation", "angle", "triangle", "calculate", "sum", "product",
	},
	models.SubjectPhysics: {
		"force", "mass", "acceleration", "velocity", "energy", "momentum", "wave",
	},
	models.SubjectChemistry: {
		"atom", "molecule", "reaction", "acid", "base", "element", "compound",
	},
}

// detectSubjectFallback scores keyword overlap per subject, defaulting to
// math when nothing matches.
func detectSubjectFallback(text string) models.Subject {
	lower := strings.ToLower(text)

	best := models.SubjectMath
	bestScore := 0
	for _, subject := range []models.Subject{models.SubjectMath, models.SubjectPhysics, models.SubjectChemistry} {
		score := 0
		for _, keyword := range subjectKeywords[subject] {
			if strings.Contains(lower, keyword) {
				score++
			}
		}
		if score > bestScore {
			best = subject
			bestScore = score
		}
	}
	return best
}
