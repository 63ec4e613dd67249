package pipeline

import (
	"fmt"
	"strings"

	"github.com/snapsolve/snapsolve/internal/provider"
	"github.com/snapsolve/snapsolve/pkg/models"
)

const classifySystem = `You classify school homework problems. Respond with a
single JSON object: {"subject": one of math|physics|chemistry|biology|english|chinese,
"problem_type": short label, "difficulty": easy|medium|hard,
"knowledge_points": list of short strings}. No other text.`

func classifyMessages(problemText, gradeLevel string) []provider.Message {
	return []provider.Message{{
		Role: models.RoleUser,
		Content: fmt.Sprintf("Grade level: %s\n\nProblem:\n%s", gradeLevel, problemText),
	}}
}

const solveSystem = `You are a patient tutor writing step-by-step homework
solutions. Respond with a single JSON object:
{"question_type": string, "knowledge_points": [string],
"steps": [{"step": int, "description": string, "formula": string, "calculation": string}],
"final_answer": string, "explanation": string, "tips": string}.
No text outside the JSON object.`

func solveMessages(st *State) []provider.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\nGrade level: %s\n\nProblem:\n%s\n",
		st.Subject, st.gradeLevel(), st.ProblemText)

	if context := referenceContext(st.Formulas, st.SimilarProblems); context != "" {
		b.WriteString("\n")
		b.WriteString(context)
	}

	return []provider.Message{{Role: models.RoleUser, Content: b.String()}}
}

// referenceContext renders retrieved formulas and similar problems as prompt
// context.
func referenceContext(formulas []models.FormulaRef, similar []models.SimilarProblem) string {
	var parts []string
	if len(formulas) > 0 {
		parts = append(parts, "## Related Formulas")
		for _, f := range formulas {
			parts = append(parts, fmt.Sprintf("- **%s**: `%s` — %s", f.Name, f.LaTeX, f.Description))
		}
	}
	if len(similar) > 0 {
		parts = append(parts, "\n## Similar Problems (for reference)")
		for _, p := range similar {
			text := p.ProblemText
			if len(text) > 200 {
				text = text[:200]
			}
			parts = append(parts, "- "+text)
		}
	}
	return strings.Join(parts, "\n")
}

const verifySystem = `You independently check the final answer of a homework
solution. Solve the problem yourself, compare answers, and respond with a
single JSON object: {"is_correct": bool, "confidence": number in [0,1],
"independent_answer": string, "error_description": string}. No other text.`

func verifyMessages(st *State) []provider.Message {
	var steps strings.Builder
	for _, s := range st.Parsed.Steps {
		fmt.Fprintf(&steps, "%d. %s\n", s.Step, s.Description)
	}
	return []provider.Message{{
		Role: models.RoleUser,
		Content: fmt.Sprintf("Subject: %s\n\nProblem:\n%s\n\nClaimed final answer: %s\n\nSteps:\n%s",
			st.Subject, st.ProblemText, st.Parsed.FinalAnswer, steps.String()),
	}}
}

const followUpSystem = `You are a patient tutor continuing a conversation
about a homework problem the student already received a solution for. Answer
the student's follow-up question clearly and at their grade level.`

func followUpMessages(turns []models.ConversationTurn, userMessage string) []provider.Message {
	out := make([]provider.Message, 0, len(turns)+1)
	for _, turn := range turns {
		out = append(out, provider.Message{Role: turn.Role, Content: turn.Content})
	}
	out = append(out, provider.Message{Role: models.RoleUser, Content: userMessage})
	return out
}
