package pipeline

import (
	"context"

	"github.com/snapsolve/snapsolve/pkg/models"
)

// Retriever looks up reference material for a classified problem. Retrieval
// is strictly best-effort: implementations should return what they have, and
// the pipeline treats any error as "nothing found".
type Retriever interface {
	Retrieve(ctx context.Context, problemText string, subject models.Subject) ([]models.FormulaRef, []models.SimilarProblem, error)
}

// NopRetriever returns empty results. Used until a retrieval backend is
// wired.
type NopRetriever struct{}

func (NopRetriever) Retrieve(ctx context.Context, problemText string, subject models.Subject) ([]models.FormulaRef, []models.SimilarProblem, error) {
	return nil, nil, nil
}
