// Package storage persists scans, solutions, and per-scan conversations.
package storage

import (
	"context"
	"errors"

	"github.com/snapsolve/snapsolve/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// ScanStore persists submitted problems and their classification.
type ScanStore interface {
	CreateScan(ctx context.Context, scan *models.ScanRecord) error
	GetScan(ctx context.Context, id string) (*models.ScanRecord, error)
	ListScans(ctx context.Context, userID string, limit, offset int) ([]*models.ScanRecord, error)
}

// SolutionStore persists generated solutions. UpdateEvaluation is written by
// the background deep evaluation after the solve response has already been
// returned.
type SolutionStore interface {
	CreateSolution(ctx context.Context, solution *models.Solution) error
	GetSolutionByScan(ctx context.Context, scanID string) (*models.Solution, error)
	UpdateEvaluation(ctx context.Context, solutionID string, score float64, eval *models.Evaluation) error
}

// ConversationStore persists the append-only follow-up conversation per scan.
type ConversationStore interface {
	AppendTurn(ctx context.Context, turn *models.ConversationTurn) error
	GetTurns(ctx context.Context, scanID string) ([]*models.ConversationTurn, error)
}

// Store is the combined persistence surface the service layer depends on.
type Store interface {
	ScanStore
	SolutionStore
	ConversationStore

	Close() error
}
