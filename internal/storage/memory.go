package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snapsolve/snapsolve/pkg/models"
)

// MemoryStore provides an in-memory Store implementation for testing and
// local runs.
type MemoryStore struct {
	mu        sync.RWMutex
	scans     map[string]*models.ScanRecord
	solutions map[string]*models.Solution
	byScan    map[string]string
	turns     map[string][]*models.ConversationTurn
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scans:     map[string]*models.ScanRecord{},
		solutions: map[string]*models.Solution{},
		byScan:    map[string]string{},
		turns:     map[string][]*models.ConversationTurn{},
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateScan(ctx context.Context, scan *models.ScanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if scan.ID == "" {
		scan.ID = uuid.NewString()
	}
	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = time.Now().UTC()
	}
	clone := *scan
	m.scans[clone.ID] = &clone
	return nil
}

func (m *MemoryStore) GetScan(ctx context.Context, id string) (*models.ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scan, ok := m.scans[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *scan
	return &clone, nil
}

func (m *MemoryStore) ListScans(ctx context.Context, userID string, limit, offset int) ([]*models.ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	var matched []*models.ScanRecord
	for _, scan := range m.scans {
		if scan.UserID == userID {
			clone := *scan
			matched = append(matched, &clone)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MemoryStore) CreateSolution(ctx context.Context, solution *models.Solution) error {
	if solution.ScanID == "" {
		return ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if solution.ID == "" {
		solution.ID = uuid.NewString()
	}
	if solution.CreatedAt.IsZero() {
		solution.CreatedAt = time.Now().UTC()
	}
	if solution.UpdatedAt.IsZero() {
		solution.UpdatedAt = solution.CreatedAt
	}
	clone := *solution
	m.solutions[clone.ID] = &clone
	m.byScan[clone.ScanID] = clone.ID
	return nil
}

func (m *MemoryStore) GetSolutionByScan(ctx context.Context, scanID string) (*models.Solution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byScan[scanID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *m.solutions[id]
	return &clone, nil
}

func (m *MemoryStore) UpdateEvaluation(ctx context.Context, solutionID string, score float64, eval *models.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	solution, ok := m.solutions[solutionID]
	if !ok {
		return ErrNotFound
	}
	solution.QualityScore = score
	if eval != nil {
		clone := *eval
		solution.Evaluation = &clone
	}
	solution.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) AppendTurn(ctx context.Context, turn *models.ConversationTurn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	clone := *turn
	m.turns[clone.ScanID] = append(m.turns[clone.ScanID], &clone)
	return nil
}

func (m *MemoryStore) GetTurns(ctx context.Context, scanID string) ([]*models.ConversationTurn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.turns[scanID]
	turns := make([]*models.ConversationTurn, 0, len(stored))
	for _, turn := range stored {
		clone := *turn
		turns = append(turns, &clone)
	}
	return turns, nil
}
