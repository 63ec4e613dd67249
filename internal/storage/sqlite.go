package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/snapsolve/snapsolve/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS scans (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL DEFAULT '',
	image_url        TEXT NOT NULL DEFAULT '',
	problem_text     TEXT NOT NULL,
	text_confidence  REAL NOT NULL DEFAULT 0,
	subject          TEXT NOT NULL DEFAULT '',
	problem_type     TEXT NOT NULL DEFAULT '',
	difficulty       TEXT NOT NULL DEFAULT '',
	knowledge_points TEXT NOT NULL DEFAULT '[]',
	grade_level      TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scans_user ON scans(user_id, created_at);

CREATE TABLE IF NOT EXISTS solutions (
	id                TEXT PRIMARY KEY,
	scan_id           TEXT NOT NULL REFERENCES scans(id),
	provider          TEXT NOT NULL,
	model             TEXT NOT NULL,
	content           TEXT NOT NULL,
	steps             TEXT NOT NULL DEFAULT '[]',
	final_answer      TEXT NOT NULL DEFAULT '',
	explanation       TEXT NOT NULL DEFAULT '',
	tips              TEXT NOT NULL DEFAULT '',
	knowledge_points  TEXT NOT NULL DEFAULT '[]',
	verification      TEXT NOT NULL DEFAULT '',
	verify_confidence REAL NOT NULL DEFAULT 0,
	caution           INTEGER NOT NULL DEFAULT 0,
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	attempts          INTEGER NOT NULL DEFAULT 1,
	related_formulas  TEXT NOT NULL DEFAULT '[]',
	quality_score     REAL NOT NULL DEFAULT 0,
	evaluation        TEXT,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_solutions_scan ON solutions(scan_id);

CREATE TABLE IF NOT EXISTS conversation_turns (
	id         TEXT PRIMARY KEY,
	scan_id    TEXT NOT NULL REFERENCES scans(id),
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_scan ON conversation_turns(scan_id, created_at);
`

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc.org/sqlite serializes writes; one connection avoids
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an already-open database, creating the schema if
// missing.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying database connection for related stores.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateScan inserts a new scan record, assigning an ID and timestamp when
// the caller left them zero.
func (s *SQLiteStore) CreateScan(ctx context.Context, scan *models.ScanRecord) error {
	if scan == nil {
		return fmt.Errorf("scan is required")
	}
	if scan.ID == "" {
		scan.ID = uuid.NewString()
	}
	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = time.Now().UTC()
	}

	points, err := json.Marshal(scan.KnowledgePoints)
	if err != nil {
		return fmt.Errorf("failed to marshal knowledge points: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scans (id, user_id, image_url, problem_text, text_confidence,
			subject, problem_type, difficulty, knowledge_points, grade_level, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scan.ID, scan.UserID, scan.ImageURL, scan.ProblemText, scan.TextConfidence,
		string(scan.Subject), scan.ProblemType, string(scan.Difficulty),
		string(points), scan.GradeLevel, scan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create scan: %w", err)
	}
	return nil
}

// GetScan retrieves a scan by ID.
func (s *SQLiteStore) GetScan(ctx context.Context, id string) (*models.ScanRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, image_url, problem_text, text_confidence,
			subject, problem_type, difficulty, knowledge_points, grade_level, created_at
		FROM scans WHERE id = ?`, id)
	return scanScanRow(row)
}

// ListScans returns a user's scans, newest first.
func (s *SQLiteStore) ListScans(ctx context.Context, userID string, limit, offset int) ([]*models.ScanRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, image_url, problem_text, text_confidence,
			subject, problem_type, difficulty, knowledge_points, grade_level, created_at
		FROM scans WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var scans []*models.ScanRecord
	for rows.Next() {
		scan, err := scanScanRow(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}
	return scans, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScanRow(row rowScanner) (*models.ScanRecord, error) {
	scan := &models.ScanRecord{}
	var subject, difficulty, points string
	err := row.Scan(
		&scan.ID, &scan.UserID, &scan.ImageURL, &scan.ProblemText, &scan.TextConfidence,
		&subject, &scan.ProblemType, &difficulty, &points, &scan.GradeLevel, &scan.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read scan: %w", err)
	}
	scan.Subject = models.Subject(subject)
	scan.Difficulty = models.Difficulty(difficulty)
	if points != "" {
		if err := json.Unmarshal([]byte(points), &scan.KnowledgePoints); err != nil {
			return nil, fmt.Errorf("failed to unmarshal knowledge points: %w", err)
		}
	}
	return scan, nil
}

// CreateSolution inserts a new solution record.
func (s *SQLiteStore) CreateSolution(ctx context.Context, solution *models.Solution) error {
	if solution == nil {
		return fmt.Errorf("solution is required")
	}
	if solution.ScanID == "" {
		return fmt.Errorf("solution scan ID is required")
	}
	if solution.ID == "" {
		solution.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if solution.CreatedAt.IsZero() {
		solution.CreatedAt = now
	}
	if solution.UpdatedAt.IsZero() {
		solution.UpdatedAt = solution.CreatedAt
	}

	steps, err := json.Marshal(solution.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}
	points, err := json.Marshal(solution.KnowledgePoints)
	if err != nil {
		return fmt.Errorf("failed to marshal knowledge points: %w", err)
	}
	formulas, err := json.Marshal(solution.RelatedFormulas)
	if err != nil {
		return fmt.Errorf("failed to marshal formulas: %w", err)
	}
	var evaluation any
	if solution.Evaluation != nil {
		raw, err := json.Marshal(solution.Evaluation)
		if err != nil {
			return fmt.Errorf("failed to marshal evaluation: %w", err)
		}
		evaluation = string(raw)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO solutions (id, scan_id, provider, model, content, steps,
			final_answer, explanation, tips, knowledge_points, verification,
			verify_confidence, caution, prompt_tokens, completion_tokens, attempts,
			related_formulas, quality_score, evaluation, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		solution.ID, solution.ScanID, solution.Provider, solution.Model,
		solution.Content, string(steps), solution.FinalAnswer, solution.Explanation,
		solution.Tips, string(points), string(solution.Verification),
		solution.VerifyConfidence, solution.Caution, solution.PromptTokens,
		solution.CompletionTokens, solution.Attempts, string(formulas),
		solution.QualityScore, evaluation, solution.CreatedAt, solution.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create solution: %w", err)
	}
	return nil
}

// GetSolutionByScan retrieves the most recent solution for a scan.
func (s *SQLiteStore) GetSolutionByScan(ctx context.Context, scanID string) (*models.Solution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scan_id, provider, model, content, steps, final_answer,
			explanation, tips, knowledge_points, verification, verify_confidence,
			caution, prompt_tokens, completion_tokens, attempts, related_formulas,
			quality_score, evaluation, created_at, updated_at
		FROM solutions WHERE scan_id = ?
		ORDER BY created_at DESC LIMIT 1`, scanID)

	solution := &models.Solution{}
	var verification, steps, points, formulas string
	var evaluation sql.NullString
	err := row.Scan(
		&solution.ID, &solution.ScanID, &solution.Provider, &solution.Model,
		&solution.Content, &steps, &solution.FinalAnswer, &solution.Explanation,
		&solution.Tips, &points, &verification, &solution.VerifyConfidence,
		&solution.Caution, &solution.PromptTokens, &solution.CompletionTokens,
		&solution.Attempts, &formulas, &solution.QualityScore, &evaluation,
		&solution.CreatedAt, &solution.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get solution: %w", err)
	}

	solution.Verification = models.VerifyOutcome(verification)
	if err := json.Unmarshal([]byte(steps), &solution.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}
	if err := json.Unmarshal([]byte(points), &solution.KnowledgePoints); err != nil {
		return nil, fmt.Errorf("failed to unmarshal knowledge points: %w", err)
	}
	if err := json.Unmarshal([]byte(formulas), &solution.RelatedFormulas); err != nil {
		return nil, fmt.Errorf("failed to unmarshal formulas: %w", err)
	}
	if evaluation.Valid && evaluation.String != "" {
		solution.Evaluation = &models.Evaluation{}
		if err := json.Unmarshal([]byte(evaluation.String), solution.Evaluation); err != nil {
			return nil, fmt.Errorf("failed to unmarshal evaluation: %w", err)
		}
	}
	return solution, nil
}

// UpdateEvaluation records the deep-evaluation result on an existing solution.
func (s *SQLiteStore) UpdateEvaluation(ctx context.Context, solutionID string, score float64, eval *models.Evaluation) error {
	var evaluation any
	if eval != nil {
		raw, err := json.Marshal(eval)
		if err != nil {
			return fmt.Errorf("failed to marshal evaluation: %w", err)
		}
		evaluation = string(raw)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE solutions SET quality_score = ?, evaluation = ?, updated_at = ?
		WHERE id = ?`,
		score, evaluation, time.Now().UTC(), solutionID)
	if err != nil {
		return fmt.Errorf("failed to update evaluation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update evaluation: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendTurn appends a conversation turn for a scan.
func (s *SQLiteStore) AppendTurn(ctx context.Context, turn *models.ConversationTurn) error {
	if turn == nil {
		return fmt.Errorf("turn is required")
	}
	if turn.ScanID == "" {
		return fmt.Errorf("turn scan ID is required")
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (id, scan_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		turn.ID, turn.ScanID, string(turn.Role), turn.Content, turn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// GetTurns returns a scan's conversation in insertion order.
func (s *SQLiteStore) GetTurns(ctx context.Context, scanID string) ([]*models.ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scan_id, role, content, created_at
		FROM conversation_turns WHERE scan_id = ?
		ORDER BY created_at ASC, id ASC`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to get turns: %w", err)
	}
	defer rows.Close()

	var turns []*models.ConversationTurn
	for rows.Next() {
		turn := &models.ConversationTurn{}
		var role string
		if err := rows.Scan(&turn.ID, &turn.ScanID, &role, &turn.Content, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to read turn: %w", err)
		}
		turn.Role = models.Role(role)
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}
