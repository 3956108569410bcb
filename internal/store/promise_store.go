package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/promise-engine/internal/model"
)

// PromiseStore defines the interface for durable promise state.
// It is the sole source of truth; all cross-component coordination
// goes through its conditional single-row transitions.
type PromiseStore interface {
	// Create persists a new promise and its dependency edges atomically.
	// Returns ErrCircularDependency if the new edges would close a cycle.
	Create(ctx context.Context, promise *model.Promise) error

	// Get retrieves a promise by ID, or ErrPromiseNotFound
	Get(ctx context.Context, id string) (*model.Promise, error)

	// ListByStatus retrieves promises in any of the given statuses
	ListByStatus(ctx context.Context, statuses ...model.PromiseStatus) ([]*model.Promise, error)

	// ListDispatchable retrieves pending promises whose backoff window has
	// elapsed, ordered by priority then creation time
	ListDispatchable(ctx context.Context, now time.Time, limit int) ([]*model.Promise, error)

	// ListDependents returns IDs of promises that depend on the given promise
	ListDependents(ctx context.Context, id string) ([]string, error)

	// CountIncompleteDependencies counts dependencies of the given promise
	// that have not reached completed status
	CountIncompleteDependencies(ctx context.Context, id string) (int, error)

	// ListFailedDependencies returns dependency IDs that ended failed or cancelled
	ListFailedDependencies(ctx context.Context, id string) ([]string, error)

	// Claim atomically transitions pending -> in_progress. Returns false
	// if another claimant won the race or the promise left pending.
	Claim(ctx context.Context, id string, now time.Time) (bool, error)

	// MarkReady transitions waiting -> pending
	MarkReady(ctx context.Context, id string) (bool, error)

	// Cancel transitions waiting|pending -> cancelled. Returns false if the
	// promise is already running or terminal.
	Cancel(ctx context.Context, id string) (bool, error)

	// Complete transitions in_progress -> completed and stores the summary.
	// Returns false if the promise is no longer in_progress (late result).
	Complete(ctx context.Context, id string, summary string, now time.Time) (bool, error)

	// Fail transitions a non-terminal promise to failed and stores the error
	Fail(ctx context.Context, id string, errMsg string, now time.Time) (bool, error)

	// ScheduleRetry transitions in_progress -> pending with updated retry
	// bookkeeping and a next-attempt time
	ScheduleRetry(ctx context.Context, id string, retryCount int, nextAttempt time.Time) (bool, error)

	// FailAfterRetries transitions in_progress -> failed with final retry
	// bookkeeping once the retry budget is exhausted
	FailAfterRetries(ctx context.Context, id string, retryCount int, errMsg string, now time.Time) (bool, error)

	// ListStalled retrieves in_progress promises started before the cutoff
	ListStalled(ctx context.Context, before time.Time) ([]*model.Promise, error)

	// AppendAttempt records one execution attempt
	AppendAttempt(ctx context.Context, attempt *model.ExecutionAttempt) error

	// ListAttempts retrieves all attempts for a promise in order
	ListAttempts(ctx context.Context, promiseID string) ([]*model.ExecutionAttempt, error)

	// PurgeTerminalBefore deletes terminal promises completed before the
	// cutoff, along with their attempts and dependency edges
	PurgeTerminalBefore(ctx context.Context, before time.Time) (int64, error)

	// Close releases the underlying database
	Close() error
}

// SQLitePromiseStore implements PromiseStore using SQLite
type SQLitePromiseStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLitePromiseStore opens (or creates) the promise database at dbPath
func NewSQLitePromiseStore(logger *zap.Logger, dbPath string) (*SQLitePromiseStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// between concurrent scheduler ticks and recovery passes.
	db.SetMaxOpenConns(1)

	store := &SQLitePromiseStore{
		logger: logger.Named("promise-store"),
		db:     db,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLitePromiseStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS promises (
			id TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			task_type TEXT NOT NULL,
			status TEXT NOT NULL,
			priority INTEGER NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 3,
			metadata TEXT,
			origin_ref TEXT,
			created_at DATETIME NOT NULL,
			started_at DATETIME,
			completed_at DATETIME,
			next_attempt_at DATETIME,
			result_summary TEXT,
			error_message TEXT,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_promises_status ON promises(status);
		CREATE INDEX IF NOT EXISTS idx_promises_dispatch ON promises(status, priority, created_at);

		CREATE TABLE IF NOT EXISTS promise_dependencies (
			promise_id TEXT NOT NULL,
			depends_on TEXT NOT NULL,
			PRIMARY KEY (promise_id, depends_on)
		);
		CREATE INDEX IF NOT EXISTS idx_dependencies_depends_on ON promise_dependencies(depends_on);

		CREATE TABLE IF NOT EXISTS execution_attempts (
			promise_id TEXT NOT NULL,
			attempt_number INTEGER NOT NULL,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			status TEXT NOT NULL,
			output TEXT,
			error_detail TEXT,
			PRIMARY KEY (promise_id, attempt_number)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Create implements PromiseStore.Create
func (s *SQLitePromiseStore) Create(ctx context.Context, promise *model.Promise) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(promise.Dependencies) > 0 {
		if err := s.checkCircularDependencies(ctx, tx, promise.ID, promise.Dependencies); err != nil {
			return err
		}
	}

	var metadataStr string
	if len(promise.Metadata) > 0 {
		data, err := json.Marshal(promise.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataStr = string(data)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO promises (
			id, description, task_type, status, priority,
			retry_count, max_retries, metadata, origin_ref,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		promise.ID,
		promise.Description,
		promise.TaskType,
		promise.Status,
		promise.Priority,
		promise.RetryCount,
		promise.MaxRetries,
		sql.NullString{String: metadataStr, Valid: metadataStr != ""},
		sql.NullString{String: promise.OriginRef, Valid: promise.OriginRef != ""},
		promise.CreatedAt,
		promise.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert promise: %w", err)
	}

	for _, depID := range promise.Dependencies {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO promise_dependencies (promise_id, depends_on) VALUES (?, ?)`,
			promise.ID, depID,
		); err != nil {
			return fmt.Errorf("failed to insert dependency edge: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit promise: %w", err)
	}

	return nil
}

// checkCircularDependencies walks the persisted dependency graph plus the
// candidate edges and rejects the insert if it can reach back to promiseID
func (s *SQLitePromiseStore) checkCircularDependencies(ctx context.Context, tx *sql.Tx, promiseID string, deps []string) error {
	graph := make(map[string][]string)

	rows, err := tx.QueryContext(ctx, `SELECT promise_id, depends_on FROM promise_dependencies`)
	if err != nil {
		return fmt.Errorf("failed to load dependency graph: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return fmt.Errorf("failed to scan dependency edge: %w", err)
		}
		graph[from] = append(graph[from], to)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error during edge iteration: %w", err)
	}

	graph[promiseID] = append(graph[promiseID], deps...)

	visited := make(map[string]bool)
	path := make(map[string]bool)

	var visit func(string) error
	visit = func(current string) error {
		if path[current] {
			return fmt.Errorf("%w: promise %s", ErrCircularDependency, current)
		}
		if visited[current] {
			return nil
		}

		visited[current] = true
		path[current] = true

		for _, dep := range graph[current] {
			if err := visit(dep); err != nil {
				return err
			}
		}

		path[current] = false
		return nil
	}

	return visit(promiseID)
}

// Get implements PromiseStore.Get
func (s *SQLitePromiseStore) Get(ctx context.Context, id string) (*model.Promise, error) {
	row := s.db.QueryRowContext(ctx, selectPromiseColumns+` FROM promises WHERE id = ?`, id)

	promise, err := scanPromise(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPromiseNotFound
		}
		return nil, fmt.Errorf("failed to scan promise: %w", err)
	}

	if err := s.loadDependencies(ctx, promise); err != nil {
		return nil, err
	}

	return promise, nil
}

// ListByStatus implements PromiseStore.ListByStatus
func (s *SQLitePromiseStore) ListByStatus(ctx context.Context, statuses ...model.PromiseStatus) ([]*model.Promise, error) {
	query := selectPromiseColumns + ` FROM promises`
	args := make([]interface{}, 0, len(statuses))

	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + repeatPlaceholder(len(statuses)-1) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at ASC`

	return s.queryPromises(ctx, query, args...)
}

// ListDispatchable implements PromiseStore.ListDispatchable
func (s *SQLitePromiseStore) ListDispatchable(ctx context.Context, now time.Time, limit int) ([]*model.Promise, error) {
	return s.queryPromises(ctx, selectPromiseColumns+`
		FROM promises
		WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		ORDER BY priority ASC, created_at ASC
		LIMIT ?`,
		model.PromiseStatusPending, now, limit)
}

// ListDependents implements PromiseStore.ListDependents
func (s *SQLitePromiseStore) ListDependents(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT promise_id FROM promise_dependencies WHERE depends_on = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependents: %w", err)
	}
	defer rows.Close()

	var dependents []string
	for rows.Next() {
		var depID string
		if err := rows.Scan(&depID); err != nil {
			return nil, fmt.Errorf("failed to scan dependent: %w", err)
		}
		dependents = append(dependents, depID)
	}
	return dependents, rows.Err()
}

// CountIncompleteDependencies implements PromiseStore.CountIncompleteDependencies.
// A dependency that has no promise row yet counts as incomplete.
func (s *SQLitePromiseStore) CountIncompleteDependencies(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM promise_dependencies d
		WHERE d.promise_id = ?
		AND NOT EXISTS (
			SELECT 1 FROM promises p WHERE p.id = d.depends_on AND p.status = ?
		)`, id, model.PromiseStatusCompleted).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count incomplete dependencies: %w", err)
	}
	return count, nil
}

// ListFailedDependencies implements PromiseStore.ListFailedDependencies
func (s *SQLitePromiseStore) ListFailedDependencies(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.depends_on FROM promise_dependencies d
		JOIN promises p ON p.id = d.depends_on
		WHERE d.promise_id = ? AND p.status IN (?, ?)`,
		id, model.PromiseStatusFailed, model.PromiseStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed dependencies: %w", err)
	}
	defer rows.Close()

	var failed []string
	for rows.Next() {
		var depID string
		if err := rows.Scan(&depID); err != nil {
			return nil, fmt.Errorf("failed to scan failed dependency: %w", err)
		}
		failed = append(failed, depID)
	}
	return failed, rows.Err()
}

// Claim implements PromiseStore.Claim
func (s *SQLitePromiseStore) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	return s.transition(ctx, `
		UPDATE promises SET status = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		model.PromiseStatusInProgress, now, now, id, model.PromiseStatusPending)
}

// MarkReady implements PromiseStore.MarkReady
func (s *SQLitePromiseStore) MarkReady(ctx context.Context, id string) (bool, error) {
	now := time.Now()
	return s.transition(ctx, `
		UPDATE promises SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		model.PromiseStatusPending, now, id, model.PromiseStatusWaiting)
}

// Cancel implements PromiseStore.Cancel
func (s *SQLitePromiseStore) Cancel(ctx context.Context, id string) (bool, error) {
	now := time.Now()
	return s.transition(ctx, `
		UPDATE promises SET status = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		model.PromiseStatusCancelled, now, now, id,
		model.PromiseStatusWaiting, model.PromiseStatusPending)
}

// Complete implements PromiseStore.Complete
func (s *SQLitePromiseStore) Complete(ctx context.Context, id string, summary string, now time.Time) (bool, error) {
	return s.transition(ctx, `
		UPDATE promises SET status = ?, result_summary = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		model.PromiseStatusCompleted,
		sql.NullString{String: summary, Valid: summary != ""},
		now, now, id, model.PromiseStatusInProgress)
}

// Fail implements PromiseStore.Fail
func (s *SQLitePromiseStore) Fail(ctx context.Context, id string, errMsg string, now time.Time) (bool, error) {
	return s.transition(ctx, `
		UPDATE promises SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?, ?)`,
		model.PromiseStatusFailed,
		sql.NullString{String: errMsg, Valid: errMsg != ""},
		now, now, id,
		model.PromiseStatusWaiting, model.PromiseStatusPending, model.PromiseStatusInProgress)
}

// ScheduleRetry implements PromiseStore.ScheduleRetry
func (s *SQLitePromiseStore) ScheduleRetry(ctx context.Context, id string, retryCount int, nextAttempt time.Time) (bool, error) {
	return s.transition(ctx, `
		UPDATE promises SET status = ?, retry_count = ?, next_attempt_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		model.PromiseStatusPending, retryCount, nextAttempt, time.Now(),
		id, model.PromiseStatusInProgress)
}

// FailAfterRetries implements PromiseStore.FailAfterRetries
func (s *SQLitePromiseStore) FailAfterRetries(ctx context.Context, id string, retryCount int, errMsg string, now time.Time) (bool, error) {
	return s.transition(ctx, `
		UPDATE promises SET status = ?, retry_count = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		model.PromiseStatusFailed, retryCount,
		sql.NullString{String: errMsg, Valid: errMsg != ""},
		now, now, id, model.PromiseStatusInProgress)
}

// ListStalled implements PromiseStore.ListStalled
func (s *SQLitePromiseStore) ListStalled(ctx context.Context, before time.Time) ([]*model.Promise, error) {
	return s.queryPromises(ctx, selectPromiseColumns+`
		FROM promises
		WHERE status = ? AND started_at IS NOT NULL AND started_at < ?
		ORDER BY started_at ASC`,
		model.PromiseStatusInProgress, before)
}

// AppendAttempt implements PromiseStore.AppendAttempt
func (s *SQLitePromiseStore) AppendAttempt(ctx context.Context, attempt *model.ExecutionAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_attempts (
			promise_id, attempt_number, started_at, completed_at, status, output, error_detail
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attempt.PromiseID,
		attempt.AttemptNumber,
		attempt.StartedAt,
		nullTime(attempt.CompletedAt),
		attempt.Status,
		sql.NullString{String: attempt.Output, Valid: attempt.Output != ""},
		sql.NullString{String: attempt.ErrorDetail, Valid: attempt.ErrorDetail != ""},
	)
	if err != nil {
		return fmt.Errorf("failed to append attempt: %w", err)
	}
	return nil
}

// ListAttempts implements PromiseStore.ListAttempts
func (s *SQLitePromiseStore) ListAttempts(ctx context.Context, promiseID string) ([]*model.ExecutionAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT promise_id, attempt_number, started_at, completed_at, status, output, error_detail
		FROM execution_attempts
		WHERE promise_id = ?
		ORDER BY attempt_number ASC`, promiseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*model.ExecutionAttempt
	for rows.Next() {
		attempt := &model.ExecutionAttempt{}
		var completedAt sql.NullTime
		var output, errorDetail sql.NullString

		if err := rows.Scan(
			&attempt.PromiseID,
			&attempt.AttemptNumber,
			&attempt.StartedAt,
			&completedAt,
			&attempt.Status,
			&output,
			&errorDetail,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}

		if completedAt.Valid {
			attempt.CompletedAt = &completedAt.Time
		}
		attempt.Output = output.String
		attempt.ErrorDetail = errorDetail.String

		attempts = append(attempts, attempt)
	}

	return attempts, rows.Err()
}

// PurgeTerminalBefore implements PromiseStore.PurgeTerminalBefore
func (s *SQLitePromiseStore) PurgeTerminalBefore(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	selectOld := `
		SELECT id FROM promises
		WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?`
	terminalArgs := []interface{}{
		model.PromiseStatusCompleted,
		model.PromiseStatusFailed,
		model.PromiseStatusCancelled,
		before,
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM execution_attempts WHERE promise_id IN (`+selectOld+`)`,
		terminalArgs...); err != nil {
		return 0, fmt.Errorf("failed to purge attempts: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM promise_dependencies WHERE promise_id IN (`+selectOld+`)`,
		terminalArgs...); err != nil {
		return 0, fmt.Errorf("failed to purge dependency edges: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM promises
		WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		terminalArgs...)
	if err != nil {
		return 0, fmt.Errorf("failed to purge promises: %w", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}

	if purged > 0 {
		s.logger.Info("Purged old terminal promises",
			zap.Time("before", before),
			zap.Int64("purged", purged))
	}

	return purged, nil
}

// Close closes the database connection
func (s *SQLitePromiseStore) Close() error {
	return s.db.Close()
}

const selectPromiseColumns = `
	SELECT id, description, task_type, status, priority,
		retry_count, max_retries, metadata, origin_ref,
		created_at, started_at, completed_at, next_attempt_at,
		result_summary, error_message`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPromise(row rowScanner) (*model.Promise, error) {
	promise := &model.Promise{}
	var metadata, originRef, resultSummary, errorMessage sql.NullString
	var startedAt, completedAt, nextAttemptAt sql.NullTime

	err := row.Scan(
		&promise.ID,
		&promise.Description,
		&promise.TaskType,
		&promise.Status,
		&promise.Priority,
		&promise.RetryCount,
		&promise.MaxRetries,
		&metadata,
		&originRef,
		&promise.CreatedAt,
		&startedAt,
		&completedAt,
		&nextAttemptAt,
		&resultSummary,
		&errorMessage,
	)
	if err != nil {
		return nil, err
	}

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &promise.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	promise.OriginRef = originRef.String
	promise.ResultSummary = resultSummary.String
	promise.ErrorMessage = errorMessage.String
	if startedAt.Valid {
		promise.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		promise.CompletedAt = &completedAt.Time
	}
	if nextAttemptAt.Valid {
		promise.NextAttemptAt = &nextAttemptAt.Time
	}

	return promise, nil
}

func (s *SQLitePromiseStore) queryPromises(ctx context.Context, query string, args ...interface{}) ([]*model.Promise, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query promises: %w", err)
	}
	defer rows.Close()

	var promises []*model.Promise
	for rows.Next() {
		promise, err := scanPromise(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan promise: %w", err)
		}
		promises = append(promises, promise)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	for _, promise := range promises {
		if err := s.loadDependencies(ctx, promise); err != nil {
			return nil, err
		}
	}

	return promises, nil
}

func (s *SQLitePromiseStore) loadDependencies(ctx context.Context, promise *model.Promise) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT depends_on FROM promise_dependencies WHERE promise_id = ? ORDER BY depends_on`,
		promise.ID)
	if err != nil {
		return fmt.Errorf("failed to load dependencies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var depID string
		if err := rows.Scan(&depID); err != nil {
			return fmt.Errorf("failed to scan dependency: %w", err)
		}
		promise.Dependencies = append(promise.Dependencies, depID)
	}
	return rows.Err()
}

func (s *SQLitePromiseStore) transition(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to execute transition: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected == 1, nil
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
