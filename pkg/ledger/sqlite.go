package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteConfig contains configuration for the SQLite ledger backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/ledger.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	config  *SQLiteConfig
	writeMu sync.Mutex
	logger  *slog.Logger
}

// NewSQLiteStore creates a new SQLite ledger backend.
// It initializes the database schema and enables WAL mode if configured.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "ledger.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, NewStoreError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("ledger initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// initialize sets up the database schema and enables WAL mode.
func (s *SQLiteStore) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return NewStoreError("sqlite", "enable_wal", err)
		}
		s.logger.Debug("WAL mode enabled")
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return NewStoreError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return NewStoreError("sqlite", "enable_foreign_keys", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return NewStoreError("sqlite", "create_schema", err)
	}
	s.logger.Debug("database schema created")

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return NewStoreError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return NewStoreError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return NewStoreError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	s.logger.Debug("schema version verified", "version", version)

	return nil
}

// AppendBatch persists a snapshot and its change records in one
// transaction. Either the whole batch lands or none of it does.
func (s *SQLiteStore) AppendBatch(ctx context.Context, batch *Batch) error {
	if err := validateBatch(batch); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStoreError("sqlite", "begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	snap := batch.Snapshot
	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (
			snapshot_id, created_at,
			os_build, os_edition, domain_joined, management_enrolled,
			restore_checkpoint_id
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.SnapshotID, snap.CreatedAt,
		snap.Baseline.OSBuild, snap.Baseline.OSEdition,
		snap.Baseline.DomainJoined, snap.Baseline.ManagementEnrolled,
		nullIfEmpty(snap.RestoreCheckpointID),
	)
	if err != nil {
		return NewStoreError("sqlite", "insert_snapshot", err)
	}

	for _, sp := range snap.Policies {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO snapshot_policies (snapshot_id, policy_id, is_applied, current_value)
			VALUES (?, ?, ?, ?)`,
			snap.SnapshotID, sp.PolicyID, sp.IsApplied, sp.CurrentValue,
		)
		if err != nil {
			return NewStoreError("sqlite", "insert_snapshot_policy", err)
		}
	}

	for _, change := range batch.Changes {
		var prev interface{}
		if change.PreviousState != nil {
			prev = *change.PreviousState
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO changes (
				change_id, operation, policy_id, applied_at, mechanism, description,
				previous_state, new_state,
				success, error_message, error_category,
				snapshot_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			change.ChangeID, change.Operation, change.PolicyID, change.AppliedAt,
			change.Mechanism, change.Description,
			prev, change.NewState,
			change.Success, nullIfEmpty(change.ErrorMessage), nullIfEmpty(change.ErrorCategory),
			snap.SnapshotID,
		)
		if err != nil {
			return NewStoreError("sqlite", "insert_change", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("sqlite", "commit", err)
	}

	s.logger.Debug("batch persisted",
		"snapshot_id", snap.SnapshotID,
		"changes", len(batch.Changes),
		"snapshot_policies", len(snap.Policies),
	)

	return nil
}

// Changes retrieves change records matching the query, newest first.
func (s *SQLiteStore) Changes(ctx context.Context, query *Query) ([]*ChangeRecord, error) {
	if query == nil {
		query = &Query{}
	}

	whereClause, args := buildWhereClause(query)

	sqlQuery := changeColumns
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}
	sqlQuery += " ORDER BY applied_at DESC, rowid DESC"

	limit := 100
	if query.Limit > 0 {
		limit = query.Limit
	}
	sqlQuery += fmt.Sprintf(" LIMIT %d", limit)
	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, NewStoreError("sqlite", "changes", err)
	}
	defer rows.Close()

	records := []*ChangeRecord{}
	for rows.Next() {
		record, err := scanChange(rows)
		if err != nil {
			return nil, NewStoreError("sqlite", "scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStoreError("sqlite", "changes", err)
	}

	return records, nil
}

// Count returns the number of change records matching the query.
func (s *SQLiteStore) Count(ctx context.Context, query *Query) (int64, error) {
	if query == nil {
		query = &Query{}
	}

	whereClause, args := buildWhereClause(query)

	sqlQuery := "SELECT COUNT(*) FROM changes"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, NewStoreError("sqlite", "count", err)
	}
	return count, nil
}

// LatestApply returns the most recent successful apply record for the
// policy, or ErrNotFound.
func (s *SQLiteStore) LatestApply(ctx context.Context, policyID string) (*ChangeRecord, error) {
	sqlQuery := changeColumns +
		" WHERE policy_id = ? AND operation = ? AND success = 1" +
		" ORDER BY applied_at DESC, rowid DESC LIMIT 1"

	rows, err := s.db.QueryContext(ctx, sqlQuery, policyID, OperationApply)
	if err != nil {
		return nil, NewStoreError("sqlite", "latest_apply", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, NewStoreError("sqlite", "latest_apply", err)
		}
		return nil, ErrNotFound
	}

	record, err := scanChange(rows)
	if err != nil {
		return nil, NewStoreError("sqlite", "scan", err)
	}
	return record, nil
}

// GetSnapshot returns one snapshot with its per-policy states.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, snapshotID string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, snapshotColumns+" WHERE snapshot_id = ?", snapshotID)

	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, NewStoreError("sqlite", "get_snapshot", err)
	}

	if err := s.loadSnapshotPolicies(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// LatestSnapshot returns the most recent snapshot with its per-policy
// states, or ErrNotFound for an empty ledger.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, snapshotColumns+" ORDER BY created_at DESC, rowid DESC LIMIT 1")

	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, NewStoreError("sqlite", "latest_snapshot", err)
	}

	if err := s.loadSnapshotPolicies(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// ListSnapshots returns up to limit snapshots, newest first, without
// per-policy states.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		snapshotColumns+fmt.Sprintf(" ORDER BY created_at DESC, rowid DESC LIMIT %d", limit))
	if err != nil {
		return nil, NewStoreError("sqlite", "list_snapshots", err)
	}
	defer rows.Close()

	snapshots := []*Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, NewStoreError("sqlite", "scan", err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStoreError("sqlite", "list_snapshots", err)
	}

	return snapshots, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return NewStoreError("sqlite", "close", err)
	}
	return nil
}

const changeColumns = `SELECT change_id, operation, policy_id, applied_at, mechanism, description,
	previous_state, new_state, success, error_message, error_category, snapshot_id FROM changes`

const snapshotColumns = `SELECT snapshot_id, created_at, os_build, os_edition,
	domain_joined, management_enrolled, restore_checkpoint_id FROM snapshots`

// loadSnapshotPolicies fills snap.Policies from the snapshot_policies table.
func (s *SQLiteStore) loadSnapshotPolicies(ctx context.Context, snap *Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT policy_id, is_applied, current_value
		FROM snapshot_policies WHERE snapshot_id = ? ORDER BY policy_id`,
		snap.SnapshotID)
	if err != nil {
		return NewStoreError("sqlite", "snapshot_policies", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sp SnapshotPolicy
		var current sql.NullString
		if err := rows.Scan(&sp.PolicyID, &sp.IsApplied, &current); err != nil {
			return NewStoreError("sqlite", "scan", err)
		}
		sp.CurrentValue = current.String
		snap.Policies = append(snap.Policies, sp)
	}
	if err := rows.Err(); err != nil {
		return NewStoreError("sqlite", "snapshot_policies", err)
	}
	return nil
}

// buildWhereClause builds a SQL WHERE clause from query filters.
// Returns the clause and the corresponding arguments.
func buildWhereClause(query *Query) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if query.PolicyID != "" {
		conditions = append(conditions, "policy_id = ?")
		args = append(args, query.PolicyID)
	}
	if query.SnapshotID != "" {
		conditions = append(conditions, "snapshot_id = ?")
		args = append(args, query.SnapshotID)
	}
	if query.Operation != "" {
		conditions = append(conditions, "operation = ?")
		args = append(args, query.Operation)
	}
	if query.Mechanism != "" {
		conditions = append(conditions, "mechanism = ?")
		args = append(args, query.Mechanism)
	}
	if query.Success != nil {
		conditions = append(conditions, "success = ?")
		args = append(args, *query.Success)
	}
	if query.Since != nil {
		conditions = append(conditions, "applied_at >= ?")
		args = append(args, *query.Since)
	}
	if query.Until != nil {
		conditions = append(conditions, "applied_at <= ?")
		args = append(args, *query.Until)
	}

	if len(conditions) == 0 {
		return "", nil
	}

	clause := conditions[0]
	for _, c := range conditions[1:] {
		clause += " AND " + c
	}
	return clause, args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanChange scans one change row into a ChangeRecord.
func scanChange(row rowScanner) (*ChangeRecord, error) {
	var record ChangeRecord
	var description, prev, errMsg, errCat sql.NullString

	err := row.Scan(
		&record.ChangeID, &record.Operation, &record.PolicyID, &record.AppliedAt,
		&record.Mechanism, &description,
		&prev, &record.NewState,
		&record.Success, &errMsg, &errCat,
		&record.SnapshotID,
	)
	if err != nil {
		return nil, err
	}

	record.Description = description.String
	if prev.Valid {
		value := prev.String
		record.PreviousState = &value
	}
	record.ErrorMessage = errMsg.String
	record.ErrorCategory = errCat.String

	return &record, nil
}

// scanSnapshot scans one snapshot row, without per-policy states.
func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var snap Snapshot
	var checkpoint sql.NullString

	err := row.Scan(
		&snap.SnapshotID, &snap.CreatedAt,
		&snap.Baseline.OSBuild, &snap.Baseline.OSEdition,
		&snap.Baseline.DomainJoined, &snap.Baseline.ManagementEnrolled,
		&checkpoint,
	)
	if err != nil {
		return nil, err
	}

	snap.RestoreCheckpointID = checkpoint.String
	return &snap, nil
}

// validateBatch checks batch structure before any write happens.
func validateBatch(batch *Batch) error {
	if batch == nil || batch.Snapshot == nil {
		return &BatchError{Message: "batch snapshot is required"}
	}
	if batch.Snapshot.SnapshotID == "" {
		return &BatchError{Message: "snapshot id is required"}
	}
	if batch.Snapshot.CreatedAt.IsZero() {
		return &BatchError{Message: "snapshot created_at is required"}
	}
	for i, change := range batch.Changes {
		if change == nil {
			return &BatchError{Message: fmt.Sprintf("change %d is nil", i)}
		}
		if change.ChangeID == "" {
			return &BatchError{Message: fmt.Sprintf("change %d has no change_id", i)}
		}
		if change.Operation != OperationApply && change.Operation != OperationRevert {
			return &BatchError{Message: fmt.Sprintf("change %d has unknown operation %q", i, change.Operation)}
		}
		if change.PolicyID == "" {
			return &BatchError{Message: fmt.Sprintf("change %d has no policy_id", i)}
		}
	}
	return nil
}

// nullIfEmpty converts empty strings to SQL NULL for optional columns.
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
