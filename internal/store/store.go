package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/persist"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/querysql"
	"github.com/roach88/strata/internal/record"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added checksum column for integrity verification
const currentSchemaVersion = 1

// Store is the database/sql implementation of persist.Backend.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db         *sql.DB
	identifier string
	compiler   *querysql.SQLCompiler
	now        func() time.Time
}

var _ persist.Backend = (*Store)(nil)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// identifier names the store on pending updates; it defaults to path.
// This function is idempotent - safe to call multiple times.
func Open(path, identifier string) (*Store, error) {
	// Open database (creates file if doesn't exist)
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := ApplyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if identifier == "" {
		identifier = path
	}
	return New(db, identifier), nil
}

// New wraps an already-configured database. No pragmas or migrations are
// applied; tests use it with go-sqlmock.
func New(db *sql.DB, identifier string) *Store {
	return &Store{
		db:         db,
		identifier: identifier,
		compiler:   querysql.NewSQLCompiler(),
		now:        time.Now,
	}
}

// Identifier returns the name carried on pending updates.
func (s *Store) Identifier() string {
	return s.identifier
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ApplyPragmas sets required SQLite configuration.
func ApplyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the checksum column to databases created before it
// existed. New databases get it from schema.sql.
func migrateToV1(db *sql.DB) error {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('records') WHERE name = 'checksum'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := db.Exec(`ALTER TABLE records ADD COLUMN checksum TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// Fetch returns records of q.Entity matching q, in query order.
// Returns an empty slice (not nil) when nothing matches.
// Every failure is a persist READ_FAILURE.
func (s *Store) Fetch(ctx context.Context, q queryir.Query) ([]record.Snapshot, error) {
	op := "fetch " + q.Entity

	query, params, err := s.compiler.Compile(q)
	if err != nil {
		return nil, persist.ReadFailure(op, err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, persist.ReadFailure(op, fmt.Errorf("query records: %w", err))
	}
	defer rows.Close()

	snapshots := []record.Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, persist.ReadFailure(op, err)
		}
		snapshots = append(snapshots, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, persist.ReadFailure(op, fmt.Errorf("iterate records: %w", err))
	}

	return snapshots, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (record.Snapshot, error) {
	var (
		snap  record.Snapshot
		attrs string
	)
	if err := row.Scan(&snap.Seq, &snap.ID, &snap.Entity, &attrs); err != nil {
		return record.Snapshot{}, fmt.Errorf("scan record: %w", err)
	}
	obj, err := unmarshalAttrs(attrs)
	if err != nil {
		return record.Snapshot{}, fmt.Errorf("record %s: %w", snap.ID, err)
	}
	snap.Attrs = obj
	return snap, nil
}

// Apply stores a change set in one transaction: inserts, then updates,
// then deletes. Updating a missing record fails the whole set; deleting a
// missing record is a no-op.
func (s *Store) Apply(ctx context.Context, changes record.ChangeSet) error {
	if changes.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persist.WriteFailure("apply", fmt.Errorf("begin transaction: %w", err))
	}

	seqs, err := s.applyTx(ctx, tx, changes)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return persist.WriteFailure("apply", err)
	}

	if err := tx.Commit(); err != nil {
		return persist.WriteFailure("apply", fmt.Errorf("commit: %w", err))
	}
	for i, seq := range seqs {
		changes.Inserts[i].Seq = seq
	}
	return nil
}

// applyTx returns the seq assigned to each insert, in order.
func (s *Store) applyTx(ctx context.Context, tx *sql.Tx, changes record.ChangeSet) ([]int64, error) {
	now := s.now().UnixMilli()

	seqs := make([]int64, 0, len(changes.Inserts))
	for _, snap := range changes.Inserts {
		attrs, checksum, err := encode(snap)
		if err != nil {
			return nil, err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO records (id, entity, attrs, checksum, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, snap.ID, snap.Entity, attrs, checksum, now, now)
		if err != nil {
			return nil, fmt.Errorf("insert %s %s: %w", snap.Entity, snap.ID, err)
		}
		// seq is the rowid alias, so LastInsertId is the assigned seq.
		seq, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("insert %s %s: %w", snap.Entity, snap.ID, err)
		}
		seqs = append(seqs, seq)
	}

	for _, snap := range changes.Updates {
		attrs, checksum, err := encode(snap)
		if err != nil {
			return nil, err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE records SET attrs = ?, checksum = ?, updated_at = ?
			WHERE id = ? AND entity = ?
		`, attrs, checksum, now, snap.ID, snap.Entity)
		if err != nil {
			return nil, fmt.Errorf("update %s %s: %w", snap.Entity, snap.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("update %s %s: %w", snap.Entity, snap.ID, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("update %s %s: %w", snap.Entity, snap.ID, persist.ErrRecordNotFound)
		}
	}

	for _, snap := range changes.Deletes {
		_, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ? AND entity = ?`, snap.ID, snap.Entity)
		if err != nil {
			return nil, fmt.Errorf("delete %s %s: %w", snap.Entity, snap.ID, err)
		}
	}

	return seqs, nil
}

func encode(snap record.Snapshot) (attrs, checksum string, err error) {
	attrs, err = marshalAttrs(snap.Attrs)
	if err != nil {
		return "", "", fmt.Errorf("%s %s: %w", snap.Entity, snap.ID, err)
	}
	checksum, err = ir.RecordChecksum(snap.Entity, snap.Attrs)
	if err != nil {
		return "", "", fmt.Errorf("%s %s: %w", snap.Entity, snap.ID, err)
	}
	return attrs, checksum, nil
}

// Verify recomputes every record checksum and returns the IDs whose stored
// checksum does not match their attributes, ordered by seq.
func (s *Store) Verify(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, entity, attrs, checksum FROM records
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, persist.ReadFailure("verify", err)
	}
	defer rows.Close()

	mismatched := []string{}
	for rows.Next() {
		var (
			seq                       int64
			id, entity, attrs, stored string
		)
		if err := rows.Scan(&seq, &id, &entity, &attrs, &stored); err != nil {
			return nil, persist.ReadFailure("verify", err)
		}
		obj, err := unmarshalAttrs(attrs)
		if err != nil {
			mismatched = append(mismatched, id)
			continue
		}
		sum, err := ir.RecordChecksum(entity, obj)
		if err != nil || sum != stored {
			mismatched = append(mismatched, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, persist.ReadFailure("verify", err)
	}
	return mismatched, nil
}
