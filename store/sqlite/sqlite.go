/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.Store and users.Directory on one SQLite database. This is
  the default durable backend; store/gormstore covers MySQL.

INTERFACES IMPLEMENTED:
  ledger.Store:     Statement persistence (append-only)
  users.Directory:  User identity records

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the statements table
  - No DELETE statements on the statements table

KEY TABLES:
  statements: Immutable ledger. seq (autoincrement) preserves insertion order.
  users:      Identity records, email unique (case-insensitive).

AMOUNTS:
  Stored as TEXT decimal strings so no precision is lost on the way through
  the driver.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's single writer.
  Per-user check-then-append atomicity is the ledger.Locker's job, not this
  package's.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/statement-ledger/ledger"
	"github.com/warp/statement-ledger/users"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every new connection would see its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Users (identity records)
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email
		ON users(lower(email));

	-- Statements (append-only ledger)
	CREATE TABLE IF NOT EXISTS statements (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT NOT NULL,
		sender_id TEXT,
		created_at TEXT NOT NULL
	);

	-- Balance calculation and history (hot path)
	CREATE INDEX IF NOT EXISTS idx_statements_user_seq
		ON statements(user_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STATEMENT STORE (ledger.Store interface)
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Append adds a statement to the ledger.
func (s *Store) Append(ctx context.Context, st ledger.Statement) (ledger.Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st = ledger.Stamp(st, time.Now())
	if err := s.insertStatement(ctx, s.db, st); err != nil {
		return ledger.Statement{}, err
	}
	return st, nil
}

// AppendBatch adds multiple statements atomically.
func (s *Store) AppendBatch(ctx context.Context, sts []ledger.Statement) ([]ledger.Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	now := time.Now()
	stored := make([]ledger.Statement, len(sts))
	for i, st := range sts {
		stored[i] = ledger.Stamp(st, now)
		if err := s.insertStatement(ctx, sqlTx, stored[i]); err != nil {
			return nil, err
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit statements: %w", err)
	}
	return stored, nil
}

func (s *Store) insertStatement(ctx context.Context, db execer, st ledger.Statement) error {
	query := `
		INSERT INTO statements
		(id, user_id, type, amount, description, sender_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		st.ID,
		st.UserID,
		string(st.Type),
		st.Amount.String(),
		st.Description,
		nullString(st.SenderID),
		st.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append statement: %w", err)
	}
	return nil
}

// ListByUser returns all statements of a user in insertion order.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]ledger.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, amount, description, sender_id, created_at
		FROM statements
		WHERE user_id = ?
		ORDER BY seq ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query statements: %w", err)
	}
	defer rows.Close()

	statements := []ledger.Statement{}
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		statements = append(statements, st)
	}
	return statements, rows.Err()
}

// Get returns a statement by id, scoped to its owner.
func (s *Store) Get(ctx context.Context, userID, statementID string) (*ledger.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, amount, description, sender_id, created_at
		FROM statements
		WHERE user_id = ? AND id = ?
	`, userID, statementID)

	st, err := scanStatement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListUserIDs returns every user with at least one statement.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM statements ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list statement owners: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStatement(row scanner) (ledger.Statement, error) {
	var (
		st        ledger.Statement
		typ       string
		amount    string
		senderID  sql.NullString
		createdAt string
	)

	err := row.Scan(&st.ID, &st.UserID, &typ, &amount, &st.Description, &senderID, &createdAt)
	if err == sql.ErrNoRows {
		return st, err
	}
	if err != nil {
		return st, fmt.Errorf("failed to scan statement: %w", err)
	}

	st.Type = ledger.OperationType(typ)
	st.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return st, fmt.Errorf("corrupt amount %q on statement %s: %w", amount, st.ID, err)
	}
	st.SenderID = senderID.String
	st.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return st, nil
}

// =============================================================================
// USER DIRECTORY (users.Directory interface)
// =============================================================================

// Create saves a new user.
func (s *Store) Create(ctx context.Context, u users.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		u.ID, u.Name, u.Email, u.PasswordHash,
		u.CreatedAt.UTC().Format(time.RFC3339Nano),
		u.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return users.ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindByID retrieves a user by ID.
func (s *Store) FindByID(ctx context.Context, id string) (*users.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

// FindByEmail retrieves a user by email, ignoring case.
func (s *Store) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	return s.findUser(ctx, "lower(email) = lower(?)", strings.TrimSpace(email))
}

func (s *Store) findUser(ctx context.Context, where string, arg any) (*users.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u users.User
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, password_hash, created_at, updated_at FROM users WHERE "+where,
		arg,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	u.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &u, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var (
	_ ledger.Store      = (*Store)(nil)
	_ ledger.UserLister = (*Store)(nil)
	_ users.Directory   = (*Store)(nil)
)
