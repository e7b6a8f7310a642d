/*
Package gormstore implements ledger.Store and users.Directory with gorm.

PURPOSE:
  The MySQL backend. The same code runs against any gorm dialector, which is
  how the tests exercise it on SQLite.

TABLES:
  users:      gormUser, email unique
  statements: gormStatement, Seq autoincrement keeps insertion order

APPEND-ONLY:
  Only Create is ever called on statements. AppendBatch wraps its inserts in
  db.Transaction so a transfer is written whole or not at all.

SEE ALSO:
  - store/sqlite/sqlite.go: database/sql implementation of the same interfaces
*/
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/warp/statement-ledger/ledger"
	"github.com/warp/statement-ledger/users"
)

// gormUser maps to the users table.
type gormUser struct {
	ID           string `gorm:"primaryKey;size:36"`
	Name         string `gorm:"size:255;not null"`
	Email        string `gorm:"size:255;not null;uniqueIndex"`
	PasswordHash string `gorm:"size:255;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (gormUser) TableName() string { return "users" }

// gormStatement maps to the statements table.
type gormStatement struct {
	Seq         int64           `gorm:"primaryKey;autoIncrement"`
	ID          string          `gorm:"column:statement_id;size:36;not null;uniqueIndex"`
	UserID      string          `gorm:"size:36;not null;index:idx_statements_user_seq"`
	Type        string          `gorm:"size:32;not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Description string          `gorm:"size:1024;not null"`
	SenderID    *string         `gorm:"size:36"`
	CreatedAt   time.Time       `gorm:"autoCreateTime:false"`
}

func (gormStatement) TableName() string { return "statements" }

// Store wraps a gorm DB.
type Store struct {
	db *gorm.DB
}

// NewMySQL opens a MySQL connection, applies pool settings and migrates.
func NewMySQL(cfg Config) (*Store, error) {
	store, err := Open(mysql.Open(cfg.DSN()), cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	sqlDB, err := store.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return store, nil
}

// Open builds a Store on any gorm dialector and migrates the schema.
func Open(dialector gorm.Dialector, logLevel string) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(parseLogLevel(logLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&gormUser{}, &gormStatement{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// =============================================================================
// STATEMENT STORE (ledger.Store interface)
// =============================================================================

func (s *Store) Append(ctx context.Context, st ledger.Statement) (ledger.Statement, error) {
	st = ledger.Stamp(st, time.Now())
	row := toGormStatement(st)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return ledger.Statement{}, fmt.Errorf("failed to append statement: %w", err)
	}
	return st, nil
}

func (s *Store) AppendBatch(ctx context.Context, sts []ledger.Statement) ([]ledger.Statement, error) {
	now := time.Now()
	stored := make([]ledger.Statement, len(sts))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, st := range sts {
			stored[i] = ledger.Stamp(st, now)
			row := toGormStatement(stored[i])
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append statements: %w", err)
	}
	return stored, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]ledger.Statement, error) {
	var rows []gormStatement
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query statements: %w", err)
	}

	statements := make([]ledger.Statement, len(rows))
	for i, r := range rows {
		statements[i] = r.toStatement()
	}
	return statements, nil
}

func (s *Store) Get(ctx context.Context, userID, statementID string) (*ledger.Statement, error) {
	var row gormStatement
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND statement_id = ?", userID, statementID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statement: %w", err)
	}
	st := row.toStatement()
	return &st, nil
}

func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&gormStatement{}).
		Distinct().
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list statement owners: %w", err)
	}
	return ids, nil
}

func toGormStatement(st ledger.Statement) gormStatement {
	row := gormStatement{
		ID:          st.ID,
		UserID:      st.UserID,
		Type:        string(st.Type),
		Amount:      st.Amount,
		Description: st.Description,
		CreatedAt:   st.CreatedAt.UTC(),
	}
	if st.SenderID != "" {
		sender := st.SenderID
		row.SenderID = &sender
	}
	return row
}

func (r gormStatement) toStatement() ledger.Statement {
	st := ledger.Statement{
		ID:          r.ID,
		UserID:      r.UserID,
		Type:        ledger.OperationType(r.Type),
		Amount:      r.Amount,
		Description: r.Description,
		CreatedAt:   r.CreatedAt.UTC(),
	}
	if r.SenderID != nil {
		st.SenderID = *r.SenderID
	}
	return st
}

// =============================================================================
// USER DIRECTORY (users.Directory interface)
// =============================================================================

func (s *Store) Create(ctx context.Context, u users.User) error {
	existing, err := s.FindByEmail(ctx, u.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		return users.ErrEmailTaken
	}

	row := gormUser{
		ID:           u.ID,
		Name:         u.Name,
		Email:        strings.ToLower(strings.TrimSpace(u.Email)),
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return users.ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*users.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	return s.findUser(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) findUser(ctx context.Context, where string, arg any) (*users.User, error) {
	var row gormUser
	err := s.db.WithContext(ctx).Where(where, arg).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &users.User{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Silent
	}
}

var (
	_ ledger.Store      = (*Store)(nil)
	_ ledger.UserLister = (*Store)(nil)
	_ users.Directory   = (*Store)(nil)
)
