package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gptgate/internal/common/logger"
	"gptgate/internal/features/account/models"
	"gptgate/internal/features/account/repository"
)

// compile-time check that *Store implements repository.Store
var _ repository.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

// New wraps an open database and ensures the schema exists.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			credits    INTEGER NOT NULL DEFAULT 0,
			role       TEXT NOT NULL DEFAULT 'user',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS invitations (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);
	`)
	return err
}

func (s *Store) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invitations (code, name) VALUES (?, ?)`,
		inv.Code, inv.Name)
	if err != nil {
		return fmt.Errorf("sqlite: inserting invitation: %w", err)
	}
	return nil
}

func (s *Store) GetInvitation(ctx context.Context, code string) (*models.Invitation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, name FROM invitations WHERE code = ?`, code)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying invitation: %w", err)
	}
	defer rows.Close()

	var found []*models.Invitation
	for rows.Next() {
		var inv models.Invitation
		if err := rows.Scan(&inv.Code, &inv.Name); err != nil {
			return nil, fmt.Errorf("sqlite: scanning invitation: %w", err)
		}
		found = append(found, &inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: reading invitations: %w", err)
	}

	// A code maps to at most one row; anything else is treated as absent.
	if len(found) != 1 {
		if len(found) > 1 {
			logger.Warn().Str("code", code).Int("rows", len(found)).
				Msg("ambiguous invitation code")
		}
		return nil, repository.ErrInvitationNotFound
	}
	return found[0], nil
}

// Redeem consumes the invitation and creates the user inside one transaction.
// The invitation row and its derived user never coexist afterwards.
func (s *Store) Redeem(ctx context.Context, code, userID string, credits int64) (*models.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning redeem tx: %w", err)
	}
	defer tx.Rollback()

	var inv models.Invitation
	err = tx.QueryRowContext(ctx,
		`SELECT code, name FROM invitations WHERE code = ?`, code,
	).Scan(&inv.Code, &inv.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: looking up invitation: %w", err)
	}

	user := &models.User{
		ID:        userID,
		Name:      inv.Name,
		Credits:   credits,
		Role:      models.RoleUser,
		CreatedAt: time.Now(),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, name, credits, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Credits, user.Role, user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: inserting user: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM invitations WHERE code = ?`, code)
	if err != nil {
		return nil, fmt.Errorf("sqlite: deleting invitation: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, repository.ErrInvitationNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing redeem: %w", err)
	}
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, credits, role, created_at FROM users WHERE id = ?`, userID,
	).Scan(&u.ID, &u.Name, &u.Credits, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user: %w", err)
	}
	return &u, nil
}

func (s *Store) Credits(ctx context.Context, userID string) (int64, error) {
	var credits int64
	err := s.db.QueryRowContext(ctx,
		`SELECT credits FROM users WHERE id = ?`, userID,
	).Scan(&credits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, repository.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading credits: %w", err)
	}
	return credits, nil
}

func (s *Store) SetCredits(ctx context.Context, userID string, credits int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET credits = ? WHERE id = ?`, credits, userID)
	if err != nil {
		return fmt.Errorf("sqlite: writing credits: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrUserNotFound
	}
	return nil
}

// DebitCredits performs the read-compare-write inside one transaction so
// concurrent debits on the same user cannot lose updates.
func (s *Store) DebitCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: beginning debit tx: %w", err)
	}
	defer tx.Rollback()

	var credits int64
	err = tx.QueryRowContext(ctx,
		`SELECT credits FROM users WHERE id = ?`, userID,
	).Scan(&credits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, repository.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading credits: %w", err)
	}

	if credits < amount {
		return credits, repository.ErrInsufficientFunds
	}

	remaining := credits - amount
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET credits = ? WHERE id = ?`, remaining, userID); err != nil {
		return 0, fmt.Errorf("sqlite: writing credits: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: committing debit: %w", err)
	}
	return remaining, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
