package repository

import (
	"context"
	"errors"

	"gptgate/internal/features/account/models"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInsufficientFunds  = errors.New("insufficient credits")
)

// Store persists users and invitations. Redeem and DebitCredits must be
// atomic: concurrent calls on the same key must not interleave their
// read-then-write pairs.
type Store interface {
	// CreateInvitation persists a (code, name) pair. Fails if the code exists.
	CreateInvitation(ctx context.Context, inv *models.Invitation) error

	// GetInvitation returns the invitation for code, or ErrInvitationNotFound.
	GetInvitation(ctx context.Context, code string) (*models.Invitation, error)

	// Redeem consumes the invitation and creates the user in one transaction:
	// either the user exists and the invitation is gone, or neither changed.
	// userID is the digest key, not the raw external id.
	Redeem(ctx context.Context, code, userID string, credits int64) (*models.User, error)

	// GetUser returns the user for the digest key, or ErrUserNotFound.
	GetUser(ctx context.Context, userID string) (*models.User, error)

	// Credits returns the current balance, or ErrUserNotFound.
	Credits(ctx context.Context, userID string) (int64, error)

	// SetCredits overwrites the balance.
	SetCredits(ctx context.Context, userID string, credits int64) error

	// DebitCredits atomically checks balance >= amount and subtracts it,
	// returning the new balance. Returns ErrInsufficientFunds without any
	// change when the balance is too low.
	DebitCredits(ctx context.Context, userID string, amount int64) (int64, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
