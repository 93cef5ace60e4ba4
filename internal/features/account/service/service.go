// Package service implements the invitation registry and the credit ledger on
// top of the account store.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"gptgate/internal/common/apperror"
	"gptgate/internal/common/logger"
	"gptgate/internal/features/account/models"
	"gptgate/internal/features/account/repository"
)

const (
	// ChatTurnCost is debited for every successful chat completion.
	ChatTurnCost int64 = 3

	codeLength   = 7
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// issueRetries bounds the uniqueness loop for generated codes.
	issueRetries = 5
)

type Service struct {
	store repository.Store
}

func New(store repository.Store) *Service {
	return &Service{store: store}
}

// Issue creates an invitation bound to name and returns its code. Codes are
// 7 random characters over the 62-symbol alphanumeric alphabet; generation
// retries until the code is unused.
func (s *Service) Issue(ctx context.Context, name string) (string, error) {
	for i := 0; i < issueRetries; i++ {
		code, err := generateCode(codeLength)
		if err != nil {
			return "", err
		}

		_, err = s.store.GetInvitation(ctx, code)
		if err == nil {
			continue // collision, draw again
		}
		if !errors.Is(err, repository.ErrInvitationNotFound) {
			return "", err
		}

		inv := &models.Invitation{Code: code, Name: name}
		if err := s.store.CreateInvitation(ctx, inv); err != nil {
			return "", err
		}
		logger.Info().Str("name", name).Msg("invitation issued")
		return code, nil
	}
	return "", fmt.Errorf("could not generate a unique invitation code after %d attempts", issueRetries)
}

// Redeem consumes the invitation code for the given external user id. On
// success the new user exists with the initial credit grant and the
// invitation is gone; both happen in one store transaction.
func (s *Service) Redeem(ctx context.Context, code, externalID string) (*models.User, error) {
	userID := models.Digest(externalID)

	user, err := s.store.Redeem(ctx, code, userID, models.InitialCredits)
	if errors.Is(err, repository.ErrInvitationNotFound) {
		return nil, apperror.NotFound("invitation", code)
	}
	if err != nil {
		return nil, apperror.TransactionFailed("redeem invitation", err)
	}

	logger.Info().Str("name", user.Name).Msg("new user registered from invitation")
	return user, nil
}

// User returns the account for an external platform id, if registered.
func (s *Service) User(ctx context.Context, externalID string) (*models.User, error) {
	user, err := s.store.GetUser(ctx, models.Digest(externalID))
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, apperror.NotFound("user", externalID)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Balance returns the current credit balance for an external platform id.
func (s *Service) Balance(ctx context.Context, externalID string) (int64, error) {
	credits, err := s.store.Credits(ctx, models.Digest(externalID))
	if errors.Is(err, repository.ErrUserNotFound) {
		return 0, apperror.NotFound("user", externalID)
	}
	if err != nil {
		return 0, err
	}
	return credits, nil
}

// DebitChatTurn subtracts the per-turn cost atomically and returns the new
// balance. Fails with InsufficientCredits and no change when the balance is
// below the cost.
func (s *Service) DebitChatTurn(ctx context.Context, externalID string) (int64, error) {
	remaining, err := s.store.DebitCredits(ctx, models.Digest(externalID), ChatTurnCost)
	if errors.Is(err, repository.ErrInsufficientFunds) {
		return remaining, apperror.InsufficientCredits(remaining, ChatTurnCost)
	}
	if errors.Is(err, repository.ErrUserNotFound) {
		return 0, apperror.NotFound("user", externalID)
	}
	if err != nil {
		return 0, apperror.TransactionFailed("debit chat turn", err)
	}
	return remaining, nil
}

func generateCode(length int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating invitation code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
