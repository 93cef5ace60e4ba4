package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gptgate/internal/common/logger"
	"gptgate/internal/features/account/models"
	"gptgate/internal/features/account/repository"
)

// txRetries bounds the optimistic WATCH retry loop on contended keys.
const txRetries = 10

var _ repository.Store = (*Store)(nil)

// Store keeps users and invitations as JSON values under user:<digest> and
// invitation:<code>. Redeem and DebitCredits rely on WATCH so the
// read-then-write pair aborts when another writer touches the key.
type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func userKey(id string) string { return "user:" + id }

func invitationKey(code string) string { return "invitation:" + code }

func (s *Store) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	raw, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, invitationKey(inv.Code), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("redis: storing invitation: %w", err)
	}
	if !ok {
		return fmt.Errorf("redis: invitation code %q already exists", inv.Code)
	}
	return nil
}

func (s *Store) GetInvitation(ctx context.Context, code string) (*models.Invitation, error) {
	raw, err := s.client.Get(ctx, invitationKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: reading invitation: %w", err)
	}
	var inv models.Invitation
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("redis: decoding invitation: %w", err)
	}
	return &inv, nil
}

func (s *Store) Redeem(ctx context.Context, code, userID string, credits int64) (*models.User, error) {
	var user *models.User

	redeem := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, invitationKey(code)).Bytes()
		if errors.Is(err, redis.Nil) {
			return repository.ErrInvitationNotFound
		}
		if err != nil {
			return err
		}
		var inv models.Invitation
		if err := json.Unmarshal(raw, &inv); err != nil {
			return err
		}

		user = &models.User{
			ID:        userID,
			Name:      inv.Name,
			Credits:   credits,
			Role:      models.RoleUser,
			CreatedAt: time.Now(),
		}
		userRaw, err := json.Marshal(user)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, userKey(userID), userRaw, 0)
			pipe.Del(ctx, invitationKey(code))
			return nil
		})
		return err
	}

	for i := 0; i < txRetries; i++ {
		err := s.client.Watch(ctx, redeem, invitationKey(code))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return user, nil
	}
	return nil, fmt.Errorf("redis: redeem aborted after %d retries", txRetries)
}

func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	raw, err := s.client.Get(ctx, userKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: reading user: %w", err)
	}
	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("redis: decoding user: %w", err)
	}
	return &user, nil
}

func (s *Store) Credits(ctx context.Context, userID string) (int64, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.Credits, nil
}

func (s *Store) SetCredits(ctx context.Context, userID string, credits int64) error {
	update := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, userKey(userID)).Bytes()
		if errors.Is(err, redis.Nil) {
			return repository.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		var user models.User
		if err := json.Unmarshal(raw, &user); err != nil {
			return err
		}
		user.Credits = credits
		updated, err := json.Marshal(&user)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, userKey(userID), updated, 0)
			return nil
		})
		return err
	}

	for i := 0; i < txRetries; i++ {
		err := s.client.Watch(ctx, update, userKey(userID))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis: credit write aborted after %d retries", txRetries)
}

func (s *Store) DebitCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	var remaining int64

	debit := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, userKey(userID)).Bytes()
		if errors.Is(err, redis.Nil) {
			return repository.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		var user models.User
		if err := json.Unmarshal(raw, &user); err != nil {
			return err
		}

		if user.Credits < amount {
			remaining = user.Credits
			return repository.ErrInsufficientFunds
		}

		user.Credits -= amount
		remaining = user.Credits
		updated, err := json.Marshal(&user)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, userKey(userID), updated, 0)
			return nil
		})
		return err
	}

	for i := 0; i < txRetries; i++ {
		err := s.client.Watch(ctx, debit, userKey(userID))
		if errors.Is(err, redis.TxFailedErr) {
			logger.Debug().Str("user", userID).Msg("debit retried on contention")
			continue
		}
		if err != nil {
			return remaining, err
		}
		return remaining, nil
	}
	return 0, fmt.Errorf("redis: debit aborted after %d retries", txRetries)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
