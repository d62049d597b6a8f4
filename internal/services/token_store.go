package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ticket-ledger/internal/status"
	"ticket-ledger/models"
	"ticket-ledger/utils"
)

const tokenBytes = 32

// TokenStore issues single-use tokens kept in Redis under the hash of the raw value.
type TokenStore struct {
	redis    redis.Cmdable
	ttl      time.Duration
	generate func() (string, error)
	now      func() time.Time
}

func NewTokenStore(client redis.Cmdable, ttl time.Duration) *TokenStore {
	return &TokenStore{
		redis:    client,
		ttl:      ttl,
		generate: func() (string, error) { return utils.GenerateToken(tokenBytes) },
		now:      time.Now,
	}
}

func tokenKey(raw string) string {
	return fmt.Sprintf("token:%s", utils.HashToken(raw))
}

func tokenUsedKey(raw string) string {
	return fmt.Sprintf("token:%s:used", utils.HashToken(raw))
}

// Issue creates a token for subjectID. The returned Value is the only copy of the raw token.
func (s *TokenStore) Issue(ctx context.Context, purpose, subjectID, userID string) (*models.Token, error) {
	raw, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	now := s.now().UTC()
	tok := &models.Token{
		Value:     raw,
		Purpose:   purpose,
		SubjectID: subjectID,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return nil, err
	}
	if err := s.redis.Set(ctx, tokenKey(raw), string(data), s.ttl).Err(); err != nil {
		return nil, status.Transient(fmt.Errorf("store token: %w", err))
	}
	return tok, nil
}

// Consume marks the token used. A token can be consumed once.
func (s *TokenStore) Consume(ctx context.Context, raw, purpose string) (*models.Token, error) {
	data, err := s.redis.Get(ctx, tokenKey(raw)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, status.ErrTokenNotFound
	}
	if err != nil {
		return nil, status.Transient(fmt.Errorf("load token: %w", err))
	}

	var tok models.Token
	if err := json.Unmarshal([]byte(data), &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	if tok.Purpose != purpose {
		return nil, status.ErrTokenNotFound
	}

	now := s.now().UTC()
	if tok.IsExpired(now) {
		return nil, status.ErrTokenExpired
	}

	ok, err := s.redis.SetNX(ctx, tokenUsedKey(raw), now.Unix(), tok.ExpiresAt.Sub(now)).Result()
	if err != nil {
		return nil, status.Transient(fmt.Errorf("mark token used: %w", err))
	}
	if !ok {
		return nil, status.ErrTokenUsed
	}

	tok.Value = raw
	tok.Used = true
	return &tok, nil
}

// Release undoes Consume when the action the token authorized could not be completed.
func (s *TokenStore) Release(ctx context.Context, raw string) error {
	if err := s.redis.Del(ctx, tokenUsedKey(raw)).Err(); err != nil {
		return status.Transient(fmt.Errorf("release token: %w", err))
	}
	return nil
}
