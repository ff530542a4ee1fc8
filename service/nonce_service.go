package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/learnchain/gatehouse/core"
	"github.com/learnchain/gatehouse/ports"
)

// NonceService issues one-time challenge values and consumes them exactly
// once. Atomicity of the consume lives in the store; this layer only shapes
// the challenge and classifies outcomes.
type NonceService struct {
	store ports.NonceStore
	ttl   time.Duration
	log   *logrus.Logger
	now   func() time.Time
}

func NewNonceService(store ports.NonceStore, ttl time.Duration, log *logrus.Logger) *NonceService {
	return &NonceService{
		store: store,
		ttl:   ttl,
		log:   log,
		now:   time.Now,
	}
}

// Issue creates a fresh nonce for the wallet, replacing any outstanding one,
// and returns it together with the challenge message to sign.
func (s *NonceService) Issue(ctx context.Context, wallet string) (*core.Nonce, string, error) {
	wallet = core.NormalizeAddress(wallet)
	if wallet == "" {
		return nil, "", core.ErrInvalidAddress
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := s.now()
	nonce := &core.Nonce{
		Value:         hex.EncodeToString(raw),
		WalletAddress: wallet,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.ttl),
	}

	if err := s.store.Put(ctx, nonce); err != nil {
		return nil, "", fmt.Errorf("failed to store nonce: %w", err)
	}

	message := core.ChallengeMessage(wallet, nonce.Value, now)
	return nonce, message, nil
}

// VerifyAndConsume atomically checks and burns the nonce. An ambiguous store
// outcome is an error, never a success: this path fails closed.
func (s *NonceService) VerifyAndConsume(ctx context.Context, wallet, value string) (core.NonceResult, error) {
	wallet = core.NormalizeAddress(wallet)
	if wallet == "" || value == "" {
		return core.NonceResult{Reason: core.ReasonNotFound}, core.ErrInvalidAddress
	}

	result, err := s.store.Consume(ctx, wallet, value, s.now())
	if err != nil {
		return core.NonceResult{}, err
	}

	if !result.Valid {
		s.log.WithFields(logrus.Fields{
			"wallet": wallet,
			"reason": result.Reason,
		}).Info("nonce verification rejected")
	}
	return result, nil
}
