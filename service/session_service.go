package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/learnchain/gatehouse/core"
	"github.com/learnchain/gatehouse/ports"
)

// SessionService owns the visit lifecycle: create, heartbeat, end. Timeout is
// evaluated lazily when a session is read; there is no background sweep.
type SessionService struct {
	store   ports.SessionStore
	timeout time.Duration
	log     *logrus.Logger
	now     func() time.Time
}

func NewSessionService(store ports.SessionStore, timeout time.Duration, log *logrus.Logger) *SessionService {
	return &SessionService{
		store:   store,
		timeout: timeout,
		log:     log,
		now:     time.Now,
	}
}

// Start always creates a new session. The wallet binding is best effort; an
// empty wallet starts an anonymous session that may adopt one later.
func (s *SessionService) Start(ctx context.Context, wallet, userAgent, sourceIP string) (string, error) {
	now := s.now()
	session := &core.Session{
		ID:              uuid.New().String(),
		WalletAddress:   core.NormalizeAddress(wallet),
		UserAgent:       userAgent,
		SourceIP:        sourceIP,
		StartedAt:       now,
		LastHeartbeatAt: now,
	}

	if err := s.store.Create(ctx, session); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return session.ID, nil
}

// Heartbeat extends the session. A heartbeat racing an end call is expected;
// it reports ErrSessionEnded, which callers treat as a tolerated no-op, and
// it never revives an ended session.
func (s *SessionService) Heartbeat(ctx context.Context, id string) error {
	if id == "" {
		return core.ErrSessionNotFound
	}

	alive, err := s.store.Heartbeat(ctx, id, s.now())
	if err != nil {
		return err
	}
	if !alive {
		return core.ErrSessionEnded
	}
	return nil
}

// End terminates the session. Ending an already-ended or unknown session is
// a success.
func (s *SessionService) End(ctx context.Context, id string) error {
	if id == "" {
		return core.ErrSessionNotFound
	}
	return s.store.End(ctx, id, s.now())
}

// Get reads the session and applies the heartbeat timeout lazily: the first
// read that observes a session silent past the window records the end, so the
// ended state stays terminal without a background sweep.
func (s *SessionService) Get(ctx context.Context, id string) (*core.Session, bool, error) {
	session, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("failed to read session: %w", err)
	}

	if session.EndedAt == nil && !session.Active(s.now(), s.timeout) {
		endedAt := session.LastHeartbeatAt.Add(s.timeout)
		if err := s.store.End(ctx, id, endedAt); err != nil {
			s.log.WithError(err).WithField("session_id", id).Warn("failed to record session timeout")
		}
		session.EndedAt = &endedAt
	}
	return session, session.EndedAt == nil, nil
}
