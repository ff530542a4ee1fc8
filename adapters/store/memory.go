package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/learnchain/gatehouse/core"
)

// In-memory implementations of the store ports, guarded by mutexes. They back
// tests and local development; the invariants match the redis and postgres
// adapters exactly.

// MemoryNonceStore holds one live nonce per wallet plus the last consumed
// value, mirroring the redis key layout.
type MemoryNonceStore struct {
	mu   sync.Mutex
	live map[string]*core.Nonce
	used map[string]string
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{
		live: make(map[string]*core.Nonce),
		used: make(map[string]string),
	}
}

func (s *MemoryNonceStore) Put(ctx context.Context, nonce *core.Nonce) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := *nonce
	s.live[nonce.WalletAddress] = &n
	return nil
}

func (s *MemoryNonceStore) Consume(ctx context.Context, wallet, value string, now time.Time) (core.NonceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.used[wallet] == value {
		return core.NonceResult{Reason: core.ReasonAlreadyConsumed}, nil
	}

	nonce, ok := s.live[wallet]
	if !ok {
		return core.NonceResult{Reason: core.ReasonNotFound}, nil
	}
	if nonce.Value != value {
		return core.NonceResult{Reason: core.ReasonSuperseded}, nil
	}
	if !now.Before(nonce.ExpiresAt) {
		return core.NonceResult{Reason: core.ReasonExpired}, nil
	}

	delete(s.live, wallet)
	s.used[wallet] = value
	return core.NonceResult{Valid: true, Reason: core.ReasonOK}, nil
}

// MemoryIdentityStore keys identities by address.
type MemoryIdentityStore struct {
	mu         sync.RWMutex
	identities map[string]*core.WalletIdentity
}

func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{identities: make(map[string]*core.WalletIdentity)}
}

func (s *MemoryIdentityStore) Get(ctx context.Context, address string) (*core.WalletIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[address]
	if !ok {
		return nil, core.ErrIdentityNotFound
	}
	cp := *identity
	return &cp, nil
}

func (s *MemoryIdentityStore) Upsert(ctx context.Context, address string, at time.Time) (*core.WalletIdentity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if identity, ok := s.identities[address]; ok {
		identity.LastActiveAt = at
		identity.LastVerifiedAt = at
		cp := *identity
		return &cp, false, nil
	}

	identity := &core.WalletIdentity{
		Address:        address,
		FirstSeenAt:    at,
		LastActiveAt:   at,
		LastVerifiedAt: at,
	}
	s.identities[address] = identity
	cp := *identity
	return &cp, true, nil
}

func (s *MemoryIdentityStore) SetAdmin(ctx context.Context, address string, isAdmin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[address]
	if !ok {
		return core.ErrIdentityNotFound
	}
	identity.IsAdmin = isAdmin
	return nil
}

func (s *MemoryIdentityStore) SetBanned(ctx context.Context, address string, banned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[address]
	if !ok {
		return core.ErrIdentityNotFound
	}
	identity.IsBanned = banned
	return nil
}

// MemorySessionStore keys sessions by id.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*core.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*core.Session)}
}

func (s *MemorySessionStore) Create(ctx context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, id string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *MemorySessionStore) Heartbeat(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || session.EndedAt != nil {
		return false, nil
	}
	if at.After(session.LastHeartbeatAt) {
		session.LastHeartbeatAt = at
	}
	return true, nil
}

func (s *MemorySessionStore) End(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || session.EndedAt != nil {
		return nil
	}
	ended := at
	session.EndedAt = &ended
	return nil
}

// MemoryEventStore appends to a slice.
type MemoryEventStore struct {
	mu     sync.Mutex
	events []core.Event
	nextID int64
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{nextID: 1}
}

func (s *MemoryEventStore) Append(ctx context.Context, event *core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	cp.ID = s.nextID
	s.nextID++
	s.events = append(s.events, cp)
	return nil
}

// Events returns a snapshot of the log, for tests.
func (s *MemoryEventStore) Events() []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Event, len(s.events))
	copy(out, s.events)
	return out
}

type courseKey struct {
	wallet   string
	courseID string
}

// MemoryProgressStore applies the same conservative fold guards as the
// postgres adapter.
type MemoryProgressStore struct {
	mu         sync.Mutex
	courses    map[courseKey]*core.CourseProgress
	placements map[string]*core.PlacementProgress
}

func NewMemoryProgressStore() *MemoryProgressStore {
	return &MemoryProgressStore{
		courses:    make(map[courseKey]*core.CourseProgress),
		placements: make(map[string]*core.PlacementProgress),
	}
}

func (s *MemoryProgressStore) StartCourse(ctx context.Context, wallet, courseID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := courseKey{wallet, courseID}
	if _, ok := s.courses[key]; ok {
		return false, nil
	}
	s.courses[key] = &core.CourseProgress{
		WalletAddress: wallet,
		CourseID:      courseID,
		Percent:       decimal.Zero,
		StartedAt:     at,
		UpdatedAt:     at,
	}
	return true, nil
}

func (s *MemoryProgressStore) AdvanceCourse(ctx context.Context, wallet, courseID string, percent decimal.Decimal, completed bool, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := courseKey{wallet, courseID}
	progress, ok := s.courses[key]
	if !ok {
		s.courses[key] = &core.CourseProgress{
			WalletAddress: wallet,
			CourseID:      courseID,
			Percent:       percent,
			Completed:     completed,
			StartedAt:     at,
			UpdatedAt:     at,
		}
		return true, nil
	}
	if progress.Completed {
		return false, nil
	}
	if percent.GreaterThan(progress.Percent) {
		progress.Percent = percent
	}
	progress.Completed = completed
	progress.UpdatedAt = at
	return true, nil
}

func (s *MemoryProgressStore) GetCourse(ctx context.Context, wallet, courseID string) (*core.CourseProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	progress, ok := s.courses[courseKey{wallet, courseID}]
	if !ok {
		return nil, nil
	}
	cp := *progress
	return &cp, nil
}

func (s *MemoryProgressStore) ApplyPlacement(ctx context.Context, wallet, status string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	placement, ok := s.placements[wallet]
	if !ok {
		s.placements[wallet] = &core.PlacementProgress{
			WalletAddress: wallet,
			Status:        status,
			StartedAt:     at,
			UpdatedAt:     at,
		}
		return nil
	}
	if status == core.PlacementStarted && placement.Status != core.PlacementStarted {
		return nil
	}
	placement.Status = status
	placement.UpdatedAt = at
	return nil
}

func (s *MemoryProgressStore) GetPlacement(ctx context.Context, wallet string) (*core.PlacementProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	placement, ok := s.placements[wallet]
	if !ok {
		return nil, nil
	}
	cp := *placement
	return &cp, nil
}

// MemoryAdminMirror is the test double for the redis admin set.
type MemoryAdminMirror struct {
	mu     sync.RWMutex
	admins map[string]struct{}
}

func NewMemoryAdminMirror() *MemoryAdminMirror {
	return &MemoryAdminMirror{admins: make(map[string]struct{})}
}

func (m *MemoryAdminMirror) IsAdmin(ctx context.Context, address string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.admins[address]
	return ok, nil
}

func (m *MemoryAdminMirror) SetAdmin(ctx context.Context, address string, isAdmin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isAdmin {
		m.admins[address] = struct{}{}
	} else {
		delete(m.admins, address)
	}
	return nil
}
