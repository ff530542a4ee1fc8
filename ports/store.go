package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/learnchain/gatehouse/core"
)

// NonceStore issues and consumes one-time challenge values. Put replaces any
// outstanding nonce for the wallet. Consume must be atomic with respect to
// concurrent callers presenting the same value: exactly one of them wins.
type NonceStore interface {
	Put(ctx context.Context, nonce *core.Nonce) error
	Consume(ctx context.Context, wallet, value string, now time.Time) (core.NonceResult, error)
}

// IdentityStore persists wallet identities. Upsert is idempotent by address
// and reports whether this call created the record.
type IdentityStore interface {
	Get(ctx context.Context, address string) (*core.WalletIdentity, error)
	Upsert(ctx context.Context, address string, at time.Time) (identity *core.WalletIdentity, created bool, err error)
	SetAdmin(ctx context.Context, address string, isAdmin bool) error
	SetBanned(ctx context.Context, address string, banned bool) error
}

// SessionStore persists sessions. Heartbeat reports false when the session is
// missing or already ended; it never moves last_heartbeat_at backwards. End is
// idempotent.
type SessionStore interface {
	Create(ctx context.Context, session *core.Session) error
	Get(ctx context.Context, id string) (*core.Session, error)
	Heartbeat(ctx context.Context, id string, at time.Time) (bool, error)
	End(ctx context.Context, id string, at time.Time) error
}

// EventStore is the append-only event log.
type EventStore interface {
	Append(ctx context.Context, event *core.Event) error
}

// ProgressStore holds derived progress state. StartCourse inserts only and
// reports false when a record already exists. AdvanceCourse applies the update
// unless the record is completed, and reports whether it was applied.
// ApplyPlacement is last write wins except that "started" never overwrites a
// later status.
type ProgressStore interface {
	StartCourse(ctx context.Context, wallet, courseID string, at time.Time) (started bool, err error)
	AdvanceCourse(ctx context.Context, wallet, courseID string, percent decimal.Decimal, completed bool, at time.Time) (applied bool, err error)
	GetCourse(ctx context.Context, wallet, courseID string) (*core.CourseProgress, error)
	ApplyPlacement(ctx context.Context, wallet, status string, at time.Time) error
	GetPlacement(ctx context.Context, wallet string) (*core.PlacementProgress, error)
}

// AdminMirror is a secondary, independent admin lookup kept in sync on admin
// mutations. It backs the resolver's fallback path when the primary store is
// unavailable.
type AdminMirror interface {
	IsAdmin(ctx context.Context, address string) (bool, error)
	SetAdmin(ctx context.Context, address string, isAdmin bool) error
}
