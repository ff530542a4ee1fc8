package core

import (
	"time"

	"github.com/uptrace/bun"
)

// Session is one continuous period of client activity, optionally bound to a
// wallet. EndedAt, once set, is terminal; LastHeartbeatAt never decreases.
type Session struct {
	bun.BaseModel `bun:"table:sessions"`

	ID              string     `bun:",pk"`
	WalletAddress   string     `bun:",nullzero"`
	UserAgent       string     `bun:",nullzero"`
	SourceIP        string     `bun:",nullzero"`
	StartedAt       time.Time  `bun:",nullzero,notnull,default:current_timestamp"`
	LastHeartbeatAt time.Time  `bun:",nullzero,notnull,default:current_timestamp"`
	EndedAt         *time.Time `bun:",nullzero"`
}

// Active reports whether the session can still accept heartbeats and events.
// Timeout is evaluated lazily here; there is no background reaper.
func (s *Session) Active(now time.Time, timeout time.Duration) bool {
	if s.EndedAt != nil {
		return false
	}
	return now.Sub(s.LastHeartbeatAt) < timeout
}
