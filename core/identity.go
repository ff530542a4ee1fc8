package core

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// WalletIdentity is one blockchain address acting as a platform identity.
// IsAdmin and IsBanned are independent flags; callers must check the ban first.
// Both are mutated only through the administrative path, never by the gate.
type WalletIdentity struct {
	bun.BaseModel `bun:"table:wallet_identities"`

	Address        string    `bun:",pk"`
	IsAdmin        bool      `bun:",notnull,default:false"`
	IsBanned       bool      `bun:",notnull,default:false"`
	FirstSeenAt    time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	LastActiveAt   time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	LastVerifiedAt time.Time `bun:",nullzero"`
}

// NormalizeAddress canonicalizes a wallet address for use as a store key.
// Hex addresses are case-insensitive, so everything is keyed lowercase.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
