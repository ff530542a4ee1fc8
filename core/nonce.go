package core

import (
	"fmt"
	"time"
)

// Nonce is a single-use challenge value bound to one wallet. At most one
// unconsumed, unexpired nonce exists per wallet; issuing a new one replaces
// any outstanding one.
type Nonce struct {
	Value         string     `json:"value"`
	WalletAddress string     `json:"wallet_address"`
	IssuedAt      time.Time  `json:"issued_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	ConsumedAt    *time.Time `json:"consumed_at,omitempty"`
}

// Usable reports whether the nonce can still be consumed at the given time.
func (n *Nonce) Usable(now time.Time) bool {
	return n.ConsumedAt == nil && now.Before(n.ExpiresAt)
}

// Consume failure reasons. These are observability labels, not a trust signal:
// every non-ok reason is the same 401 to the caller.
const (
	ReasonOK              = "ok"
	ReasonNotFound        = "not found"
	ReasonAlreadyConsumed = "already consumed"
	ReasonExpired         = "expired"
	ReasonSuperseded      = "superseded"
	ReasonWalletMismatch  = "wallet mismatch"
	ReasonBadSignature    = "invalid signature"
	ReasonBanned          = "wallet banned"
	ReasonFailOpen        = "fail-open"
)

// NonceResult is the outcome of a verify-and-consume attempt.
type NonceResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
}

// ChallengeMessage formats the human-readable message a wallet signs to prove
// control of its key. It embeds the nonce and the issue date so the same text
// cannot be replayed with a different nonce or on a different day.
func ChallengeMessage(address, nonce string, at time.Time) string {
	return fmt.Sprintf(
		"Gatehouse wants you to sign in with wallet %s.\n\nNonce: %s\nDate: %s",
		address, nonce, at.UTC().Format("2006-01-02"),
	)
}
