package ports

import (
	"context"

	"github.com/learnchain/gatehouse/core"
)

// AdmissionAudit is one gate decision, published for audit consumers.
type AdmissionAudit struct {
	WalletAddress string `json:"wallet_address"`
	Allowed       bool   `json:"allowed"`
	IsAdmin       bool   `json:"is_admin"`
	FailOpen      bool   `json:"fail_open"`
	Reason        string `json:"reason"`
}

// EventPublisher fans events out to other instances and consumers. Both
// methods are best effort; callers log publish failures and move on.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *core.Event) error
	PublishAudit(ctx context.Context, audit AdmissionAudit) error
}
