package core

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// CourseProgress is derived state folded from the event stream, keyed by
// (wallet, course). Completion is terminal: once Completed is set the record
// never reopens, whatever later events claim.
type CourseProgress struct {
	bun.BaseModel `bun:"table:course_progress"`

	WalletAddress string          `bun:",pk"`
	CourseID      string          `bun:",pk"`
	Percent       decimal.Decimal `bun:"type:numeric(5,2)"`
	Completed     bool            `bun:",notnull,default:false"`
	StartedAt     time.Time       `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time       `bun:",nullzero,notnull,default:current_timestamp"`
}

// Placement statuses, in lifecycle order. "started" never overwrites a later
// status; everything else is last write wins.
const (
	PlacementStarted   = "started"
	PlacementSubmitted = "submitted"
	PlacementApproved  = "approved"
	PlacementRejected  = "rejected"
	PlacementCompleted = "completed"
)

// PlacementProgress is derived placement/exam state, keyed by wallet.
type PlacementProgress struct {
	bun.BaseModel `bun:"table:placement_progress"`

	WalletAddress string    `bun:",pk"`
	Status        string    `bun:",notnull"`
	StartedAt     time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

// PercentComplete is the terminal course percent.
var PercentComplete = decimal.NewFromInt(100)
