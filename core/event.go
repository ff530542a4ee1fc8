package core

import (
	"time"

	"github.com/uptrace/bun"
)

// EventKind enumerates the tracked event types. The set is closed; anything
// else is a validation error.
type EventKind string

const (
	EventWalletConnect      EventKind = "wallet_connect"
	EventWalletDisconnect   EventKind = "wallet_disconnect"
	EventPageView           EventKind = "page_view"
	EventCourseStart        EventKind = "course_start"
	EventCourseComplete     EventKind = "course_complete"
	EventLessonStart        EventKind = "lesson_start"
	EventLessonComplete     EventKind = "lesson_complete"
	EventExamStarted        EventKind = "exam_started"
	EventExamSubmitted      EventKind = "exam_submitted"
	EventExamApproved       EventKind = "exam_approved"
	EventExamRejected       EventKind = "exam_rejected"
	EventPlacementStarted   EventKind = "placement_started"
	EventPlacementCompleted EventKind = "placement_completed"
	EventCustom             EventKind = "custom"
)

var eventKinds = map[EventKind]struct{}{
	EventWalletConnect:      {},
	EventWalletDisconnect:   {},
	EventPageView:           {},
	EventCourseStart:        {},
	EventCourseComplete:     {},
	EventLessonStart:        {},
	EventLessonComplete:     {},
	EventExamStarted:        {},
	EventExamSubmitted:      {},
	EventExamApproved:       {},
	EventExamRejected:       {},
	EventPlacementStarted:   {},
	EventPlacementCompleted: {},
	EventCustom:             {},
}

// Valid reports whether the kind belongs to the closed enum.
func (k EventKind) Valid() bool {
	_, ok := eventKinds[k]
	return ok
}

// Event is an immutable fact appended to the stream. This subsystem never
// updates or deletes one.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID            int64          `bun:",pk,autoincrement"`
	Kind          EventKind      `bun:",notnull"`
	SessionID     string         `bun:",nullzero"`
	WalletAddress string         `bun:",nullzero"`
	Path          string         `bun:",nullzero"`
	Payload       map[string]any `bun:"type:jsonb"`
	CreatedAt     time.Time      `bun:",nullzero,notnull,default:current_timestamp"`
}
