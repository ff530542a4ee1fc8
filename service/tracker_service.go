package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/learnchain/gatehouse/core"
	"github.com/learnchain/gatehouse/ports"
)

// TrackerService appends typed events to the stream and folds a subset into
// derived progress. The event is appended unconditionally; the fold is
// conservative and a completed course never reopens, whatever later events
// claim.
type TrackerService struct {
	events    ports.EventStore
	progress  ports.ProgressStore
	publisher ports.EventPublisher
	log       *logrus.Logger
	now       func() time.Time
}

func NewTrackerService(events ports.EventStore, progress ports.ProgressStore, publisher ports.EventPublisher, log *logrus.Logger) *TrackerService {
	return &TrackerService{
		events:    events,
		progress:  progress,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// courseKinds require payload.courseId.
var courseKinds = map[core.EventKind]struct{}{
	core.EventCourseStart:    {},
	core.EventCourseComplete: {},
	core.EventLessonStart:    {},
	core.EventLessonComplete: {},
}

// Record validates, appends, publishes and folds. Only malformed input fails
// the caller; store and publish trouble is logged and swallowed.
func (t *TrackerService) Record(ctx context.Context, kind core.EventKind, sessionID, wallet, path string, payload map[string]any) error {
	if !kind.Valid() {
		return core.ErrInvalidEventKind
	}
	wallet = core.NormalizeAddress(wallet)

	courseID, _ := payloadString(payload, "courseId")
	if _, needs := courseKinds[kind]; needs && courseID == "" {
		return core.ErrMissingCourseID
	}

	event := &core.Event{
		Kind:          kind,
		SessionID:     sessionID,
		WalletAddress: wallet,
		Path:          path,
		Payload:       payload,
		CreatedAt:     t.now(),
	}

	if err := t.events.Append(ctx, event); err != nil {
		t.log.WithError(err).WithFields(logrus.Fields{
			"kind":   kind,
			"wallet": wallet,
		}).Warn("failed to append event")
	}

	if err := t.publisher.PublishEvent(ctx, event); err != nil {
		t.log.WithError(err).WithField("kind", kind).Warn("failed to publish event")
	}

	t.fold(ctx, event, courseID)
	return nil
}

// fold applies the derived-state rules. Fold failures never reach the caller.
func (t *TrackerService) fold(ctx context.Context, event *core.Event, courseID string) {
	if event.WalletAddress == "" {
		return
	}

	switch event.Kind {
	case core.EventCourseStart:
		started, err := t.progress.StartCourse(ctx, event.WalletAddress, courseID, event.CreatedAt)
		if err != nil {
			t.foldError(event, err)
			return
		}
		if !started {
			existing, err := t.progress.GetCourse(ctx, event.WalletAddress, courseID)
			if err == nil && existing != nil && existing.Completed {
				t.anomaly(event, courseID, "course_start for a completed course dropped from fold")
			}
		}

	case core.EventCourseComplete:
		if _, err := t.progress.AdvanceCourse(ctx, event.WalletAddress, courseID, core.PercentComplete, true, event.CreatedAt); err != nil {
			t.foldError(event, err)
		}

	case core.EventLessonComplete:
		percent, ok := lessonPercent(event.Payload)
		if !ok {
			return
		}
		applied, err := t.progress.AdvanceCourse(ctx, event.WalletAddress, courseID, percent, false, event.CreatedAt)
		if err != nil {
			t.foldError(event, err)
			return
		}
		if !applied {
			t.anomaly(event, courseID, "lesson_complete for a completed course dropped from fold")
		}

	case core.EventPlacementStarted, core.EventExamStarted:
		t.applyPlacement(ctx, event, core.PlacementStarted)
	case core.EventExamSubmitted:
		t.applyPlacement(ctx, event, core.PlacementSubmitted)
	case core.EventExamApproved:
		t.applyPlacement(ctx, event, core.PlacementApproved)
	case core.EventExamRejected:
		t.applyPlacement(ctx, event, core.PlacementRejected)
	case core.EventPlacementCompleted:
		t.applyPlacement(ctx, event, core.PlacementCompleted)
	}
}

func (t *TrackerService) applyPlacement(ctx context.Context, event *core.Event, status string) {
	if err := t.progress.ApplyPlacement(ctx, event.WalletAddress, status, event.CreatedAt); err != nil {
		t.foldError(event, err)
	}
}

func (t *TrackerService) foldError(event *core.Event, err error) {
	t.log.WithError(err).WithFields(logrus.Fields{
		"kind":   event.Kind,
		"wallet": event.WalletAddress,
	}).Warn("failed to fold event into derived progress")
}

func (t *TrackerService) anomaly(event *core.Event, courseID, msg string) {
	t.log.WithFields(logrus.Fields{
		"kind":   event.Kind,
		"wallet": event.WalletAddress,
		"course": courseID,
	}).Error(msg)
}

func payloadString(payload map[string]any, key string) (string, bool) {
	if payload == nil {
		return "", false
	}
	value, ok := payload[key].(string)
	return value, ok && value != ""
}

// lessonPercent derives a course percent from lessonsCompleted/totalLessons
// when both are present. JSON numbers arrive as float64.
func lessonPercent(payload map[string]any) (decimal.Decimal, bool) {
	done, ok1 := payloadNumber(payload, "lessonsCompleted")
	total, ok2 := payloadNumber(payload, "totalLessons")
	if !ok1 || !ok2 || total <= 0 || done < 0 {
		return decimal.Zero, false
	}
	if done > total {
		done = total
	}
	percent := decimal.NewFromFloat(done).
		Div(decimal.NewFromFloat(total)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	return percent, true
}

func payloadNumber(payload map[string]any, key string) (float64, bool) {
	if payload == nil {
		return 0, false
	}
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
