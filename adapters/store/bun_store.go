package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/learnchain/gatehouse/core"
)

// Postgres persistence for identities, sessions, events and derived progress,
// one adapter per port. All race-sensitive mutations are single conditional
// statements; nothing here reads, checks in application code, then writes.

// CreateTables creates the schema if it does not exist yet. Used by local
// bootstrap and tests.
func CreateTables(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*core.WalletIdentity)(nil),
		(*core.Session)(nil),
		(*core.Event)(nil),
		(*core.CourseProgress)(nil),
		(*core.PlacementProgress)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return errors.Wrapf(err, "gatehouseStore.CreateTables %T", model)
		}
	}
	return nil
}

// BunIdentityStore implements ports.IdentityStore.
type BunIdentityStore struct {
	db *bun.DB
}

func NewBunIdentityStore(db *bun.DB) *BunIdentityStore {
	return &BunIdentityStore{db: db}
}

func (s *BunIdentityStore) Get(ctx context.Context, address string) (*core.WalletIdentity, error) {
	identity := new(core.WalletIdentity)
	err := s.db.NewSelect().Model(identity).Where("address = ?", address).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrIdentityNotFound
		}
		return nil, errors.Wrap(err, "identityStore.Get.Scan")
	}
	return identity, nil
}

// Upsert inserts the identity on first sight and refreshes activity stamps
// otherwise. ON CONFLICT DO NOTHING plus rows-affected makes first-sight
// detection safe under concurrent calls for the same address.
func (s *BunIdentityStore) Upsert(ctx context.Context, address string, at time.Time) (*core.WalletIdentity, bool, error) {
	identity := &core.WalletIdentity{
		Address:        address,
		FirstSeenAt:    at,
		LastActiveAt:   at,
		LastVerifiedAt: at,
	}

	res, err := s.db.NewInsert().
		Model(identity).
		On("CONFLICT (address) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, false, errors.Wrap(err, "identityStore.Upsert.Insert")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, false, errors.Wrap(err, "identityStore.Upsert.RowsAffected")
	}
	if rows > 0 {
		return identity, true, nil
	}

	_, err = s.db.NewUpdate().
		Model((*core.WalletIdentity)(nil)).
		Set("last_active_at = ?", at).
		Set("last_verified_at = ?", at).
		Where("address = ?", address).
		Exec(ctx)
	if err != nil {
		return nil, false, errors.Wrap(err, "identityStore.Upsert.Refresh")
	}

	existing, err := s.Get(ctx, address)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *BunIdentityStore) SetAdmin(ctx context.Context, address string, isAdmin bool) error {
	res, err := s.db.NewUpdate().
		Model((*core.WalletIdentity)(nil)).
		Set("is_admin = ?", isAdmin).
		Where("address = ?", address).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "identityStore.SetAdmin.Update")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return core.ErrIdentityNotFound
	}
	return nil
}

func (s *BunIdentityStore) SetBanned(ctx context.Context, address string, banned bool) error {
	res, err := s.db.NewUpdate().
		Model((*core.WalletIdentity)(nil)).
		Set("is_banned = ?", banned).
		Where("address = ?", address).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "identityStore.SetBanned.Update")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return core.ErrIdentityNotFound
	}
	return nil
}

// BunSessionStore implements ports.SessionStore.
type BunSessionStore struct {
	db *bun.DB
}

func NewBunSessionStore(db *bun.DB) *BunSessionStore {
	return &BunSessionStore{db: db}
}

func (s *BunSessionStore) Create(ctx context.Context, session *core.Session) error {
	_, err := s.db.NewInsert().Model(session).Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "sessionStore.Create.Insert")
	}
	return nil
}

func (s *BunSessionStore) Get(ctx context.Context, id string) (*core.Session, error) {
	session := new(core.Session)
	err := s.db.NewSelect().Model(session).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "sessionStore.Get.Scan")
	}
	return session, nil
}

// Heartbeat advances last_heartbeat_at monotonically and only while the
// session is open. GREATEST keeps an out-of-order heartbeat from regressing
// the stamp.
func (s *BunSessionStore) Heartbeat(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*core.Session)(nil)).
		Set("last_heartbeat_at = GREATEST(last_heartbeat_at, ?)", at).
		Where("id = ? AND ended_at IS NULL", id).
		Exec(ctx)
	if err != nil {
		return false, errors.Wrap(err, "sessionStore.Heartbeat.Update")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "sessionStore.Heartbeat.RowsAffected")
	}
	return rows > 0, nil
}

// End is idempotent; ending an already-ended session matches zero rows and
// that is a success.
func (s *BunSessionStore) End(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.NewUpdate().
		Model((*core.Session)(nil)).
		Set("ended_at = ?", at).
		Where("id = ? AND ended_at IS NULL", id).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "sessionStore.End.Update")
	}
	return nil
}

// BunEventStore implements ports.EventStore.
type BunEventStore struct {
	db *bun.DB
}

func NewBunEventStore(db *bun.DB) *BunEventStore {
	return &BunEventStore{db: db}
}

func (s *BunEventStore) Append(ctx context.Context, event *core.Event) error {
	_, err := s.db.NewInsert().Model(event).Returning("id").Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "eventStore.Append.Insert")
	}
	return nil
}

// BunProgressStore implements ports.ProgressStore.
type BunProgressStore struct {
	db *bun.DB
}

func NewBunProgressStore(db *bun.DB) *BunProgressStore {
	return &BunProgressStore{db: db}
}

func (s *BunProgressStore) StartCourse(ctx context.Context, wallet, courseID string, at time.Time) (bool, error) {
	progress := &core.CourseProgress{
		WalletAddress: wallet,
		CourseID:      courseID,
		Percent:       decimal.Zero,
		StartedAt:     at,
		UpdatedAt:     at,
	}

	res, err := s.db.NewInsert().
		Model(progress).
		On("CONFLICT (wallet_address, course_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, errors.Wrap(err, "progressStore.StartCourse.Insert")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "progressStore.StartCourse.RowsAffected")
	}
	return rows > 0, nil
}

// AdvanceCourse upserts progress with the conservative guard in the statement
// itself: a completed record is never touched, and percent never decreases.
func (s *BunProgressStore) AdvanceCourse(ctx context.Context, wallet, courseID string, percent decimal.Decimal, completed bool, at time.Time) (bool, error) {
	progress := &core.CourseProgress{
		WalletAddress: wallet,
		CourseID:      courseID,
		Percent:       percent,
		Completed:     completed,
		StartedAt:     at,
		UpdatedAt:     at,
	}

	res, err := s.db.NewInsert().
		Model(progress).
		On("CONFLICT (wallet_address, course_id) DO UPDATE").
		Set("percent = GREATEST(course_progress.percent, EXCLUDED.percent)").
		Set("completed = EXCLUDED.completed").
		Set("updated_at = EXCLUDED.updated_at").
		Where("course_progress.completed = false").
		Exec(ctx)
	if err != nil {
		return false, errors.Wrap(err, "progressStore.AdvanceCourse.Upsert")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "progressStore.AdvanceCourse.RowsAffected")
	}
	return rows > 0, nil
}

func (s *BunProgressStore) GetCourse(ctx context.Context, wallet, courseID string) (*core.CourseProgress, error) {
	progress := new(core.CourseProgress)
	err := s.db.NewSelect().
		Model(progress).
		Where("wallet_address = ? AND course_id = ?", wallet, courseID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "progressStore.GetCourse.Scan")
	}
	return progress, nil
}

func (s *BunProgressStore) ApplyPlacement(ctx context.Context, wallet, status string, at time.Time) error {
	progress := &core.PlacementProgress{
		WalletAddress: wallet,
		Status:        status,
		StartedAt:     at,
		UpdatedAt:     at,
	}

	_, err := s.db.NewInsert().
		Model(progress).
		On("CONFLICT (wallet_address) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("updated_at = EXCLUDED.updated_at").
		Where("NOT (EXCLUDED.status = ? AND placement_progress.status <> ?)", core.PlacementStarted, core.PlacementStarted).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "progressStore.ApplyPlacement.Upsert")
	}
	return nil
}

func (s *BunProgressStore) GetPlacement(ctx context.Context, wallet string) (*core.PlacementProgress, error) {
	progress := new(core.PlacementProgress)
	err := s.db.NewSelect().Model(progress).Where("wallet_address = ?", wallet).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "progressStore.GetPlacement.Scan")
	}
	return progress, nil
}
