package store

import (
	"context"
	"database/sql"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/learnchain/gatehouse/core"
)

var testDB *bun.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("gatehouse"),
		postgres.WithUsername("gatehouse"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Printf("failed to start container: %s", err)
		return
	}

	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable", "application_name=test")
	if err != nil {
		log.Printf("failed to get connection string: %v", err)
		return
	}

	connector := pgdriver.NewConnector(pgdriver.WithDSN(connStr))
	sqlDB := sql.OpenDB(connector)
	testDB = bun.NewDB(sqlDB, pgdialect.New())

	if err := sqlDB.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping db: %v", err)
	}

	if err := CreateTables(ctx, testDB); err != nil {
		testDB.Close()
		log.Fatalf("failed to create tables: %v", err)
	}

	code := m.Run()

	testDB.Close()

	os.Exit(code)
}

func truncate(t *testing.T, tables ...string) {
	t.Helper()
	for _, table := range tables {
		_, err := testDB.ExecContext(context.Background(), `TRUNCATE TABLE `+table+` RESTART IDENTITY CASCADE`)
		require.NoError(t, err)
	}
}

func Test_IdentityUpsert(t *testing.T) {
	t.Cleanup(func() { truncate(t, "wallet_identities") })

	ctx := context.Background()
	repo := NewBunIdentityStore(testDB)
	wallet := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	identity, created, err := repo.Upsert(ctx, wallet, time.Now())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, wallet, identity.Address)
	assert.False(t, identity.IsAdmin)
	assert.False(t, identity.IsBanned)

	_, created, err = repo.Upsert(ctx, wallet, time.Now())
	require.NoError(t, err)
	assert.False(t, created)
}

func Test_IdentityUpsertConcurrent(t *testing.T) {
	t.Cleanup(func() { truncate(t, "wallet_identities") })

	ctx := context.Background()
	repo := NewBunIdentityStore(testDB)
	wallet := "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

	const workers = 50
	results := make(chan bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := repo.Upsert(ctx, wallet, time.Now())
			assert.NoError(t, err)
			results <- created
		}()
	}
	wg.Wait()
	close(results)

	createdCount := 0
	for created := range results {
		if created {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount, "exactly one caller observes the insert")
}

func Test_IdentityFlags(t *testing.T) {
	t.Cleanup(func() { truncate(t, "wallet_identities") })

	ctx := context.Background()
	repo := NewBunIdentityStore(testDB)
	wallet := "0xcccccccccccccccccccccccccccccccccccccccc"

	err := repo.SetAdmin(ctx, wallet, true)
	assert.ErrorIs(t, err, core.ErrIdentityNotFound)

	_, _, err = repo.Upsert(ctx, wallet, time.Now())
	require.NoError(t, err)

	require.NoError(t, repo.SetAdmin(ctx, wallet, true))
	require.NoError(t, repo.SetBanned(ctx, wallet, true))

	identity, err := repo.Get(ctx, wallet)
	require.NoError(t, err)
	assert.True(t, identity.IsAdmin)
	assert.True(t, identity.IsBanned)

	_, err = repo.Get(ctx, "0x0000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, core.ErrIdentityNotFound)
}

func Test_SessionLifecycle(t *testing.T) {
	t.Cleanup(func() { truncate(t, "sessions") })

	ctx := context.Background()
	repo := NewBunSessionStore(testDB)
	started := time.Now().UTC().Truncate(time.Millisecond)

	session := &core.Session{
		ID:              "sess-1",
		WalletAddress:   "0xdddddddddddddddddddddddddddddddddddddddd",
		StartedAt:       started,
		LastHeartbeatAt: started,
	}
	require.NoError(t, repo.Create(ctx, session))

	alive, err := repo.Heartbeat(ctx, "sess-1", started.Add(10*time.Minute))
	require.NoError(t, err)
	assert.True(t, alive)

	// A late heartbeat never moves the watermark backwards.
	alive, err = repo.Heartbeat(ctx, "sess-1", started.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, alive)

	got, err := repo.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, got.LastHeartbeatAt.Equal(started.Add(10*time.Minute)))

	endedAt := started.Add(20 * time.Minute)
	require.NoError(t, repo.End(ctx, "sess-1", endedAt))
	require.NoError(t, repo.End(ctx, "sess-1", endedAt.Add(time.Hour)))

	got, err = repo.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	assert.True(t, got.EndedAt.Equal(endedAt))

	alive, err = repo.Heartbeat(ctx, "sess-1", endedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, alive)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func Test_EventAppend(t *testing.T) {
	t.Cleanup(func() { truncate(t, "events") })

	ctx := context.Background()
	repo := NewBunEventStore(testDB)

	event := &core.Event{
		Kind:          core.EventPageView,
		SessionID:     "sess-1",
		WalletAddress: "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee",
		Path:          "/courses",
		Payload:       map[string]any{"referrer": "home"},
		CreatedAt:     time.Now(),
	}
	require.NoError(t, repo.Append(ctx, event))
	assert.NotZero(t, event.ID)

	second := &core.Event{Kind: core.EventCustom, CreatedAt: time.Now()}
	require.NoError(t, repo.Append(ctx, second))
	assert.Greater(t, second.ID, event.ID)
}

func Test_CourseProgressFold(t *testing.T) {
	t.Cleanup(func() { truncate(t, "course_progress") })

	ctx := context.Background()
	repo := NewBunProgressStore(testDB)
	wallet := "0xffffffffffffffffffffffffffffffffffffffff"
	now := time.Now()

	started, err := repo.StartCourse(ctx, wallet, "c1", now)
	require.NoError(t, err)
	assert.True(t, started)

	started, err = repo.StartCourse(ctx, wallet, "c1", now)
	require.NoError(t, err)
	assert.False(t, started)

	applied, err := repo.AdvanceCourse(ctx, wallet, "c1", decimal.NewFromInt(40), false, now)
	require.NoError(t, err)
	assert.True(t, applied)

	// Percent only moves forward.
	applied, err = repo.AdvanceCourse(ctx, wallet, "c1", decimal.NewFromInt(25), false, now)
	require.NoError(t, err)
	assert.True(t, applied)

	progress, err := repo.GetCourse(ctx, wallet, "c1")
	require.NoError(t, err)
	require.NotNil(t, progress)
	assert.True(t, progress.Percent.Equal(decimal.NewFromInt(40)))

	applied, err = repo.AdvanceCourse(ctx, wallet, "c1", core.PercentComplete, true, now)
	require.NoError(t, err)
	assert.True(t, applied)

	// Completion is terminal.
	applied, err = repo.AdvanceCourse(ctx, wallet, "c1", decimal.NewFromInt(10), false, now)
	require.NoError(t, err)
	assert.False(t, applied)

	progress, err = repo.GetCourse(ctx, wallet, "c1")
	require.NoError(t, err)
	assert.True(t, progress.Completed)
	assert.True(t, progress.Percent.Equal(core.PercentComplete))

	missing, err := repo.GetCourse(ctx, wallet, "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func Test_PlacementProgress(t *testing.T) {
	t.Cleanup(func() { truncate(t, "placement_progress") })

	ctx := context.Background()
	repo := NewBunProgressStore(testDB)
	wallet := "0x1212121212121212121212121212121212121212"
	now := time.Now()

	require.NoError(t, repo.ApplyPlacement(ctx, wallet, core.PlacementStarted, now))
	require.NoError(t, repo.ApplyPlacement(ctx, wallet, core.PlacementSubmitted, now))

	// A retried "started" never regresses a later status.
	require.NoError(t, repo.ApplyPlacement(ctx, wallet, core.PlacementStarted, now))

	placement, err := repo.GetPlacement(ctx, wallet)
	require.NoError(t, err)
	require.NotNil(t, placement)
	assert.Equal(t, core.PlacementSubmitted, placement.Status)

	require.NoError(t, repo.ApplyPlacement(ctx, wallet, core.PlacementCompleted, now))
	placement, err = repo.GetPlacement(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, core.PlacementCompleted, placement.Status)

	missing, err := repo.GetPlacement(ctx, "0x3434343434343434343434343434343434343434")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
