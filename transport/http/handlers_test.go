package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnchain/gatehouse/adapters/events"
	"github.com/learnchain/gatehouse/adapters/store"
	"github.com/learnchain/gatehouse/adapters/tokenizer"
	"github.com/learnchain/gatehouse/adapters/verifier"
	"github.com/learnchain/gatehouse/core"
	"github.com/learnchain/gatehouse/ports"
	"github.com/learnchain/gatehouse/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type apiFixture struct {
	router     *gin.Engine
	identities ports.IdentityStore
	progress   *store.MemoryProgressStore
}

func newAPI(t *testing.T, identities ports.IdentityStore) apiFixture {
	t.Helper()
	log := testLogger()

	nonceStore := store.NewMemoryNonceStore()
	sessionStore := store.NewMemorySessionStore()
	eventStore := store.NewMemoryEventStore()
	progressStore := store.NewMemoryProgressStore()
	mirror := store.NewMemoryAdminMirror()
	publisher := events.NopPublisher{}
	tokens := tokenizer.NewJWTTokenizer("test-secret", time.Hour)

	nonces := service.NewNonceService(nonceStore, 5*time.Minute, log)
	admins := service.NewAdminResolver([]service.AdminLookup{
		service.IdentityAdminLookup{Store: identities},
		service.MirrorAdminLookup{Mirror: mirror},
	}, identities, mirror, 5*time.Minute, log)
	gate := service.NewGateService(nonces, identities, admins, verifier.NopVerifier{}, tokens, eventStore, publisher, log)
	sessions := service.NewSessionService(sessionStore, 45*time.Minute, log)
	tracker := service.NewTrackerService(eventStore, progressStore, publisher, log)

	handlers := NewHandlers(nonces, gate, sessions, tracker, log)
	return apiFixture{
		router:     SetupRouter(handlers, tokens),
		identities: identities,
		progress:   progressStore,
	}
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec.Code, decoded
}

func TestAPI_ConnectFlow(t *testing.T) {
	fx := newAPI(t, store.NewMemoryIdentityStore())
	wallet := "0x1111111111111111111111111111111111111111"

	// Challenge.
	code, body := doJSON(t, fx.router, http.MethodGet, "/auth/nonce?wallet="+wallet, nil, nil)
	require.Equal(t, http.StatusOK, code)
	nonce, _ := body["nonce"].(string)
	require.NotEmpty(t, nonce)
	assert.Contains(t, body["challengeMessage"], nonce)
	assert.Equal(t, wallet, body["walletAddress"])

	// Verify burns the nonce.
	code, body = doJSON(t, fx.router, http.MethodPost, "/auth/nonce/verify", gin.H{
		"walletAddress": wallet,
		"nonce":         nonce,
		"signature":     "0xsigned",
	}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["valid"])

	// A replay is rejected.
	code, body = doJSON(t, fx.router, http.MethodPost, "/auth/nonce/verify", gin.H{
		"walletAddress": wallet,
		"nonce":         nonce,
		"signature":     "0xsigned",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, core.ReasonAlreadyConsumed, body["reason"])

	// First connect creates the identity.
	code, body = doJSON(t, fx.router, http.MethodPost, "/wallet/connect", gin.H{"wallet": wallet}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["isNewUser"])
	assert.Equal(t, false, body["isAdmin"])
	token, _ := body["accessToken"].(string)
	require.NotEmpty(t, token)

	// Second connect is idempotent.
	code, body = doJSON(t, fx.router, http.MethodPost, "/wallet/connect", gin.H{"wallet": wallet}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["isNewUser"])

	// A session requires the minted token.
	code, _ = doJSON(t, fx.router, http.MethodPost, "/session", gin.H{}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = doJSON(t, fx.router, http.MethodPost, "/session", gin.H{}, map[string]string{
		"Authorization": "Bearer " + token,
	})
	require.Equal(t, http.StatusOK, code)
	sessionID, _ := body["sessionId"].(string)
	require.NotEmpty(t, sessionID)

	code, body = doJSON(t, fx.router, http.MethodPut, "/session/heartbeat", gin.H{"sessionId": sessionID}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])

	// Tracked course events land in derived progress.
	code, _ = doJSON(t, fx.router, http.MethodPost, "/track", gin.H{
		"kind":          string(core.EventCourseStart),
		"sessionId":     sessionID,
		"walletAddress": wallet,
		"payload":       gin.H{"courseId": "solidity-101"},
	}, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = doJSON(t, fx.router, http.MethodPost, "/track", gin.H{
		"kind":          string(core.EventCourseComplete),
		"sessionId":     sessionID,
		"walletAddress": wallet,
		"payload":       gin.H{"courseId": "solidity-101"},
	}, nil)
	require.Equal(t, http.StatusOK, code)

	progress, err := fx.progress.GetCourse(context.Background(), wallet, "solidity-101")
	require.NoError(t, err)
	require.NotNil(t, progress)
	assert.True(t, progress.Completed)
	assert.True(t, progress.Percent.Equal(decimal.NewFromInt(100)))

	// Ending twice succeeds both times.
	code, body = doJSON(t, fx.router, http.MethodPatch, "/session", gin.H{"sessionId": sessionID}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])

	code, _ = doJSON(t, fx.router, http.MethodPatch, "/session", gin.H{"sessionId": sessionID}, nil)
	assert.Equal(t, http.StatusOK, code)

	// Heartbeat against the ended session stays a 200 no-op.
	code, _ = doJSON(t, fx.router, http.MethodPut, "/session/heartbeat", gin.H{"sessionId": sessionID}, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestAPI_VerifyWallet(t *testing.T) {
	fx := newAPI(t, store.NewMemoryIdentityStore())
	wallet := "0x2222222222222222222222222222222222222222"

	code, body := doJSON(t, fx.router, http.MethodPost, "/wallet/verify", gin.H{"wallet": wallet}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, false, body["isAdmin"])
}

func TestAPI_BannedWallet(t *testing.T) {
	fx := newAPI(t, store.NewMemoryIdentityStore())
	wallet := "0x3333333333333333333333333333333333333333"
	ctx := context.Background()

	code, _ := doJSON(t, fx.router, http.MethodPost, "/wallet/connect", gin.H{"wallet": wallet}, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, fx.identities.SetBanned(ctx, wallet, true))

	code, body := doJSON(t, fx.router, http.MethodPost, "/wallet/connect", gin.H{"wallet": wallet}, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, true, body["banned"])

	code, body = doJSON(t, fx.router, http.MethodPost, "/wallet/verify", gin.H{"wallet": wallet}, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, core.ReasonBanned, body["reason"])
}

// downIdentityStore simulates a primary store outage.
type downIdentityStore struct{}

func (downIdentityStore) Get(ctx context.Context, address string) (*core.WalletIdentity, error) {
	return nil, core.ErrStoreUnavailable
}

func (downIdentityStore) Upsert(ctx context.Context, address string, at time.Time) (*core.WalletIdentity, bool, error) {
	return nil, false, core.ErrStoreUnavailable
}

func (downIdentityStore) SetAdmin(ctx context.Context, address string, isAdmin bool) error {
	return core.ErrStoreUnavailable
}

func (downIdentityStore) SetBanned(ctx context.Context, address string, banned bool) error {
	return core.ErrStoreUnavailable
}

func TestAPI_VerifyWalletFailsOpen(t *testing.T) {
	fx := newAPI(t, downIdentityStore{})
	wallet := "0x4444444444444444444444444444444444444444"

	code, body := doJSON(t, fx.router, http.MethodPost, "/wallet/verify", gin.H{"wallet": wallet}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, false, body["isAdmin"])
	assert.Equal(t, core.ReasonFailOpen, body["reason"])
}

func TestAPI_ConnectFailsOpen(t *testing.T) {
	fx := newAPI(t, downIdentityStore{})
	wallet := "0x5555555555555555555555555555555555555555"

	code, body := doJSON(t, fx.router, http.MethodPost, "/wallet/connect", gin.H{"wallet": wallet}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["connectionId"])
}

func TestAPI_TrackValidation(t *testing.T) {
	fx := newAPI(t, store.NewMemoryIdentityStore())

	code, _ := doJSON(t, fx.router, http.MethodPost, "/track", gin.H{"kind": "made_up"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = doJSON(t, fx.router, http.MethodPost, "/track", gin.H{"kind": string(core.EventLessonStart)}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = doJSON(t, fx.router, http.MethodPost, "/track", gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_NonceValidation(t *testing.T) {
	fx := newAPI(t, store.NewMemoryIdentityStore())

	code, _ := doJSON(t, fx.router, http.MethodGet, "/auth/nonce", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := doJSON(t, fx.router, http.MethodPost, "/auth/nonce/verify", gin.H{
		"walletAddress": "0x6666666666666666666666666666666666666666",
		"nonce":         "never-issued",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, false, body["valid"])
}

func TestAPI_Healthz(t *testing.T) {
	fx := newAPI(t, store.NewMemoryIdentityStore())

	code, body := doJSON(t, fx.router, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}
