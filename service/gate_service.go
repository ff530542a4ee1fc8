package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/learnchain/gatehouse/core"
	"github.com/learnchain/gatehouse/ports"
)

// VerifyResult is the outcome of a read-only wallet check. FailOpen marks an
// answer that was assumed rather than verified because a dependency was down.
type VerifyResult struct {
	Valid    bool
	IsAdmin  bool
	FailOpen bool
	Reason   string
}

// ConnectResult is the outcome of a wallet connection attempt.
type ConnectResult struct {
	Allowed      bool
	Banned       bool
	IsAdmin      bool
	IsNewUser    bool
	FailOpen     bool
	Reason       string
	ConnectionID string
	AccessToken  string
}

// GateService is the ban/allow decision point for every connection attempt.
//
// Failure policy, stated once so nobody mistakes it for an oversight: when the
// backing store is unreachable during the ban/admin/upsert steps the gate
// ADMITS the wallet as a non-admin and logs loudly. Locking every legitimate
// user out of a low-stakes community platform on a transient outage is worse
// than briefly admitting an unverified one. Nonce consumption is the opposite:
// it always fails closed.
type GateService struct {
	nonces     *NonceService
	identities ports.IdentityStore
	admins     *AdminResolver
	verifier   ports.Verifier
	tokens     ports.Tokenizer
	events     ports.EventStore
	publisher  ports.EventPublisher
	log        *logrus.Logger
	now        func() time.Time
}

func NewGateService(
	nonces *NonceService,
	identities ports.IdentityStore,
	admins *AdminResolver,
	verifier ports.Verifier,
	tokens ports.Tokenizer,
	events ports.EventStore,
	publisher ports.EventPublisher,
	log *logrus.Logger,
) *GateService {
	return &GateService{
		nonces:     nonces,
		identities: identities,
		admins:     admins,
		verifier:   verifier,
		tokens:     tokens,
		events:     events,
		publisher:  publisher,
		log:        log,
		now:        time.Now,
	}
}

// VerifyChallenge checks the signature over the challenge message and burns
// the nonce. Signature first: a failed signature must not cost the caller
// their nonce. No identity record is touched on rejection.
func (g *GateService) VerifyChallenge(ctx context.Context, wallet, nonce, signature string) (core.NonceResult, error) {
	wallet = core.NormalizeAddress(wallet)
	if wallet == "" || nonce == "" {
		return core.NonceResult{Reason: core.ReasonNotFound}, core.ErrInvalidAddress
	}

	message := core.ChallengeMessage(wallet, nonce, g.now())
	if err := g.verifier.Verify(wallet, message, signature); err != nil {
		g.log.WithFields(logrus.Fields{
			"wallet": wallet,
			"reason": core.ReasonBadSignature,
		}).Info("challenge signature rejected")
		return core.NonceResult{Reason: core.ReasonBadSignature}, nil
	}

	return g.nonces.VerifyAndConsume(ctx, wallet, nonce)
}

// Verify is the read-only "is this wallet allowed in, and is it an admin"
// check. Banned wallets are the only invalid answer; a store outage fails
// open.
func (g *GateService) Verify(ctx context.Context, wallet string) VerifyResult {
	wallet = core.NormalizeAddress(wallet)

	identity, err := g.identities.Get(ctx, wallet)
	switch {
	case err == nil && identity.IsBanned:
		return VerifyResult{Reason: core.ReasonBanned}
	case err != nil && err != core.ErrIdentityNotFound:
		g.log.WithError(err).WithFields(logrus.Fields{
			"wallet":    wallet,
			"fail_open": true,
		}).Warn("identity store unavailable during wallet verify, admitting as non-admin")
		return VerifyResult{Valid: true, FailOpen: true, Reason: core.ReasonFailOpen}
	}

	return VerifyResult{
		Valid:   true,
		IsAdmin: g.admins.IsAdmin(ctx, wallet),
		Reason:  core.ReasonOK,
	}
}

// Connect admits a wallet onto the platform: ban check, admin resolution,
// idempotent identity upsert, access token. The ban check runs before
// anything else that could mutate state; a stale admin flag never overrides
// a ban.
func (g *GateService) Connect(ctx context.Context, wallet, provider string, metadata map[string]any) (ConnectResult, error) {
	wallet = core.NormalizeAddress(wallet)
	if wallet == "" {
		return ConnectResult{}, core.ErrInvalidAddress
	}

	now := g.now()

	identity, err := g.identities.Get(ctx, wallet)
	if err != nil && err != core.ErrIdentityNotFound {
		return g.admitFailOpen(ctx, wallet, err), nil
	}
	if err == nil && identity.IsBanned {
		result := ConnectResult{Banned: true, Reason: core.ReasonBanned}
		g.recordAdmission(ctx, wallet, provider, metadata, result)
		return result, nil
	}

	isAdmin := g.admins.IsAdmin(ctx, wallet)

	_, created, err := g.identities.Upsert(ctx, wallet, now)
	if err != nil {
		return g.admitFailOpen(ctx, wallet, err), nil
	}

	result := ConnectResult{
		Allowed:      true,
		IsAdmin:      isAdmin,
		IsNewUser:    created,
		Reason:       core.ReasonOK,
		ConnectionID: uuid.New().String(),
	}

	token, err := g.tokens.Mint(wallet, now)
	if err != nil {
		g.log.WithError(err).WithField("wallet", wallet).Error("failed to mint access token")
	} else {
		result.AccessToken = token
	}

	g.recordAdmission(ctx, wallet, provider, metadata, result)
	return result, nil
}

// admitFailOpen admits the wallet as a non-admin and logs loudly. See the
// failure policy on GateService.
func (g *GateService) admitFailOpen(ctx context.Context, wallet string, cause error) ConnectResult {
	g.log.WithError(cause).WithFields(logrus.Fields{
		"wallet":    wallet,
		"fail_open": true,
	}).Warn("identity store unavailable during connect, admitting as non-admin")

	result := ConnectResult{
		Allowed:      true,
		FailOpen:     true,
		Reason:       core.ReasonFailOpen,
		ConnectionID: uuid.New().String(),
	}

	if token, err := g.tokens.Mint(wallet, g.now()); err == nil {
		result.AccessToken = token
	}

	g.publishAudit(ctx, wallet, result)
	return result
}

// recordAdmission appends the local audit event and publishes the decision.
// Both are best effort; admission outcomes never depend on them.
func (g *GateService) recordAdmission(ctx context.Context, wallet, provider string, metadata map[string]any, result ConnectResult) {
	payload := map[string]any{
		"provider": provider,
		"allowed":  result.Allowed,
	}
	for k, v := range metadata {
		payload[k] = v
	}
	if result.Banned {
		payload["rejected"] = true
		payload["reason"] = result.Reason
	}

	event := &core.Event{
		Kind:          core.EventWalletConnect,
		WalletAddress: wallet,
		Payload:       payload,
		CreatedAt:     g.now(),
	}
	if err := g.events.Append(ctx, event); err != nil {
		g.log.WithError(err).WithField("wallet", wallet).Warn("failed to append admission event")
	}

	g.publishAudit(ctx, wallet, result)
}

func (g *GateService) publishAudit(ctx context.Context, wallet string, result ConnectResult) {
	audit := ports.AdmissionAudit{
		WalletAddress: wallet,
		Allowed:       result.Allowed,
		IsAdmin:       result.IsAdmin,
		FailOpen:      result.FailOpen,
		Reason:        result.Reason,
	}
	if err := g.publisher.PublishAudit(ctx, audit); err != nil {
		g.log.WithError(err).WithField("wallet", wallet).Warn("failed to publish admission audit")
	}
}
