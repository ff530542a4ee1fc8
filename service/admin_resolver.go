package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/learnchain/gatehouse/core"
	"github.com/learnchain/gatehouse/ports"
)

// AdminLookup is one resolution strategy. A returned error means the source
// was unavailable, not that the wallet is a non-admin.
type AdminLookup interface {
	Name() string
	Lookup(ctx context.Context, wallet string) (bool, error)
}

// cacheEntry memoizes one resolution. An entry older than the TTL is treated
// as absent on the fast path but is still the answer of last resort when
// every lookup is down.
type cacheEntry struct {
	isAdmin    bool
	resolvedAt time.Time
}

// AdminResolver answers "is this wallet an admin" without ever failing the
// caller. It tries an ordered list of lookups and falls back to the stale
// cache, then to false. The cache is the only shared mutable state in the
// process and is mutex guarded.
type AdminResolver struct {
	lookups []AdminLookup
	writer  ports.IdentityStore
	mirror  ports.AdminMirror
	ttl     time.Duration
	log     *logrus.Logger
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

func NewAdminResolver(lookups []AdminLookup, writer ports.IdentityStore, mirror ports.AdminMirror, ttl time.Duration, log *logrus.Logger) *AdminResolver {
	return &AdminResolver{
		lookups: lookups,
		writer:  writer,
		mirror:  mirror,
		ttl:     ttl,
		log:     log,
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
	}
}

// IsAdmin resolves admin status for read-only privilege checks. It never
// returns an error: when every lookup is unavailable it serves the last
// cached value regardless of age, else false.
func (r *AdminResolver) IsAdmin(ctx context.Context, wallet string) bool {
	wallet = core.NormalizeAddress(wallet)

	if entry, ok := r.cached(wallet); ok && r.now().Sub(entry.resolvedAt) < r.ttl {
		return entry.isAdmin
	}

	isAdmin, err := r.resolve(ctx, wallet)
	if err == nil {
		return isAdmin
	}

	if entry, ok := r.cached(wallet); ok {
		r.log.WithFields(logrus.Fields{
			"wallet": wallet,
			"age":    r.now().Sub(entry.resolvedAt).String(),
		}).Warn("admin lookups unavailable, serving stale cached answer")
		return entry.isAdmin
	}

	r.log.WithField("wallet", wallet).Warn("admin lookups unavailable and no cached answer, assuming non-admin")
	return false
}

// IsAdminStrict re-resolves without consulting the cache. Write operations
// gated on admin status use this; it surfaces unavailability instead of
// guessing.
func (r *AdminResolver) IsAdminStrict(ctx context.Context, wallet string) (bool, error) {
	return r.resolve(ctx, core.NormalizeAddress(wallet))
}

// SetAdmin mutates the admin flag through the identity store, synchronously
// evicts the cache entry and refreshes the mirror.
func (r *AdminResolver) SetAdmin(ctx context.Context, wallet string, isAdmin bool) error {
	wallet = core.NormalizeAddress(wallet)

	if err := r.writer.SetAdmin(ctx, wallet, isAdmin); err != nil {
		return err
	}
	r.Invalidate(wallet)

	if r.mirror != nil {
		if err := r.mirror.SetAdmin(ctx, wallet, isAdmin); err != nil {
			r.log.WithError(err).WithField("wallet", wallet).Warn("failed to refresh admin mirror")
		}
	}
	return nil
}

// Invalidate drops the cached entry for the wallet.
func (r *AdminResolver) Invalidate(wallet string) {
	wallet = core.NormalizeAddress(wallet)

	r.mu.Lock()
	delete(r.cache, wallet)
	r.mu.Unlock()
}

func (r *AdminResolver) cached(wallet string) (cacheEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.cache[wallet]
	return entry, ok
}

// resolve walks the lookup chain in order. Any successful answer refreshes
// the cache unconditionally.
func (r *AdminResolver) resolve(ctx context.Context, wallet string) (bool, error) {
	var lastErr error
	for _, lookup := range r.lookups {
		isAdmin, err := lookup.Lookup(ctx, wallet)
		if err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{
				"wallet": wallet,
				"lookup": lookup.Name(),
			}).Warn("admin lookup unavailable")
			lastErr = err
			continue
		}

		r.mu.Lock()
		r.cache[wallet] = cacheEntry{isAdmin: isAdmin, resolvedAt: r.now()}
		r.mu.Unlock()
		return isAdmin, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no admin lookups configured")
	}
	return false, lastErr
}

// IdentityAdminLookup resolves through the primary identity store. A missing
// identity is a resolved non-admin, not an unavailable source.
type IdentityAdminLookup struct {
	Store ports.IdentityStore
}

func (l IdentityAdminLookup) Name() string { return "identity-store" }

func (l IdentityAdminLookup) Lookup(ctx context.Context, wallet string) (bool, error) {
	identity, err := l.Store.Get(ctx, wallet)
	if err != nil {
		if errors.Is(err, core.ErrIdentityNotFound) {
			return false, nil
		}
		return false, err
	}
	return identity.IsAdmin, nil
}

// MirrorAdminLookup resolves through the secondary admin mirror.
type MirrorAdminLookup struct {
	Mirror ports.AdminMirror
}

func (l MirrorAdminLookup) Name() string { return "admin-mirror" }

func (l MirrorAdminLookup) Lookup(ctx context.Context, wallet string) (bool, error) {
	return l.Mirror.IsAdmin(ctx, wallet)
}
