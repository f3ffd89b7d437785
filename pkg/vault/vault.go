// Package vault implements the Vault Service: the orchestrating component
// that wires the envelope codec, store, policy engine, lease manager, and
// access resolver into the public credential-lifecycle API, under a
// per-store write lock.
package vault

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/credvault/pkg/lease"
	"github.com/Mindburn-Labs/credvault/pkg/policy"
	"github.com/Mindburn-Labs/credvault/pkg/store"
	"github.com/Mindburn-Labs/credvault/pkg/vaultevents"
)

// SystemAgentID is the reserved agent identity used by the Channel Token
// Helper and Paste Import for operations that are not performed on behalf
// of any particular caller.
const SystemAgentID = "SYSTEM"

// Option configures a Service at construction time.
type Option func(*Service)

// WithBroadcaster overrides the default LogBroadcaster.
func WithBroadcaster(b vaultevents.Broadcaster) Option {
	return func(s *Service) { s.events = b }
}

// WithClock overrides the wall clock, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithTickInterval overrides the lease-expiry tick's period. A value <= 0
// disables the automatic tick entirely; no background goroutine then marks
// expired leases as revoked (checkouts still reject expired leases).
func WithTickInterval(d time.Duration) Option {
	return func(s *Service) { s.tickInterval = d }
}

// WithIDGenerator overrides how new record IDs are minted, for tests that
// want deterministic IDs.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// WithRateLimitStore overrides the policy evaluator's rate_limit backend.
// The default is an in-process MemoryRateLimitStore; pass a
// policy.RedisRateLimitStore to share rate-limit counters across multiple
// instances of the embedding process running against the same store.
func WithRateLimitStore(rl policy.RateLimitStore) Option {
	return func(s *Service) { s.policy.RateLimits = rl }
}

// WithRateLimitDefaults sets the rate_limit threshold the policy evaluator
// falls back to for a checkout whose credential rules don't themselves
// specify one, letting an operator-wide baseline (e.g. from a bootstrap
// profile) apply without editing every credential's rule text.
func WithRateLimitDefaults(d policy.RateLimitDefaults) Option {
	return func(s *Service) { s.policy.DefaultRateLimit = d }
}

// WithDefaultRuleText seeds every credential minted by Create with the rule
// text fn returns for the credential's category (compiled the same way
// AddRule compiles rule text added later), so an operator-configured
// bootstrap profile's default rules apply without a separate AddRule call
// per credential.
func WithDefaultRuleText(fn func(category string) []string) Option {
	return func(s *Service) { s.defaultRuleText = fn }
}

// Service is the running vault: one open store file, its policy evaluator,
// its event sink, and its lease-expiry ticker.
type Service struct {
	store  *store.Store
	events vaultevents.Broadcaster
	policy *policy.Evaluator
	clock  func() time.Time
	newID  func() string

	tickInterval    time.Duration
	ticker          *lease.Ticker
	defaultRuleText func(category string) []string
}

// Open performs the `init` operation: opens (or creates) the store file,
// verifies the master key, and starts the lease-expiry tick. A WRONG_KEY or
// CORRUPT failure here is fatal — the returned error's Kind reflects which,
// and no Service is returned.
func Open(path string, passphrase []byte, opts ...Option) (*Service, error) {
	st, err := store.Open(path, passphrase)
	if err != nil {
		return nil, translateOpenErr(err)
	}

	s := &Service{
		store:        st,
		events:       vaultevents.NewLogBroadcaster(),
		policy:       policy.NewEvaluator(),
		clock:        time.Now,
		newID:        func() string { return uuid.New().String() },
		tickInterval: lease.DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.tickInterval > 0 {
		s.ticker = lease.NewTicker(s.tickInterval, s.tickExpireLeases)
	}

	return s, nil
}

// Close cancels the expiry tick, flushes nothing further (writes are
// already durable per-operation), and drops the in-memory store File. The
// store's own copy of the passphrase is not cleared.
func (s *Service) Close() error {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.store.Lock()
	defer s.store.Unlock()
	s.store.File = nil
	return nil
}

func (s *Service) nowMs() int64 { return s.clock().UnixMilli() }

func (s *Service) leaseClock() lease.Clock { return s.clock }

// tickExpireLeases is the expiry tick's body: it takes the write lock only
// for the scan-and-mutate, then releases it before the next sleep.
func (s *Service) tickExpireLeases() {
	s.store.Lock()
	defer s.store.Unlock()
	if s.store.File == nil {
		return
	}
	any := false
	for i := range s.store.File.Credentials {
		if lease.ExpireAll(s.store.File.Credentials[i].ActiveLeases, s.leaseClock()) > 0 {
			any = true
		}
	}
	if any {
		_ = s.store.Save()
	}
}

// CompactLeases prunes revoked leases older than olderThan across every
// credential. Not run automatically; the spec leaves compaction as an
// implementation-optional detail, so callers invoke this explicitly (e.g.
// from a maintenance cron); nothing in this repository calls it.
func (s *Service) CompactLeases(olderThan time.Duration) (pruned int) {
	s.store.Lock()
	defer s.store.Unlock()

	cutoff := s.clock().Add(-olderThan).UnixMilli()
	for i := range s.store.File.Credentials {
		cred := &s.store.File.Credentials[i]
		kept := cred.ActiveLeases[:0]
		for _, l := range cred.ActiveLeases {
			if l.RevokedAtMs != 0 && l.RevokedAtMs < cutoff {
				pruned++
				continue
			}
			kept = append(kept, l)
		}
		cred.ActiveLeases = kept
	}
	if pruned > 0 {
		_ = s.store.Save()
	}
	return pruned
}

func translateOpenErr(err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrWrongKey) {
		return errWrongKey()
	}
	if errors.Is(err, store.ErrCorruptFile) || errors.Is(err, store.ErrUnsupportedVersion) {
		return errCorrupt(err.Error())
	}
	return errIO("open", err)
}
