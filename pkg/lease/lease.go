// Package lease implements the time- and use-bounded grant lifecycle:
// creation, revocation by lease or task, consumption on checkout, and the
// periodic expiry tick. It operates purely on the store.Lease slices handed
// to it by the vault service; it never touches disk itself.
package lease

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/credvault/pkg/store"
)

// DefaultTTL is used when a caller omits ttlMs on Create.
const DefaultTTL = time.Hour

// DefaultTickInterval is the expiry tick's default period.
const DefaultTickInterval = 60 * time.Second

// Clock is injected so tests can control "now" deterministically, matching
// the clock-injection pattern used throughout the rest of this tree.
type Clock func() time.Time

// CreateInput carries the parameters for a new lease.
type CreateInput struct {
	CredentialID string
	TaskID       string
	AgentID      string
	TTLMs        int64 // 0 means DefaultTTL
	MaxUses      int   // 0 means unbounded
}

// New constructs a Lease with a fresh random ID and the given clock's
// current time as the basis for grantedAtMs/expiresAtMs.
func New(in CreateInput, clock Clock) (store.Lease, error) {
	if in.CredentialID == "" || in.AgentID == "" || in.TaskID == "" {
		return store.Lease{}, fmt.Errorf("lease: credentialId, taskId, and agentId are required")
	}

	id, err := randomLeaseID()
	if err != nil {
		return store.Lease{}, err
	}

	ttl := time.Duration(in.TTLMs) * time.Millisecond
	if in.TTLMs <= 0 {
		ttl = DefaultTTL
	}

	now := clock()
	l := store.Lease{
		LeaseID:      id,
		TaskID:       in.TaskID,
		AgentID:      in.AgentID,
		CredentialID: in.CredentialID,
		GrantedAtMs:  now.UnixMilli(),
		ExpiresAtMs:  now.Add(ttl).UnixMilli(),
	}
	if in.MaxUses > 0 {
		l.HasMaxUses = true
		l.MaxUses = in.MaxUses
		l.UsesRemaining = in.MaxUses
	}
	return l, nil
}

func randomLeaseID() (string, error) {
	buf := make([]byte, 16) // 128 bits
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("lease: generate id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// RevokeByID sets revokedAtMs on the matching lease within leases, if not
// already revoked. Idempotent: revoking an already-revoked lease is a no-op
// that still reports true (the lease exists and is revoked either way).
func RevokeByID(leases []store.Lease, leaseID string, clock Clock) (found bool) {
	for i := range leases {
		if leases[i].LeaseID == leaseID {
			if leases[i].RevokedAtMs == 0 {
				leases[i].RevokedAtMs = clock().UnixMilli()
			}
			return true
		}
	}
	return false
}

// RevokeByTaskID revokes every not-yet-revoked lease whose TaskID matches
// (expired ones included) and returns the count actually transitioned
// (already-revoked leases are not recounted).
func RevokeByTaskID(leases []store.Lease, taskID string, clock Clock) int {
	now := clock().UnixMilli()
	count := 0
	for i := range leases {
		if leases[i].TaskID != taskID {
			continue
		}
		if leases[i].RevokedAtMs == 0 {
			leases[i].RevokedAtMs = now
			count++
		}
	}
	return count
}

// Consume decrements usesRemaining on l after it has served as the basis
// for a checkout, auto-revoking
// once exhausted. Leases without a use cap are unaffected.
func Consume(l *store.Lease, clock Clock) {
	if l == nil || !l.HasMaxUses {
		return
	}
	l.UsesRemaining--
	if l.UsesRemaining <= 0 {
		l.RevokedAtMs = clock().UnixMilli()
	}
}

// ExpireAll walks leases and revokes every one that has passed its
// expiresAtMs and is not already revoked. Returns the count transitioned.
// Used by both the periodic tick and directly by tests.
func ExpireAll(leases []store.Lease, clock Clock) int {
	now := clock().UnixMilli()
	count := 0
	for i := range leases {
		if leases[i].RevokedAtMs != 0 {
			continue
		}
		if now >= leases[i].ExpiresAtMs {
			leases[i].RevokedAtMs = now
			count++
		}
	}
	return count
}
