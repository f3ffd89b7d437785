// Package access resolves whether an agent may check out a credential, and
// on what basis, following the fixed three-tier precedence: active lease,
// then direct grant, then agent-profile account binding.
package access

import (
	"github.com/Mindburn-Labs/credvault/pkg/store"
)

// Basis names which tier of access satisfied a resolution.
type Basis string

const (
	BasisLease   Basis = "lease"
	BasisGrant   Basis = "grant"
	BasisProfile Basis = "profile"
	BasisNone    Basis = ""
)

// Result is the resolver's verdict.
type Result struct {
	Allowed bool
	Reason  string
	Basis   Basis

	// Lease is set when Basis == BasisLease, pointing at the entry within
	// the credential's ActiveLeases slice that the caller must Consume.
	Lease *store.Lease

	// ImpliedReadOnly is set when Basis == BasisProfile and the matching
	// account binding restricts to read-only access; callers thread this
	// into the policy evaluator as an implicit action_restriction.
	ImpliedReadOnly bool
}

// Input bundles the parameters the resolver needs.
type Input struct {
	AgentID string
	TaskID  string // optional
	NowMs   int64
}

// Resolve decides access for one (credential, agent) pair. cred and agent's
// profile (if any) are read-only to this function; callers are responsible
// for consuming the lease via pkg/lease when Basis == BasisLease.
func Resolve(cred *store.Credential, profile *store.AgentCredentialProfile, in Input) Result {
	if r, ok := resolveLease(cred, in); ok {
		return r
	}
	if r, ok := resolveGrant(cred, in); ok {
		return r
	}
	if r, ok := resolveProfile(cred, profile, in); ok {
		return r
	}
	return Result{Allowed: false, Reason: "no access grant or active lease", Basis: BasisNone}
}

func resolveLease(cred *store.Credential, in Input) (Result, bool) {
	for i := range cred.ActiveLeases {
		l := &cred.ActiveLeases[i]
		if l.AgentID != in.AgentID {
			continue
		}
		if in.TaskID != "" && l.TaskID != in.TaskID {
			continue
		}
		if !l.Active(in.NowMs) {
			continue
		}
		return Result{Allowed: true, Basis: BasisLease, Lease: l}, true
	}
	return Result{}, false
}

func resolveGrant(cred *store.Credential, in Input) (Result, bool) {
	for _, g := range cred.AccessGrants {
		if g.AgentID == in.AgentID {
			return Result{Allowed: true, Basis: BasisGrant}, true
		}
	}
	return Result{}, false
}

func resolveProfile(cred *store.Credential, profile *store.AgentCredentialProfile, in Input) (Result, bool) {
	if profile == nil || cred.AccountID == "" {
		return Result{}, false
	}
	for _, b := range profile.AccountBindings {
		if b.AccountID != cred.AccountID {
			continue
		}
		if b.Restrictions != nil && len(b.Restrictions.CredentialIDs) > 0 {
			if !containsID(b.Restrictions.CredentialIDs, cred.ID) {
				continue
			}
		}
		readOnly := b.Restrictions != nil && b.Restrictions.ReadOnly
		return Result{Allowed: true, Basis: BasisProfile, ImpliedReadOnly: readOnly}, true
	}
	return Result{}, false
}

func containsID(ids []string, target string) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}
