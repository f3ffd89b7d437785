package vault

import (
	"context"
	"encoding/json"

	"github.com/Mindburn-Labs/credvault/pkg/access"
	"github.com/Mindburn-Labs/credvault/pkg/lease"
	"github.com/Mindburn-Labs/credvault/pkg/policy"
	"github.com/Mindburn-Labs/credvault/pkg/store"
)

// CheckoutInput is a request to use a credential.
type CheckoutInput struct {
	CredentialID string
	AgentID      string
	TaskID       string
	ToolName     string
	Action       string
	Purpose      string
}

// CheckoutResult is what a successful checkout returns to the caller.
type CheckoutResult struct {
	CredentialID string
	Secret       store.Secret
	ExpiresAtMs  int64 // 0 unless the basis was a lease
}

// Checkout resolves access, evaluates policy, decrypts the secret, and
// records usage — all under the write lock, since it mutates usageHistory
// and may consume a lease use.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (CheckoutResult, *Error) {
	s.store.Lock()
	defer s.store.Unlock()

	cred := s.store.FindCredential(in.CredentialID)
	if cred == nil {
		return CheckoutResult{}, errNotFound("credential", in.CredentialID)
	}
	if !cred.Enabled {
		return CheckoutResult{}, errDisabled()
	}

	now := s.clock()
	profile := s.store.FindProfile(in.AgentID)

	result := access.Resolve(cred, profile, access.Input{
		AgentID: in.AgentID, TaskID: in.TaskID, NowMs: now.UnixMilli(),
	})
	if !result.Allowed {
		return CheckoutResult{}, errNoAccess()
	}

	rules := cred.PermissionRules
	if result.Basis == access.BasisProfile && result.ImpliedReadOnly {
		rules = append(append([]store.PermissionRule{}, rules...), store.PermissionRule{
			Enabled: true,
			CompiledConstraints: []store.CompiledConstraint{{
				Kind: store.ConstraintActionRestriction, Actions: []string{"read", "list", "get"},
			}},
		})
	}

	decision := s.policy.Evaluate(ctx, cred.ID, rules, policy.CheckInput{
		AgentID: in.AgentID, TaskID: in.TaskID, ToolName: in.ToolName,
		Action: in.Action, Purpose: in.Purpose, Now: now,
	})
	if !decision.Allowed {
		return CheckoutResult{}, errPolicyBlocked(decision.Reason)
	}

	plaintext, err := s.store.OpenSecret(cred.SecretRef)
	if err != nil {
		return CheckoutResult{}, errCorrupt(err.Error())
	}
	var secret store.Secret
	if err := json.Unmarshal(plaintext, &secret); err != nil {
		return CheckoutResult{}, errCorrupt("secret envelope did not contain a valid secret")
	}

	basis := string(result.Basis)
	var expiresAtMs int64
	if result.Basis == access.BasisLease && result.Lease != nil {
		lease.Consume(result.Lease, s.leaseClock())
		expiresAtMs = result.Lease.ExpiresAtMs
	}

	cred.RecordUsage(now.UnixMilli(), in.AgentID, in.TaskID, basis)

	if err := s.store.Save(); err != nil {
		return CheckoutResult{}, errIO("write", err)
	}

	return CheckoutResult{CredentialID: cred.ID, Secret: secret, ExpiresAtMs: expiresAtMs}, nil
}

// CreateLeaseInput mirrors lease.CreateInput at the service boundary.
type CreateLeaseInput struct {
	CredentialID string
	TaskID       string
	AgentID      string
	TTLMs        int64
	MaxUses      int
}

// CreateLease creates a new lease on a credential and appends it to the
// credential's activeLeases.
func (s *Service) CreateLease(in CreateLeaseInput) (store.Lease, *Error) {
	s.store.Lock()

	cred := s.store.FindCredential(in.CredentialID)
	if cred == nil {
		s.store.Unlock()
		return store.Lease{}, errNotFound("credential", in.CredentialID)
	}

	l, err := lease.New(lease.CreateInput{
		CredentialID: in.CredentialID, TaskID: in.TaskID, AgentID: in.AgentID,
		TTLMs: in.TTLMs, MaxUses: in.MaxUses,
	}, s.leaseClock())
	if err != nil {
		s.store.Unlock()
		return store.Lease{}, errInvalidInput("%v", err)
	}

	cred.ActiveLeases = append(cred.ActiveLeases, l)
	if err := s.store.Save(); err != nil {
		s.store.Unlock()
		return store.Lease{}, errIO("write", err)
	}
	s.store.Unlock()

	s.events.Publish(eventLeaseCreated(l.LeaseID, in.CredentialID, in.AgentID))
	return l, nil
}

// RevokeLease revokes a lease by ID across every credential (the caller
// does not need to know which credential owns it). Returns whether a
// matching lease was found.
func (s *Service) RevokeLease(leaseID string) bool {
	s.store.Lock()

	found := false
	for i := range s.store.File.Credentials {
		if lease.RevokeByID(s.store.File.Credentials[i].ActiveLeases, leaseID, s.leaseClock()) {
			_ = s.store.Save()
			found = true
			break
		}
	}
	s.store.Unlock()

	if found {
		s.events.Publish(eventLeaseRevoked(leaseID))
	}
	return found
}

// RevokeTaskLeases revokes every active lease for taskID across every
// credential and returns the total count revoked.
func (s *Service) RevokeTaskLeases(taskID string) int {
	s.store.Lock()
	defer s.store.Unlock()

	total := 0
	for i := range s.store.File.Credentials {
		total += lease.RevokeByTaskID(s.store.File.Credentials[i].ActiveLeases, taskID, s.leaseClock())
	}
	if total > 0 {
		_ = s.store.Save()
	}
	return total
}
