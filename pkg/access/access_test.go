package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/credvault/pkg/store"
)

func TestResolve_NoMatchDenies(t *testing.T) {
	cred := &store.Credential{ID: "cred-1"}
	r := Resolve(cred, nil, Input{AgentID: "agent-1", NowMs: 1000})
	assert.False(t, r.Allowed)
	assert.Equal(t, BasisNone, r.Basis)
}

func TestResolve_ActiveLeaseWinsOverEverythingElse(t *testing.T) {
	cred := &store.Credential{
		ID: "cred-1",
		ActiveLeases: []store.Lease{
			{LeaseID: "l1", AgentID: "agent-1", TaskID: "task-1", ExpiresAtMs: 5000},
		},
		AccessGrants: []store.AccessGrant{{AgentID: "agent-1"}},
	}
	r := Resolve(cred, nil, Input{AgentID: "agent-1", TaskID: "task-1", NowMs: 1000})
	assert.True(t, r.Allowed)
	assert.Equal(t, BasisLease, r.Basis)
	assert.NotNil(t, r.Lease)
	assert.Equal(t, "l1", r.Lease.LeaseID)
}

func TestResolve_LeaseExpiredFallsThroughToGrant(t *testing.T) {
	cred := &store.Credential{
		ID: "cred-1",
		ActiveLeases: []store.Lease{
			{LeaseID: "l1", AgentID: "agent-1", ExpiresAtMs: 500},
		},
		AccessGrants: []store.AccessGrant{{AgentID: "agent-1"}},
	}
	r := Resolve(cred, nil, Input{AgentID: "agent-1", NowMs: 1000})
	assert.True(t, r.Allowed)
	assert.Equal(t, BasisGrant, r.Basis)
}

func TestResolve_LeaseWithMismatchedTaskIDIgnored(t *testing.T) {
	cred := &store.Credential{
		ID: "cred-1",
		ActiveLeases: []store.Lease{
			{LeaseID: "l1", AgentID: "agent-1", TaskID: "task-other", ExpiresAtMs: 5000},
		},
	}
	r := Resolve(cred, nil, Input{AgentID: "agent-1", TaskID: "task-1", NowMs: 1000})
	assert.False(t, r.Allowed)
}

func TestResolve_LeaseWithoutTaskIDAcceptsAnyActiveLease(t *testing.T) {
	cred := &store.Credential{
		ID: "cred-1",
		ActiveLeases: []store.Lease{
			{LeaseID: "l1", AgentID: "agent-1", TaskID: "task-other", ExpiresAtMs: 5000},
		},
	}
	r := Resolve(cred, nil, Input{AgentID: "agent-1", NowMs: 1000})
	assert.True(t, r.Allowed)
	assert.Equal(t, BasisLease, r.Basis)
}

func TestResolve_ProfileBindingRespectsCredentialIDRestriction(t *testing.T) {
	cred := &store.Credential{ID: "cred-1", AccountID: "acct-1"}
	profile := &store.AgentCredentialProfile{
		AgentID: "agent-1",
		AccountBindings: []store.AccountBinding{
			{AccountID: "acct-1", Restrictions: &store.AccountBindingRestrictions{CredentialIDs: []string{"cred-other"}}},
		},
	}
	r := Resolve(cred, profile, Input{AgentID: "agent-1", NowMs: 1000})
	assert.False(t, r.Allowed)
}

func TestResolve_ProfileBindingReadOnlyIsSurfaced(t *testing.T) {
	cred := &store.Credential{ID: "cred-1", AccountID: "acct-1"}
	profile := &store.AgentCredentialProfile{
		AgentID: "agent-1",
		AccountBindings: []store.AccountBinding{
			{AccountID: "acct-1", Restrictions: &store.AccountBindingRestrictions{ReadOnly: true}},
		},
	}
	r := Resolve(cred, profile, Input{AgentID: "agent-1", NowMs: 1000})
	assert.True(t, r.Allowed)
	assert.Equal(t, BasisProfile, r.Basis)
	assert.True(t, r.ImpliedReadOnly)
}
