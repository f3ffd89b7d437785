package vault

import (
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/credvault/pkg/store"
)

// TestProperty_GrantAccessIdempotent checks the round-trip law from §8:
// grantAccess(id, agent) then grantAccess(id, agent) again leaves a single
// entry, for any number of repeated calls.
func TestProperty_GrantAccessIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("repeated grantAccess converges to one grant", prop.ForAll(
		func(agentID string, repeats int) bool {
			if agentID == "" {
				agentID = "agent"
			}
			s := newGopterService(t)
			cred, vErr := s.Create(CreateInput{
				Name: "C", Category: store.CategoryCustom,
				Secret: store.Secret{Kind: store.SecretKindAPIKey, APIKey: "k"},
			})
			if vErr != nil {
				return false
			}
			for i := 0; i < repeats; i++ {
				if err := s.GrantAccess(cred.ID, agentID); err != nil {
					return false
				}
			}
			got, ok := s.Get(cred.ID)
			if !ok {
				return false
			}
			return len(got.AccessGrants) == 1 && got.AccessGrants[0].AgentID == agentID
		},
		gen.AlphaString(),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

// TestProperty_RevokeLeaseIdempotent checks that revokeLease(l) followed by
// revokeLease(l) both return success (true), for any number of repeats.
func TestProperty_RevokeLeaseIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("repeated revokeLease stays successful", prop.ForAll(
		func(repeats int) bool {
			s := newGopterService(t)
			cred, vErr := s.Create(CreateInput{
				Name: "C", Category: store.CategoryCustom,
				Secret: store.Secret{Kind: store.SecretKindAPIKey, APIKey: "k"},
			})
			if vErr != nil {
				return false
			}
			l, vErr := s.CreateLease(CreateLeaseInput{
				CredentialID: cred.ID, TaskID: "T1", AgentID: "a1", TTLMs: 60_000,
			})
			if vErr != nil {
				return false
			}
			for i := 0; i < repeats; i++ {
				if !s.RevokeLease(l.LeaseID) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

func newGopterService(t *testing.T) *Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.json")
	s, err := Open(path, []byte("passphrase"), WithTickInterval(0))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
