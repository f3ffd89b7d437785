package vault

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/credvault/pkg/policy"
	"github.com/Mindburn-Labs/credvault/pkg/store"
)

// countingRateLimitStore is a fake policy.RateLimitStore: it allows the
// first maxAllowed calls and rejects every call after that, regardless of
// key or interval. Used to prove WithRateLimitStore actually swaps the
// evaluator's backend rather than leaving the default in place.
type countingRateLimitStore struct {
	calls      int
	maxAllowed int
}

func (c *countingRateLimitStore) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	c.calls++
	return c.calls <= c.maxAllowed, nil
}

func TestWithRateLimitStore_OverridesDefaultBackend(t *testing.T) {
	fake := &countingRateLimitStore{maxAllowed: 1}
	path := filepath.Join(t.TempDir(), "vault.json")
	s, err := Open(path, []byte("correct-passphrase"), WithTickInterval(0), WithRateLimitStore(fake))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cred, vErr := s.Create(CreateInput{
		Name: "C", Category: store.CategoryCustom,
		Secret: store.Secret{Kind: store.SecretKindAPIKey, APIKey: "secret-key"},
	})
	require.Nil(t, vErr)
	require.Nil(t, s.GrantAccess(cred.ID, "agent-1"))
	_, vErr = s.AddRule(cred.ID, "no more than 1 per minute")
	require.Nil(t, vErr)

	_, vErr = s.Checkout(context.Background(), CheckoutInput{CredentialID: cred.ID, AgentID: "agent-1"})
	require.Nil(t, vErr)

	_, vErr = s.Checkout(context.Background(), CheckoutInput{CredentialID: cred.ID, AgentID: "agent-1"})
	require.NotNil(t, vErr)
	require.Equal(t, KindPolicyBlocked, vErr.Kind)
	require.Greater(t, fake.calls, 1)
}

func TestWithRateLimitDefaults_AppliesWhenCredentialHasNoExplicitRule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	s, err := Open(path, []byte("correct-passphrase"), WithTickInterval(0),
		WithRateLimitDefaults(policy.RateLimitDefaults{MaxPerMinute: 1}))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cred, vErr := s.Create(CreateInput{
		Name: "C", Category: store.CategoryCustom,
		Secret: store.Secret{Kind: store.SecretKindAPIKey, APIKey: "secret-key"},
	})
	require.Nil(t, vErr)
	require.Nil(t, s.GrantAccess(cred.ID, "agent-1"))
	require.Empty(t, cred.PermissionRules)

	_, vErr = s.Checkout(context.Background(), CheckoutInput{CredentialID: cred.ID, AgentID: "agent-1"})
	require.Nil(t, vErr)

	_, vErr = s.Checkout(context.Background(), CheckoutInput{CredentialID: cred.ID, AgentID: "agent-1"})
	require.NotNil(t, vErr)
	require.Equal(t, KindPolicyBlocked, vErr.Kind)
}

func TestWithDefaultRuleText_SeedsRulesOnCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	s, err := Open(path, []byte("correct-passphrase"), WithTickInterval(0),
		WithDefaultRuleText(func(category string) []string {
			if category == string(store.CategoryAIProvider) {
				return []string{"read only"}
			}
			return nil
		}))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cred, vErr := s.Create(CreateInput{
		Name: "C", Category: store.CategoryAIProvider,
		Secret: store.Secret{Kind: store.SecretKindAPIKey, APIKey: "secret-key"},
	})
	require.Nil(t, vErr)
	require.Len(t, cred.PermissionRules, 1)
	require.Equal(t, "read only", cred.PermissionRules[0].Text)
	require.True(t, cred.PermissionRules[0].Enabled)

	other, vErr := s.Create(CreateInput{
		Name: "D", Category: store.CategoryCustom,
		Secret: store.Secret{Kind: store.SecretKindAPIKey, APIKey: "secret-key-2"},
	})
	require.Nil(t, vErr)
	require.Empty(t, other.PermissionRules)
}
