package pasteimport

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/credvault/pkg/store"
	"github.com/Mindburn-Labs/credvault/pkg/vault"
)

type stubDetector struct {
	detection vault.Detection
	err       error
}

func (d stubDetector) Detect(string) (vault.Detection, error) { return d.detection, d.err }

func newTestVault(t *testing.T) *vault.Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.json")
	v, err := vault.Open(path, []byte("passphrase"), vault.WithTickInterval(0))
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v
}

func TestImport_CreatesAccountAndCredential(t *testing.T) {
	v := newTestVault(t)
	detector := stubDetector{detection: vault.Detection{
		Provider:        "openai",
		ProviderDisplay: "OpenAI",
		Secret:          store.Secret{Kind: store.SecretKindAPIKey, APIKey: "sk-live-abc"},
	}}

	imp := New(v, detector)
	result, vErr := imp.Import("sk-live-abc", vault.CreateInput{})
	require.Nil(t, vErr)
	require.Equal(t, "openai", result.Account.Provider)
	require.Equal(t, "OpenAI", result.Account.Name)
	require.Equal(t, result.Account.ID, result.Credential.AccountID)

	profile := v.GetAgentProfile(vault.SystemAgentID)
	require.Len(t, profile.AccountBindings, 1)
	require.Equal(t, result.Account.ID, profile.AccountBindings[0].AccountID)
}

func TestImport_ReusesExistingAccountForSameProvider(t *testing.T) {
	v := newTestVault(t)
	detector := stubDetector{detection: vault.Detection{
		Provider: "openai", ProviderDisplay: "OpenAI",
		Secret: store.Secret{Kind: store.SecretKindAPIKey, APIKey: "sk-live-1"},
	}}
	imp := New(v, detector)

	first, vErr := imp.Import("sk-live-1", vault.CreateInput{})
	require.Nil(t, vErr)

	detector.detection.Secret.APIKey = "sk-live-2"
	second, vErr := imp.Import("sk-live-2", vault.CreateInput{})
	require.Nil(t, vErr)

	require.Equal(t, first.Account.ID, second.Account.ID)
}

// createFromPaste(raw) followed by checkout as the system agent must yield
// a secret whose extracted token equals the token the detector found in
// raw (spec.md §8's paste-import round-trip law).
func TestImport_CheckoutAsSystemAgentRecoversDetectedToken(t *testing.T) {
	v := newTestVault(t)
	raw := "sk-live-round-trip"
	detector := stubDetector{detection: vault.Detection{
		Provider:        "openai",
		ProviderDisplay: "OpenAI",
		Secret:          store.Secret{Kind: store.SecretKindAPIKey, APIKey: raw},
	}}

	imp := New(v, detector)
	result, vErr := imp.Import(raw, vault.CreateInput{})
	require.Nil(t, vErr)

	checkout, vErr := v.Checkout(context.Background(), vault.CheckoutInput{
		CredentialID: result.Credential.ID,
		AgentID:      vault.SystemAgentID,
	})
	require.Nil(t, vErr)
	require.Equal(t, result.Detection.Secret.ExtractToken(), checkout.Secret.ExtractToken())
	require.Equal(t, raw, checkout.Secret.ExtractToken())
}

func TestImport_DetectorErrorSurfacesAsInvalidInput(t *testing.T) {
	v := newTestVault(t)
	detector := stubDetector{err: errors.New("unrecognized format")}
	imp := New(v, detector)

	_, vErr := imp.Import("garbage", vault.CreateInput{})
	require.NotNil(t, vErr)
	require.Equal(t, vault.KindInvalidInput, vErr.Kind)
}
