// Package channeltoken implements the stateless token-resolution helper
// downstream channel code uses to obtain a single bearer-style token
// without knowing anything about leases, grants, or policy. It never
// surfaces a checkout error to its caller — any failure falls through to
// the next priority tier, and ultimately to an empty token.
package channeltoken

import (
	"context"
	"os"

	"github.com/Mindburn-Labs/credvault/pkg/vault"
)

// Source names where the returned token came from.
type Source string

const (
	SourceCredential Source = "credential"
	SourceEnv        Source = "env"
	SourceNone       Source = "none"
)

// Result is what Resolve returns.
type Result struct {
	Token        string
	Source       Source
	CredentialID string // set only when Source == SourceCredential
}

// Input mirrors resolveChannelToken's parameters.
type Input struct {
	AccountID        string
	Provider         string
	TokenMetadataKey string
	EnvFallbackVar   string
	AllowEnvFallback bool
}

// Resolve implements the three-tier priority: a metadata-pinned or
// first-credential checkout on the named account, then an environment
// variable fallback, then nothing.
func Resolve(ctx context.Context, v *vault.Service, in Input) Result {
	if in.AccountID != "" {
		if token, credentialID, ok := checkoutFromAccount(ctx, v, in); ok {
			return Result{Token: token, Source: SourceCredential, CredentialID: credentialID}
		}
	}

	if in.AllowEnvFallback && in.EnvFallbackVar != "" {
		if val := os.Getenv(in.EnvFallbackVar); val != "" {
			return Result{Token: val, Source: SourceEnv}
		}
	}

	return Result{Token: "", Source: SourceNone}
}

func checkoutFromAccount(ctx context.Context, v *vault.Service, in Input) (token, credentialID string, ok bool) {
	acct, found := v.GetAccount(in.AccountID)
	if !found {
		return "", "", false
	}

	if in.TokenMetadataKey != "" {
		credentialID = acct.Metadata[in.TokenMetadataKey]
	}
	if credentialID == "" {
		if len(acct.CredentialIDs) == 0 {
			return "", "", false
		}
		credentialID = acct.CredentialIDs[0]
	}

	result, err := v.Checkout(ctx, vault.CheckoutInput{
		CredentialID: credentialID,
		AgentID:      vault.SystemAgentID,
	})
	if err != nil {
		return "", "", false
	}

	token = result.Secret.ExtractToken()
	if token == "" {
		return "", "", false
	}
	return token, credentialID, true
}
