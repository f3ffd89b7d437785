// Package store owns the on-disk representation of the vault: the
// versioned store file, its atomic read/write, and the plain data types
// that make up a credential record. It knows nothing about policy,
// leases, or access control beyond holding their persisted shape.
package store

import (
	"time"

	"github.com/Mindburn-Labs/credvault/pkg/envelope"
)

// CurrentVersion is the store file format this package writes. Version 2
// files are migrated on open; version 1 is rejected outright.
const CurrentVersion = 3

// Category classifies a Credential for filtering and display.
type Category string

const (
	CategoryAIProvider     Category = "ai_provider"
	CategoryChannelBot     Category = "channel_bot"
	CategoryService        Category = "service"
	CategoryBrowserProfile Category = "browser_profile"
	CategoryCLITool        Category = "cli_tool"
	CategoryCustom         Category = "custom"
)

// ValidCategory reports whether c is one of the enumerated categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryAIProvider, CategoryChannelBot, CategoryService,
		CategoryBrowserProfile, CategoryCLITool, CategoryCustom:
		return true
	default:
		return false
	}
}

// SecretKind tags which variant of Secret a credential holds.
type SecretKind string

const (
	SecretKindAPIKey SecretKind = "api_key"
	SecretKindToken  SecretKind = "token"
	SecretKindOAuth  SecretKind = "oauth"
	SecretKindSSHKey SecretKind = "ssh_key"
)

// Secret is never persisted in cleartext and never serialized anywhere
// except as the return value of a checkout. Exactly one of the variant
// fields is populated, selected by Kind.
type Secret struct {
	Kind SecretKind `json:"kind"`

	// api_key
	APIKey      string `json:"key,omitempty"`
	APIKeyEmail string `json:"email,omitempty"`
	APIKeyMeta  string `json:"metadata,omitempty"`

	// token
	Token             string `json:"token,omitempty"`
	TokenExpiresAtMs  int64  `json:"expiresAtMs,omitempty"`
	TokenRefreshToken string `json:"refreshToken,omitempty"`
	TokenEmail        string `json:"tokenEmail,omitempty"`

	// oauth
	OAuthAccessToken  string   `json:"accessToken,omitempty"`
	OAuthRefreshToken string   `json:"oauthRefreshToken,omitempty"`
	OAuthExpiresAtMs  int64    `json:"oauthExpiresAtMs,omitempty"`
	OAuthClientID     string   `json:"clientId,omitempty"`
	OAuthEmail        string   `json:"oauthEmail,omitempty"`
	OAuthScopes       []string `json:"scopes,omitempty"`

	// ssh_key
	SSHPrivateKey string `json:"privateKey,omitempty"`
	SSHPublicKey  string `json:"publicKey,omitempty"`
	SSHPassphrase string `json:"passphrase,omitempty"`
	SSHFingerprint string `json:"fingerprint,omitempty"`
}

// ExtractToken returns the single bearer-style token string carried by this
// secret, used by the Channel Token Helper. Returns "" for kinds that have
// no single token concept (ssh_key).
func (s Secret) ExtractToken() string {
	switch s.Kind {
	case SecretKindToken:
		return s.Token
	case SecretKindAPIKey:
		return s.APIKey
	case SecretKindOAuth:
		return s.OAuthAccessToken
	default:
		return ""
	}
}

// AccessGrant is a permanent, legacy-but-honored permission for one agent to
// check out one credential.
type AccessGrant struct {
	AgentID     string `json:"agentId"`
	GrantedAtMs int64  `json:"grantedAtMs"`
	GrantedBy   string `json:"grantedBy"`
}

// Lease is a time- and optionally use-bounded ephemeral grant tied to a task.
type Lease struct {
	LeaseID       string `json:"leaseId"`
	TaskID        string `json:"taskId"`
	AgentID       string `json:"agentId"`
	CredentialID  string `json:"credentialId"`
	GrantedAtMs   int64  `json:"grantedAtMs"`
	ExpiresAtMs   int64  `json:"expiresAtMs"`
	RevokedAtMs   int64  `json:"revokedAtMs,omitempty"`
	MaxUses       int    `json:"maxUses,omitempty"`
	UsesRemaining int    `json:"usesRemaining,omitempty"`
	HasMaxUses    bool   `json:"hasMaxUses,omitempty"`
}

// Active reports whether the lease may still be used to satisfy a checkout
// at the instant nowMs.
func (l *Lease) Active(nowMs int64) bool {
	if l == nil {
		return false
	}
	if l.RevokedAtMs != 0 {
		return false
	}
	if nowMs >= l.ExpiresAtMs {
		return false
	}
	if l.HasMaxUses && l.UsesRemaining <= 0 {
		return false
	}
	return true
}

// CompiledConstraint is one structured restriction produced by the policy
// compiler from a PermissionRule's free-form text.
type CompiledConstraint struct {
	Kind string `json:"kind"`

	// tool_allowlist / tool_denylist
	Tools []string `json:"tools,omitempty"`

	// action_restriction
	Actions []string `json:"actions,omitempty"`

	// rate_limit
	MaxPerMinute int `json:"maxPerMinute,omitempty"`
	MaxPerHour   int `json:"maxPerHour,omitempty"`

	// time_window
	AllowedHoursStartUTC int `json:"allowedHoursStartUtc,omitempty"`
	AllowedHoursEndUTC   int `json:"allowedHoursEndUtc,omitempty"`

	// purpose_restriction
	Purposes []string `json:"purposes,omitempty"`
}

const (
	ConstraintToolAllowlist     = "tool_allowlist"
	ConstraintToolDenylist      = "tool_denylist"
	ConstraintActionRestriction = "action_restriction"
	ConstraintRateLimit         = "rate_limit"
	ConstraintTimeWindow        = "time_window"
	ConstraintPurposeRestriction = "purpose_restriction"
)

// PermissionRule is free-form text compiled into zero or more
// CompiledConstraints at add/update time.
type PermissionRule struct {
	ID                  string               `json:"id"`
	Text                string               `json:"text"`
	CompiledConstraints []CompiledConstraint `json:"compiledConstraints"`
	CreatedAtMs         int64                `json:"createdAtMs"`
	Enabled             bool                 `json:"enabled"`
}

// UsageRecord is one entry in a credential's bounded usage history.
type UsageRecord struct {
	AtMs    int64  `json:"atMs"`
	AgentID string `json:"agentId"`
	TaskID  string `json:"taskId,omitempty"`
	Basis   string `json:"basis"` // "lease" | "grant" | "profile"
}

// MaxUsageHistory bounds Credential.UsageHistory; UsageCount is unbounded.
const MaxUsageHistory = 50

// Credential is a named record describing one secret. It never contains
// plaintext; SecretRef is an opaque key into the Store's envelope map.
type Credential struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	Category         Category `json:"category"`
	Provider         string   `json:"provider,omitempty"`
	DetectedProvider string   `json:"detectedProvider,omitempty"`
	SecretKind       SecretKind `json:"secretKind"`
	SecretRef        string   `json:"secretRef"`

	AccessGrants    []AccessGrant    `json:"accessGrants,omitempty"`
	ActiveLeases    []Lease          `json:"activeLeases,omitempty"`
	PermissionRules []PermissionRule `json:"permissionRules,omitempty"`

	Enabled      bool   `json:"enabled"`
	CreatedAtMs  int64  `json:"createdAtMs"`
	UpdatedAtMs  int64  `json:"updatedAtMs"`
	ExpiresAtMs  int64  `json:"expiresAtMs,omitempty"`
	ValidatedAtMs int64 `json:"validatedAtMs,omitempty"`

	UsageCount      int64         `json:"usageCount"`
	LastUsedAtMs    int64         `json:"lastUsedAtMs,omitempty"`
	LastUsedByAgent string        `json:"lastUsedByAgent,omitempty"`
	UsageHistory    []UsageRecord `json:"usageHistory,omitempty"`

	AccountID string `json:"accountId,omitempty"`
}

// RecordUsage appends a bounded usage entry and bumps the unbounded counter.
func (c *Credential) RecordUsage(nowMs int64, agentID, taskID, basis string) {
	c.UsageCount++
	c.LastUsedAtMs = nowMs
	c.LastUsedByAgent = agentID
	c.UsageHistory = append(c.UsageHistory, UsageRecord{
		AtMs: nowMs, AgentID: agentID, TaskID: taskID, Basis: basis,
	})
	if len(c.UsageHistory) > MaxUsageHistory {
		c.UsageHistory = c.UsageHistory[len(c.UsageHistory)-MaxUsageHistory:]
	}
}

// Account is a service identity grouping credentials.
type Account struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Provider      string            `json:"provider"`
	Icon          string            `json:"icon,omitempty"`
	Email         string            `json:"email,omitempty"`
	CredentialIDs []string          `json:"credentialIds"`
	Tags          []string          `json:"tags,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAtMs   int64             `json:"createdAtMs"`
	UpdatedAtMs   int64             `json:"updatedAtMs"`
}

// AccountBindingRestrictions narrows what an AccountBinding permits.
type AccountBindingRestrictions struct {
	CredentialIDs []string `json:"credentialIds,omitempty"`
	ReadOnly      bool     `json:"readOnly,omitempty"`
	MaxLeaseTTLMs int64    `json:"maxLeaseTtlMs,omitempty"`
}

// AccountBinding grants an agent profile access to every credential on an
// account (subject to Restrictions).
type AccountBinding struct {
	AccountID    string                      `json:"accountId"`
	GrantedAtMs  int64                       `json:"grantedAtMs"`
	GrantedBy    string                      `json:"grantedBy"`
	Restrictions *AccountBindingRestrictions `json:"restrictions,omitempty"`
}

// AgentCredentialProfile maps an agent to the accounts (and direct grants)
// it may use.
type AgentCredentialProfile struct {
	AgentID         string           `json:"agentId"`
	AccountBindings []AccountBinding `json:"accountBindings,omitempty"`
	DirectGrants    []string         `json:"directGrants,omitempty"`
	CreatedAtMs     int64            `json:"createdAtMs"`
	UpdatedAtMs     int64            `json:"updatedAtMs"`
}

// File is the exact on-disk shape of the store (§6 of the vault spec).
type File struct {
	Version         int                        `json:"version"`
	Credentials     []Credential               `json:"credentials"`
	Secrets         map[string]*envelope.Envelope `json:"secrets"`
	Accounts        []Account                  `json:"accounts"`
	AgentProfiles   []AgentCredentialProfile   `json:"agentProfiles"`
	MasterKeyCheck  *envelope.Envelope         `json:"masterKeyCheck"`

	// LegacyAccessGrants holds the v2 top-level accessGrants block,
	// preserved verbatim through v2->v3 migration per the spec's resolved
	// Open Question (not auto-promoted into agentProfiles).
	LegacyAccessGrants map[string][]AccessGrant `json:"legacyAccessGrants,omitempty"`
}

// NowMs returns the current time in Unix milliseconds. A package-level var
// so tests and the lease/policy packages can inject a deterministic clock.
var NowMs = func() int64 { return time.Now().UnixMilli() }
