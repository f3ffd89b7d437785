package policy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Mindburn-Labs/credvault/pkg/store"
)

// CheckInput is everything the evaluator needs to decide one checkout.
// TaskID, ToolName, Action, and Purpose are optional; their zero value
// means the caller did not supply that dimension.
type CheckInput struct {
	AgentID  string
	TaskID   string
	ToolName string
	Action   string
	Purpose  string
	Now      time.Time
}

// Decision is the evaluator's verdict. Reason is populated only when
// Allowed is false, and is the text of the first rejecting constraint.
type Decision struct {
	Allowed bool
	Reason  string
}

// RateLimitDefaults is the fallback rate_limit threshold applied to a
// checkout when the credential's own rules don't carry an explicit
// rate_limit constraint. It comes from the operator's bootstrap profile,
// not from rule text, so it never shows up in a credential's PermissionRules.
type RateLimitDefaults struct {
	MaxPerMinute int
	MaxPerHour   int
}

// Evaluator checks a credential's enabled PermissionRules against a
// checkout request, consulting a RateLimitStore for the rate_limit
// constraint kind.
type Evaluator struct {
	RateLimits       RateLimitStore
	DefaultRateLimit RateLimitDefaults
}

// NewEvaluator builds an Evaluator backed by an in-memory rate limit store.
func NewEvaluator() *Evaluator {
	return &Evaluator{RateLimits: NewMemoryRateLimitStore()}
}

// Evaluate returns the first rejecting constraint's decision, or an
// allowing decision if every enabled rule's constraints pass. When no
// enabled rule carries an explicit rate_limit constraint, the evaluator's
// DefaultRateLimit is checked instead, so an operator-configured baseline
// still applies to credentials whose rule text never mentions rate limits.
func (e *Evaluator) Evaluate(ctx context.Context, credentialID string, rules []store.PermissionRule, in CheckInput) Decision {
	sawRateLimit := false
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		for _, c := range rule.CompiledConstraints {
			if c.Kind == store.ConstraintRateLimit {
				sawRateLimit = true
			}
			if reason, rejected := e.checkConstraint(ctx, credentialID, c, in); rejected {
				return Decision{Allowed: false, Reason: reason}
			}
		}
	}
	if !sawRateLimit && (e.DefaultRateLimit.MaxPerMinute > 0 || e.DefaultRateLimit.MaxPerHour > 0) {
		c := store.CompiledConstraint{
			Kind:         store.ConstraintRateLimit,
			MaxPerMinute: e.DefaultRateLimit.MaxPerMinute,
			MaxPerHour:   e.DefaultRateLimit.MaxPerHour,
		}
		if reason, rejected := e.checkConstraint(ctx, credentialID, c, in); rejected {
			return Decision{Allowed: false, Reason: reason}
		}
	}
	return Decision{Allowed: true}
}

func (e *Evaluator) checkConstraint(ctx context.Context, credentialID string, c store.CompiledConstraint, in CheckInput) (reason string, rejected bool) {
	switch c.Kind {
	case store.ConstraintToolAllowlist:
		if in.ToolName == "" {
			return "", false
		}
		if !contains(c.Tools, normalize(in.ToolName)) {
			return fmt.Sprintf("tool %q is not in the allowed tool list", in.ToolName), true
		}

	case store.ConstraintToolDenylist:
		if in.ToolName == "" {
			return "", false
		}
		if contains(c.Tools, normalize(in.ToolName)) {
			return fmt.Sprintf("tool %q is denied", in.ToolName), true
		}

	case store.ConstraintActionRestriction:
		if in.Action == "" {
			return "", false
		}
		if !contains(c.Actions, normalize(in.Action)) {
			return fmt.Sprintf("action %q is not permitted", in.Action), true
		}

	case store.ConstraintRateLimit:
		if e.RateLimits == nil {
			return "", false
		}
		key := credentialID + "|" + in.AgentID
		if c.MaxPerMinute > 0 {
			ok, err := e.RateLimits.Allow(ctx, key+"|min", c.MaxPerMinute, time.Minute)
			if err != nil || !ok {
				return "rate limit exceeded: no more than " + strconv.Itoa(c.MaxPerMinute) + " per minute", true
			}
		}
		if c.MaxPerHour > 0 {
			ok, err := e.RateLimits.Allow(ctx, key+"|hour", c.MaxPerHour, time.Hour)
			if err != nil || !ok {
				return "rate limit exceeded: no more than " + strconv.Itoa(c.MaxPerHour) + " per hour", true
			}
		}

	case store.ConstraintTimeWindow:
		hour := in.Now.UTC().Hour()
		if !inWindow(hour, c.AllowedHoursStartUTC, c.AllowedHoursEndUTC) {
			return "outside the permitted time window", true
		}

	case store.ConstraintPurposeRestriction:
		if in.Purpose == "" {
			return "purpose is required by this rule and was not provided", true
		}
		if !contains(c.Purposes, normalize(in.Purpose)) {
			return fmt.Sprintf("purpose %q is not permitted", in.Purpose), true
		}
	}
	return "", false
}

// inWindow reports whether hour falls in [start, end), wrapping past
// midnight when start > end.
func inWindow(hour, start, end int) bool {
	if start == end {
		return true
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func contains(list []string, normalizedTarget string) bool {
	for _, v := range list {
		if normalize(v) == normalizedTarget {
			return true
		}
	}
	return false
}

