package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/credvault/pkg/store"
)

func TestCompile_ToolAllowlist(t *testing.T) {
	cs := Compile("Only allow read_file, list_dir.")
	require.Len(t, cs, 1)
	assert.Equal(t, store.ConstraintToolAllowlist, cs[0].Kind)
	assert.ElementsMatch(t, []string{"read_file", "list_dir"}, cs[0].Tools)
}

func TestCompile_ToolDenylist(t *testing.T) {
	cs := Compile("No shell access.")
	require.Len(t, cs, 1)
	assert.Equal(t, store.ConstraintToolDenylist, cs[0].Kind)
	assert.Equal(t, []string{"shell"}, cs[0].Tools)
}

func TestCompile_ReadOnly(t *testing.T) {
	cs := Compile("Read only access please.")
	require.Len(t, cs, 1)
	assert.Equal(t, store.ConstraintActionRestriction, cs[0].Kind)
	assert.ElementsMatch(t, []string{"read", "list", "get"}, cs[0].Actions)
}

func TestCompile_RateLimit(t *testing.T) {
	cs := Compile("No more than 5 per minute.")
	require.Len(t, cs, 1)
	assert.Equal(t, store.ConstraintRateLimit, cs[0].Kind)
	assert.Equal(t, 5, cs[0].MaxPerMinute)
}

func TestCompile_TimeWindowWraparound(t *testing.T) {
	cs := Compile("Only between 22:00 and 06:00 UTC.")
	require.Len(t, cs, 1)
	assert.Equal(t, store.ConstraintTimeWindow, cs[0].Kind)
	assert.Equal(t, 22, cs[0].AllowedHoursStartUTC)
	assert.Equal(t, 6, cs[0].AllowedHoursEndUTC)
}

func TestCompile_PurposeRestriction(t *testing.T) {
	cs := Compile("For research only.")
	require.Len(t, cs, 1)
	assert.Equal(t, store.ConstraintPurposeRestriction, cs[0].Kind)
	assert.Equal(t, []string{"research"}, cs[0].Purposes)
}

func TestCompile_NoMatchYieldsEmpty(t *testing.T) {
	cs := Compile("This rule is just a note to the team.")
	assert.Empty(t, cs)
}

func enabledRule(constraints ...store.CompiledConstraint) store.PermissionRule {
	return store.PermissionRule{Enabled: true, CompiledConstraints: constraints}
}

func TestEvaluate_ToolAllowlistRejectsUnlistedTool(t *testing.T) {
	ev := NewEvaluator()
	rules := []store.PermissionRule{enabledRule(store.CompiledConstraint{
		Kind: store.ConstraintToolAllowlist, Tools: []string{"read_file"},
	})}

	d := ev.Evaluate(context.Background(), "cred-1", rules, CheckInput{AgentID: "a1", ToolName: "shell", Now: time.Now()})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "shell")
}

func TestEvaluate_ToolAllowlistIgnoredWhenToolOmitted(t *testing.T) {
	ev := NewEvaluator()
	rules := []store.PermissionRule{enabledRule(store.CompiledConstraint{
		Kind: store.ConstraintToolAllowlist, Tools: []string{"read_file"},
	})}

	d := ev.Evaluate(context.Background(), "cred-1", rules, CheckInput{AgentID: "a1", Now: time.Now()})
	assert.True(t, d.Allowed)
}

func TestEvaluate_DisabledRuleNeverBlocks(t *testing.T) {
	ev := NewEvaluator()
	rules := []store.PermissionRule{{
		Enabled:             false,
		CompiledConstraints: []store.CompiledConstraint{{Kind: store.ConstraintToolDenylist, Tools: []string{"shell"}}},
	}}

	d := ev.Evaluate(context.Background(), "cred-1", rules, CheckInput{AgentID: "a1", ToolName: "shell", Now: time.Now()})
	assert.True(t, d.Allowed)
}

func TestEvaluate_PurposeRestrictionRejectsMissingPurpose(t *testing.T) {
	ev := NewEvaluator()
	rules := []store.PermissionRule{enabledRule(store.CompiledConstraint{
		Kind: store.ConstraintPurposeRestriction, Purposes: []string{"research"},
	})}

	d := ev.Evaluate(context.Background(), "cred-1", rules, CheckInput{AgentID: "a1", Now: time.Now()})
	assert.False(t, d.Allowed)
}

func TestEvaluate_TimeWindowWraparound(t *testing.T) {
	ev := NewEvaluator()
	rules := []store.PermissionRule{enabledRule(store.CompiledConstraint{
		Kind: store.ConstraintTimeWindow, AllowedHoursStartUTC: 22, AllowedHoursEndUTC: 6,
	})}

	inside := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	outside := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, ev.Evaluate(context.Background(), "cred-1", rules, CheckInput{AgentID: "a1", Now: inside}).Allowed)
	assert.False(t, ev.Evaluate(context.Background(), "cred-1", rules, CheckInput{AgentID: "a1", Now: outside}).Allowed)
}

func TestEvaluate_RateLimitExceeded(t *testing.T) {
	ev := NewEvaluator()
	rules := []store.PermissionRule{enabledRule(store.CompiledConstraint{
		Kind: store.ConstraintRateLimit, MaxPerMinute: 1,
	})}
	in := CheckInput{AgentID: "a1", Now: time.Now()}

	first := ev.Evaluate(context.Background(), "cred-1", rules, in)
	require.True(t, first.Allowed)

	second := ev.Evaluate(context.Background(), "cred-1", rules, in)
	assert.False(t, second.Allowed)
}

func TestEvaluate_FirstRejectingConstraintWins(t *testing.T) {
	ev := NewEvaluator()
	rules := []store.PermissionRule{enabledRule(
		store.CompiledConstraint{Kind: store.ConstraintToolDenylist, Tools: []string{"shell"}},
		store.CompiledConstraint{Kind: store.ConstraintActionRestriction, Actions: []string{"read"}},
	)}

	d := ev.Evaluate(context.Background(), "cred-1", rules, CheckInput{
		AgentID: "a1", ToolName: "shell", Action: "write", Now: time.Now(),
	})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "shell")
}
