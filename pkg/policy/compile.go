// Package policy compiles free-form PermissionRule text into structured
// CompiledConstraints, and evaluates those constraints at checkout time.
// The compiler is deterministic, heuristic, and entirely offline — it
// recognizes a fixed table of English phrasings, nothing more.
package policy

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/Mindburn-Labs/credvault/pkg/store"
)

var foldCaser = cases.Fold()

// normalize lowercases/folds text the Unicode-correct way (not a plain
// strings.ToLower) so non-ASCII rule text still matches the pattern table.
func normalize(text string) string {
	return foldCaser.String(text)
}

var (
	reOnlyTool   = regexp.MustCompile(`only\s+(?:allow\s+|use\s+)?(?:the\s+)?tool\s+([a-z0-9_\-, ]+?)(?:\.|$)`)
	reOnlyAllow  = regexp.MustCompile(`only allow\s+([a-z0-9_\-, ]+?)(?:\.|$)`)
	reBlockTools = regexp.MustCompile(`(?:no\s+([a-z0-9_\-, ]+?)\s+access|block\s+([a-z0-9_\-, ]+?)(?:\.|$)|deny\s+([a-z0-9_\-, ]+?)(?:\.|$))`)
	reReadOnly   = regexp.MustCompile(`read[\s\-]?only`)
	reRatePerMin = regexp.MustCompile(`no more than\s+(\d+)\s+per\s+minute`)
	reRatePerHr  = regexp.MustCompile(`no more than\s+(\d+)\s+per\s+hour`)
	reTimeWindow = regexp.MustCompile(`only between\s+(\d{1,2}):?(\d{2})?\s+and\s+(\d{1,2}):?(\d{2})?\s*utc`)
	rePurpose    = regexp.MustCompile(`for\s+([a-z0-9_\- ]+?)\s+only`)
)

// Compile turns one rule's free text into zero or more constraints. A rule
// that matches no pattern compiles to an empty slice and is still stored
// as documentation; it simply never blocks a checkout.
func Compile(text string) []store.CompiledConstraint {
	norm := normalize(text)
	var out []store.CompiledConstraint

	if tools := extractToolList(norm, reOnlyTool, reOnlyAllow); len(tools) > 0 {
		out = append(out, store.CompiledConstraint{
			Kind:  store.ConstraintToolAllowlist,
			Tools: tools,
		})
	}

	if m := reBlockTools.FindStringSubmatch(norm); m != nil {
		raw := firstNonEmpty(m[1], m[2], m[3])
		if tools := splitList(raw); len(tools) > 0 {
			out = append(out, store.CompiledConstraint{
				Kind:  store.ConstraintToolDenylist,
				Tools: tools,
			})
		}
	}

	if reReadOnly.MatchString(norm) {
		out = append(out, store.CompiledConstraint{
			Kind:    store.ConstraintActionRestriction,
			Actions: []string{"read", "list", "get"},
		})
	}

	if m := reRatePerMin.FindStringSubmatch(norm); m != nil {
		out = append(out, store.CompiledConstraint{
			Kind:         store.ConstraintRateLimit,
			MaxPerMinute: atoiSafe(m[1]),
		})
	}
	if m := reRatePerHr.FindStringSubmatch(norm); m != nil {
		out = append(out, store.CompiledConstraint{
			Kind:       store.ConstraintRateLimit,
			MaxPerHour: atoiSafe(m[1]),
		})
	}

	if m := reTimeWindow.FindStringSubmatch(norm); m != nil {
		startH := atoiSafe(m[1])
		endH := atoiSafe(m[3])
		out = append(out, store.CompiledConstraint{
			Kind:                 store.ConstraintTimeWindow,
			AllowedHoursStartUTC: startH,
			AllowedHoursEndUTC:   endH,
		})
	}

	if m := rePurpose.FindStringSubmatch(norm); m != nil {
		purposes := splitList(m[1])
		if len(purposes) > 0 {
			out = append(out, store.CompiledConstraint{
				Kind:     store.ConstraintPurposeRestriction,
				Purposes: purposes,
			})
		}
	}

	return out
}

func extractToolList(norm string, patterns ...*regexp.Regexp) []string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(norm); m != nil {
			if tools := splitList(m[1]); len(tools) > 0 {
				return tools
			}
		}
	}
	return nil
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	raw = strings.ReplaceAll(raw, " and ", ",")
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
