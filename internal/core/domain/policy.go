package domain

import "regexp"

// MatchKind tags how a MatchRule compares against a candidate value.
type MatchKind int

const (
	// MatchAny matches every candidate value unconditionally.
	MatchAny MatchKind = iota
	// MatchExact requires byte-equality with Value.
	MatchExact
	// MatchRegex requires Regex.MatchString(candidate) to succeed.
	MatchRegex
)

// MatchRule is a compiled matcher for one field of a CompiledRule. It is
// built once at policy load time; Match never re-parses or recompiles.
type MatchRule struct {
	Kind  MatchKind
	Value string
	Regex *regexp.Regexp
}

// AnyMatch returns a matcher that accepts every input.
func AnyMatch() MatchRule {
	return MatchRule{Kind: MatchAny}
}

// ExactMatch returns a matcher requiring byte-equality with value.
func ExactMatch(value string) MatchRule {
	return MatchRule{Kind: MatchExact, Value: value}
}

// CompileRegexMatch compiles pattern into a MatchRule; a bad pattern is a
// hard load error per spec.md §4.10.
func CompileRegexMatch(pattern string) (MatchRule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return MatchRule{}, err
	}
	return MatchRule{Kind: MatchRegex, Regex: re}, nil
}

// Match reports whether candidate satisfies the matcher.
func (m MatchRule) Match(candidate string) bool {
	switch m.Kind {
	case MatchAny:
		return true
	case MatchExact:
		return m.Value == candidate
	case MatchRegex:
		return m.Regex != nil && m.Regex.MatchString(candidate)
	default:
		return false
	}
}

// CompiledRule is one ordered entry of a CompiledPolicy. All three
// matchers must match for the rule to apply.
type CompiledRule struct {
	SpiffeID MatchRule
	Protocol MatchRule
	Method   MatchRule
	Allow    bool
}

// matches reports whether every matcher in r accepts the given
// candidates.
func (r CompiledRule) matches(spiffeID, protocol, method string) bool {
	return r.SpiffeID.Match(spiffeID) && r.Protocol.Match(protocol) && r.Method.Match(method)
}

// CompiledPolicy is the load-time-compiled form of an AccessPolicy:
// an ordered rule list plus the fallback default_action. Compilation is
// idempotent and is performed once, at load, by the policy adapter — this
// type never re-parses its inputs.
type CompiledPolicy struct {
	DefaultAction bool
	Rules         []CompiledRule
}

// NewCompiledPolicy builds a CompiledPolicy from already-compiled rules.
func NewCompiledPolicy(defaultAction bool, rules []CompiledRule) *CompiledPolicy {
	return &CompiledPolicy{DefaultAction: defaultAction, Rules: rules}
}

// Allow evaluates rules in source order; the first rule whose three
// matchers all match returns its Allow value. If no rule matches,
// DefaultAction is returned. protocol matching is case-insensitive by
// construction: callers pass protocol.String(), which is already
// lowercase.
func (p *CompiledPolicy) Allow(spiffeID, protocol, method string) bool {
	for _, rule := range p.Rules {
		if rule.matches(spiffeID, protocol, method) {
			return rule.Allow
		}
	}
	return p.DefaultAction
}
