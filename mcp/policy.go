package mcp

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// Decision is the outcome of a tool policy check.
type Decision int

const (
	Allow Decision = iota // Tool is visible and callable
	Deny                  // Tool is hidden from the catalog and rejected by Call
)

func (d Decision) String() string {
	if d == Deny {
		return "deny"
	}
	return "allow"
}

// Rule is a declarative policy rule matched against qualified tool names.
type Rule struct {
	Pattern  string   `json:"pattern" yaml:"pattern"` // doublestar glob, e.g. "github.delete_*", "**"
	Decision Decision `json:"decision" yaml:"decision"`
}

// Policy filters the tool catalog. Deny rules win over allow rules. When
// any allow rule exists, tools matching none of them are denied.
type Policy struct {
	Rules []Rule
}

// AllowAll is the zero policy: every tool is permitted.
var AllowAll = Policy{}

// Evaluate returns the decision for a qualified tool name.
func (p Policy) Evaluate(qualifiedName string) Decision {
	var hasAllowRule, allowed bool
	for _, r := range p.Rules {
		ok, err := doublestar.Match(r.Pattern, qualifiedName)
		if err != nil {
			ok = false
		}
		switch r.Decision {
		case Deny:
			if ok {
				return Deny
			}
		case Allow:
			hasAllowRule = true
			if ok {
				allowed = true
			}
		}
	}
	if hasAllowRule && !allowed {
		return Deny
	}
	return Allow
}

// Valid reports the first malformed pattern, if any.
func (p Policy) Valid() error {
	for _, r := range p.Rules {
		if !doublestar.ValidatePattern(r.Pattern) {
			return &InvalidPatternError{Pattern: r.Pattern}
		}
	}
	return nil
}

// InvalidPatternError reports a malformed glob in a policy rule.
type InvalidPatternError struct {
	Pattern string
}

func (e *InvalidPatternError) Error() string {
	return "mcp: invalid policy pattern " + e.Pattern
}

func (e *InvalidPatternError) Unwrap() error { return ErrInvalidConfig }

// ParseDecision maps "allow" and "deny" to a Decision.
func ParseDecision(s string) (Decision, bool) {
	switch s {
	case "allow":
		return Allow, true
	case "deny":
		return Deny, true
	}
	return Allow, false
}

func (d Decision) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Decision) UnmarshalText(text []byte) error {
	v, ok := ParseDecision(string(text))
	if !ok {
		return fmt.Errorf("%w: unknown decision %q", ErrInvalidConfig, text)
	}
	*d = v
	return nil
}
