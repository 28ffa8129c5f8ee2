package categorization

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Rule is a user-authored categorization directive. Conditions hold one
// condition per line:
//
//	contains: netflix|prime video|hot*star
//	regex: ^ach .*insurance
//	swiggy
//
// A bare line behaves like contains.
type Rule struct {
	ID             string    `csv:"id" json:"id"`
	UserID         string    `csv:"user_id" json:"user_id"`
	Name           string    `csv:"name" json:"name"`
	Conditions     string    `csv:"conditions" json:"conditions"`
	TargetCategory string    `csv:"target_category" json:"target_category"`
	GSTRate        float64   `csv:"gst_rate" json:"gst_rate"`
	Active         bool      `csv:"active" json:"active"`
	Priority       int       `csv:"priority" json:"priority"`
	CreatedAt      time.Time `csv:"-" json:"created_at"`
}

// Diagnostic reports a condition line that can never match.
type Diagnostic struct {
	RuleID    string
	Line      int
	Condition string
	Err       error
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("rule %s line %d %q: %v", d.RuleID, d.Line, d.Condition, d.Err)
}

type compiledRule struct {
	rule       Rule
	conditions []*regexp.Regexp
}

// RuleSet is an ordered, compiled list of active rules. It is read-only after
// construction and safe to share between goroutines.
type RuleSet struct {
	rules       []compiledRule
	diagnostics []Diagnostic
}

// NewRuleSet compiles rules in the given order, skipping inactive ones.
// Invalid conditions are kept as non-matching and reported in Diagnostics.
func NewRuleSet(rules []Rule) *RuleSet {
	rs := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		if !r.Active {
			continue
		}
		cr := compiledRule{rule: r}
		for i, line := range strings.Split(r.Conditions, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			re, err := compileCondition(line)
			if err != nil {
				rs.diagnostics = append(rs.diagnostics, Diagnostic{RuleID: r.ID, Line: i + 1, Condition: line, Err: err})
				continue
			}
			if re != nil {
				cr.conditions = append(cr.conditions, re)
			}
		}
		rs.rules = append(rs.rules, cr)
	}
	return rs
}

// Len returns the number of active rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Diagnostics lists conditions that failed to compile.
func (rs *RuleSet) Diagnostics() []Diagnostic {
	if rs == nil {
		return nil
	}
	return rs.diagnostics
}

// Match returns the first rule with a satisfied condition line.
func (rs *RuleSet) Match(text string) (Rule, bool) {
	if rs == nil {
		return Rule{}, false
	}
	for _, cr := range rs.rules {
		for _, re := range cr.conditions {
			if re.MatchString(text) {
				return cr.rule, true
			}
		}
	}
	return Rule{}, false
}

// compileCondition turns one condition line into a case-insensitive regex.
// A nil regex with a nil error means the line has nothing to match on.
func compileCondition(line string) (*regexp.Regexp, error) {
	lower := strings.ToLower(line)
	switch {
	case strings.HasPrefix(lower, "regex:"):
		pattern := strings.TrimSpace(line[len("regex:"):])
		if pattern == "" {
			return nil, nil
		}
		return regexp.Compile(`(?i)` + pattern)
	case strings.HasPrefix(lower, "contains:"):
		return containsRegex(line[len("contains:"):])
	default:
		return containsRegex(line)
	}
}

// containsRegex ORs the '|' separated keywords; '*' matches any run of text.
func containsRegex(list string) (*regexp.Regexp, error) {
	var alts []string
	for _, kw := range strings.Split(list, "|") {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		alts = append(alts, strings.ReplaceAll(regexp.QuoteMeta(kw), `\*`, `.*`))
	}
	if len(alts) == 0 {
		return nil, nil
	}
	return regexp.Compile(`(?i)(?:` + strings.Join(alts, "|") + `)`)
}
