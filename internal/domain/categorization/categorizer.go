// Package categorization assigns a category and GST rate to transactions:
// user rules first, keyword scoring second.
package categorization

import "strings"

// MatchedBy records which tier produced a result.
type MatchedBy string

const (
	MatchedByRule    MatchedBy = "rule"
	MatchedByKeyword MatchedBy = "keyword"
)

// Result is the categorization outcome for one transaction.
type Result struct {
	Category   string    `json:"category"`
	GSTRate    float64   `json:"gst_rate"`
	Confidence float64   `json:"confidence"`
	MatchedBy  MatchedBy `json:"matched_by"`
	RuleID     string    `json:"rule_id,omitempty"`
}

// Categorizer combines a rule set with the keyword engine.
type Categorizer struct {
	engine *Engine
}

// NewCategorizer creates a categorizer over the default keyword table.
func NewCategorizer() *Categorizer {
	return &Categorizer{engine: NewEngine(DefaultCategories)}
}

// NewCategorizerWithEngine creates a categorizer over a custom table.
func NewCategorizerWithEngine(e *Engine) *Categorizer {
	return &Categorizer{engine: e}
}

// Categorize never fails: the worst case is Misc at FallbackConfidence.
// rate is the row's own GST rate, if the file had one.
func (c *Categorizer) Categorize(description, merchant string, rate *float64, rules *RuleSet) Result {
	text := strings.TrimSpace(description + " " + merchant)

	if rule, ok := rules.Match(text); ok {
		return Result{
			Category:   rule.TargetCategory,
			GSTRate:    rule.GSTRate,
			Confidence: 1.0,
			MatchedBy:  MatchedByRule,
			RuleID:     rule.ID,
		}
	}

	name, confidence := c.engine.Score(text)
	result := Result{
		Category:   name,
		Confidence: confidence,
		MatchedBy:  MatchedByKeyword,
	}
	if rate != nil {
		result.GSTRate = *rate
	} else {
		result.GSTRate, _ = c.engine.DefaultGST(name)
	}
	return result
}
