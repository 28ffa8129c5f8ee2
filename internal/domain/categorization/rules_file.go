package categorization

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
)

// ruleRow is the CSV shape of a rule. Conditions may use a literal "\n" to
// separate lines; a blank active column means active.
type ruleRow struct {
	ID             string `csv:"id"`
	UserID         string `csv:"user_id"`
	Name           string `csv:"name"`
	Conditions     string `csv:"conditions"`
	TargetCategory string `csv:"target_category"`
	GSTRate        string `csv:"gst_rate"`
	Active         string `csv:"active"`
	Priority       string `csv:"priority"`
}

// LoadRulesFile reads rules for userID from a CSV file.
func LoadRulesFile(path, userID string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rules file: %w", err)
	}
	defer f.Close()
	return LoadRules(f, userID)
}

// LoadRules parses rules from CSV. Rows owned by other users and inactive rows
// are dropped; the rest are ordered by priority, keeping file order on ties.
func LoadRules(r io.Reader, userID string) ([]Rule, error) {
	var rows []ruleRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parsing rules CSV: %w", err)
	}

	rules := make([]Rule, 0, len(rows))
	for i, row := range rows {
		if row.UserID != "" && userID != "" && row.UserID != userID {
			continue
		}
		rule, err := row.toRule(userID)
		if err != nil {
			return nil, fmt.Errorf("rules CSV row %d: %w", i+1, err)
		}
		if !rule.Active {
			continue
		}
		if rule.ID == "" {
			rule.ID = "rule-" + strconv.Itoa(i+1)
		}
		rules = append(rules, rule)
	}

	sort.SliceStable(rules, func(a, b int) bool {
		return rules[a].Priority < rules[b].Priority
	})
	return rules, nil
}

func (row ruleRow) toRule(userID string) (Rule, error) {
	rule := Rule{
		ID:             strings.TrimSpace(row.ID),
		UserID:         row.UserID,
		Name:           strings.TrimSpace(row.Name),
		Conditions:     strings.ReplaceAll(row.Conditions, `\n`, "\n"),
		TargetCategory: strings.TrimSpace(row.TargetCategory),
		Active:         true,
	}
	if rule.UserID == "" {
		rule.UserID = userID
	}
	if rule.TargetCategory == "" {
		return Rule{}, fmt.Errorf("target_category is required")
	}

	if s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(row.GSTRate), "%")); s != "" {
		rate, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Rule{}, fmt.Errorf("invalid gst_rate %q", row.GSTRate)
		}
		rule.GSTRate = rate
	}
	if s := strings.TrimSpace(row.Active); s != "" {
		active, err := strconv.ParseBool(s)
		if err != nil {
			return Rule{}, fmt.Errorf("invalid active flag %q", row.Active)
		}
		rule.Active = active
	}
	if s := strings.TrimSpace(row.Priority); s != "" {
		p, err := strconv.Atoi(s)
		if err != nil {
			return Rule{}, fmt.Errorf("invalid priority %q", row.Priority)
		}
		rule.Priority = p
	}
	return rule, nil
}
