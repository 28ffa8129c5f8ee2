package categorization

import (
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Keyword scoring constants.
const (
	MinConfidence      = 0.3
	FallbackConfidence = 0.1
	FallbackCategory   = "Misc"

	keywordHit    = 1.0
	boundaryBonus = 0.5
	patternHit    = 1.0
)

// CategoryDef is one row of the keyword table.
type CategoryDef struct {
	Name     string
	GSTRate  float64 // default rate, percent
	Keywords []string
	Patterns []string
}

// DefaultCategories is the curated keyword table. Order matters: ties go to
// the category listed first.
var DefaultCategories = []CategoryDef{
	{"Food & Dining", 5, []string{"restaurant", "swiggy", "zomato", "coffee"}, []string{`\b(cafe|dine|dining|food)\b`}},
	{"Groceries", 5, []string{"grocery", "bigbasket", "supermarket", "blinkit"}, []string{`\b(mart|kirana)\b`}},
	{"Transportation", 5, []string{"uber", "ola", "metro", "fuel"}, []string{`\b(petrol|diesel|parking|toll)\b`}},
	{"Shopping", 18, []string{"amazon", "flipkart", "myntra", "mall"}, []string{`\b(store|shop)\b`}},
	{"Entertainment", 18, []string{"netflix", "spotify", "movie", "hotstar"}, []string{`\b(cinema|pvr|inox)\b`}},
	{"Utilities", 18, []string{"electricity", "broadband", "airtel", "jio"}, []string{`\b(water|gas) bill\b`}},
	{"Healthcare", 12, []string{"pharmacy", "hospital", "apollo", "clinic"}, []string{`\b(medic(al|ine)s?|doctor)\b`}},
	{"Travel", 12, []string{"flight", "irctc", "hotel", "makemytrip"}, []string{`\b(airlines?|railways?)\b`}},
	{"Education", 18, []string{"school", "tuition", "course", "udemy"}, []string{`\b(college|university)\b`}},
	{"Rent", 0, []string{"rent", "landlord", "lease", "nobroker"}, []string{`\bhouse\s*rent\b`}},
	{"Insurance", 18, []string{"insurance", "lic", "premium", "policybazaar"}, []string{`\bpolicy\b`}},
	{"Banking & Fees", 18, []string{"charges", "fee", "penalty", "atm"}, []string{`\b(annual|late|service)\s+(fee|charge)s?\b`}},
	{"Income", 0, []string{"salary", "interest", "dividend", "refund"}, []string{`\b(cashback|reversal)\b`}},
	{"Transfers", 0, []string{"transfer", "neft", "imps", "rtgs"}, []string{`\b(self|own)\s+(a/?c|account)\b`}},
	{"Investments", 0, []string{"mutual fund", "sip", "zerodha", "groww"}, []string{`\b(nse|bse|demat)\b`}},
	{"Taxes", 0, []string{"income tax", "gst payment", "tds", "advance tax"}, []string{`\bchallan\b`}},
}

type keywordRef struct {
	category int
	boundary *regexp.Regexp
}

type category struct {
	name     string
	gstRate  float64
	patterns []*regexp.Regexp
	maxScore float64
}

// Engine scores text against the keyword table. All keywords of all
// categories are found in one Aho-Corasick pass; patterns are regexes.
// Safe for concurrent use once built.
type Engine struct {
	matcher    *ahocorasick.Matcher
	keywords   [][]keywordRef // per dictionary entry; a keyword may belong to several categories
	categories []category
	defaults   map[string]float64
}

// NewEngine builds an engine from a table. Invalid patterns panic, since the
// table is static configuration.
func NewEngine(defs []CategoryDef) *Engine {
	e := &Engine{
		categories: make([]category, len(defs)),
		defaults:   make(map[string]float64, len(defs)+1),
	}
	e.defaults[FallbackCategory] = 0

	index := make(map[string]int)
	var dictionary [][]byte

	for i, def := range defs {
		c := category{
			name:     def.Name,
			gstRate:  def.GSTRate,
			maxScore: float64(len(def.Keywords) + len(def.Patterns)),
		}
		for _, p := range def.Patterns {
			c.patterns = append(c.patterns, regexp.MustCompile(`(?i)`+p))
		}
		e.categories[i] = c
		e.defaults[def.Name] = def.GSTRate

		for _, kw := range def.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			ref := keywordRef{
				category: i,
				boundary: regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`),
			}
			if idx, ok := index[kw]; ok {
				e.keywords[idx] = append(e.keywords[idx], ref)
				continue
			}
			index[kw] = len(dictionary)
			dictionary = append(dictionary, []byte(kw))
			e.keywords = append(e.keywords, []keywordRef{ref})
		}
	}

	if len(dictionary) > 0 {
		e.matcher = ahocorasick.NewMatcher(dictionary)
	}
	return e
}

// Score returns the best category for text with its confidence, or the Misc
// fallback when nothing reaches MinConfidence.
func (e *Engine) Score(text string) (string, float64) {
	lower := strings.ToLower(text)
	scores := make([]float64, len(e.categories))

	if e.matcher != nil {
		for _, idx := range e.matcher.MatchThreadSafe([]byte(lower)) {
			for _, ref := range e.keywords[idx] {
				scores[ref.category] += keywordHit
				if ref.boundary.MatchString(lower) {
					scores[ref.category] += boundaryBonus
				}
			}
		}
	}

	best, bestScore := -1, 0.0
	for i, c := range e.categories {
		for _, re := range c.patterns {
			if re.MatchString(lower) {
				scores[i] += patternHit
			}
		}
		if c.maxScore == 0 {
			continue
		}
		score := min(scores[i]/c.maxScore, 1)
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	// Tolerance keeps exact-threshold ratios such as 1.5/5 from rounding below.
	if best < 0 || bestScore+1e-9 < MinConfidence {
		return FallbackCategory, FallbackConfidence
	}
	return e.categories[best].name, bestScore
}

// DefaultGST returns the default rate for a category name.
func (e *Engine) DefaultGST(category string) (float64, bool) {
	rate, ok := e.defaults[category]
	return rate, ok
}

// Categories lists category names in table order.
func (e *Engine) Categories() []string {
	names := make([]string, len(e.categories))
	for i, c := range e.categories {
		names[i] = c.name
	}
	return names
}
