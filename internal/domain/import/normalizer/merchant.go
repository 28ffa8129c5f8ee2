package normalizer

import (
	"regexp"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MerchantInfo is the sanitized form of a raw merchant or description string.
type MerchantInfo struct {
	OriginalName   string `json:"original_name"`
	NormalizedName string `json:"normalized_name"`
	Known          bool   `json:"known"` // matched a pattern or a known name
}

// MerchantPattern maps a regex over upper-cased text to a display name.
type MerchantPattern struct {
	Pattern *regexp.Regexp
	Name    string
}

// Fuzzy matching limits for the leading token of a merchant string.
const (
	minFuzzyTokenLen = 5
	maxFuzzyDistance = 2
)

var (
	refSuffix   = regexp.MustCompile(`\s+[#*]?\d{4,}$`)
	dateSuffix  = regexp.MustCompile(`\s+\d{1,2}/\d{1,2}(/\d{2,4})?$`)
	upiSegments = regexp.MustCompile(`^(UPI|IMPS|NEFT|RTGS)[/-]`)
	spaces      = regexp.MustCompile(`\s+`)
)

// MerchantSanitizer normalizes merchant names.
type MerchantSanitizer struct {
	patterns []MerchantPattern
	known    []string
	// knownFold holds known lower-cased; fuzzy distances are case sensitive.
	knownFold []string
}

// NewMerchantSanitizer creates a sanitizer with common merchant patterns.
func NewMerchantSanitizer() *MerchantSanitizer {
	patterns := defaultMerchantPatterns()
	s := &MerchantSanitizer{patterns: patterns}
	for _, p := range patterns {
		s.addKnown(p.Name)
	}
	return s
}

func (s *MerchantSanitizer) addKnown(name string) {
	s.known = append(s.known, name)
	s.knownFold = append(s.knownFold, strings.ToLower(name))
}

// Sanitize strips payment-rail noise and maps the result to a known merchant
// when possible; otherwise it returns the cleaned text in title case.
func (s *MerchantSanitizer) Sanitize(raw string) MerchantInfo {
	cleaned := cleanMerchantName(raw)
	info := MerchantInfo{OriginalName: raw, NormalizedName: cleaned}

	upper := strings.ToUpper(cleaned)
	for _, p := range s.patterns {
		if p.Pattern.MatchString(upper) {
			info.NormalizedName = p.Name
			info.Known = true
			return info
		}
	}

	if name, ok := s.fuzzyKnown(cleaned); ok {
		info.NormalizedName = name
		info.Known = true
		return info
	}

	// Casers are stateful, so each call gets its own.
	info.NormalizedName = cases.Title(language.Und).String(strings.ToLower(cleaned))
	return info
}

// AddPattern registers a custom merchant pattern.
func (s *MerchantSanitizer) AddPattern(pattern, name string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, MerchantPattern{Pattern: re, Name: name})
	s.addKnown(name)
	return nil
}

// fuzzyKnown matches the first word against known names, catching
// truncations like "STARBUCK" or "SWIGY".
func (s *MerchantSanitizer) fuzzyKnown(cleaned string) (string, bool) {
	fields := strings.Fields(cleaned)
	if len(fields) == 0 || len(fields[0]) < minFuzzyTokenLen {
		return "", false
	}

	ranks := fuzzy.RankFindNormalized(strings.ToLower(fields[0]), s.knownFold)
	if len(ranks) == 0 {
		return "", false
	}
	sort.Sort(ranks)
	if ranks[0].Distance > maxFuzzyDistance {
		return "", false
	}
	return s.known[ranks[0].OriginalIndex], true
}

// cleanMerchantName removes rail prefixes, references and trailing dates.
func cleanMerchantName(raw string) string {
	result := strings.TrimSpace(raw)

	if loc := upiSegments.FindStringIndex(strings.ToUpper(result)); loc != nil {
		rest := result[loc[1]:]
		// UPI/123456789/MERCHANT NAME/...: keep the first non-numeric segment.
		for _, seg := range strings.Split(rest, "/") {
			seg = strings.TrimSpace(seg)
			if seg != "" && strings.IndexFunc(seg, isLetter) >= 0 {
				result = seg
				break
			}
		}
	}

	prefixes := []string{
		"POS ", "PURCHASE ", "PAYMENT ", "CARD ", "DEBIT CARD ", "VISA ", "MASTERCARD ",
		"ACH ", "ECOM ", "BIL/", "BILLPAY ", "TRF ", "TRANSFER ",
	}
	upper := strings.ToUpper(result)
	for _, prefix := range prefixes {
		if strings.HasPrefix(upper, prefix) {
			result = result[len(prefix):]
			break
		}
	}

	result = refSuffix.ReplaceAllString(result, "")
	result = dateSuffix.ReplaceAllString(result, "")
	result = spaces.ReplaceAllString(result, " ")

	return strings.TrimSpace(result)
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func defaultMerchantPatterns() []MerchantPattern {
	return []MerchantPattern{
		{regexp.MustCompile(`AMAZON|AMZN`), "Amazon"},
		{regexp.MustCompile(`FLIPKART`), "Flipkart"},
		{regexp.MustCompile(`SWIGGY`), "Swiggy"},
		{regexp.MustCompile(`ZOMATO`), "Zomato"},
		{regexp.MustCompile(`STARBUCKS`), "Starbucks"},
		{regexp.MustCompile(`NETFLIX`), "Netflix"},
		{regexp.MustCompile(`SPOTIFY`), "Spotify"},
		{regexp.MustCompile(`UBER`), "Uber"},
		{regexp.MustCompile(`\bOLA\b|OLACABS`), "Ola"},
		{regexp.MustCompile(`BIGBASKET|BIG BASKET`), "BigBasket"},
		{regexp.MustCompile(`MYNTRA`), "Myntra"},
		{regexp.MustCompile(`PAYTM`), "Paytm"},
		{regexp.MustCompile(`AIRTEL`), "Airtel"},
		{regexp.MustCompile(`JIO\b|RELIANCE JIO`), "Jio"},
		{regexp.MustCompile(`IRCTC`), "IRCTC"},
		{regexp.MustCompile(`MCDONALD`), "McDonald's"},
		{regexp.MustCompile(`DOMINO`), "Domino's"},
		{regexp.MustCompile(`APPLE\.COM|ITUNES`), "Apple"},
		{regexp.MustCompile(`GOOGLE`), "Google"},
	}
}
