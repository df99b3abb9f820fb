package prompt

import (
	"regexp"
	"strings"

	"github.com/dolr-ai/content-moderation-sub000/internal/taxonomy"
)

// Outcome tags how a generated answer mapped onto the taxonomy. A fallback is
// never conflated with a genuine clean classification.
type Outcome string

const (
	// OutcomeOK means the answer named a valid category.
	OutcomeOK Outcome = "ok"
	// OutcomeInvalidCategory means the Category field matched but named a
	// token outside the taxonomy; the category fell back to clean.
	OutcomeInvalidCategory Outcome = "invalid_category"
	// OutcomeNoMatch means no Category field was found at all; the category
	// fell back to clean and ParseFailed is set.
	OutcomeNoMatch Outcome = "no_match"
	// OutcomeThresholdDowngrade means a valid non-clean answer was downgraded
	// to clean because its confidence fell below the configured threshold.
	OutcomeThresholdDowngrade Outcome = "threshold_downgrade"
)

// Confidence anchors for the closed HIGH/MEDIUM/LOW vocabulary.
const (
	ConfidenceHigh   = 0.9
	ConfidenceMedium = 0.6
	ConfidenceLow    = 0.3
)

// Parsed is the total result of parsing a generated answer. Category is
// always a taxonomy member.
type Parsed struct {
	Category    taxonomy.Category
	Confidence  float64
	Explanation string
	Outcome     Outcome
	ParseFailed bool
}

var (
	categoryPattern    = regexp.MustCompile(`(?i)category\s*:\s*([a-zA-Z]+(?:_[a-zA-Z]+)*)`)
	confidencePattern  = regexp.MustCompile(`(?i)confidence\s*:\s*(high|medium|low)`)
	explanationPattern = regexp.MustCompile(`(?i)explanation\s*:\s*(.+)`)
)

// Parser maps any generated string onto a valid taxonomy member plus an
// outcome tag. It never fails: an unreadable answer degrades to the fallback
// category rather than erroring, because a best-effort label is more useful
// than a hard failure at this terminal stage.
type Parser struct {
	tax *taxonomy.Taxonomy
}

// NewParser creates a parser validating against the given taxonomy.
func NewParser(tax *taxonomy.Taxonomy) *Parser {
	return &Parser{tax: tax}
}

// Parse extracts category, confidence and explanation from raw generated
// text. The first Category mention wins when the answer contains several.
// Absent confidence defaults to the lowest tier.
func (p *Parser) Parse(raw string) Parsed {
	parsed := Parsed{
		Category:   p.tax.Fallback(),
		Confidence: ConfidenceLow,
	}

	if m := confidencePattern.FindStringSubmatch(raw); m != nil {
		switch strings.ToLower(m[1]) {
		case "high":
			parsed.Confidence = ConfidenceHigh
		case "medium":
			parsed.Confidence = ConfidenceMedium
		case "low":
			parsed.Confidence = ConfidenceLow
		}
	}

	if m := explanationPattern.FindStringSubmatch(raw); m != nil {
		parsed.Explanation = strings.TrimSpace(strings.SplitN(m[1], "\n", 2)[0])
	}

	m := categoryPattern.FindStringSubmatch(raw)
	if m == nil {
		parsed.Outcome = OutcomeNoMatch
		parsed.ParseFailed = true
		return parsed
	}

	category, ok := p.tax.Validate(m[1])
	if !ok {
		parsed.Outcome = OutcomeInvalidCategory
		return parsed
	}

	parsed.Category = category
	parsed.Outcome = OutcomeOK
	return parsed
}

// ApplyThreshold is the named post-processing step downgrading a non-clean
// prediction to the fallback when its confidence falls below threshold. A
// threshold of 0 disables the policy. Fallback outcomes pass through
// untouched so their tags stay observable.
func (p *Parser) ApplyThreshold(parsed Parsed, threshold float64) Parsed {
	if threshold <= 0 || parsed.Outcome != OutcomeOK {
		return parsed
	}
	if parsed.Category == p.tax.Fallback() || parsed.Confidence >= threshold {
		return parsed
	}
	parsed.Category = p.tax.Fallback()
	parsed.Outcome = OutcomeThresholdDowngrade
	return parsed
}
