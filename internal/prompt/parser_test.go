package prompt

import (
	"testing"

	"github.com/dolr-ai/content-moderation-sub000/internal/taxonomy"
)

func newParser() *Parser {
	return NewParser(taxonomy.Default())
}

func TestParse_WellFormedAnswer(t *testing.T) {
	p := newParser()
	got := p.Parse("Category: spam_or_scams\nConfidence: HIGH\nExplanation: obvious advertising")

	if got.Category != taxonomy.SpamOrScams {
		t.Errorf("Expected spam_or_scams, got %q", got.Category)
	}
	if got.Confidence != ConfidenceHigh {
		t.Errorf("Expected confidence %f, got %f", ConfidenceHigh, got.Confidence)
	}
	if got.Explanation != "obvious advertising" {
		t.Errorf("Unexpected explanation %q", got.Explanation)
	}
	if got.Outcome != OutcomeOK || got.ParseFailed {
		t.Errorf("Expected ok outcome, got %q (parse_failed=%v)", got.Outcome, got.ParseFailed)
	}
}

func TestParse_CaseInsensitive(t *testing.T) {
	p := newParser()
	got := p.Parse("CATEGORY: Violence_Or_Threats\nconfidence: medium")

	if got.Category != taxonomy.ViolenceOrThreats {
		t.Errorf("Expected violence_or_threats, got %q", got.Category)
	}
	if got.Confidence != ConfidenceMedium {
		t.Errorf("Expected medium confidence, got %f", got.Confidence)
	}
}

func TestParse_InvalidCategoryFallsBack(t *testing.T) {
	p := newParser()
	got := p.Parse("Category: NotARealCategory\nConfidence: LOW")

	if got.Category != taxonomy.Clean {
		t.Errorf("Expected fallback clean, got %q", got.Category)
	}
	if got.Confidence != ConfidenceLow {
		t.Errorf("Expected low confidence, got %f", got.Confidence)
	}
	// The pattern matched, so this is not a parse failure.
	if got.ParseFailed {
		t.Error("Expected parse_failed=false for a matched but invalid token")
	}
	if got.Outcome != OutcomeInvalidCategory {
		t.Errorf("Expected invalid_category outcome, got %q", got.Outcome)
	}
}

func TestParse_NoMatchAtAll(t *testing.T) {
	p := newParser()
	for _, raw := range []string{"", "the model rambled about nothing", "分類できません"} {
		got := p.Parse(raw)
		if got.Category != taxonomy.Clean {
			t.Errorf("Parse(%q): expected fallback clean, got %q", raw, got.Category)
		}
		if !got.ParseFailed || got.Outcome != OutcomeNoMatch {
			t.Errorf("Parse(%q): expected no_match with parse_failed, got %q", raw, got.Outcome)
		}
		if got.Confidence != ConfidenceLow {
			t.Errorf("Parse(%q): expected default low confidence, got %f", raw, got.Confidence)
		}
	}
}

func TestParse_FirstCategoryMentionWins(t *testing.T) {
	p := newParser()
	got := p.Parse("Category: harassment_or_hate\nActually, Category: clean")
	if got.Category != taxonomy.HarassmentOrHate {
		t.Errorf("Expected first mention to win, got %q", got.Category)
	}
}

func TestParse_AlwaysReturnsTaxonomyMember(t *testing.T) {
	p := newParser()
	tax := taxonomy.Default()
	inputs := []string{
		"Category: clean",
		"Category: ",
		"Category: sp4m",
		"category:spam_or_scams",
		"Confidence: HIGH",
		"\x00\xff garbage bytes",
	}
	for _, raw := range inputs {
		got := p.Parse(raw)
		if !tax.Contains(got.Category) {
			t.Errorf("Parse(%q) returned out-of-taxonomy category %q", raw, got.Category)
		}
		// Idempotent: re-parsing structured output of the category is stable.
		again := p.Parse("Category: " + string(got.Category))
		if again.Category != got.Category {
			t.Errorf("Parse not idempotent for %q: %q then %q", raw, got.Category, again.Category)
		}
	}
}

func TestApplyThreshold_DowngradesLowConfidence(t *testing.T) {
	p := newParser()
	parsed := p.Parse("Category: spam_or_scams\nConfidence: LOW")

	got := p.ApplyThreshold(parsed, 0.5)
	if got.Category != taxonomy.Clean {
		t.Errorf("Expected downgrade to clean, got %q", got.Category)
	}
	if got.Outcome != OutcomeThresholdDowngrade {
		t.Errorf("Expected threshold_downgrade outcome, got %q", got.Outcome)
	}
}

func TestApplyThreshold_Disabled(t *testing.T) {
	p := newParser()
	parsed := p.Parse("Category: spam_or_scams\nConfidence: LOW")

	got := p.ApplyThreshold(parsed, 0)
	if got.Category != taxonomy.SpamOrScams {
		t.Errorf("Expected no downgrade with threshold 0, got %q", got.Category)
	}
}

func TestApplyThreshold_HighConfidenceUntouched(t *testing.T) {
	p := newParser()
	parsed := p.Parse("Category: spam_or_scams\nConfidence: HIGH")

	got := p.ApplyThreshold(parsed, 0.5)
	if got.Category != taxonomy.SpamOrScams || got.Outcome != OutcomeOK {
		t.Errorf("Expected untouched result, got %q (%q)", got.Category, got.Outcome)
	}
}

func TestApplyThreshold_FallbackOutcomePassesThrough(t *testing.T) {
	p := newParser()
	parsed := p.Parse("no category here")

	got := p.ApplyThreshold(parsed, 0.99)
	if got.Outcome != OutcomeNoMatch {
		t.Errorf("Expected no_match preserved, got %q", got.Outcome)
	}
}
