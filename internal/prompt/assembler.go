// Package prompt renders classification prompts and parses generated answers
// back into taxonomy members. Both halves are pure: no network, no clocks.
package prompt

import (
	"fmt"
	"strings"

	"github.com/dolr-ai/content-moderation-sub000/internal/index"
	"github.com/dolr-ai/content-moderation-sub000/internal/taxonomy"
)

// DefaultMaxTextLength caps query and example text before substitution.
const DefaultMaxTextLength = 2000

// Assembler renders the instruction template with retrieved examples and the
// query text.
type Assembler struct {
	maxTextLength int
}

// NewAssembler creates an assembler truncating texts to maxTextLength
// characters; values below 1 use the default.
func NewAssembler(maxTextLength int) *Assembler {
	if maxTextLength < 1 {
		maxTextLength = DefaultMaxTextLength
	}
	return &Assembler{maxTextLength: maxTextLength}
}

// SystemPrompt returns the fixed instruction block listing the taxonomy
// members and the expected answer shape.
func SystemPrompt(tax *taxonomy.Taxonomy) string {
	var b strings.Builder
	b.WriteString("You are a content moderation classifier. ")
	b.WriteString("Classify the given text into exactly one of these categories:\n")
	for _, m := range tax.Members() {
		fmt.Fprintf(&b, "- %s\n", m)
	}
	b.WriteString("\nUse the labeled examples as guidance. Respond in exactly this format:\n")
	b.WriteString("Category: <category>\n")
	b.WriteString("Confidence: HIGH|MEDIUM|LOW\n")
	b.WriteString("Explanation: <one sentence>")
	return b.String()
}

// Assemble renders the user prompt. Examples must already be ordered by
// ascending distance; they are rendered nearest first, which is part of the
// contract because few-shot ordering affects model output.
func (a *Assembler) Assemble(query string, examples []index.RetrievedExample) string {
	var b strings.Builder
	if len(examples) > 0 {
		b.WriteString("Here are similar texts that were previously labeled:\n\n")
		for i, ex := range examples {
			fmt.Fprintf(&b, "Example %d (%s): %s\n", i+1, ex.Category, Truncate(ex.Text, a.maxTextLength))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Classify this text:\n%s", Truncate(query, a.maxTextLength))
	return b.String()
}

// Truncate cuts s to at most max characters without ever splitting a
// multi-byte code point.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}
