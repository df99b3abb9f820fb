// Package taxonomy defines the closed set of moderation categories and the
// validation that maps free-text candidates onto it.
package taxonomy

import "strings"

// Category is one of the fixed moderation labels.
type Category string

const (
	Clean              Category = "clean"
	ViolenceOrThreats  Category = "violence_or_threats"
	HarassmentOrHate   Category = "harassment_or_hate"
	SexualContent      Category = "sexual_content"
	SpamOrScams        Category = "spam_or_scams"
	SelfHarmOrSuicide  Category = "self_harm_or_suicide"
)

// Taxonomy is the closed category set. The member order is the unsafe-priority
// order used when an upstream answer mentions more than one category; it is
// data, not a hardcoded rule.
type Taxonomy struct {
	members  []Category
	memberOf map[Category]struct{}
	fallback Category
}

// Default returns the six-member moderation taxonomy with "clean" as the
// fallback member.
func Default() *Taxonomy {
	return New([]Category{
		ViolenceOrThreats,
		SelfHarmOrSuicide,
		SexualContent,
		HarassmentOrHate,
		SpamOrScams,
		Clean,
	}, Clean)
}

// New builds a taxonomy from the given members in priority order. The fallback
// must be a member; if it is not, it is appended.
func New(members []Category, fallback Category) *Taxonomy {
	t := &Taxonomy{
		members:  make([]Category, 0, len(members)),
		memberOf: make(map[Category]struct{}, len(members)),
		fallback: fallback,
	}
	for _, m := range members {
		if _, dup := t.memberOf[m]; dup {
			continue
		}
		t.members = append(t.members, m)
		t.memberOf[m] = struct{}{}
	}
	if _, ok := t.memberOf[fallback]; !ok {
		t.members = append(t.members, fallback)
		t.memberOf[fallback] = struct{}{}
	}
	return t
}

// Members returns the categories in priority order.
func (t *Taxonomy) Members() []Category {
	out := make([]Category, len(t.members))
	copy(out, t.members)
	return out
}

// Fallback returns the benign member used when a candidate cannot be mapped.
func (t *Taxonomy) Fallback() Category {
	return t.fallback
}

// Size returns the number of members.
func (t *Taxonomy) Size() int {
	return len(t.members)
}

// Validate normalizes a free-text candidate (case, surrounding space) and
// reports whether it names a member. The returned category is the fallback
// when the candidate is not a member.
func (t *Taxonomy) Validate(candidate string) (Category, bool) {
	normalized := Category(strings.ToLower(strings.TrimSpace(candidate)))
	if _, ok := t.memberOf[normalized]; ok {
		return normalized, true
	}
	return t.fallback, false
}

// Contains reports whether c is a member without normalization.
func (t *Taxonomy) Contains(c Category) bool {
	_, ok := t.memberOf[c]
	return ok
}
