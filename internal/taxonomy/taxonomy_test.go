package taxonomy

import "testing"

func TestValidate_KnownMember(t *testing.T) {
	tax := Default()

	got, ok := tax.Validate("spam_or_scams")
	if !ok {
		t.Error("Expected spam_or_scams to validate")
	}
	if got != SpamOrScams {
		t.Errorf("Expected %q, got %q", SpamOrScams, got)
	}
}

func TestValidate_NormalizesCaseAndSpace(t *testing.T) {
	tax := Default()

	got, ok := tax.Validate("  Violence_Or_Threats \n")
	if !ok {
		t.Error("Expected normalized candidate to validate")
	}
	if got != ViolenceOrThreats {
		t.Errorf("Expected %q, got %q", ViolenceOrThreats, got)
	}
}

func TestValidate_UnknownFallsBack(t *testing.T) {
	tax := Default()

	got, ok := tax.Validate("NotARealCategory")
	if ok {
		t.Error("Expected unknown candidate to fail validation")
	}
	if got != Clean {
		t.Errorf("Expected fallback %q, got %q", Clean, got)
	}
}

func TestValidate_EmptyFallsBack(t *testing.T) {
	tax := Default()

	got, ok := tax.Validate("")
	if ok {
		t.Error("Expected empty candidate to fail validation")
	}
	if got != Clean {
		t.Errorf("Expected fallback %q, got %q", Clean, got)
	}
}

func TestNew_DeduplicatesAndAppendsFallback(t *testing.T) {
	tax := New([]Category{SpamOrScams, SpamOrScams}, Clean)

	if tax.Size() != 2 {
		t.Errorf("Expected 2 members, got %d", tax.Size())
	}
	if !tax.Contains(Clean) {
		t.Error("Expected fallback to be appended as a member")
	}
}

func TestMembers_PreservesPriorityOrder(t *testing.T) {
	order := []Category{ViolenceOrThreats, SexualContent, Clean}
	tax := New(order, Clean)

	members := tax.Members()
	if len(members) != len(order) {
		t.Fatalf("Expected %d members, got %d", len(order), len(members))
	}
	for i, m := range members {
		if m != order[i] {
			t.Errorf("Member %d: expected %q, got %q", i, order[i], m)
		}
	}
}
