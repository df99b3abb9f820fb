package main

import (
	"strings"
	"testing"

	"github.com/dolr-ai/content-moderation-sub000/internal/loadtest"
)

func TestPrintTable_AccuracyNotRescaled(t *testing.T) {
	perfect := 100.0
	results := []*loadtest.Metrics{
		{Concurrency: 4, RequestsPerSecond: 50, LatencyP50MS: 10, LatencyP95MS: 20, LatencyP99MS: 30, Accuracy: &perfect},
	}

	var sb strings.Builder
	printTable(&sb, results)
	out := sb.String()

	if !strings.Contains(out, "100.0%") {
		t.Errorf("Expected 100.0%% in table, got:\n%s", out)
	}
	if strings.Contains(out, "10000.0%") {
		t.Errorf("Accuracy was rescaled:\n%s", out)
	}
}

func TestPrintTable_UnlabeledCorpus(t *testing.T) {
	var sb strings.Builder
	printTable(&sb, []*loadtest.Metrics{{Concurrency: 1}})
	if !strings.Contains(sb.String(), "n/a") {
		t.Errorf("Expected n/a accuracy for unlabeled corpus, got:\n%s", sb.String())
	}
}

func TestParseLevels(t *testing.T) {
	levels, err := parseLevels("1, 4,16")
	if err != nil {
		t.Fatalf("parseLevels failed: %v", err)
	}
	if len(levels) != 3 || levels[0] != 1 || levels[1] != 4 || levels[2] != 16 {
		t.Errorf("Expected [1 4 16], got %v", levels)
	}

	for _, bad := range []string{"", "0", "a", "4,-1"} {
		if _, err := parseLevels(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}
