package loadtest

import (
	"math/rand"
	"sort"

	"github.com/dolr-ai/content-moderation-sub000/internal/taxonomy"
)

// Sample draws n items uniformly without replacement. n larger than the
// corpus returns a shuffled copy of the whole corpus.
func Sample(corpus []CorpusItem, n int, rng *rand.Rand) []CorpusItem {
	if n >= len(corpus) {
		n = len(corpus)
	}
	shuffled := make([]CorpusItem, len(corpus))
	copy(shuffled, corpus)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n]
}

// StratifiedSample draws n items proportionally per ground-truth category,
// so minority categories keep their share of the subset. Unlabeled items
// form their own stratum. Rounding remainders go to the largest strata
// first; the result size is exactly min(n, len(corpus)).
func StratifiedSample(corpus []CorpusItem, n int, rng *rand.Rand) []CorpusItem {
	if n >= len(corpus) {
		return Sample(corpus, n, rng)
	}

	strata := make(map[taxonomy.Category][]CorpusItem)
	var order []taxonomy.Category
	for _, item := range corpus {
		if _, seen := strata[item.Label]; !seen {
			order = append(order, item.Label)
		}
		strata[item.Label] = append(strata[item.Label], item)
	}

	// Largest strata first so remainder seats land on them.
	sort.SliceStable(order, func(i, j int) bool {
		return len(strata[order[i]]) > len(strata[order[j]])
	})

	result := make([]CorpusItem, 0, n)
	var leftovers []CorpusItem
	remaining := n
	total := len(corpus)
	for idx, cat := range order {
		items := strata[cat]
		share := n * len(items) / total
		if share < 1 {
			share = 1
		}
		if share > remaining {
			share = remaining
		}
		// Last stratum absorbs whatever is left, up to its size.
		if idx == len(order)-1 && share < remaining {
			share = remaining
			if share > len(items) {
				share = len(items)
			}
		}
		shuffled := make([]CorpusItem, len(items))
		copy(shuffled, items)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		result = append(result, shuffled[:share]...)
		leftovers = append(leftovers, shuffled[share:]...)
		remaining -= share
	}

	// Rounding can leave seats unfilled; fill them from the unpicked
	// remainder so the sample stays without replacement.
	if remaining > 0 {
		result = append(result, Sample(leftovers, remaining, rng)...)
	}

	rng.Shuffle(len(result), func(i, j int) {
		result[i], result[j] = result[j], result[i]
	})
	return result
}
