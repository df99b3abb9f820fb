// Package loadtest drives many concurrent classify calls against a corpus
// and aggregates throughput, latency, error and accuracy metrics, per level
// of a concurrency sweep.
package loadtest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dolr-ai/content-moderation-sub000/internal/taxonomy"
)

// CategoryAccuracy accumulates correct/total for one ground-truth category.
type CategoryAccuracy struct {
	Correct int     `json:"correct"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// Metrics is the aggregate for one load-test run at one concurrency level.
type Metrics struct {
	Concurrency       int           `json:"concurrency_level"`
	Duration          time.Duration `json:"-"`
	DurationSeconds   float64       `json:"duration_seconds"`
	TotalRequests     int           `json:"total_requests"`
	Errors            int           `json:"errors"`
	ParseDegraded     int           `json:"parse_degraded"`
	RequestsPerSecond float64       `json:"requests_per_second"`
	ErrorRate         float64       `json:"error_rate"`

	LatencyP50MS float64 `json:"latency_p50_ms"`
	LatencyP95MS float64 `json:"latency_p95_ms"`
	LatencyP99MS float64 `json:"latency_p99_ms"`

	// Accuracy fields are present only when the corpus carried labels.
	Accuracy            *float64                               `json:"accuracy,omitempty"`
	PerCategoryAccuracy map[taxonomy.Category]CategoryAccuracy `json:"per_category_accuracy,omitempty"`
}

// percentile returns the p-th percentile of sorted latencies.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p/100*float64(len(sorted))+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// collector accumulates per-request observations. Incremental so a run never
// needs more memory than one latency per request.
type collector struct {
	latencies []time.Duration
	errors    int
	degraded  int
	correct   map[taxonomy.Category]*CategoryAccuracy
	labeled   bool
}

func newCollector() *collector {
	return &collector{correct: make(map[taxonomy.Category]*CategoryAccuracy)}
}

func (c *collector) observe(latency time.Duration, err error, degraded bool, label, predicted taxonomy.Category) {
	if err != nil {
		c.errors++
		return
	}
	c.latencies = append(c.latencies, latency)
	if degraded {
		c.degraded++
	}
	if label != "" {
		c.labeled = true
		acc, ok := c.correct[label]
		if !ok {
			acc = &CategoryAccuracy{}
			c.correct[label] = acc
		}
		acc.Total++
		if predicted == label {
			acc.Correct++
		}
	}
}

// finalize turns the accumulated observations into a Metrics value.
func (c *collector) finalize(concurrency int, elapsed time.Duration) *Metrics {
	sorted := make([]time.Duration, len(c.latencies))
	copy(sorted, c.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	total := len(c.latencies) + c.errors
	m := &Metrics{
		Concurrency:     concurrency,
		Duration:        elapsed,
		DurationSeconds: elapsed.Seconds(),
		TotalRequests:   total,
		Errors:          c.errors,
		ParseDegraded:   c.degraded,
		LatencyP50MS:    float64(percentile(sorted, 50)) / float64(time.Millisecond),
		LatencyP95MS:    float64(percentile(sorted, 95)) / float64(time.Millisecond),
		LatencyP99MS:    float64(percentile(sorted, 99)) / float64(time.Millisecond),
	}
	if elapsed > 0 {
		m.RequestsPerSecond = float64(total) / elapsed.Seconds()
	}
	if total > 0 {
		m.ErrorRate = float64(c.errors) / float64(total)
	}

	if c.labeled {
		perCategory := make(map[taxonomy.Category]CategoryAccuracy, len(c.correct))
		var correct, counted int
		for cat, acc := range c.correct {
			snapshot := *acc
			if snapshot.Total > 0 {
				snapshot.Percent = float64(snapshot.Correct) / float64(snapshot.Total) * 100
			}
			perCategory[cat] = snapshot
			correct += snapshot.Correct
			counted += snapshot.Total
		}
		if counted > 0 {
			overall := float64(correct) / float64(counted) * 100
			m.Accuracy = &overall
		}
		m.PerCategoryAccuracy = perCategory
	}

	return m
}

// SaveMetrics writes one run's metrics to a timestamped JSON file in dir and
// returns the path.
func SaveMetrics(dir string, m *Metrics) (string, error) {
	timestamp := time.Now().Format("20060102_150405")
	random := uuid.New().String()[:8]
	path := fmt.Sprintf("%s/metrics_%s_%s.json", dir, timestamp, random)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// SaveScalingReport writes the full sweep, keyed in requested level order.
func SaveScalingReport(path string, levels []*Metrics) error {
	data, err := json.MarshalIndent(levels, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
