// Command loadtest drives concurrent classify traffic against a running
// server and writes throughput, latency and accuracy reports.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dolr-ai/content-moderation-sub000/internal/loadtest"
	"github.com/dolr-ai/content-moderation-sub000/internal/logging"
	"github.com/dolr-ai/content-moderation-sub000/internal/taxonomy"
)

type options struct {
	serverURL   string
	corpusPath  string
	concurrency string
	duration    time.Duration
	rampUp      time.Duration
	cooldown    time.Duration
	sampleSize  int
	stratified  bool
	apiKey      string
	maxRate     float64
	outputDir   string
	logLevel    string
}

func main() {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Load-test the classification server over a labeled corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.serverURL, "server", "http://localhost:8080", "base URL of the classification server")
	flags.StringVar(&opts.corpusPath, "corpus", "", "labeled JSONL corpus (required)")
	flags.StringVar(&opts.concurrency, "concurrency", "8", "concurrency level, or comma-separated sweep (e.g. 1,4,16)")
	flags.DurationVar(&opts.duration, "duration", 30*time.Second, "duration per concurrency level")
	flags.DurationVar(&opts.rampUp, "ramp-up", 5*time.Second, "time over which workers start")
	flags.DurationVar(&opts.cooldown, "cooldown", 3*time.Second, "pause between sweep levels")
	flags.IntVar(&opts.sampleSize, "sample", 0, "sample this many corpus items (0 uses the whole corpus)")
	flags.BoolVar(&opts.stratified, "stratified", false, "keep per-category proportions when sampling")
	flags.StringVar(&opts.apiKey, "api-key", "", "bearer token for the server, if any")
	flags.Float64Var(&opts.maxRate, "max-rate", 0, "global request rate cap in req/s (0 disables)")
	flags.StringVar(&opts.outputDir, "output", ".", "directory for metrics and scaling report files")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level")
	cmd.MarkFlagRequired("corpus")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options) error {
	logger, err := logging.New(opts.logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	levels, err := parseLevels(opts.concurrency)
	if err != nil {
		return err
	}

	corpus, err := loadCorpus(opts.corpusPath)
	if err != nil {
		return err
	}
	if opts.sampleSize > 0 {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		if opts.stratified {
			corpus = loadtest.StratifiedSample(corpus, opts.sampleSize, rng)
		} else {
			corpus = loadtest.Sample(corpus, opts.sampleSize, rng)
		}
	}
	logger.Info("corpus ready", zap.Int("items", len(corpus)), zap.Ints("levels", levels))

	classify := newHTTPClassify(opts.serverURL, opts.apiKey)
	harness, err := loadtest.New(classify, corpus, opts.maxRate, logger)
	if err != nil {
		return err
	}

	results, err := harness.RunScaling(ctx, levels, opts.duration, opts.rampUp, opts.cooldown)
	if err != nil {
		return err
	}

	for _, m := range results {
		path, err := loadtest.SaveMetrics(opts.outputDir, m)
		if err != nil {
			return err
		}
		logger.Info("metrics written", zap.String("path", path), zap.Int("concurrency", m.Concurrency))
	}
	if len(results) > 1 {
		reportPath := fmt.Sprintf("%s/scaling_report_%s.json", opts.outputDir, time.Now().Format("20060102_150405"))
		if err := loadtest.SaveScalingReport(reportPath, results); err != nil {
			return err
		}
		logger.Info("scaling report written", zap.String("path", reportPath))
	}

	printTable(os.Stdout, results)
	return nil
}

func parseLevels(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	levels := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid concurrency level %q", p)
		}
		levels = append(levels, n)
	}
	return levels, nil
}

func loadCorpus(path string) ([]loadtest.CorpusItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var items []loadtest.CorpusItem
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var item loadtest.CorpusItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("corpus line %d: %w", line, err)
		}
		if item.Text == "" {
			return nil, fmt.Errorf("corpus line %d: missing text", line)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type classifyWire struct {
	Category taxonomy.Category `json:"category"`
	Outcome  string            `json:"outcome"`
}

type errorWire struct {
	Error string `json:"error"`
	Stage string `json:"stage"`
}

// newHTTPClassify builds the driver that posts one corpus item to the
// server's classify endpoint and maps the response to a prediction.
func newHTTPClassify(baseURL, apiKey string) loadtest.ClassifyFunc {
	client := &http.Client{Timeout: 2 * time.Minute}
	url := strings.TrimRight(baseURL, "/") + "/classify"

	return func(ctx context.Context, item loadtest.CorpusItem) (loadtest.Prediction, error) {
		body, err := json.Marshal(map[string]string{"text": item.Text})
		if err != nil {
			return loadtest.Prediction{}, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return loadtest.Prediction{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			return loadtest.Prediction{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			var ew errorWire
			if json.NewDecoder(resp.Body).Decode(&ew) == nil && ew.Error != "" {
				return loadtest.Prediction{}, fmt.Errorf("server %d at stage %s: %s", resp.StatusCode, ew.Stage, ew.Error)
			}
			return loadtest.Prediction{}, fmt.Errorf("server returned %d", resp.StatusCode)
		}

		var cw classifyWire
		if err := json.NewDecoder(resp.Body).Decode(&cw); err != nil {
			return loadtest.Prediction{}, fmt.Errorf("decode response: %w", err)
		}
		return loadtest.Prediction{
			Category:      cw.Category,
			ParseDegraded: cw.Outcome != "ok",
		}, nil
	}
}

// printTable writes the per-level summary. Accuracy is already a percentage.
func printTable(w io.Writer, results []*loadtest.Metrics) {
	fmt.Fprintf(w, "%-12s %-10s %-10s %-10s %-10s %-10s %-10s\n",
		"concurrency", "req/s", "p50 ms", "p95 ms", "p99 ms", "err rate", "accuracy")
	for _, m := range results {
		acc := "n/a"
		if m.Accuracy != nil {
			acc = fmt.Sprintf("%.1f%%", *m.Accuracy)
		}
		fmt.Fprintf(w, "%-12d %-10.1f %-10.1f %-10.1f %-10.1f %-10.3f %-10s\n",
			m.Concurrency, m.RequestsPerSecond,
			m.LatencyP50MS, m.LatencyP95MS, m.LatencyP99MS,
			m.ErrorRate, acc)
	}
}
