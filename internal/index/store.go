package index

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dolr-ai/content-moderation-sub000/internal/taxonomy"
)

// Example is one labeled retrieval example. Immutable once indexed.
type Example struct {
	Text     string            `json:"text"`
	Category taxonomy.Category `json:"category"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ExampleStore is an ordered, append-only collection of labeled examples.
// Row i of the store corresponds to vector i of the index built from it.
type ExampleStore struct {
	examples []Example
}

// NewExampleStore creates a store over the given examples.
func NewExampleStore(examples []Example) *ExampleStore {
	return &ExampleStore{examples: examples}
}

// Append adds an example, returning its row position.
func (s *ExampleStore) Append(e Example) int {
	s.examples = append(s.examples, e)
	return len(s.examples) - 1
}

// Get returns the example at row i.
func (s *ExampleStore) Get(i int) (Example, error) {
	if i < 0 || i >= len(s.examples) {
		return Example{}, fmt.Errorf("index: row %d out of range [0,%d)", i, len(s.examples))
	}
	return s.examples[i], nil
}

// Size returns the number of examples.
func (s *ExampleStore) Size() int {
	return len(s.examples)
}

// Texts returns all example texts in row order, for batch embedding.
func (s *ExampleStore) Texts() []string {
	texts := make([]string, len(s.examples))
	for i, e := range s.examples {
		texts[i] = e.Text
	}
	return texts
}

// Save writes the store as line-delimited JSON: row i of the file is example
// i, matching vector i of the index file on disk.
func (s *ExampleStore) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("index: create metadata file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range s.examples {
		if err := enc.Encode(&s.examples[i]); err != nil {
			return fmt.Errorf("index: encode example %d: %w", i, err)
		}
	}
	return w.Flush()
}

// LoadExampleStore reads a line-delimited JSON metadata file. Rows with an
// unknown category are rejected rather than coerced: a corpus file is build
// input, not upstream output.
func LoadExampleStore(path string, tax *taxonomy.Taxonomy) (*ExampleStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("index: open metadata file: %w", err)
	}
	defer f.Close()

	var examples []Example
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e Example
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("index: metadata line %d: %w", line, err)
		}
		if tax != nil {
			normalized, ok := tax.Validate(string(e.Category))
			if !ok {
				return nil, fmt.Errorf("index: metadata line %d: unknown category %q", line, e.Category)
			}
			e.Category = normalized
		}
		examples = append(examples, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("index: read metadata file: %w", err)
	}

	return NewExampleStore(examples), nil
}
