package index

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/dolr-ai/content-moderation-sub000/internal/taxonomy"
)

// flatMagic marks the persisted vector blob layout.
const (
	flatMagic   uint32 = 0x464C4154 // "FLAT"
	flatVersion uint32 = 1
)

// FlatIndex is the in-process exact index: vectors live in one contiguous
// float32 arena, searched brute-force. Read-only after Build; a rebuild makes
// a new FlatIndex, never mutates one in place.
type FlatIndex struct {
	dim    int
	metric Metric
	data   []float32 // len == dim * Size()
	store  *ExampleStore
}

// BuildFlat constructs a flat index from positionally aligned examples and
// vectors. It fails when the counts differ or the vectors are ragged.
func BuildFlat(store *ExampleStore, vectors [][]float32, metric Metric) (*FlatIndex, error) {
	if store == nil || store.Size() != len(vectors) {
		return nil, ErrMisaligned
	}
	if len(vectors) == 0 {
		return nil, ErrEmptyIndex
	}
	if metric != MetricCosine && metric != MetricL2 {
		return nil, fmt.Errorf("index: unknown metric %q", metric)
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, ErrRaggedVectors
	}
	data := make([]float32, 0, dim*len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrRaggedVectors, i, len(v), dim)
		}
		data = append(data, v...)
	}

	return &FlatIndex{dim: dim, metric: metric, data: data, store: store}, nil
}

// Dimension returns the vector width.
func (ix *FlatIndex) Dimension() int { return ix.dim }

// Metric returns the distance metric.
func (ix *FlatIndex) Metric() Metric { return ix.metric }

// Size returns the number of indexed vectors, always equal to the store size.
func (ix *FlatIndex) Size() int { return len(ix.data) / ix.dim }

// Store returns the example store the index rows point into.
func (ix *FlatIndex) Store() *ExampleStore { return ix.store }

// Search scans every row and returns the k nearest examples in ascending
// distance order. Ties keep insertion order. Returns fewer than k when the
// index holds fewer rows; a mismatched query dimension is an input error.
func (ix *FlatIndex) Search(_ context.Context, query []float32, k int) ([]RetrievedExample, error) {
	if ix == nil || len(ix.data) == 0 {
		return nil, ErrEmptyIndex
	}
	if k <= 0 {
		return nil, ErrBadK
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), ix.dim)
	}

	n := ix.Size()
	distances := make([]float32, n)
	for i := 0; i < n; i++ {
		row := ix.data[i*ix.dim : (i+1)*ix.dim]
		distances[i] = distance(ix.metric, query, row)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	// Stable keeps insertion order on distance ties.
	sort.SliceStable(order, func(a, b int) bool {
		return distances[order[a]] < distances[order[b]]
	})

	if k > n {
		k = n
	}
	results := make([]RetrievedExample, 0, k)
	for _, row := range order[:k] {
		ex := ix.store.examples[row]
		results = append(results, RetrievedExample{
			Text:     ex.Text,
			Category: ex.Category,
			Distance: distances[row],
		})
	}
	return results, nil
}

// distance returns cosine distance (1 - cosine similarity) or euclidean
// distance; both are ascending-better.
func distance(metric Metric, a, b []float32) float32 {
	switch metric {
	case MetricL2:
		var sum float32
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return float32(math.Sqrt(float64(sum)))
	default:
		var dot, magA, magB float32
		for i := range a {
			dot += a[i] * b[i]
			magA += a[i] * a[i]
			magB += b[i] * b[i]
		}
		if magA == 0 || magB == 0 {
			return 1
		}
		sim := dot / (float32(math.Sqrt(float64(magA))) * float32(math.Sqrt(float64(magB))))
		return 1 - sim
	}
}

type flatHeader struct {
	Magic   uint32
	Version uint32
	Dim     uint32
	Count   uint32
	Metric  uint32
}

func metricCode(m Metric) uint32 {
	if m == MetricL2 {
		return 2
	}
	return 1
}

func codeMetric(c uint32) (Metric, error) {
	switch c {
	case 1:
		return MetricCosine, nil
	case 2:
		return MetricL2, nil
	default:
		return "", fmt.Errorf("index: unknown metric code %d", c)
	}
}

// Save writes the vector blob to indexPath and the example metadata to
// metaPath. Row i of the metadata file corresponds to vector i of the blob.
func (ix *FlatIndex) Save(indexPath, metaPath string) error {
	f, err := os.Create(indexPath)
	if err != nil {
		return fmt.Errorf("index: create index file: %w", err)
	}
	defer f.Close()

	header := flatHeader{
		Magic:   flatMagic,
		Version: flatVersion,
		Dim:     uint32(ix.dim),
		Count:   uint32(ix.Size()),
		Metric:  metricCode(ix.metric),
	}
	if err := binary.Write(f, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("index: write header: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, ix.data); err != nil {
		return fmt.Errorf("index: write vectors: %w", err)
	}

	return ix.store.Save(metaPath)
}

// LoadFlat reads an index file and its metadata file back into a FlatIndex,
// verifying the on-disk positional alignment before returning.
func LoadFlat(indexPath, metaPath string, tax *taxonomy.Taxonomy) (*FlatIndex, error) {
	f, err := os.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("index: open index file: %w", err)
	}
	defer f.Close()

	var header flatHeader
	if err := binary.Read(f, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("index: read header: %w", err)
	}
	if header.Magic != flatMagic {
		return nil, fmt.Errorf("index: %s is not a flat index file", indexPath)
	}
	if header.Version != flatVersion {
		return nil, fmt.Errorf("index: unsupported index version %d", header.Version)
	}
	metric, err := codeMetric(header.Metric)
	if err != nil {
		return nil, err
	}
	if header.Dim == 0 || header.Count == 0 {
		return nil, ErrEmptyIndex
	}

	data := make([]float32, int(header.Dim)*int(header.Count))
	if err := binary.Read(f, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("index: read vectors: %w", err)
	}

	store, err := LoadExampleStore(metaPath, tax)
	if err != nil {
		return nil, err
	}
	if store.Size() != int(header.Count) {
		return nil, fmt.Errorf("%w: index holds %d vectors, metadata holds %d rows",
			ErrMisaligned, header.Count, store.Size())
	}

	return &FlatIndex{
		dim:    int(header.Dim),
		metric: metric,
		data:   data,
		store:  store,
	}, nil
}
