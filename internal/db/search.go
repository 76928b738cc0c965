package db

import (
	"encoding/binary"
	"math"
)

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName string
	// Prefilter restricts the KNN candidate set before the vector stage.
	// Empty means match-all. Callers build it with TagFilter and friends.
	Prefilter    string
	Vector       []float32
	K            int
	EFRuntime    int // HNSW runtime beam width; 0 uses the index default
	ReturnFields []string
}

// TextQuery is the input for BM25 text search over a TEXT field.
type TextQuery struct {
	IndexName    string
	Field        string
	Query        string
	Prefilter    string
	TopK         int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// VectorBlob encodes a float32 vector as the little-endian byte blob FT
// vector fields store. Repositories use it when writing step hashes.
func VectorBlob(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// VectorFromBlob decodes a blob written by VectorBlob.
func VectorFromBlob(blob string) []float32 {
	n := len(blob) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32([]byte(blob[i*4 : i*4+4]))
		out[i] = math.Float32frombits(bits)
	}
	return out
}
