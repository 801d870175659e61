package vector

import (
	"hash/fnv"
	"math"
)

// Embedder turns a text query into a vector comparable against a
// partition's chunk embeddings. Embedding generation is explicitly out of
// scope for this system (chunks arrive pre-embedded); HashEmbedder is the
// interface-compatible stand-in so the pipeline has something to call.
type Embedder interface {
	Embed(text string) []float32
}

// HashEmbedder derives a deterministic pseudo-embedding from a hash of the
// input text, grounded in vector_storage.py's MockEmbeddingGenerator
// (seeded hash -> normal-ish vector, then L2-normalized). It is not a
// semantic embedding; it exists only to exercise the VectorIndex contract
// without a real embedding model.
type HashEmbedder struct {
	Dimension int
}

// NewHashEmbedder creates a HashEmbedder producing vectors of dimension d.
func NewHashEmbedder(dimension int) *HashEmbedder {
	return &HashEmbedder{Dimension: dimension}
}

// Embed returns a unit-length vector seeded from an FNV hash of text, so
// the same text always maps to the same vector.
func (h *HashEmbedder) Embed(text string) []float32 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(text))
	seed := hasher.Sum64()

	v := make([]float32, h.Dimension)
	state := seed
	for i := range v {
		state = state*6364136223846793005 + 1442695040888963407
		v[i] = float32(int64(state>>11)) / float32(math.MaxInt64>>11)
	}
	return normalize(v)
}
