package embed

import (
	"context"
	"hash/fnv"
)

// HashEmbedder generates deterministic bag-of-words embeddings with the
// feature-hashing trick. Unlike a fitted TF-IDF vocabulary it needs no
// corpus, so a fresh deployment can embed its first memory. Quality is well
// below a neural model; it exists as a fallback and for tests.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hashing embedder with the given dimensionality.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Model() string   { return "hash" }
func (h *HashEmbedder) Dimensions() int { return h.dims }

// Embed hashes each token into one of dims buckets with a signed count,
// then L2-normalizes. Sign hashing keeps unrelated collisions from
// accumulating in the same direction.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, h.dims)
	for _, tok := range tokenize(text) {
		bucket, sign := h.hash(tok)
		vec[bucket] += sign
	}
	normalize(vec)
	return vec, nil
}

func (h *HashEmbedder) hash(token string) (int, float64) {
	f := fnv.New64a()
	f.Write([]byte(token))
	sum := f.Sum64()

	bucket := int(sum % uint64(h.dims))
	sign := 1.0
	if (sum>>63)&1 == 1 {
		sign = -1.0
	}
	return bucket, sign
}
