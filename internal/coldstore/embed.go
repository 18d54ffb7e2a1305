package coldstore

import (
	"math"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// embeddingDimensions is fixed for the deterministic hashing embedding below.
// Real semantic embeddings are an external-collaborator concern; Kaya's Cold
// Store contract only requires that embed() be deterministic and that
// repeated calls for the same text be cheap once warm (§4.7).
const embeddingDimensions = 64

// embedCacheSize bounds the in-process embedding cache. §4.7 asks for at
// least 70% of warm calls to resolve in under a millisecond; an LRU keyed on
// the exact query text gets there for the queries a running pipeline
// actually repeats (retries, re-runs of the same fix).
const embedCacheSize = 512

// embedder produces deterministic feature-hashed vectors and caches them.
type embedder struct {
	mu    sync.Mutex
	cache *lru.Cache[string, []float32]
}

func newEmbedder() *embedder {
	cache, err := lru.New[string, []float32](embedCacheSize)
	if err != nil {
		// lru.New only errors on a non-positive size; embedCacheSize is a
		// positive constant, so this is unreachable in practice.
		cache = nil
	}
	return &embedder{cache: cache}
}

// embed returns a deterministic unit vector for text. Identical text always
// produces identical output, in this process or any other, which is what
// lets Store and Search agree on similarity without persisting the vector
// in any format other than the one embed() itself produces.
func (e *embedder) embed(text string) []float32 {
	if e.cache != nil {
		e.mu.Lock()
		if v, ok := e.cache.Get(text); ok {
			e.mu.Unlock()
			return v
		}
		e.mu.Unlock()
	}

	v := hashEmbed(text)

	if e.cache != nil {
		e.mu.Lock()
		e.cache.Add(text, v)
		e.mu.Unlock()
	}
	return v
}

// hashEmbed feature-hashes the lowercased token set of text into a fixed-
// width vector, then L2-normalizes it so cosine similarity reduces to a dot
// product. This is deliberately simple and collision-tolerant: the Cold
// Store's job is to retrieve similar prior attempts, not to reproduce a
// production embedding model.
func hashEmbed(text string) []float32 {
	v := make([]float32, embeddingDimensions)
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, tok := range fields {
		h := fnv1a(tok)
		idx := h % uint32(embeddingDimensions)
		sign := float32(1)
		if (h>>8)&1 == 1 {
			sign = -1
		}
		v[idx] += sign
	}
	normalize(v)
	return v
}

func fnv1a(s string) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
}

// cosineSimilarity assumes both vectors are already L2-normalized, so it's
// a plain dot product.
func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
