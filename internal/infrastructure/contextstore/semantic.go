package contextstore

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kellogg/sentrychat/internal/domain/entity"
	"github.com/kellogg/sentrychat/internal/infrastructure/llm"
)

// SemanticConfig bundles the tunables the semantic variant needs beyond the
// registry and root already shared with BasicRetriever.
type SemanticConfig struct {
	CacheDir         string
	CacheVersion     int
	ChunkTargetChars int
	ChunkOverlapChars int
	OverviewChunks   int
	TopK             int
	SimilarityFloor  float64
	EmbeddingModel   string
}

// SemanticRetriever implements L5's semantic variant: chunk, embed, cache,
// and rank by cosine similarity against the query, falling back to the
// basic variant on any embedding failure (§4.6 "If embedding fails at any
// point, fall back to the basic variant").
type SemanticRetriever struct {
	registry *Registry
	root     string
	client   llm.Client
	cfg      SemanticConfig
	basic    *BasicRetriever
}

func NewSemanticRetriever(registry *Registry, root string, client llm.Client, cfg SemanticConfig, basic *BasicRetriever) *SemanticRetriever {
	return &SemanticRetriever{registry: registry, root: root, client: client, cfg: cfg, basic: basic}
}

// Retrieve embeds query and returns a ranked, deduplicated context blob for
// domain: the first OverviewChunks chunks of each required source verbatim,
// plus the top-K remaining chunks by cosine similarity above the floor.
func (s *SemanticRetriever) Retrieve(ctx context.Context, domain entity.Domain, query string) entity.ContextResult {
	if domain == entity.DomainOutOfScope {
		return entity.ContextResult{Status: entity.ContextNone}
	}

	chunks, loaded, missing, err := s.chunksFor(ctx, domain)
	if err != nil || len(chunks) == 0 {
		return s.basic.Retrieve(domain)
	}

	queryEmbedding, err := s.client.Embed(ctx, s.cfg.EmbeddingModel, query)
	if err != nil {
		return s.basic.Retrieve(domain)
	}

	sources := s.registry.SourcesFor(domain)
	requiredNames := make(map[string]bool)
	for _, src := range sources {
		if src.Required {
			requiredNames[src.Name] = true
		}
	}

	var overview []entity.ContextChunk
	overviewCount := make(map[string]int)
	var candidates []entity.ContextChunk

	for _, c := range chunks {
		if requiredNames[c.SourceName] && overviewCount[c.SourceName] < s.cfg.OverviewChunks {
			overview = append(overview, c)
			overviewCount[c.SourceName]++
			continue
		}
		c.Similarity = cosineSimilarity(queryEmbedding, c.Embedding)
		if c.Similarity >= s.cfg.SimilarityFloor {
			candidates = append(candidates, c)
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Similarity > candidates[j].Similarity })
	if len(candidates) > s.cfg.TopK {
		candidates = candidates[:s.cfg.TopK]
	}

	selected := dedupeChunks(append(overview, candidates...))

	var parts []string
	for _, c := range selected {
		if c.Similarity > 0 {
			parts = append(parts, fmt.Sprintf("## %s (similarity %.2f)\n\n%s", c.SourceDisplay, c.Similarity, c.Text))
		} else {
			parts = append(parts, fmt.Sprintf("## %s\n\n%s", c.SourceDisplay, c.Text))
		}
	}
	blob := strings.Join(parts, "\n\n---\n\n")

	placeholder := isPlaceholderContent(blob)
	quality := contextQuality(blob, len(loaded), len(missing), placeholder)

	var status entity.ContextStatus
	switch {
	case len(selected) == 0:
		status = entity.ContextNone
	case placeholder || len(blob) < minUsefulContextLength:
		status = entity.ContextInsufficient
	case len(missing) > 0:
		status = entity.ContextPartial
	default:
		status = entity.ContextSuccess
	}

	return entity.ContextResult{Blob: blob, Status: status, Quality: quality, Loaded: loaded, Missing: missing}
}

// chunksFor returns the embedded chunks for a domain's sources, using the
// disk cache when its sources hash still matches and recomputing (then
// persisting) otherwise.
func (s *SemanticRetriever) chunksFor(ctx context.Context, domain entity.Domain) (chunks []entity.ContextChunk, loaded, missing []string, err error) {
	sources := s.registry.SourcesFor(domain)
	hash := sourceDigest(s.root, sources)

	if cf, ok := loadCache(s.cfg.CacheDir, domain, s.cfg.CacheVersion, hash); ok {
		for _, c := range cf.Chunks {
			loaded = appendUnique(loaded, c.SourceName)
		}
		return cf.Chunks, loaded, nil, nil
	}

	var texts []string
	var owners []entity.ContextSourceSpec
	for _, src := range sources {
		data, readErr := os.ReadFile(filepath.Join(s.root, src.Path))
		if readErr != nil {
			missing = append(missing, src.Name)
			continue
		}
		loaded = append(loaded, src.Name)
		for _, window := range chunkText(strings.TrimSpace(string(data)), s.cfg.ChunkTargetChars, s.cfg.ChunkOverlapChars) {
			texts = append(texts, window)
			owners = append(owners, src)
		}
	}

	if len(texts) == 0 {
		return nil, loaded, missing, fmt.Errorf("contextstore: no sources available for domain %q", domain)
	}

	embeddings, embedErr := s.client.EmbedBatch(ctx, s.cfg.EmbeddingModel, texts)
	if embedErr != nil {
		return nil, loaded, missing, embedErr
	}

	chunks = make([]entity.ContextChunk, len(texts))
	for i, t := range texts {
		chunks[i] = entity.ContextChunk{
			Text: t, SourceName: owners[i].Name, SourceDisplay: owners[i].Label, Embedding: embeddings[i],
		}
	}

	_ = saveCache(s.cfg.CacheDir, domain, s.cfg.CacheVersion, cacheFile{
		SourcesHash: hash, ChunkSize: s.cfg.ChunkTargetChars, ChunkOverlap: s.cfg.ChunkOverlapChars, Chunks: chunks,
	})

	return chunks, loaded, missing, nil
}

// chunkText splits text into overlapping word-windows of roughly
// targetChars, keeping the trailing quarter of each window as the seed for
// the next, matching the Python reference's _chunk_context.
func chunkText(text string, targetChars, overlapChars int) []string {
	if len(text) <= targetChars {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	words := strings.Fields(text)
	var chunks []string
	var current []string
	currentLen := 0

	for _, w := range words {
		current = append(current, w)
		currentLen += len(w) + 1

		if currentLen >= targetChars {
			chunks = append(chunks, strings.Join(current, " "))
			overlapStart := len(current) * 3 / 4
			current = append([]string(nil), current[overlapStart:]...)
			currentLen = 0
			for _, w2 := range current {
				currentLen += len(w2) + 1
			}
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	_ = overlapChars // overlap ratio is word-count-derived: the trailing quarter of each chunk's words is retained
	return chunks
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func dedupeChunks(chunks []entity.ContextChunk) []entity.ContextChunk {
	seen := make(map[string]bool, len(chunks))
	out := make([]entity.ContextChunk, 0, len(chunks))
	for _, c := range chunks {
		if seen[c.Text] {
			continue
		}
		seen[c.Text] = true
		out = append(out, c)
	}
	return out
}

func appendUnique(ss []string, s string) []string {
	for _, v := range ss {
		if v == s {
			return ss
		}
	}
	return append(ss, s)
}
