package contextstore

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/kellogg/sentrychat/internal/domain/entity"
)

const minUsefulContextLength = 200

var placeholderPatterns = []string{
	"placeholder", "todo:", "coming soon", "to be added", "[insert", "lorem ipsum", "example content",
}

// BasicRetriever implements the non-semantic L5 variant: whole-file
// concatenation in registry order, bounded by a total-length ceiling,
// ported from the Python reference's Layer5ContextRetriever.retrieve.
type BasicRetriever struct {
	registry  *Registry
	root      string
	maxLength int
}

func NewBasicRetriever(registry *Registry, root string, maxLength int) *BasicRetriever {
	return &BasicRetriever{registry: registry, root: root, maxLength: maxLength}
}

// Retrieve assembles the labeled context blob for domain.
func (b *BasicRetriever) Retrieve(domain entity.Domain) entity.ContextResult {
	if domain == entity.DomainOutOfScope {
		return entity.ContextResult{Status: entity.ContextNone}
	}

	var parts []string
	var loaded, missing []string
	totalLength := 0

	for _, src := range b.registry.SourcesFor(domain) {
		if totalLength >= b.maxLength {
			break
		}
		content, ok := b.loadFile(src)
		if !ok {
			missing = append(missing, src.Name)
			continue
		}

		remaining := b.maxLength - totalLength
		if len(content) > remaining {
			content = content[:remaining] + "\n[Content truncated]"
		}

		parts = append(parts, fmt.Sprintf("## %s\n\n%s", src.Label, content))
		loaded = append(loaded, src.Name)
		totalLength += len(content)
	}

	blob := strings.Join(parts, "\n\n---\n\n")
	placeholder := isPlaceholderContent(blob)
	quality := contextQuality(blob, len(loaded), len(missing), placeholder)

	var status entity.ContextStatus
	switch {
	case len(loaded) == 0:
		status = entity.ContextNone
	case placeholder || len(blob) < minUsefulContextLength:
		status = entity.ContextInsufficient
	case len(missing) > 0:
		status = entity.ContextPartial
	default:
		status = entity.ContextSuccess
	}

	return entity.ContextResult{
		Blob: blob, Status: status, Quality: quality, Loaded: loaded, Missing: missing,
	}
}

func (b *BasicRetriever) loadFile(src entity.ContextSourceSpec) (string, bool) {
	data, err := os.ReadFile(filepath.Join(b.root, src.Path))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

func isPlaceholderContent(content string) bool {
	lower := strings.ToLower(content)
	for _, p := range placeholderPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// contextQuality scores [0,1]: a logarithmic length score saturating near
// 10k characters, blended with source completeness, matching the Python
// reference's _calculate_context_quality.
func contextQuality(context string, loaded, missing int, hasPlaceholder bool) float64 {
	if len(context) < minUsefulContextLength {
		return 0.0
	}
	if hasPlaceholder {
		return 0.2
	}

	lengthScore := math.Min(1.0, math.Log10(float64(len(context)+1))/4)

	total := loaded + missing
	completeness := 0.0
	if total > 0 {
		completeness = float64(loaded) / float64(total)
	}

	score := lengthScore*0.6 + completeness*0.4
	return math.Round(score*100) / 100
}
