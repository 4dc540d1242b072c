package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kellogg/sentrychat/internal/infrastructure/contextstore"
	"github.com/kellogg/sentrychat/internal/infrastructure/llm"
)

// componentStatus is the closed set of per-component health states
// recovered from the original's component-level health report (SPEC_FULL §C.1).
type componentStatus string

const (
	statusOK       componentStatus = "ok"
	statusDegraded componentStatus = "degraded"
	statusDown     componentStatus = "down"
)

// HealthHandler serves GET /health with a per-subsystem breakdown rather
// than a bare 200, matching §6's promise of "component statuses."
type HealthHandler struct {
	llmClient   llm.Client
	registry    *contextstore.Registry
	contextRoot string
}

func NewHealthHandler(llmClient llm.Client, registry *contextstore.Registry, contextRoot string) *HealthHandler {
	return &HealthHandler{llmClient: llmClient, registry: registry, contextRoot: contextRoot}
}

type healthResponse struct {
	Status     componentStatus            `json:"status"`
	Components map[string]componentStatus `json:"components"`
}

// GetHealth probes the LLM runtime (a lightweight model-list call), checks
// that the context registry's required sources are present on disk, and
// reports an overall status that is "down" if any component is down,
// "degraded" if any is degraded, else "ok".
func (h *HealthHandler) GetHealth(c *gin.Context) {
	components := map[string]componentStatus{
		"rate_limiter":       statusOK,
		"conversation_store": statusOK,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.llmClient.Ping(ctx); err != nil {
		components["llm_runtime"] = statusDown
	} else {
		components["llm_runtime"] = statusOK
	}

	components["context_registry"] = h.contextRegistryStatus()

	overall := statusOK
	for _, s := range components {
		if s == statusDown {
			overall = statusDown
			break
		}
		if s == statusDegraded {
			overall = statusDegraded
		}
	}

	code := http.StatusOK
	if overall == statusDown {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, healthResponse{Status: overall, Components: components})
}

// contextRegistryStatus reports "down" if no required source is present on
// disk, "degraded" if some required sources are missing, else "ok". Optional
// sources are not checked.
func (h *HealthHandler) contextRegistryStatus() componentStatus {
	available := h.registry.AvailableSources()
	if len(available) == 0 {
		return statusDown
	}

	anyPresent := false
	anyMissing := false
	for domain := range available {
		for _, src := range h.registry.SourcesFor(domain) {
			if !src.Required {
				continue
			}
			path := filepath.Join(h.contextRoot, src.Path)
			if _, err := os.Stat(path); err != nil {
				anyMissing = true
				continue
			}
			anyPresent = true
		}
	}

	switch {
	case !anyPresent:
		return statusDown
	case anyMissing:
		return statusDegraded
	default:
		return statusOK
	}
}
