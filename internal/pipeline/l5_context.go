package pipeline

import (
	"context"

	"github.com/kellogg/sentrychat/internal/domain/entity"
	"github.com/kellogg/sentrychat/internal/domain/stage"
	"github.com/kellogg/sentrychat/internal/infrastructure/contextstore"
)

// ContextStage is L5: assembles the trusted-context blob for a domain (§4.6).
// It is a thin wrapper choosing between the basic and semantic retrievers
// per configuration, translating entity.ContextResult's status into the
// shared stage envelope.
type ContextStage struct {
	basic      *contextstore.BasicRetriever
	semantic   *contextstore.SemanticRetriever
	useSemantic bool
}

func NewContextStage(basic *contextstore.BasicRetriever, semantic *contextstore.SemanticRetriever, useSemantic bool) *ContextStage {
	return &ContextStage{basic: basic, semantic: semantic, useSemantic: useSemantic}
}

// Retrieve fetches context for domain. An out-of-scope domain always yields
// empty context immediately (§4.6 "Out-of-scope domain").
func (c *ContextStage) Retrieve(ctx context.Context, domain entity.Domain, query string) L5Result {
	if domain == entity.DomainOutOfScope {
		return L5Result{
			Result:  stage.Passed(StatusL5NoContext),
			Context: entity.ContextResult{Status: entity.ContextNone},
		}
	}

	var result entity.ContextResult
	if c.useSemantic && c.semantic != nil {
		result = c.semantic.Retrieve(ctx, domain, query)
	} else {
		result = c.basic.Retrieve(domain)
	}

	switch result.Status {
	case entity.ContextSuccess:
		return L5Result{Result: stage.Passed(StatusL5Success), Context: result}
	case entity.ContextPartial:
		return L5Result{Result: stage.Passed(StatusL5Partial), Context: result}
	case entity.ContextInsufficient:
		return L5Result{Result: stage.Passed(StatusL5Insufficient), Context: result}
	default:
		return L5Result{Result: stage.Passed(StatusL5NoContext), Context: result}
	}
}
