package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/kellogg/sentrychat/internal/domain/stage"
	"github.com/kellogg/sentrychat/internal/infrastructure/ratelimit"
	pkgerrors "github.com/kellogg/sentrychat/pkg/errors"
)

// Gateway is L0: reject malformed, over-sized, wrong-typed, or rate-limited
// requests before any compute is spent (§4.2). Grounded on layer0_network.py.
type Gateway struct {
	limiter       *ratelimit.Limiter
	maxRequestBytes int64
}

func NewGateway(limiter *ratelimit.Limiter, maxRequestBytes int64) *Gateway {
	return &Gateway{limiter: limiter, maxRequestBytes: maxRequestBytes}
}

// HashAddr truncates a SHA-256 digest of the peer address to the anonymized
// identifier used throughout rate limiting, conversation storage, and audit
// logging (§GLOSSARY "Anonymized address hash").
func HashAddr(addr string) string {
	sum := sha256.Sum256([]byte(addr))
	return hex.EncodeToString(sum[:])[:16]
}

// Validate runs the L0 checks in order (§4.2 (a)-(e)).
func (g *Gateway) Validate(peerAddr, contentType string, contentLength int64, hasMessage bool) L0Result {
	ipHash := HashAddr(peerAddr)

	if contentType != "" {
		base := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
		if base != "application/json" {
			return L0Result{
				Result: stage.Blocked(StatusL0InvalidContentType, string(pkgerrors.CodeInputTooLong),
					"Invalid request format.", "invalid_content_type"),
				IPHash: ipHash,
			}
		}
	}

	if g.maxRequestBytes > 0 && contentLength > g.maxRequestBytes {
		return L0Result{
			Result: stage.Blocked(StatusL0RequestTooLarge, string(pkgerrors.CodeInputTooLong),
				"Your message is too long. Please shorten it.", "request_too_large"),
			IPHash: ipHash,
		}
	}

	rateResult := g.limiter.Evaluate(ipHash)
	if !rateResult.Allowed {
		return L0Result{
			Result: stage.Blocked(StatusL0RateLimited, string(pkgerrors.CodeRateLimited),
				"Please wait a moment before sending another message.", string(rateResult.Status)),
			IPHash:     ipHash,
			RetryAfter: rateResult.RetryAfter,
		}
	}

	if !hasMessage {
		return L0Result{
			Result: stage.Blocked(StatusL0MissingMessage, string(pkgerrors.CodeInputTooLong),
				"Please enter a message.", "missing_message"),
			IPHash: ipHash,
		}
	}

	g.limiter.Record(ipHash)
	return L0Result{Result: stage.Passed(StatusL0Passed), IPHash: ipHash}
}
