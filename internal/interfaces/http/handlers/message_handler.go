// Package handlers implements the gin handlers for the core ingress
// contract (§6): POST /chat, POST /contact, GET /health. Each handler is a
// thin adapter that builds a domain-level request, calls into
// internal/application, and serializes the result — no pipeline policy
// lives here.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kellogg/sentrychat/internal/application"
	"github.com/kellogg/sentrychat/internal/domain/entity"
)

// MessageHandler serves POST /chat against a single Orchestrator instance
// (full or fast, selected once at startup by config).
type MessageHandler struct {
	orchestrator        *application.Orchestrator
	logger              *zap.Logger
	maxConversationIDLen int
	clientAddr          func(c *gin.Context) string
}

func NewMessageHandler(o *application.Orchestrator, logger *zap.Logger, maxConversationIDLen int, clientAddr func(c *gin.Context) string) *MessageHandler {
	return &MessageHandler{orchestrator: o, logger: logger, maxConversationIDLen: maxConversationIDLen, clientAddr: clientAddr}
}

// chatRequestBody mirrors §6's ingress contract for POST /chat.
type chatRequestBody struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type chatResponseBody struct {
	Success  bool             `json:"success"`
	Response *chatContentBody `json:"response,omitempty"`
	Error    *errorBody       `json:"error,omitempty"`
	Metadata metadataBody     `json:"metadata"`
}

type chatContentBody struct {
	Content string `json:"content"`
	Domain  string `json:"domain"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type metadataBody struct {
	RequestID       string           `json:"request_id"`
	ResponseTimeMs  int64            `json:"response_time_ms"`
	ConversationID  string           `json:"conversation_id"`
	LayerTimingsMs  map[string]int64 `json:"layer_timings_ms"`
	RetryAfterSec   int64            `json:"retry_after_seconds,omitempty"`
}

// PostChat handles POST /chat. Body decoding failures and an
// over-length conversation id are rejected before the pipeline runs at all,
// since they are transport-shape problems, not pipeline decisions.
func (h *MessageHandler) PostChat(c *gin.Context) {
	var body chatRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, chatResponseBody{
			Success: false,
			Error:   &errorBody{Code: "invalid_request", Message: "Request body must be valid JSON with a message field."},
			Metadata: metadataBody{RequestID: uuid.NewString()},
		})
		return
	}

	if h.maxConversationIDLen > 0 && len(body.ConversationID) > h.maxConversationIDLen {
		c.JSON(http.StatusBadRequest, chatResponseBody{
			Success: false,
			Error:   &errorBody{Code: "invalid_request", Message: "conversation_id is too long."},
			Metadata: metadataBody{RequestID: uuid.NewString()},
		})
		return
	}

	req := entity.RequestEnvelope{
		RequestID:      uuid.NewString(),
		ConversationID: strings.TrimSpace(body.ConversationID),
		PeerAddr:       h.clientAddr(c),
		ContentType:    c.Request.Header.Get("Content-Type"),
		ContentLength:  c.Request.ContentLength,
		Message:        body.Message,
		ReceivedAt:     time.Now(),
	}

	resp := h.orchestrator.Process(c.Request.Context(), req)
	c.JSON(httpStatusFor(resp), toChatResponseBody(resp))
}

func httpStatusFor(resp entity.ResponseRecord) int {
	if resp.Success {
		return http.StatusOK
	}
	switch resp.ErrorCode {
	case "rate_limited":
		return http.StatusTooManyRequests
	case "input_too_long", "blocked_input":
		return http.StatusBadRequest
	case "internal_error":
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func toChatResponseBody(resp entity.ResponseRecord) chatResponseBody {
	out := chatResponseBody{
		Success: resp.Success,
		Metadata: metadataBody{
			RequestID:      resp.RequestID,
			ResponseTimeMs: resp.ResponseTimeMs,
			ConversationID: resp.ConversationID,
			LayerTimingsMs: resp.LayerTimingsMs,
			RetryAfterSec:  resp.RetryAfterSeconds,
		},
	}
	if resp.Success {
		out.Response = &chatContentBody{Content: resp.Content, Domain: string(resp.Domain)}
	} else {
		out.Error = &errorBody{Code: resp.ErrorCode, Message: resp.ErrorMessage}
	}
	return out
}
