package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kellogg/sentrychat/internal/domain/entity"
	"github.com/kellogg/sentrychat/internal/infrastructure/contact"
	"github.com/kellogg/sentrychat/internal/infrastructure/sanitize"
	"github.com/kellogg/sentrychat/internal/pipeline"
)

// ContactHandler serves POST /contact, the direct (non-tool) path a visitor
// uses to leave a message without going through the generator's tool-call
// loop (§3 "Contact message", §6).
type ContactHandler struct {
	store      *contact.Store
	sanitizer  *sanitize.Sanitizer
	logger     *zap.Logger
	clientAddr func(c *gin.Context) string
}

func NewContactHandler(store *contact.Store, sanitizer *sanitize.Sanitizer, logger *zap.Logger, clientAddr func(c *gin.Context) string) *ContactHandler {
	return &ContactHandler{store: store, sanitizer: sanitizer, logger: logger, clientAddr: clientAddr}
}

type contactRequestBody struct {
	Message        string `json:"message"`
	SenderName     string `json:"sender_name"`
	SenderEmail    string `json:"sender_email"`
	Context        string `json:"context"`
	ConversationID string `json:"conversation_id"`
}

type contactResponseBody struct {
	Success   bool       `json:"success"`
	MessageID string     `json:"message_id,omitempty"`
	Error     *errorBody `json:"error,omitempty"`
}

// PostContact handles POST /contact. The message body runs through the same
// deterministic sanitizer L1 uses (§4.3, minus any pipeline routing) so the
// persisted record is never raw, un-normalized input; a message that fails
// sanitization is rejected the same way it would be at L1.
func (h *ContactHandler) PostContact(c *gin.Context) {
	var body contactRequestBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Message == "" {
		c.JSON(http.StatusBadRequest, contactResponseBody{
			Success: false,
			Error:   &errorBody{Code: "invalid_request", Message: "message is required."},
		})
		return
	}

	clean := h.sanitizer.Sanitize(body.Message)
	if !clean.Passed {
		c.JSON(http.StatusBadRequest, contactResponseBody{
			Success: false,
			Error:   &errorBody{Code: string(clean.Err.Public()), Message: clean.Err.Message},
		})
		return
	}

	ipHash := ""
	if addr := h.clientAddr(c); addr != "" {
		ipHash = pipeline.HashAddr(addr)
	}

	msg := entity.ContactMessage{
		ID:             uuid.NewString(),
		Timestamp:      time.Now(),
		Message:        clean.SanitizedInput,
		SenderName:     body.SenderName,
		SenderEmail:    body.SenderEmail,
		Context:        body.Context,
		IPHash:         ipHash,
		ConversationID: body.ConversationID,
	}

	saved, err := h.store.Save(msg)
	if err != nil {
		h.logger.Error("failed to persist contact message", zap.Error(err))
		c.JSON(http.StatusInternalServerError, contactResponseBody{
			Success: false,
			Error:   &errorBody{Code: "internal_error", Message: "Could not save your message right now."},
		})
		return
	}

	c.JSON(http.StatusOK, contactResponseBody{Success: true, MessageID: saved.ID})
}
