package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kellogg/sentrychat/internal/application"
	"github.com/kellogg/sentrychat/internal/domain/entity"
)

// streamRequestBody is the one message a client sends after the websocket
// upgrade to kick off a streaming turn; the connection is one-turn-at-a-time,
// matching the orchestrator's "parallel entry point" shape (§4.1).
type streamRequestBody struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type streamWireEvent struct {
	Type           string `json:"type"` // "content", "done", "error"
	Content        string `json:"content,omitempty"`
	Domain         string `json:"domain,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin checking is delegated to the same allowlist the HTTP CORS
	// middleware enforces; a direct, same-origin deployment with an empty
	// allowlist accepts any origin, matching corsMiddleware's own default.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// registerStreamRoute mounts the streaming orchestrator entry point behind a
// websocket upgrade at GET /chat/stream. It is only wired when
// Pipeline.EnableStreaming is set, since the baseline contract (§4.1) treats
// it as an optional parallel entry point, not a replacement for POST /chat.
func registerStreamRoute(router *gin.Engine, app *application.App, logger *zap.Logger, clientAddr func(c *gin.Context) string) {
	if !app.Deps.Config.Pipeline.EnableStreaming {
		return
	}

	allowedOrigins := make(map[string]struct{}, len(app.Deps.Config.Server.CORSOrigins))
	for _, o := range app.Deps.Config.Server.CORSOrigins {
		allowedOrigins[strings.TrimSpace(o)] = struct{}{}
	}
	wsUpgrader := upgrader
	wsUpgrader.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(allowedOrigins) == 0 || origin == "" {
			return true
		}
		_, ok := allowedOrigins[origin]
		return ok
	}

	router.GET("/chat/stream", func(c *gin.Context) {
		conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		var body streamRequestBody
		if err := conn.ReadJSON(&body); err != nil {
			writeStreamError(conn, "invalid_request", "expected a JSON message with a \"message\" field")
			return
		}

		req := entity.RequestEnvelope{
			RequestID:      uuid.NewString(),
			ConversationID: body.ConversationID,
			PeerAddr:       clientAddr(c),
			ContentType:    "application/json",
			ContentLength:  int64(len(body.Message)),
			Message:        body.Message,
			ReceivedAt:     time.Now(),
		}

		events, err := app.Orchestrator.ProcessStreaming(c.Request.Context(), req)
		if err != nil {
			code := "internal_error"
			if coder, ok := err.(interface{ Code() string }); ok {
				code = coder.Code()
			}
			writeStreamError(conn, code, err.Error())
			return
		}

		for ev := range events {
			if ev.Err != nil {
				writeStreamError(conn, "internal_error", ev.Err.Error())
				return
			}
			if ev.Done {
				conn.WriteJSON(streamWireEvent{Type: "done", Domain: string(ev.Domain), ConversationID: ev.ConversationID})
				return
			}
			if err := conn.WriteJSON(streamWireEvent{Type: "content", Content: ev.Content, Domain: string(ev.Domain), ConversationID: ev.ConversationID}); err != nil {
				return
			}
		}
	})
}

func writeStreamError(conn *websocket.Conn, code, message string) {
	conn.WriteJSON(streamWireEvent{Type: "error", Error: message})
	_ = code
}
