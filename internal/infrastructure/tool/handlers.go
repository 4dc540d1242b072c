package tool

import (
	"context"

	"github.com/kellogg/sentrychat/internal/domain/entity"
	"github.com/kellogg/sentrychat/internal/infrastructure/contact"
)

// SaveMessageHandler builds the handler backing SaveMessageTool: it writes
// the visitor's message to the contact store, tagging it with the current
// conversation id and hashed address for spam triage.
func SaveMessageHandler(store *contact.Store, conversationID, ipHash string) Handler {
	return func(ctx context.Context, params map[string]interface{}) entity.ToolResult {
		message, _ := params["message"].(string)
		if message == "" {
			return entity.ToolResult{Success: false, Tool: SaveMessageTool.Name, Result: "No message provided to save."}
		}
		name, _ := params["visitor_name"].(string)
		email, _ := params["visitor_email"].(string)

		saved, err := store.Save(entity.ContactMessage{
			Message:        message,
			SenderName:     name,
			SenderEmail:    email,
			Context:        "Message submitted via chat",
			IPHash:         ipHash,
			ConversationID: conversationID,
		})
		if err != nil {
			return entity.ToolResult{Success: false, Tool: SaveMessageTool.Name, Result: "Sorry, there was an error saving the message. Please try again."}
		}

		return entity.ToolResult{
			Success: true,
			Tool:    SaveMessageTool.Name,
			Result:  "Message saved successfully.",
			Payload: map[string]string{"message_id": saved.ID},
		}
	}
}
