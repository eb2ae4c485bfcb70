package notify

import (
	"context"
	"time"

	"anonchat-backend/internal/storage"
)

// Message types delivered to users.
const (
	TypeMatchFound       = "match_found"
	TypeSearching        = "searching"
	TypeSearchTimeout    = "search_timeout"
	TypeCompatibleJoined = "compatible_joined"
	TypeChatMessage      = "chat_message"
	TypeChatEnded        = "chat_ended"
)

type Message struct {
	Type      string                 `json:"type"`
	Text      string                 `json:"text"`
	MessageID string                 `json:"message_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Notifier delivers user-facing status messages. When handle is non-nil the
// delivery reuses its message id so clients can replace the earlier message
// in place. The returned handle references the delivered message. Failures
// are non-fatal to callers in the matching core.
type Notifier interface {
	Notify(ctx context.Context, userID int64, msgType, text string, handle *storage.NotificationHandle) (*storage.NotificationHandle, error)
}
