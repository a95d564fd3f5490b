package models

import "time"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn as it travels between client, server,
// and model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Attachment describes a file sent alongside a chat message. URL holds
// a base64 data URL (data:<mime>;base64,<payload>); extraction only
// ever reads from it, it never fetches over the network.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	URL         string `json:"url"`
	Size        int64  `json:"size,omitempty"`
}

// StreamChunk is one unit of a streamed model response. Exactly one of
// Delta, Done, or Err is meaningful per chunk; the channel closes after
// a Done or Err chunk.
type StreamChunk struct {
	Delta string
	Done  bool
	Err   error
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages,omitempty"`
}

// SearchResult is one semantic-search hit over stored messages.
// Distance is cosine distance, smaller is closer.
type SearchResult struct {
	ConversationID string  `json:"conversation_id"`
	Role           string  `json:"role"`
	Content        string  `json:"content"`
	Distance       float32 `json:"distance"`
}
