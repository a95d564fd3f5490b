package types

import (
	"context"

	"github.com/parleychat/parley/internal/models"
)

// ChatModel generates replies from a conversation transcript. The
// stream channel is closed by the producer after a Done or Err chunk.
type ChatModel interface {
	Chat(ctx context.Context, messages []models.Message) (string, error)
	ChatStream(ctx context.Context, messages []models.Message) (<-chan models.StreamChunk, error)
}

// TextExtractor turns chat attachments into plain text for the model
// context. It never fails: per-attachment problems are reported inside
// the returned text and an empty input yields an empty string.
type TextExtractor interface {
	Extract(attachments []models.Attachment) string
}

// ConversationStore persists chat transcripts. Embeddings may be nil
// when semantic search is not configured; when present, one vector per
// message.
type ConversationStore interface {
	Append(ctx context.Context, id, title string, messages []models.Message, embeddings [][]float32) error
	List(ctx context.Context, limit int) ([]models.Conversation, error)
	Get(ctx context.Context, id string) (*models.Conversation, error)
	Search(ctx context.Context, embedding []float32, limit int) ([]models.SearchResult, error)
	Close()
}

type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
