// Package history persists conversations in Postgres. Message embeddings are
// stored with pgvector so past exchanges can be found by similarity search.
package history

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/parleychat/parley/internal/models"
)

type StoreConfig struct {
	ConnString  string
	VectorDim   int
	SearchLimit int
}

type Store struct {
	config StoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(config StoreConfig) (*Store, error) {
	if config.ConnString == "" {
		return nil, errors.New("database connection string is required")
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768 // Default for nomic-embed-text
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 5
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	s := &Store{
		config: config,
		pool:   pool,
	}

	if err := s.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize() error {
	ctx := context.Background()

	// Enable pgvector extension
	_, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createConversations := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`

	_, err = s.pool.Exec(ctx, createConversations)
	if err != nil {
		return fmt.Errorf("failed to create conversations table: %v", err)
	}

	createMessages := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.config.VectorDim)

	_, err = s.pool.Exec(ctx, createMessages)
	if err != nil {
		return fmt.Errorf("failed to create messages table: %v", err)
	}

	createConvIndex := `
		CREATE INDEX IF NOT EXISTS messages_conversation_idx
		ON messages (conversation_id)`

	_, err = s.pool.Exec(ctx, createConvIndex)
	if err != nil {
		return fmt.Errorf("failed to create conversation index: %v", err)
	}

	// Create vector index
	createVectorIndex := `
		CREATE INDEX IF NOT EXISTS messages_embedding_idx
		ON messages
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`

	_, err = s.pool.Exec(ctx, createVectorIndex)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %v", err)
	}

	return nil
}

// Append adds messages to a conversation, creating the conversation row on
// first use. embeddings may be nil, or shorter than messages; messages without
// a matching vector are stored with a NULL embedding and stay out of search.
func (s *Store) Append(ctx context.Context, conversationID, title string, messages []models.Message, embeddings [][]float32) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (id, title)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET updated_at = now()`,
		conversationID, sanitizeUTF8(title))
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %v", err)
	}

	stmt := `
		INSERT INTO messages (conversation_id, role, content, embedding)
		VALUES ($1, $2, $3, $4)`

	for i, msg := range messages {
		var embedding any
		if i < len(embeddings) && len(embeddings[i]) > 0 {
			embedding = pgvector.NewVector(embeddings[i])
		}

		_, err = tx.Exec(ctx, stmt,
			conversationID,
			msg.Role,
			sanitizeUTF8(msg.Content),
			embedding,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

// List returns conversation summaries, most recently updated first. The
// returned conversations carry no messages; use Get for the full transcript.
func (s *Store) List(ctx context.Context, limit int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %v", err)
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		conversations = append(conversations, conv)
	}

	return conversations, rows.Err()
}

// Get returns a conversation with its full transcript in insertion order.
func (s *Store) Get(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1`, id).Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %v", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT role, content
		FROM messages
		WHERE conversation_id = $1
		ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		conv.Messages = append(conv.Messages, msg)
	}

	return &conv, rows.Err()
}

// Search finds the stored messages closest to the query embedding by cosine
// distance. Messages saved without an embedding are never returned.
func (s *Store) Search(ctx context.Context, embedding []float32, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = s.config.SearchLimit
	}

	query := `
		SELECT conversation_id, role, content, embedding <=> $1 AS distance
		FROM messages
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %v", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var result models.SearchResult
		var distance float64
		if err := rows.Scan(&result.ConversationID, &result.Role, &result.Content, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		result.Distance = float32(distance)
		results = append(results, result)
	}

	return results, rows.Err()
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
