// Package server exposes the chat engine over HTTP. It speaks
// OpenAI-style server-sent events on /api/chat, a websocket envelope
// protocol on /ws, and a small JSON API for conversation history.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/types"
	"github.com/parleychat/parley/pkg/highlight"
)

const (
	// maxMessages caps the number of messages accepted in one request.
	maxMessages = 100

	// maxContentLength caps the length of a single message.
	maxContentLength = 100000

	defaultMaxBodyBytes = 25 << 20
)

var validRoles = map[string]bool{
	models.RoleSystem:    true,
	models.RoleUser:      true,
	models.RoleAssistant: true,
}

type Config struct {
	Port           string
	AuthToken      string
	AllowedOrigins []string
	RateLimit      float64 // requests per second per client
	RateBurst      int
	MaxBodyBytes   int64
	Model          string // model name echoed in responses
}

type Server struct {
	config    Config
	model     types.ChatModel
	extractor types.TextExtractor
	store     types.ConversationStore
	embedder  types.Embedder

	router  *http.ServeMux
	server  *http.Server
	limiter *rateLimiter
}

func NewServer(config Config, model types.ChatModel, extractor types.TextExtractor) *Server {
	if config.Port == "" {
		config.Port = "8080"
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 5
	}
	if config.RateBurst < 1 {
		config.RateBurst = 10
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaultMaxBodyBytes
	}

	s := &Server{
		config:    config,
		model:     model,
		extractor: extractor,
		router:    http.NewServeMux(),
		limiter:   newRateLimiter(config.RateLimit, config.RateBurst),
	}

	s.setupRoutes()
	return s
}

// WithStore enables conversation persistence.
func (s *Server) WithStore(store types.ConversationStore) *Server {
	s.store = store
	return s
}

// WithEmbedder enables similarity search over stored messages.
func (s *Server) WithEmbedder(embedder types.Embedder) *Server {
	s.embedder = embedder
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/chat", s.handleChat)
	s.router.HandleFunc("POST /api/highlight", s.handleHighlight)
	s.router.HandleFunc("GET /api/languages", s.handleLanguages)
	s.router.HandleFunc("GET /api/conversations", s.handleConversations)
	s.router.HandleFunc("GET /api/conversations/{id}", s.handleConversation)
	s.router.HandleFunc("GET /api/search", s.handleSearch)
	s.router.HandleFunc("GET /ws", s.handleWebSocket)
	s.router.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the full middleware-wrapped handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(log.Default()),
		CORSMiddleware(s.config.AllowedOrigins),
		RateLimitMiddleware(s.limiter),
	}
	if s.config.AuthToken != "" {
		middlewares = append(middlewares, AuthMiddleware(s.config.AuthToken))
	}
	return Chain(middlewares...)(s.router)
}

// Start runs the HTTP server until it fails or Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Starting server on port %s", s.config.Port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// ChatRequest is the body of POST /api/chat. Attachments is kept raw so a
// malformed value degrades to "no attachments" instead of failing the request.
type ChatRequest struct {
	Messages       []models.Message `json:"messages"`
	Attachments    json.RawMessage  `json:"attachments,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
	Stream         *bool            `json:"stream,omitempty"`
}

// ChatChoice is a single choice in a non-streaming completion response.
type ChatChoice struct {
	Index        int            `json:"index"`
	Message      models.Message `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

// Usage reports token counts. The upstream clients do not expose them, so
// all fields are zero for now.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse is the non-streaming completion response.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

type streamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type streamEvent struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []streamChoice `json:"choices"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", s.config.MaxBodyBytes))
			return
		}
		log.Printf("Invalid request body: %v", err)
		s.writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	if len(req.Messages) == 0 {
		s.writeError(w, http.StatusBadRequest, "Request must contain at least one message")
		return
	}
	if len(req.Messages) > maxMessages {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Too many messages: maximum is %d", maxMessages))
		return
	}
	for i, msg := range req.Messages {
		if !validRoles[msg.Role] {
			s.writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid role %q at message %d: must be one of system, user, assistant", msg.Role, i))
			return
		}
		if len(msg.Content) > maxContentLength {
			s.writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Message %d exceeds maximum length of %d", i, maxContentLength))
			return
		}
	}

	messages := req.Messages
	if attachments := parseAttachments(req.Attachments); len(attachments) > 0 {
		if text := s.extractor.Extract(attachments); text != "" {
			messages = injectAttachmentText(messages, text)
		}
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	w.Header().Set("X-Conversation-Id", conversationID)

	stream := true
	if req.Stream != nil {
		stream = *req.Stream
	}

	if stream {
		s.streamCompletion(w, r, conversationID, messages)
	} else {
		s.completion(w, r, conversationID, messages)
	}
}

func (s *Server) completion(w http.ResponseWriter, r *http.Request, conversationID string, messages []models.Message) {
	response, err := s.model.Chat(r.Context(), messages)
	if err != nil {
		log.Printf("Chat request failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Request processing failed. Please try again.")
		return
	}

	s.writeJSON(w, http.StatusOK, ChatCompletionResponse{
		ID:      generateResponseID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   s.config.Model,
		Choices: []ChatChoice{
			{
				Index:        0,
				Message:      models.Message{Role: models.RoleAssistant, Content: response},
				FinishReason: "stop",
			},
		},
	})

	s.persistExchange(conversationID, messages, response)
}

func (s *Server) streamCompletion(w http.ResponseWriter, r *http.Request, conversationID string, messages []models.Message) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	stream, err := s.model.ChatStream(r.Context(), messages)
	if err != nil {
		log.Printf("Chat stream failed to start: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Request processing failed. Please try again.")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	responseID := generateResponseID()
	created := time.Now().Unix()

	// Opening chunk announces the assistant role.
	s.sendStreamEvent(w, flusher, streamEvent{
		ID:      responseID,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   s.config.Model,
		Choices: []streamChoice{{Delta: streamDelta{Role: models.RoleAssistant}}},
	})

	var full strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			log.Printf("Stream error: %v", chunk.Err)
			break
		}
		if chunk.Done {
			break
		}
		if chunk.Delta == "" {
			continue
		}
		full.WriteString(chunk.Delta)
		s.sendStreamEvent(w, flusher, streamEvent{
			ID:      responseID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   s.config.Model,
			Choices: []streamChoice{{Delta: streamDelta{Content: chunk.Delta}}},
		})
	}

	finishReason := "stop"
	s.sendStreamEvent(w, flusher, streamEvent{
		ID:      responseID,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   s.config.Model,
		Choices: []streamChoice{{FinishReason: &finishReason}},
	})

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()

	if full.Len() > 0 {
		s.persistExchange(conversationID, messages, full.String())
	}
}

func (s *Server) sendStreamEvent(w http.ResponseWriter, flusher http.Flusher, event streamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// parseAttachments decodes the raw attachments value. Absent, null, or
// malformed input all normalize to no attachments.
func parseAttachments(raw json.RawMessage) []models.Attachment {
	if len(raw) == 0 {
		return nil
	}
	var attachments []models.Attachment
	if err := json.Unmarshal(raw, &attachments); err != nil {
		log.Printf("Ignoring malformed attachments value: %v", err)
		return nil
	}
	return attachments
}

// injectAttachmentText appends extracted attachment text to the last user
// message, or adds a fresh user message when the conversation has none.
func injectAttachmentText(messages []models.Message, text string) []models.Message {
	out := make([]models.Message, len(messages))
	copy(out, messages)

	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role == models.RoleUser {
			out[i].Content = out[i].Content + "\n\n" + text
			return out
		}
	}
	return append(out, models.Message{Role: models.RoleUser, Content: text})
}

// persistExchange saves the latest user/assistant turn. History is best
// effort; failures are logged and never surfaced to the client.
func (s *Server) persistExchange(conversationID string, messages []models.Message, reply string) {
	if s.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var turn []models.Message
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			turn = append(turn, messages[i])
			break
		}
	}
	turn = append(turn, models.Message{Role: models.RoleAssistant, Content: reply})

	var embeddings [][]float32
	if s.embedder != nil {
		texts := make([]string, len(turn))
		for i, msg := range turn {
			texts[i] = msg.Content
		}
		var err error
		embeddings, err = s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			log.Printf("Failed to embed messages: %v", err)
			embeddings = nil
		}
	}

	if err := s.store.Append(ctx, conversationID, conversationTitle(messages), turn, embeddings); err != nil {
		log.Printf("Failed to persist conversation %s: %v", conversationID, err)
	}
}

// conversationTitle derives a short title from the first user message.
func conversationTitle(messages []models.Message) string {
	for _, msg := range messages {
		if msg.Role != models.RoleUser {
			continue
		}
		title := strings.TrimSpace(msg.Content)
		if runes := []rune(title); len(runes) > 80 {
			title = string(runes[:80]) + "..."
		}
		return title
	}
	return "Untitled conversation"
}

// HighlightRequest is the body of POST /api/highlight.
type HighlightRequest struct {
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
}

// HighlightResponse carries the resolved language and rendered markup.
type HighlightResponse struct {
	Language string `json:"language"`
	HTML     string `json:"html"`
}

func (s *Server) handleHighlight(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)

	var req HighlightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("Invalid request body: %v", err)
		s.writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}
	if req.Code == "" {
		s.writeError(w, http.StatusBadRequest, "Request must contain code")
		return
	}

	language := highlight.Language(req.Code, req.Language)
	s.writeJSON(w, http.StatusOK, HighlightResponse{
		Language: language,
		HTML:     highlight.Highlight(req.Code, language),
	})
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"languages": highlight.Supported()})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Conversation history is not configured")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	conversations, err := s.store.List(r.Context(), limit)
	if err != nil {
		log.Printf("Failed to list conversations: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to list conversations")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Conversation history is not configured")
		return
	}

	id := r.PathValue("id")
	conversation, err := s.store.Get(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			s.writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		log.Printf("Failed to get conversation %s: %v", id, err)
		s.writeError(w, http.StatusInternalServerError, "Failed to get conversation")
		return
	}

	s.writeJSON(w, http.StatusOK, conversation)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.store == nil || s.embedder == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Conversation search is not configured")
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "Query parameter q is required")
		return
	}

	embedding, err := s.embedder.EmbedQuery(r.Context(), query)
	if err != nil {
		log.Printf("Failed to embed search query: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Search failed")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := s.store.Search(r.Context(), embedding, limit)
	if err != nil {
		log.Printf("Failed to search messages: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Search failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": results})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "invalid_request_error",
			"code":    status,
		},
	})
}

func generateResponseID() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return "chatcmpl-" + hex.EncodeToString(bytes)
}
