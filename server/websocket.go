package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/parleychat/parley/internal/models"
)

// Message is the websocket envelope. Clients send {type:"chat"} messages;
// the server replies with "stream" deltas followed by "done", or "error".
type Message struct {
	Type    string          `json:"type"`
	Content string          `json:"content"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(s.config.AllowedOrigins, origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.config.MaxBodyBytes)

	// Each connection is its own conversation in the history store.
	conversationID := uuid.NewString()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Error reading message: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("Error unmarshaling message: %v", err)
			s.sendMessage(conn, "error", "invalid message")
			continue
		}

		switch msg.Type {
		case "chat":
			s.handleWSChat(r, conn, conversationID, msg)
		case "ping":
			s.sendMessage(conn, "pong", "")
		default:
			s.sendMessage(conn, "error", "unknown message type")
		}
	}
}

// handleWSChat runs one chat exchange over the websocket. Replies are written
// sequentially; gorilla connections allow only one concurrent writer.
func (s *Server) handleWSChat(r *http.Request, conn *websocket.Conn, conversationID string, msg Message) {
	content := msg.Content
	if content == "" {
		s.sendMessage(conn, "error", "chat message must have content")
		return
	}

	if attachments := parseAttachments(msg.Data); len(attachments) > 0 {
		if text := s.extractor.Extract(attachments); text != "" {
			content = content + "\n\n" + text
		}
	}

	messages := []models.Message{{Role: models.RoleUser, Content: content}}

	stream, err := s.model.ChatStream(r.Context(), messages)
	if err != nil {
		log.Printf("Chat stream failed to start: %v", err)
		s.sendMessage(conn, "error", "request processing failed")
		return
	}

	var full []byte
	for chunk := range stream {
		if chunk.Err != nil {
			log.Printf("Stream error: %v", chunk.Err)
			s.sendMessage(conn, "error", "request processing failed")
			return
		}
		if chunk.Done {
			break
		}
		if chunk.Delta == "" {
			continue
		}
		full = append(full, chunk.Delta...)
		s.sendMessage(conn, "stream", chunk.Delta)
	}

	s.sendMessage(conn, "done", "")

	if len(full) > 0 {
		s.persistExchange(conversationID, messages, string(full))
	}
}

func (s *Server) sendMessage(conn *websocket.Conn, msgType string, content string) {
	msg := Message{
		Type:    msgType,
		Content: content,
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}
