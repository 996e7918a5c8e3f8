// Package server exposes the chat engine as a web application: a
// WebSocket chat endpoint plus small JSON endpoints for health and the
// document listing.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/tmc/langchaingo/llms"

	"github.com/wetlandlabs/wetkb/internal/types"
	"github.com/wetlandlabs/wetkb/pkg/llm"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is the JSON frame exchanged over the chat socket.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// Engine is the slice of the chat engine the server needs.
type Engine interface {
	Chat(ctx context.Context, query string, history []llms.MessageContent, onTool func(llm.ToolEvent)) (*llm.Answer, error)
	ChatStream(ctx context.Context, query string, history []llms.MessageContent) (<-chan llm.StreamEvent, error)
}

type Config struct {
	Addr      string
	Streaming bool
}

type Server struct {
	config Config
	engine Engine
	lister types.DocumentLister
}

func New(config Config, engine Engine, lister types.DocumentLister) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	return &Server{
		config: config,
		engine: engine,
		lister: lister,
	}
}

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/documents", s.handleDocuments)
	return mux
}

func (s *Server) ListenAndServe() error {
	log.Printf("Starting chat server on %s", s.config.Addr)
	return http.ListenAndServe(s.config.Addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	infos, err := s.lister.ListDocuments(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list documents: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(infos); err != nil {
		log.Printf("Error encoding document list: %v", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Conversation history lives for the duration of the connection.
	// Queries are handled in the read loop so writes never interleave.
	var history []llms.MessageContent

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Error reading message: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling message: %v", err)
			continue
		}

		if msg.Type != "query" || msg.Content == "" {
			s.sendMessage(conn, "error", "expected a non-empty query message", nil)
			continue
		}

		history = s.handleQuery(r.Context(), conn, msg.Content, history)
	}
}

func (s *Server) handleQuery(ctx context.Context, conn *websocket.Conn, query string, history []llms.MessageContent) []llms.MessageContent {
	if s.config.Streaming {
		events, err := s.engine.ChatStream(ctx, query, history)
		if err != nil {
			s.sendMessage(conn, "error", fmt.Sprintf("Error: %v", err), nil)
			return history
		}

		for ev := range events {
			switch ev.Type {
			case "tool":
				s.sendMessage(conn, "status", fmt.Sprintf("Calling %s", ev.Tool.Name), ev.Tool.Arguments)
			case "chunk":
				s.sendMessage(conn, "stream", ev.Chunk, nil)
			case "error":
				s.sendMessage(conn, "error", fmt.Sprintf("Error: %v", ev.Err), nil)
				return history
			case "answer":
				s.sendMessage(conn, "sources", "", ev.Answer.Sources)
				s.sendMessage(conn, "response", ev.Answer.Text, ev.Answer.Sources)
				return llm.WithExchange(history, query, ev.Answer.Text)
			}
		}
		return history
	}

	onTool := func(ev llm.ToolEvent) {
		s.sendMessage(conn, "status", fmt.Sprintf("Calling %s", ev.Name), ev.Arguments)
	}

	answer, err := s.engine.Chat(ctx, query, history, onTool)
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Error: %v", err), nil)
		return history
	}

	s.sendMessage(conn, "sources", "", answer.Sources)
	s.sendMessage(conn, "response", answer.Text, answer.Sources)
	return llm.WithExchange(history, query, answer.Text)
}

func (s *Server) sendMessage(conn *websocket.Conn, msgType, content string, data interface{}) {
	msg := Message{
		Type:    msgType,
		Content: content,
		Data:    data,
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}
