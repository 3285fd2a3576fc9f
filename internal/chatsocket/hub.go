// Package chatsocket serves the chatbot conversation over a websocket.
package chatsocket

import (
	"log/slog"
	"sync"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/coder/websocket"
)

// Hub tracks the open chat socket of every user tab.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Active returns the open connection for a session.
func (h *Hub) Active(sess domain.Session) *websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if sessions, ok := h.active[sess.UserID]; ok {
		return sessions[sess.SessionID]
	}
	return nil
}

// Register adds conn for the session, closing a previous socket of the same tab.
func (h *Hub) Register(sess domain.Session, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[sess.UserID]; !exists {
		h.active[sess.UserID] = make(map[string]*websocket.Conn)
	}

	if existing, exists := h.active[sess.UserID][sess.SessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}

	h.active[sess.UserID][sess.SessionID] = conn
	slog.Info("Chat socket registered", "user_id", sess.UserID, "session_id", sess.SessionID)
}

// Unregister removes conn if it is still the session's socket.
func (h *Hub) Unregister(sess domain.Session, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessions, ok := h.active[sess.UserID]; ok {
		if current, exists := sessions[sess.SessionID]; exists && current == conn {
			delete(sessions, sess.SessionID)
			if len(sessions) == 0 {
				delete(h.active, sess.UserID)
			}
			slog.Info("Chat socket unregistered", "user_id", sess.UserID, "session_id", sess.SessionID)
		}
	}
}

// Close closes the session's socket, if any.
func (h *Hub) Close(sess domain.Session, reason string) {
	h.mu.Lock()
	conn := h.active[sess.UserID][sess.SessionID]
	if conn != nil {
		delete(h.active[sess.UserID], sess.SessionID)
		if len(h.active[sess.UserID]) == 0 {
			delete(h.active, sess.UserID)
		}
	}
	h.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, reason)
		slog.Info("Chat socket closed", "user_id", sess.UserID, "session_id", sess.SessionID, "reason", reason)
	}
}

// CloseUser closes every socket of a user, e.g. on sign-out.
func (h *Hub) CloseUser(userID string) {
	h.mu.Lock()
	sessions, ok := h.active[userID]
	delete(h.active, userID)
	h.mu.Unlock()

	if !ok {
		return
	}
	for sid, conn := range sessions {
		_ = conn.Close(websocket.StatusNormalClosure, "signed out")
		slog.Info("Chat socket closed", "user_id", userID, "session_id", sid)
	}
}

// Len returns the number of open sockets.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, sessions := range h.active {
		n += len(sessions)
	}
	return n
}
