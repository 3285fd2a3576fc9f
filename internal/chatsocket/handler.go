package chatsocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/guide"
	"github.com/ashureev/skill-worlds/internal/identity"
	"github.com/ashureev/skill-worlds/internal/middleware"
	"github.com/ashureev/skill-worlds/internal/selection"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// Client message types.
const (
	TypeReply    = "reply"
	TypeToggle   = "toggle"
	TypeContinue = "continue"
	TypeView     = "view"
	TypePing     = "ping"
)

// Server message types.
const (
	TypeTyping   = "typing"
	TypeMessages = "messages"
	TypeError    = "error"
	TypePong     = "pong"
)

// ClientMessage is a frame sent by the browser.
type ClientMessage struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	CareerID string `json:"career_id,omitempty"`
}

// ServerMessage is a frame sent to the browser.
type ServerMessage struct {
	Type     string               `json:"type"`
	Flow     *guide.View          `json:"flow,omitempty"`
	Messages []domain.ChatMessage `json:"messages,omitempty"`
	Error    string               `json:"error,omitempty"`
	Code     string               `json:"code,omitempty"`
}

// Handler upgrades /ws/chat and drives the tab's chatbot.
type Handler struct {
	flows         *guide.Registry
	hub           *Hub
	limiter       *middleware.RateLimiter
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a chat socket handler. limiter may be nil.
func NewHandler(flows *guide.Registry, hub *Hub, limiter *middleware.RateLimiter, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		flows:         flows,
		hub:           hub,
		limiter:       limiter,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess := identity.SessionFromContext(r.Context())
	slog.Info("Chat socket request", "user_id", sess.UserID, "session_id", sess.SessionID, "ip", identity.IPFromRequest(r))

	if !sess.Authenticated() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept websocket", "error", err, "user_id", sess.UserID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", sess.UserID)
		}
	}()

	h.hub.Register(sess, ws)
	defer h.hub.Unregister(sess, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	flow, bot, err := h.chatbotFor(sess)
	if err != nil {
		h.writeError(ctx, ws, err)
		return
	}
	if err := h.writeView(ctx, ws, flow); err != nil {
		return
	}

	h.readLoop(ctx, ws, sess, flow, bot)
	slog.Info("Chat socket ended", "user_id", sess.UserID, "session_id", sess.SessionID)
}

// chatbotFor reuses the tab's flow, or starts a chatbot flow when there is none.
func (h *Handler) chatbotFor(sess domain.Session) (*guide.Flow, *selection.Chatbot, error) {
	flow, err := h.flows.Get(sess)
	if errors.Is(err, domain.ErrNotFound) {
		flow, err = h.flows.Start(sess, domain.MethodChatbot)
	}
	if err != nil {
		return nil, nil, err
	}
	if flow.Stage() == guide.StageChoosingMethod {
		if err := flow.Choose(domain.MethodChatbot); err != nil {
			return nil, nil, err
		}
	}
	bot, err := flow.Chatbot()
	if err != nil {
		return nil, nil, err
	}
	return flow, bot, nil
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("Chat socket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, sess domain.Session, flow *guide.Flow, bot *selection.Chatbot) {
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("Chat socket closed by client", "user_id", sess.UserID)
			} else {
				slog.Warn("Chat socket read error", "error", err, "user_id", sess.UserID)
			}
			return
		}
		if current, err := h.flows.Get(sess); err != nil || current != flow {
			slog.Info("Chat socket flow replaced", "user_id", sess.UserID, "session_id", sess.SessionID)
			_ = ws.Close(websocket.StatusNormalClosure, "flow replaced")
			return
		}

		if h.limiter != nil && msg.Type != TypePing && !h.limiter.Allow(sess.UserID) {
			if err := h.write(ctx, ws, ServerMessage{Type: TypeError, Error: "rate limit exceeded", Code: "rate_limited"}); err != nil {
				return
			}
			continue
		}

		if err := h.dispatch(ctx, ws, sess, flow, bot, msg); err != nil {
			slog.Debug("Chat socket write failed", "error", err, "user_id", sess.UserID)
			return
		}
	}
}

// dispatch handles one client frame. Only write failures are returned;
// operation errors are reported to the client.
func (h *Handler) dispatch(ctx context.Context, ws *websocket.Conn, sess domain.Session, flow *guide.Flow, bot *selection.Chatbot, msg ClientMessage) error {
	switch msg.Type {
	case TypeReply:
		if err := h.write(ctx, ws, ServerMessage{Type: TypeTyping}); err != nil {
			return err
		}
		msgs, err := bot.Reply(ctx, msg.Text)
		if err != nil {
			return h.writeError(ctx, ws, err)
		}
		if err := h.write(ctx, ws, ServerMessage{Type: TypeMessages, Messages: msgs}); err != nil {
			return err
		}
	case TypeToggle:
		if _, err := bot.Toggle(msg.CareerID); err != nil {
			return h.writeError(ctx, ws, err)
		}
	case TypeContinue:
		if _, err := bot.Continue(ctx, sess); err != nil {
			return h.writeError(ctx, ws, err)
		}
	case TypeView:
	case TypePing:
		return h.write(ctx, ws, ServerMessage{Type: TypePong})
	default:
		return h.writeError(ctx, ws, domain.NewInputError("type", "unknown message type"))
	}
	return h.writeView(ctx, ws, flow)
}

func (h *Handler) writeView(ctx context.Context, ws *websocket.Conn, flow *guide.Flow) error {
	v := flow.View()
	return h.write(ctx, ws, ServerMessage{Type: TypeView, Flow: &v})
}

func (h *Handler) writeError(ctx context.Context, ws *websocket.Conn, err error) error {
	code := domain.Code(err)
	msg := err.Error()
	if code == "internal" || code == "storage_unavailable" {
		slog.Warn("Chat operation failed", "error", err)
		msg = "something went wrong, please try again"
	}
	return h.write(ctx, ws, ServerMessage{Type: TypeError, Error: msg, Code: code})
}

func (h *Handler) write(ctx context.Context, ws *websocket.Conn, msg ServerMessage) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, ws, msg)
}
