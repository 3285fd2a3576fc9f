// Package chatlog writes chatbot transcripts as NDJSON, one file per user
// session, from a bounded background queue.
package chatlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/metrics"
)

const defaultQueueSize = 256

// Config controls transcript logging.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Event is one transcript line.
type Event struct {
	Timestamp  string         `json:"ts"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Logger accepts transcript events without blocking the caller.
type Logger interface {
	Log(event Event)
	Close() error
}

type noopLogger struct{}

func (noopLogger) Log(Event)    {}
func (noopLogger) Close() error { return nil }

// Noop returns a Logger that discards everything.
func Noop() Logger { return noopLogger{} }

type fileLogger struct {
	dir     string
	queue   chan Event
	wg      sync.WaitGroup
	log     *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool

	files map[string]*os.File
}

// New starts a transcript logger. A disabled config yields a no-op logger.
func New(cfg Config, log *slog.Logger, m *metrics.Metrics) (Logger, error) {
	if !cfg.Enabled {
		return noopLogger{}, nil
	}
	if cfg.Dir == "" {
		return nil, errors.New("transcript log directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create transcript log dir: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	l := &fileLogger{
		dir:     cfg.Dir,
		queue:   make(chan Event, size),
		log:     log,
		metrics: m,
		files:   make(map[string]*os.File),
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Log enqueues an event. When the queue is full the event is dropped.
func (l *fileLogger) Log(event Event) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.metrics.TranscriptDrop()
		l.log.Warn("Transcript queue full, dropping event",
			"user_id", event.UserID,
			"session_id", event.SessionID,
			"event_type", event.EventType)
	}
}

func (l *fileLogger) run() {
	defer l.wg.Done()
	for event := range l.queue {
		if err := l.write(event); err != nil {
			l.log.Warn("Failed to write transcript event", "user_id", event.UserID, "error", err)
		}
	}
}

func (l *fileLogger) write(event Event) error {
	key := safeName(event.UserID) + "/" + safeName(event.SessionID)
	f, ok := l.files[key]
	if !ok {
		userDir := filepath.Join(l.dir, safeName(event.UserID))
		if err := os.MkdirAll(userDir, 0o750); err != nil {
			return err
		}
		path := filepath.Join(userDir, safeName(event.SessionID)+".ndjson")
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return err
		}
		l.files[key] = f
	}
	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// Close drains the queue and closes every open file.
func (l *fileLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()

	var errs []error
	for _, f := range l.files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

// MessageEvent converts a transcript message into a log event.
func MessageEvent(sess domain.Session, channel string, msg domain.ChatMessage) Event {
	event := Event{
		Timestamp:  msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		UserID:     sess.UserID,
		SessionID:  sess.SessionID,
		Channel:    channel,
		Direction:  "outbound",
		EventType:  "chat_bot_message",
		ContentRaw: msg.Text,
		Content:    cleanForReadability(msg.Text),
		Meta:       map[string]any{"message_id": msg.ID},
	}
	if msg.Speaker == domain.SpeakerUser {
		event.Direction = "inbound"
		event.EventType = "chat_user_message"
	}
	if len(msg.Options) > 0 {
		event.Meta["options"] = msg.Options
	}
	if len(msg.Careers) > 0 {
		ids := make([]string, 0, len(msg.Careers))
		for _, c := range msg.Careers {
			ids = append(ids, c.ID)
		}
		event.Meta["careers"] = ids
	}
	return event
}

// cleanForReadability collapses whitespace so each line reads as one sentence.
func cleanForReadability(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

func safeName(s string) string {
	if s == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
