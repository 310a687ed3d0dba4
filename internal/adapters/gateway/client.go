// Package gateway bridges the engine to the messaging gateway over a
// websocket. Outbound frames carry send and presence commands; inbound
// frames carry conversational events and poll votes.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zapflowhq/zapflow/pkg/domain"
)

const (
	writeTimeout     = 10 * time.Second
	reconnectMin     = time.Second
	reconnectMax     = 30 * time.Second
	handshakeTimeout = 15 * time.Second
)

// frame is the wire envelope in both directions.
type frame struct {
	Op string `json:"op"`

	// Outbound command fields.
	ChatID   string   `json:"chatId,omitempty"`
	Text     string   `json:"text,omitempty"`
	Question string   `json:"question,omitempty"`
	Options  []string `json:"options,omitempty"`
	Media    *media   `json:"media,omitempty"`

	// Inbound payloads.
	Event *domain.InboundEvent `json:"event,omitempty"`
	Vote  *domain.PollVote     `json:"vote,omitempty"`
	Ready *bool                `json:"ready,omitempty"`
}

type media struct {
	Data       string `json:"data"`
	MimeType   string `json:"mimeType"`
	Caption    string `json:"caption,omitempty"`
	FileName   string `json:"fileName,omitempty"`
	AsVoice    bool   `json:"asVoice,omitempty"`
	AsDocument bool   `json:"asDocument,omitempty"`
}

// Handler receives inbound gateway traffic.
type Handler interface {
	HandleEvent(ctx context.Context, ev domain.InboundEvent)
	HandleVote(ctx context.Context, vote domain.PollVote)
}

// Client implements ports.Transport over a gateway websocket. Safe for
// concurrent use: writes are serialized by a mutex.
type Client struct {
	url     string
	handler Handler
	logger  *slog.Logger

	mu    sync.Mutex
	conn  *websocket.Conn
	ready atomic.Bool
}

// NewClient creates a gateway client. Call Run to connect.
func NewClient(url string, handler Handler, logger *slog.Logger) *Client {
	return &Client{
		url:     url,
		handler: handler,
		logger:  logger,
	}
}

// Run maintains the gateway connection until ctx is cancelled,
// reconnecting with capped exponential backoff.
func (c *Client) Run(ctx context.Context) {
	backoff := reconnectMin
	for {
		if err := c.connectAndServe(ctx); err != nil {
			c.logger.Error("gateway connection lost", "err", err)
		}
		c.ready.Store(false)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, reconnectMax)
	}
}

func (c *Client) connectAndServe(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial gateway: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.logger.Info("gateway connected", "url", c.url)

	// Tear the connection down on cancellation so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("failed to read gateway frame: %w", err)
		}
		c.dispatch(ctx, f)
	}
}

// dispatch routes one inbound frame. Event and vote handlers run on
// their own goroutines: a chat suspended in presence waits or delay
// nodes must never hold up the read loop for other chats. Within-chat
// ordering is the engine's per-chat lock's job, not the read loop's.
func (c *Client) dispatch(ctx context.Context, f frame) {
	switch f.Op {
	case "ready":
		ready := f.Ready != nil && *f.Ready
		c.ready.Store(ready)
		c.logger.Info("gateway readiness changed", "ready", ready)
	case "event":
		if f.Event != nil {
			ev := *f.Event
			go c.handler.HandleEvent(ctx, ev)
		}
	case "vote":
		if f.Vote != nil {
			vote := *f.Vote
			go c.handler.HandleVote(ctx, vote)
		}
	default:
		c.logger.Warn("unrecognized gateway frame", "op", f.Op)
	}
}

// Ready reports whether the gateway session is authenticated.
func (c *Client) Ready() bool {
	return c.ready.Load()
}

// SendText delivers a plain text message.
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	return c.write(ctx, frame{Op: "send_text", ChatID: chatID, Text: text})
}

// SendMedia reads the artifact from disk and ships it inline.
func (c *Client) SendMedia(ctx context.Context, chatID string, m domain.OutboundMedia) error {
	data, err := os.ReadFile(m.Path)
	if err != nil {
		return fmt.Errorf("failed to read media artifact: %w", err)
	}

	return c.write(ctx, frame{
		Op:     "send_media",
		ChatID: chatID,
		Media: &media{
			Data:       base64.StdEncoding.EncodeToString(data),
			MimeType:   m.MimeType,
			Caption:    m.Caption,
			FileName:   m.FileName,
			AsVoice:    m.AsVoice,
			AsDocument: m.AsDocument,
		},
	})
}

// SendPoll presents options as a structured vote-capable message.
func (c *Client) SendPoll(ctx context.Context, chatID, question string, options []string) error {
	return c.write(ctx, frame{Op: "send_poll", ChatID: chatID, Question: question, Options: options})
}

// SetTyping raises typing presence.
func (c *Client) SetTyping(ctx context.Context, chatID string) error {
	return c.write(ctx, frame{Op: "typing", ChatID: chatID})
}

// SetRecording raises recording presence.
func (c *Client) SetRecording(ctx context.Context, chatID string) error {
	return c.write(ctx, frame{Op: "recording", ChatID: chatID})
}

// ClearPresence clears any raised presence.
func (c *Client) ClearPresence(ctx context.Context, chatID string) error {
	return c.write(ctx, frame{Op: "clear_presence", ChatID: chatID})
}

func (c *Client) write(ctx context.Context, f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("gateway not connected")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode gateway frame: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to write gateway frame: %w", err)
	}
	return nil
}
