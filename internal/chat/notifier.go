// Package chat subscribes to the chat collaborator's event stream over
// WebSocket. The pipeline only needs to know when the assistant is
// speaking, so the client decodes the "response_started" and
// "response_complete" type tags and nothing else of the payload —
// response content never enters the capture path.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/lodrian/ascolta/internal/capture"
)

// Reconnect parameters. The notifier retries for as long as the app runs;
// a chat backend restart must not require a pipeline restart.
const (
	defaultBackoff    = 500 * time.Millisecond
	defaultMaxBackoff = 15 * time.Second
	dialTimeout       = 10 * time.Second
)

// Sink receives the response-phase events.
type Sink interface {
	Submit(ctx context.Context, ev capture.Event) error
}

var _ Sink = (*capture.Controller)(nil)

// Config wires a Notifier.
type Config struct {
	// URL is the chat backend's event endpoint (ws:// or wss://). Empty
	// disables the notifier.
	URL string

	// Token, when non-empty, is sent as a Bearer Authorization header.
	Token string

	// Sink receives the decoded response events.
	Sink Sink

	// Backoff is the initial reconnect delay. Doubles per failed attempt
	// up to MaxBackoff, resets after a successful connection.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Notifier maintains the event-stream subscription and injects
// response-phase events into the capture controller.
type Notifier struct {
	url        string
	token      string
	sink       Sink
	backoff    time.Duration
	maxBackoff time.Duration
}

// New creates a Notifier from cfg, filling in default backoff.
func New(cfg Config) *Notifier {
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &Notifier{
		url:        cfg.URL,
		token:      cfg.Token,
		sink:       cfg.Sink,
		backoff:    backoff,
		maxBackoff: maxBackoff,
	}
}

// Enabled reports whether an endpoint is configured.
func (n *Notifier) Enabled() bool { return n.url != "" }

// Run connects and consumes response events until ctx is done. Connection
// loss is not an error: Run reconnects with capped exponential backoff.
// Returns nil immediately when no URL is configured.
func (n *Notifier) Run(ctx context.Context) error {
	if n.url == "" {
		slog.Debug("chat notifier disabled, no url configured")
		return nil
	}

	backoff := n.backoff
	for {
		connected, err := n.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, capture.ErrControllerClosed) {
			return nil
		}
		if connected {
			backoff = n.backoff
		}
		slog.Warn("chat event stream lost",
			"url", n.url, "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > n.maxBackoff {
			backoff = n.maxBackoff
		}
	}
}

// consume runs one connection to exhaustion. The bool reports whether the
// dial succeeded, so the caller knows to reset its backoff.
func (n *Notifier) consume(ctx context.Context) (bool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	opts := &websocket.DialOptions{}
	if n.token != "" {
		headers := http.Header{}
		headers.Set("Authorization", "Bearer "+n.token)
		opts.HTTPHeader = headers
	}
	conn, _, err := websocket.Dial(dialCtx, n.url, opts)
	if err != nil {
		return false, fmt.Errorf("chat: dial %s: %w", n.url, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "notifier stopped")
	slog.Info("chat event stream connected", "url", n.url)

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return true, fmt.Errorf("chat: read: %w", err)
		}
		kind, ok := parseEvent(msg)
		if !ok {
			continue
		}
		if err := n.sink.Submit(ctx, capture.Event{Kind: kind}); err != nil {
			return true, err
		}
	}
}

// parseEvent maps a chat event message to a controller event kind.
// Returns (kind, true) for the two response-phase tags, (0, false) for
// everything else.
func parseEvent(data []byte) (capture.EventKind, bool) {
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return 0, false
	}
	switch msg.Type {
	case "response_started":
		return capture.EventResponseStarted, true
	case "response_complete":
		return capture.EventResponseComplete, true
	default:
		return 0, false
	}
}
