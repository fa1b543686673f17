package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	apperrors "github.com/openpapers/papersync/internal/errors"
	"github.com/tidwall/gjson"
)

const (
	// notificationChanSize buffers inbound notifications so a slow
	// consumer does not stall the read loop.
	notificationChanSize = 64

	// inboundChanSize is the buffer for raw messages between the reader
	// goroutine and the channel event loop.
	inboundChanSize = 64

	// offlineProbeInterval is how long the channel stays offline after
	// exhausting its reconnect budget before probing again.
	offlineProbeInterval = time.Minute
)

// Status is the connection state surfaced to the UI layer.
type Status int

const (
	StatusConnected Status = iota
	StatusDisconnected
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Notification is a server-initiated change event: another device moved
// a folder, uploaded a file, or deleted one.
type Notification struct {
	Type        string
	Path        string
	Fingerprint string
	Size        int64
	Folder      bool
	Device      string
}

// WSConn abstracts the WebSocket connection so Channel can be tested
// without a real server. *websocket.Conn satisfies this interface.
type WSConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// dialFunc opens a WebSocket connection. Swapped out in tests.
type dialFunc func(ctx context.Context) (WSConn, error)

// inboundMsg wraps a message read by the reader goroutine.
type inboundMsg struct {
	data []byte
	err  error
}

// ChannelConfig holds the parameters for the notification channel.
type ChannelConfig struct {
	// ServerURL is the document store base URL; the channel endpoint is
	// derived from it.
	ServerURL string
	Token     string
	Device    string

	ReconnectAttempts int
	ReconnectDelay    time.Duration
	// Timeout bounds a single dial/handshake and sets the heartbeat
	// cadence (one heartbeat per Timeout/3).
	Timeout time.Duration

	// OnStatus is invoked on every connection state change. May be nil.
	OnStatus func(Status)
}

// Channel maintains the bidirectional notification connection to the
// document store. Inbound change notifications are delivered on
// Notifications(); the sync engine uses them to pre-populate suppression
// state so remote-initiated changes are not re-uploaded.
type Channel struct {
	cfg    ChannelConfig
	dial   dialFunc
	logger *slog.Logger

	notifications chan Notification

	connected   bool
	connectedMu sync.RWMutex
}

// NewChannel creates a notification channel client.
func NewChannel(cfg ChannelConfig, logger *slog.Logger) *Channel {
	c := &Channel{
		cfg:           cfg,
		logger:        logger,
		notifications: make(chan Notification, notificationChanSize),
	}
	c.dial = c.dialServer

	return c
}

// Notifications returns the channel carrying server-initiated changes.
func (c *Channel) Notifications() <-chan Notification {
	return c.notifications
}

// Connected reports whether the channel is currently live.
func (c *Channel) Connected() bool {
	c.connectedMu.RLock()
	defer c.connectedMu.RUnlock()

	return c.connected
}

func (c *Channel) setConnected(v bool) {
	c.connectedMu.Lock()
	c.connected = v
	c.connectedMu.Unlock()
}

func (c *Channel) notifyStatus(s Status) {
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(s)
	}
}

// channelURL derives the WebSocket endpoint from the server base URL.
func channelURL(serverURL string) string {
	u := strings.TrimRight(serverURL, "/")

	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}

	return u + "/channel"
}

func (c *Channel) dialServer(ctx context.Context) (WSConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, channelURL(c.cfg.ServerURL), &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + c.cfg.Token},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dialing channel: %w", err)
	}

	return conn, nil
}

// Run maintains the channel until the context is cancelled. Disconnects
// trigger bounded reconnects (fixed delay); when the budget is spent the
// channel reports offline status and probes again once per
// offlineProbeInterval.
func (c *Channel) Run(ctx context.Context) error {
	defer close(c.notifications)

	attempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := c.dial(ctx)
		if err != nil {
			attempts++
			c.logger.Warn("channel connect failed",
				slog.Int("attempt", attempts),
				slog.Int("max_attempts", c.cfg.ReconnectAttempts),
				slog.String("error", err.Error()),
			)

			if attempts >= c.cfg.ReconnectAttempts {
				c.logger.Warn("reconnect budget exhausted, going offline")
				c.notifyStatus(StatusOffline)

				if !sleepCtx(ctx, offlineProbeInterval) {
					return ctx.Err()
				}

				attempts = 0

				continue
			}

			if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
				return ctx.Err()
			}

			continue
		}

		attempts = 0

		err = c.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("channel disconnected", slog.String("error", err.Error()))
		c.notifyStatus(StatusDisconnected)

		if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
			return ctx.Err()
		}
	}
}

// serve runs one connection: hello handshake, heartbeat ticker, and the
// read loop. Returns the error that ended the connection.
func (c *Channel) serve(ctx context.Context, conn WSConn) error {
	defer conn.Close(websocket.StatusNormalClosure, "closing")

	hello := map[string]string{
		"type":   "hello",
		"device": c.cfg.Device,
	}

	data, err := json.Marshal(hello)
	if err != nil {
		return fmt.Errorf("marshalling hello: %w", err)
	}

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("sending hello: %w", err)
	}

	c.setConnected(true)
	defer c.setConnected(false)

	c.notifyStatus(StatusConnected)
	c.logger.Info("notification channel connected")

	// Reader goroutine feeds the event loop; all writes happen from the
	// loop below, so no write mutex is needed.
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	inbound := make(chan inboundMsg, inboundChanSize)

	go func() {
		defer close(inbound)

		for {
			_, data, err := conn.Read(connCtx)

			select {
			case inbound <- inboundMsg{data: data, err: err}:
			case <-connCtx.Done():
				return
			}

			if err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(c.cfg.Timeout / 3)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-inbound:
			if !ok {
				return apperrors.ErrChannelClosed
			}

			if msg.err != nil {
				return fmt.Errorf("%w: %w", apperrors.ErrChannelClosed, msg.err)
			}

			c.handleMessage(ctx, msg.data)

		case <-heartbeat.C:
			beat := []byte(`{"type":"heartbeat"}`)
			if err := conn.Write(ctx, websocket.MessageText, beat); err != nil {
				return fmt.Errorf("sending heartbeat: %w", err)
			}
		}
	}
}

// handleMessage parses a server message and forwards change
// notifications. Unknown message types are logged and dropped rather
// than failing the connection.
func (c *Channel) handleMessage(ctx context.Context, data []byte) {
	if !gjson.ValidBytes(data) {
		c.logger.Warn("invalid channel message", slog.Int("bytes", len(data)))
		return
	}

	typ := gjson.GetBytes(data, "type").String()

	switch typ {
	case "folderChanged", "fileChanged", "fileDeleted":
		n := Notification{
			Type:        typ,
			Path:        gjson.GetBytes(data, "path").String(),
			Fingerprint: gjson.GetBytes(data, "fingerprint").String(),
			Size:        gjson.GetBytes(data, "size").Int(),
			Folder:      typ == "folderChanged",
			Device:      gjson.GetBytes(data, "device").String(),
		}

		if n.Path == "" {
			c.logger.Warn("change notification without path", slog.String("type", typ))
			return
		}

		select {
		case c.notifications <- n:
		case <-ctx.Done():
		}

	case "heartbeat", "ready":
		// Server heartbeat echo and the post-hello ack need no action.

	default:
		c.logger.Debug("ignoring channel message", slog.String("type", typ))
	}
}

// sleepCtx waits for d or until the context is cancelled, reporting
// false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
