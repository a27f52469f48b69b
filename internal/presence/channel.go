// Package presence maintains the live feed of per-user online/offline
// deltas. The feed is supplementary to the paginated data plane: it only
// ever emits diffs, never rows, and losing it degrades the grid to stale
// presence rather than breaking it.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"usergrid/internal/domain"
	"usergrid/internal/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrUnavailable is reported once reconnect attempts are exhausted.
// The channel is terminal at that point until its owner recreates it.
var ErrUnavailable = errors.New("presence feed unavailable")

// Subscriber receives channel notifications. Callbacks run on the
// channel's goroutine; subscribers hand off to their own loop.
type Subscriber interface {
	// OnPresenceDelta delivers one user_status delta, in arrival order.
	OnPresenceDelta(delta domain.PresenceDelta)
	// OnResync fires after a successful reconnect. Deltas missed during
	// the disconnect window are never replayed; owners that care should
	// re-fetch the authoritative page.
	OnResync()
	// OnUnavailable fires exactly once, after the last reconnect attempt fails.
	OnUnavailable()
}

// Source is the contract shared by the websocket channel and the MQTT
// alternate transport.
type Source interface {
	Subscribe(s Subscriber)
	Connect() error
	Close() error
}

// Options tune the reconnect behaviour.
type Options struct {
	URL         string
	BaseDelay   time.Duration // first retry delay (default 1s)
	MaxDelay    time.Duration // backoff cap (default 30s)
	MaxAttempts int           // retries before giving up (default 8)
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.BaseDelay <= 0 {
		out.BaseDelay = time.Second
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = 30 * time.Second
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 8
	}
	return out
}

// conn is the slice of *websocket.Conn the channel needs; tests inject fakes.
type conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

type dialFunc func(ctx context.Context, url string) (conn, error)

func gorillaDial(ctx context.Context, url string) (conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Channel owns one websocket connection to the presence feed, reconnecting
// with exponential backoff. Lifecycle is tied to the owning grid instance:
// Connect starts it, Close tears it down (cancelling any pending retry timer).
type Channel struct {
	opts   Options
	logger *zap.Logger
	dial   dialFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	subs     []Subscriber
	active   conn
	attempts int
	started  bool
	closed   bool
	terminal bool

	done chan struct{}
}

// NewChannel builds a channel; it does not connect until Connect is called.
func NewChannel(opts Options, logger *zap.Logger) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		opts:   opts.withDefaults(),
		logger: logger,
		dial:   gorillaDial,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Subscribe registers s for deltas and lifecycle notifications.
// Must be called before Connect.
func (c *Channel) Subscribe(s Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, s)
}

// Connect starts the connection loop. Calling it twice is an error.
func (c *Channel) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("presence channel closed")
	}
	if c.started {
		return errors.New("presence channel already connected")
	}
	c.started = true
	go c.run()
	return nil
}

// Close cancels any pending reconnect timer and closes the socket.
// Safe to call more than once and safe against an already-closed socket.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	active := c.active
	c.mu.Unlock()

	c.cancel()
	if active != nil {
		_ = active.Close()
	}
	if started {
		<-c.done
	}
	return nil
}

func (c *Channel) run() {
	defer close(c.done)
	first := true
	for {
		wsConn, err := c.dial(c.ctx, c.opts.URL)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warn("presence connect failed",
				zap.String("url", c.opts.URL),
				zap.Error(err),
			)
			if !c.backoff() {
				return
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = wsConn.Close()
			return
		}
		c.active = wsConn
		c.attempts = 0 // successful open resets the backoff counter
		c.mu.Unlock()

		if first {
			c.logger.Info("presence feed connected", zap.String("url", c.opts.URL))
		} else {
			c.logger.Info("presence feed reconnected", zap.String("url", c.opts.URL))
			c.notifyResync()
		}
		first = false

		c.readLoop(wsConn)

		c.mu.Lock()
		c.active = nil
		closed := c.closed
		c.mu.Unlock()
		_ = wsConn.Close()
		if closed || c.ctx.Err() != nil {
			return
		}
		if !c.backoff() {
			return
		}
	}
}

// backoff waits min(base << attempt, cap) before the next dial. Returns
// false when attempts are exhausted (terminal) or the channel was closed.
func (c *Channel) backoff() bool {
	c.mu.Lock()
	if c.attempts >= c.opts.MaxAttempts {
		c.terminal = true
		c.mu.Unlock()
		c.logger.Error("giving up on presence feed",
			zap.Int("attempts", c.opts.MaxAttempts),
			zap.Error(ErrUnavailable),
		)
		c.notifyUnavailable()
		return false
	}
	delay := c.opts.MaxDelay
	if c.attempts < 30 { // larger shifts overflow; they are past the cap anyway
		if d := c.opts.BaseDelay << uint(c.attempts); d < delay {
			delay = d
		}
	}
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	metrics.PresenceReconnects.Inc()
	c.logger.Info("presence reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Channel) readLoop(wsConn conn) {
	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("presence feed closed", zap.Error(err))
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *Channel) handleFrame(data []byte) {
	delta, ok := decodeFrame(data, c.logger)
	if !ok {
		return
	}
	metrics.PresenceDeltas.Inc()
	for _, s := range c.subscribers() {
		s.OnPresenceDelta(delta)
	}
}

// decodeFrame parses one feed frame. Malformed frames and unknown types
// are discarded, never fatal to the stream.
func decodeFrame(data []byte, logger *zap.Logger) (domain.PresenceDelta, bool) {
	var msg domain.PresenceMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.PresenceFramesDiscarded.Inc()
		logger.Warn("discarding malformed presence frame", zap.Error(err))
		return domain.PresenceDelta{}, false
	}
	if msg.Type != domain.PresenceMessageTypeUserStatus {
		metrics.PresenceFramesDiscarded.Inc()
		logger.Debug("ignoring presence frame of unknown type", zap.String("type", msg.Type))
		return domain.PresenceDelta{}, false
	}
	return domain.PresenceDelta{UserID: msg.UserID, IsOnline: msg.IsOnline}, true
}

// Unavailable reports whether reconnect attempts were exhausted. A
// terminal channel stays terminal until its owner recreates it.
func (c *Channel) Unavailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminal
}

func (c *Channel) subscribers() []Subscriber {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Subscriber, len(c.subs))
	copy(out, c.subs)
	return out
}

func (c *Channel) notifyResync() {
	for _, s := range c.subscribers() {
		s.OnResync()
	}
}

func (c *Channel) notifyUnavailable() {
	for _, s := range c.subscribers() {
		s.OnUnavailable()
	}
}
