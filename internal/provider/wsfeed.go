package provider

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"niftyscalp/internal/logger"
	"niftyscalp/internal/metrics"
)

const (
	initialReconnectBackoff = time.Second
	maxReconnectBackoff     = 30 * time.Second
	reconnectFactor         = 1.8
	maxFrameBytes           = 512 << 10
)

type subscriptionFrame struct {
	Type           string   `json:"type"`
	InstrumentKeys []string `json:"instrument_keys"`
	Interval       string   `json:"interval,omitempty"`
}

// WSFeed is the websocket market-data client. It owns the connection
// lifecycle: dialing, ping/pong keepalive, reconnecting with backoff, and
// replaying the subscription set after each reconnect.
type WSFeed struct {
	url          string
	token        string
	pingInterval time.Duration
	readTimeout  time.Duration
	log          *logger.Entry

	mu         sync.Mutex
	conn       *websocket.Conn
	callback   MessageHandler
	subscribed map[string]string // instrument key -> candle interval
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewWSFeed builds a feed client; Start establishes the connection.
func NewWSFeed(url, token string, pingInterval, readTimeout time.Duration, log *logger.Entry) *WSFeed {
	if pingInterval <= 0 {
		pingInterval = 15 * time.Second
	}
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}
	return &WSFeed{
		url:          url,
		token:        token,
		pingInterval: pingInterval,
		readTimeout:  readTimeout,
		log:          log,
		subscribed:   make(map[string]string),
	}
}

// SetCallback registers the handler for decoded frames. Must be called
// before Start.
func (w *WSFeed) SetCallback(fn MessageHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callback = fn
}

// Subscribe records the instruments and, when connected, requests them from
// the stream. Subscriptions survive reconnects.
func (w *WSFeed) Subscribe(instrumentKeys []string, interval string) error {
	w.mu.Lock()
	for _, key := range instrumentKeys {
		w.subscribed[key] = interval
	}
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return nil
	}
	return w.writeFrame(subscriptionFrame{
		Type:           "subscribe",
		InstrumentKeys: instrumentKeys,
		Interval:       interval,
	})
}

// Unsubscribe drops an instrument from the stream and the replay set.
func (w *WSFeed) Unsubscribe(instrumentKey string) error {
	w.mu.Lock()
	delete(w.subscribed, instrumentKey)
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return nil
	}
	return w.writeFrame(subscriptionFrame{
		Type:           "unsubscribe",
		InstrumentKeys: []string{instrumentKey},
	})
}

// Start connects and launches the read/reconnect loop. It returns once the
// loop is running; connection failures are retried inside the loop.
func (w *WSFeed) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("feed already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.run(runCtx)
	return nil
}

// Stop tears the connection down and waits for the loop to exit.
func (w *WSFeed) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel := w.cancel
	conn := w.conn
	done := w.done
	w.mu.Unlock()

	cancel()
	if conn != nil {
		_ = conn.Close()
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return errors.New("feed did not stop in time")
	}
	return nil
}

// IsConnected reports whether a live connection is established.
func (w *WSFeed) IsConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn != nil
}

func (w *WSFeed) run(ctx context.Context) {
	defer close(w.done)

	backoff := initialReconnectBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := w.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.WithError(err).WithFields(logger.Fields{"backoff": backoff.String()}).Warn("feed dial failed")
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextReconnectBackoff(backoff)
			continue
		}
		backoff = initialReconnectBackoff

		w.mu.Lock()
		w.conn = conn
		w.mu.Unlock()
		w.log.Info("feed connected")
		metrics.FeedReconnectsTotal.Inc()
		w.resubscribe()

		err = w.readLoop(ctx, conn)

		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		w.log.WithError(err).WithFields(logger.Fields{"backoff": backoff.String()}).Warn("feed disconnected, reconnecting")
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = nextReconnectBackoff(backoff)
	}
}

func (w *WSFeed) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if w.token != "" {
		header.Set("Authorization", "Bearer "+w.token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, w.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func (w *WSFeed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(maxFrameBytes)
	if err := conn.SetReadDeadline(time.Now().Add(w.readTimeout)); err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(w.readTimeout))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go w.pingLoop(ctx, conn, pingDone)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		msg, err := DecodeMessage(data)
		if err != nil {
			w.log.WithError(err).Debug("dropping undecodable feed frame")
			continue
		}

		w.mu.Lock()
		cb := w.callback
		w.mu.Unlock()
		if cb != nil {
			cb(msg)
		}
	}
}

func (w *WSFeed) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(w.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(w.pingInterval / 2)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// resubscribe replays the recorded subscription set, grouped by interval.
func (w *WSFeed) resubscribe() {
	w.mu.Lock()
	byInterval := make(map[string][]string)
	for key, interval := range w.subscribed {
		byInterval[interval] = append(byInterval[interval], key)
	}
	w.mu.Unlock()

	for interval, keys := range byInterval {
		err := w.writeFrame(subscriptionFrame{
			Type:           "subscribe",
			InstrumentKeys: keys,
			Interval:       interval,
		})
		if err != nil {
			w.log.WithError(err).Warn("resubscribe failed")
		}
	}
}

func (w *WSFeed) writeFrame(frame subscriptionFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	return w.conn.WriteJSON(frame)
}

func nextReconnectBackoff(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * reconnectFactor)
	if next > maxReconnectBackoff {
		next = maxReconnectBackoff
	}
	return next
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
