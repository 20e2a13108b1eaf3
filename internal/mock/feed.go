package mock

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"niftyscalp/internal/provider"
)

// Feed streams simulated live_feed frames for the subscribed instruments.
// With a positive interval it advances the shared Market and self-generates
// frames on a ticker; with interval zero it stays silent so tests can
// inject frames through Emit.
type Feed struct {
	market   *Market
	interval time.Duration

	mu         sync.Mutex
	callback   provider.MessageHandler
	subscribed map[string]struct{}
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
}

var _ provider.StreamProvider = (*Feed)(nil)

// NewFeed builds a simulated stream over the market. interval is the frame
// cadence in generator mode; pass 0 for a manual feed driven by Emit.
func NewFeed(market *Market, interval time.Duration) *Feed {
	if market == nil {
		panic("mock: market is required")
	}
	return &Feed{
		market:     market,
		interval:   interval,
		subscribed: make(map[string]struct{}),
	}
}

// SetCallback registers the handler for generated and injected frames.
func (f *Feed) SetCallback(fn provider.MessageHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callback = fn
}

// Subscribe adds instruments to the generated frames. The candle interval
// is accepted for interface compatibility and ignored.
func (f *Feed) Subscribe(instrumentKeys []string, interval string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range instrumentKeys {
		f.subscribed[key] = struct{}{}
	}
	return nil
}

// Unsubscribe drops an instrument from the generated frames.
func (f *Feed) Unsubscribe(instrumentKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscribed, instrumentKey)
	return nil
}

// Subscribed returns the current subscription set in sorted order.
func (f *Feed) Subscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.subscribed))
	for key := range f.subscribed {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Start marks the feed connected and, in generator mode, launches the frame
// loop.
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return errors.New("feed already started")
	}
	f.running = true
	if f.interval <= 0 {
		f.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	f.mu.Unlock()

	go f.run(runCtx)
	return nil
}

// Stop halts the generator and marks the feed disconnected.
func (f *Feed) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	cancel := f.cancel
	done := f.done
	f.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return errors.New("feed did not stop in time")
	}
	return nil
}

// IsConnected reports whether Start has been called without a matching Stop.
func (f *Feed) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Emit delivers a frame to the registered callback, bypassing the
// generator. Tests use this to script exact tick sequences.
func (f *Feed) Emit(msg *provider.Message) {
	f.mu.Lock()
	cb := f.callback
	f.mu.Unlock()
	if cb != nil {
		cb(msg)
	}
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.emitFrame()
		}
	}
}

// emitFrame advances the market one step and sends a live_feed frame
// covering every subscribed instrument the market can price.
func (f *Feed) emitFrame() {
	spot := f.market.Advance()
	now := time.Now().UnixMilli()

	f.mu.Lock()
	keys := make([]string, 0, len(f.subscribed))
	for key := range f.subscribed {
		keys = append(keys, key)
	}
	f.mu.Unlock()

	feeds := make(map[string]provider.FeedEntry, len(keys))
	for _, key := range keys {
		price := spot
		if key != f.market.UnderlyingKey() {
			premium, ok := f.market.Premium(key)
			if !ok {
				continue
			}
			price = premium
		}
		feeds[key] = provider.FeedEntry{
			LastPrice: price,
			Qty:       25 + secureInt63n(475),
			TsMillis:  now,
		}
	}
	if len(feeds) == 0 {
		return
	}

	f.Emit(&provider.Message{Type: provider.MessageLiveFeed, Feeds: feeds})
}
