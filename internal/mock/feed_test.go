package mock

import (
	"context"
	"testing"
	"time"

	"niftyscalp/internal/models"
	"niftyscalp/internal/provider"
)

func TestFeed_ManualEmit(t *testing.T) {
	f := NewFeed(newTestMarket(), 0)

	// Emitting with no callback registered must not panic.
	f.Emit(&provider.Message{Type: provider.MessageLiveFeed})

	var received []*provider.Message
	f.SetCallback(func(msg *provider.Message) {
		received = append(received, msg)
	})

	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !f.IsConnected() {
		t.Error("IsConnected() = false after Start")
	}
	if err := f.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded, want error")
	}

	msg := &provider.Message{
		Type: provider.MessageLiveFeed,
		Feeds: map[string]provider.FeedEntry{
			testUnderlyingKey: {LastPrice: 24510, Qty: 100, TsMillis: time.Now().UnixMilli()},
		},
	}
	f.Emit(msg)

	if len(received) != 1 {
		t.Fatalf("callback received %d messages, want 1", len(received))
	}
	if received[0] != msg {
		t.Error("callback received a different message than emitted")
	}

	if err := f.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if f.IsConnected() {
		t.Error("IsConnected() = true after Stop")
	}
	if err := f.Stop(); err != nil {
		t.Errorf("second Stop() error: %v", err)
	}
}

func TestFeed_GeneratorEmitsSubscribed(t *testing.T) {
	m := newTestMarket()
	a := NewAnalytics(m)
	inst, err := a.ResolveOptionInstrument(context.Background(), testUnderlying, 24500, models.SideCall)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}

	f := NewFeed(m, time.Millisecond)
	ch := make(chan *provider.Message, 64)
	f.SetCallback(func(msg *provider.Message) {
		select {
		case ch <- msg:
		default:
		}
	})

	keys := []string{testUnderlyingKey, inst.InstrumentKey, "MOCK_FO|GHOST"}
	if err := f.Subscribe(keys, "1"); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer func() {
		if err := f.Stop(); err != nil {
			t.Errorf("Stop() error: %v", err)
		}
	}()

	var msg *provider.Message
	select {
	case msg = <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame generated within 2s")
	}

	if msg.Type != provider.MessageLiveFeed {
		t.Fatalf("frame type = %q, want %q", msg.Type, provider.MessageLiveFeed)
	}

	spot, ok := msg.Feeds[testUnderlyingKey]
	if !ok {
		t.Fatal("frame has no underlying entry")
	}
	if spot.LastPrice <= 0 || spot.Qty <= 0 || spot.TsMillis <= 0 {
		t.Errorf("underlying entry %+v has non-positive fields", spot)
	}

	opt, ok := msg.Feeds[inst.InstrumentKey]
	if !ok {
		t.Fatal("frame has no option entry")
	}
	if opt.LastPrice <= 0 {
		t.Errorf("option price = %.2f, want positive", opt.LastPrice)
	}

	// Subscribed keys the market cannot price are dropped from frames.
	if _, ok := msg.Feeds["MOCK_FO|GHOST"]; ok {
		t.Error("frame contains an unpriceable instrument")
	}

	if err := f.Unsubscribe(inst.InstrumentKey); err != nil {
		t.Fatalf("Unsubscribe() error: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg = <-ch:
			if _, ok := msg.Feeds[inst.InstrumentKey]; !ok {
				return
			}
		case <-deadline:
			t.Fatal("frames still carry the unsubscribed instrument after 2s")
		}
	}
}
