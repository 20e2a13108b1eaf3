package provider

import (
	"encoding/json"
	"fmt"

	"niftyscalp/internal/models"
)

// Feed message types delivered by the stream.
const (
	MessageLiveFeed    = "live_feed"
	MessageChartUpdate = "chart_update"
)

// FeedEntry is one instrument's live trade inside a live_feed frame.
type FeedEntry struct {
	LastPrice float64 `json:"last_price"`
	Qty       int64   `json:"ltq"`
	TsMillis  int64   `json:"ts_ms"`
}

// Message is a decoded feed frame. Exactly one of Feeds or
// InstrumentKey/Candles is populated depending on Type.
type Message struct {
	Type          string
	Feeds         map[string]FeedEntry
	InstrumentKey string
	Candles       []models.Candle
}

type wireMessage struct {
	Type          string               `json:"type"`
	Feeds         map[string]FeedEntry `json:"feeds"`
	InstrumentKey string               `json:"instrument_key"`
	Data          struct {
		OHLCV [][]float64 `json:"ohlcv"`
	} `json:"data"`
}

// DecodeMessage parses a raw feed frame into a typed message.
func DecodeMessage(data []byte) (*Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decoding feed frame: %w", err)
	}

	switch wire.Type {
	case MessageLiveFeed:
		return &Message{Type: MessageLiveFeed, Feeds: wire.Feeds}, nil
	case MessageChartUpdate:
		if wire.InstrumentKey == "" {
			return nil, fmt.Errorf("chart_update frame missing instrument_key")
		}
		candles := make([]models.Candle, 0, len(wire.Data.OHLCV))
		for i, row := range wire.Data.OHLCV {
			c, err := CandleFromRow(row)
			if err != nil {
				return nil, fmt.Errorf("chart_update row %d: %w", i, err)
			}
			candles = append(candles, c)
		}
		return &Message{Type: MessageChartUpdate, InstrumentKey: wire.InstrumentKey, Candles: candles}, nil
	default:
		return nil, fmt.Errorf("unknown feed message type %q", wire.Type)
	}
}
