package strategy

import (
	"time"

	"niftyscalp/internal/levels"
	"niftyscalp/internal/logger"
)

// Sentiment labels attached to snapshots and signal events.
const (
	SentimentBullish = "BULLISH"
	SentimentBearish = "BEARISH"
	SentimentNeutral = "NEUTRAL"
)

// Signal labels for the two entry sides.
const (
	SignalCallBuy = "CALL BUY"
	SignalPutBuy  = "PUT BUY"
)

// Inverse-confirmation labels: which opposite leg broke down to confirm the
// entry.
const (
	InversePutBreakdown  = "PUT_BREAKDOWN"
	InverseCallBreakdown = "CALL_BREAKDOWN"
)

// ConfluenceFlags are the boolean gates shown per cycle. The OI, breakout,
// and inverse flags report the side the sentiment currently favors.
type ConfluenceFlags struct {
	Level          bool `json:"lvl"`
	PCRRising      bool `json:"pcr"`
	OIImbalance    bool `json:"oi"`
	OptionBreakout bool `json:"opt_brk"`
	InverseDown    bool `json:"inv_dwn"`
}

// VWAPPair carries the running VWAP of both ATM legs.
type VWAPPair struct {
	Call float64 `json:"call"`
	Put  float64 `json:"put"`
}

// OILevels carries the top OI-derived strikes near the spot.
type OILevels struct {
	Support    []float64 `json:"support"`
	Resistance []float64 `json:"resistance"`
}

// CycleSnapshot is the telemetry emitted by every evaluation cycle that
// reaches the confluence computation, signal or not. It is transient state
// for observers, never an input to the engine.
type CycleSnapshot struct {
	Time            time.Time       `json:"time"`
	PCR             float64         `json:"pcr"`
	OIPower         levels.OIPower  `json:"oi_power"`
	OISentiment     string          `json:"oi_sentiment"`
	OIStatus        levels.Buildup  `json:"oi_status"`
	UnderlyingLevel float64         `json:"underlying_level"`
	VWAP            VWAPPair        `json:"vwap"`
	OILevels        OILevels        `json:"oi_levels"`
	Confluence      ConfluenceFlags `json:"confluence"`
}

// SignalEvent is the discrete record of an emitted entry signal.
type SignalEvent struct {
	Time            string  `json:"time"`
	Signal          string  `json:"signal"`
	UnderlyingLevel float64 `json:"underlying_level"`
	OIConfirmation  string  `json:"oi_confirmation"`
	InverseStatus   string  `json:"inverse_status"`
}

// Sink receives engine telemetry. Implementations must not block; they run
// on the evaluation goroutine.
type Sink interface {
	PublishSnapshot(snap CycleSnapshot)
	PublishSignal(event SignalEvent)
}

// MultiSink fans telemetry out to several sinks in order.
type MultiSink []Sink

var _ Sink = (MultiSink)(nil)

// PublishSnapshot forwards the snapshot to every sink.
func (m MultiSink) PublishSnapshot(snap CycleSnapshot) {
	for _, s := range m {
		s.PublishSnapshot(snap)
	}
}

// PublishSignal forwards the event to every sink.
func (m MultiSink) PublishSignal(event SignalEvent) {
	for _, s := range m {
		s.PublishSignal(event)
	}
}

// LogSink writes telemetry to the structured log: snapshots at debug,
// signals at info.
type LogSink struct {
	log *logger.Entry
}

var _ Sink = (*LogSink)(nil)

// NewLogSink builds a sink over the given log entry.
func NewLogSink(log *logger.Entry) *LogSink {
	if log == nil {
		log = logger.New().WithComponent("telemetry")
	}
	return &LogSink{log: log}
}

// PublishSnapshot logs the cycle snapshot at debug level.
func (s *LogSink) PublishSnapshot(snap CycleSnapshot) {
	s.log.WithFields(logger.Fields{
		"pcr":              snap.PCR,
		"oi_power":         snap.OIPower,
		"oi_sentiment":     snap.OISentiment,
		"oi_status":        snap.OIStatus,
		"underlying_level": snap.UnderlyingLevel,
		"vwap_call":        snap.VWAP.Call,
		"vwap_put":         snap.VWAP.Put,
		"flags":            snap.Confluence,
	}).Debug("cycle snapshot")
}

// PublishSignal logs the signal event at info level.
func (s *LogSink) PublishSignal(event SignalEvent) {
	s.log.WithFields(logger.Fields{
		"signal":           event.Signal,
		"underlying_level": event.UnderlyingLevel,
		"oi_confirmation":  event.OIConfirmation,
		"inverse_status":   event.InverseStatus,
	}).Info("signal emitted")
}
