// Package provider contains the clients for the two external collaborators:
// the websocket market-data feed and the options-analytics HTTP service.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"niftyscalp/internal/models"
)

// APIError represents an analytics API error with status code and body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// OptionInstrument is a resolved tradable option contract.
type OptionInstrument struct {
	InstrumentKey string  `json:"instrument_key"`
	Symbol        string  `json:"symbol"`
	Strike        float64 `json:"strike"`
}

// OptionsAnalytics defines the consumed surface of the analytics service:
// spot, chain, OI-derived strike levels, instrument resolution, and
// historical candles for warm-up.
type OptionsAnalytics interface {
	GetSpotPrice(ctx context.Context, underlying string) (float64, error)
	GetChainWithGreeks(ctx context.Context, underlying string) (*models.ChainSnapshot, error)
	GetSupportResistance(ctx context.Context, underlying string) (*models.SupportResistance, error)
	ResolveOptionInstrument(ctx context.Context, underlying string, strike float64, side models.OptionSide) (*OptionInstrument, error)
	GetHistoricalCandles(ctx context.Context, instrumentKey string, count int) ([]models.Candle, error)
}

// MessageHandler receives decoded feed messages.
type MessageHandler func(msg *Message)

// StreamProvider defines the consumed surface of the market-data stream.
type StreamProvider interface {
	Subscribe(instrumentKeys []string, interval string) error
	Unsubscribe(instrumentKey string) error
	SetCallback(fn MessageHandler)
	Start(ctx context.Context) error
	Stop() error
	IsConnected() bool
}

// Ensure the concrete clients satisfy the interfaces.
var (
	_ OptionsAnalytics = (*AnalyticsAPI)(nil)
	_ OptionsAnalytics = (*CircuitBreakerAnalytics)(nil)
	_ StreamProvider   = (*WSFeed)(nil)
)

// CircuitBreakerAnalytics wraps an OptionsAnalytics with circuit breaker
// functionality so a failing analytics backend cannot stall every cycle.
type CircuitBreakerAnalytics struct {
	api     OptionsAnalytics
	breaker *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerAnalytics wraps the analytics client with sensible
// defaults.
func NewCircuitBreakerAnalytics(api OptionsAnalytics) *CircuitBreakerAnalytics {
	return NewCircuitBreakerAnalyticsWithSettings(api, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerAnalyticsWithSettings wraps the analytics client with
// custom settings.
func NewCircuitBreakerAnalyticsWithSettings(api OptionsAnalytics, settings CircuitBreakerSettings) *CircuitBreakerAnalytics {
	gbSettings := gobreaker.Settings{
		Name:        "AnalyticsCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerAnalytics{
		api:     api,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// exec is a generic helper for circuit breaker wrapper methods.
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	api OptionsAnalytics,
	fn func(OptionsAnalytics) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(api) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// GetSpotPrice wraps the underlying analytics call with circuit breaker.
func (c *CircuitBreakerAnalytics) GetSpotPrice(ctx context.Context, underlying string) (float64, error) {
	return execCircuitBreaker(c.breaker, c.api, func(a OptionsAnalytics) (float64, error) {
		return a.GetSpotPrice(ctx, underlying)
	})
}

// GetChainWithGreeks wraps the underlying analytics call with circuit breaker.
func (c *CircuitBreakerAnalytics) GetChainWithGreeks(ctx context.Context, underlying string) (*models.ChainSnapshot, error) {
	return execCircuitBreaker(c.breaker, c.api, func(a OptionsAnalytics) (*models.ChainSnapshot, error) {
		return a.GetChainWithGreeks(ctx, underlying)
	})
}

// GetSupportResistance wraps the underlying analytics call with circuit breaker.
func (c *CircuitBreakerAnalytics) GetSupportResistance(ctx context.Context, underlying string) (*models.SupportResistance, error) {
	return execCircuitBreaker(c.breaker, c.api, func(a OptionsAnalytics) (*models.SupportResistance, error) {
		return a.GetSupportResistance(ctx, underlying)
	})
}

// ResolveOptionInstrument wraps the underlying analytics call with circuit breaker.
func (c *CircuitBreakerAnalytics) ResolveOptionInstrument(ctx context.Context, underlying string, strike float64, side models.OptionSide) (*OptionInstrument, error) {
	return execCircuitBreaker(c.breaker, c.api, func(a OptionsAnalytics) (*OptionInstrument, error) {
		return a.ResolveOptionInstrument(ctx, underlying, strike, side)
	})
}

// GetHistoricalCandles wraps the underlying analytics call with circuit breaker.
func (c *CircuitBreakerAnalytics) GetHistoricalCandles(ctx context.Context, instrumentKey string, count int) ([]models.Candle, error) {
	return execCircuitBreaker(c.breaker, c.api, func(a OptionsAnalytics) ([]models.Candle, error) {
		return a.GetHistoricalCandles(ctx, instrumentKey, count)
	})
}
