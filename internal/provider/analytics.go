package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"niftyscalp/internal/models"
	"niftyscalp/internal/retry"
)

// AnalyticsAPI is the HTTP client for the options-analytics service. All
// requests are bearer-authenticated GETs, rate limited client-side. Warm-up
// and rotation lookups retry transient failures; cycle-frequency fetches
// fail fast and rely on the next cycle.
type AnalyticsAPI struct {
	client  *http.Client
	baseURL string
	token   string
	limiter *rate.Limiter
	retrier *retry.Runner
}

// AnalyticsOption customizes the client.
type AnalyticsOption func(*AnalyticsAPI)

// WithHTTPClient overrides the HTTP client (tests, custom transport).
func WithHTTPClient(c *http.Client) AnalyticsOption {
	return func(a *AnalyticsAPI) {
		if c != nil {
			a.client = c
		}
	}
}

// WithRateLimit sets the client-side request budget.
func WithRateLimit(requestsPerSecond float64, burst int) AnalyticsOption {
	return func(a *AnalyticsAPI) {
		if requestsPerSecond > 0 && burst > 0 {
			a.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
		}
	}
}

// WithRetrier overrides the retry runner used on the warm-up path.
func WithRetrier(r *retry.Runner) AnalyticsOption {
	return func(a *AnalyticsAPI) {
		if r != nil {
			a.retrier = r
		}
	}
}

// NewAnalyticsAPI creates an analytics client. The timeout applies per
// request.
func NewAnalyticsAPI(baseURL, token string, timeout time.Duration, retrier *retry.Runner, opts ...AnalyticsOption) *AnalyticsAPI {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	a := &AnalyticsAPI{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		retrier: retrier,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type spotResponse struct {
	SpotPrice float64 `json:"spot_price"`
}

// GetSpotPrice fetches the current underlying spot.
func (a *AnalyticsAPI) GetSpotPrice(ctx context.Context, underlying string) (float64, error) {
	params := url.Values{"underlying": {underlying}}
	var resp spotResponse
	if err := a.getJSON(ctx, "/option-chain/spot", params, &resp); err != nil {
		return 0, fmt.Errorf("fetching spot price: %w", err)
	}
	if resp.SpotPrice <= 0 {
		return 0, fmt.Errorf("analytics returned non-positive spot %v for %s", resp.SpotPrice, underlying)
	}
	return resp.SpotPrice, nil
}

// GetChainWithGreeks fetches the full option chain with greeks attached.
func (a *AnalyticsAPI) GetChainWithGreeks(ctx context.Context, underlying string) (*models.ChainSnapshot, error) {
	params := url.Values{"underlying": {underlying}}
	var resp models.ChainSnapshot
	if err := a.getJSON(ctx, "/option-chain/greeks", params, &resp); err != nil {
		return nil, fmt.Errorf("fetching option chain: %w", err)
	}
	return &resp, nil
}

// GetSupportResistance fetches the OI-derived strike levels.
func (a *AnalyticsAPI) GetSupportResistance(ctx context.Context, underlying string) (*models.SupportResistance, error) {
	params := url.Values{"underlying": {underlying}}
	var resp models.SupportResistance
	if err := a.getJSON(ctx, "/option-chain/support-resistance", params, &resp); err != nil {
		return nil, fmt.Errorf("fetching support/resistance: %w", err)
	}
	return &resp, nil
}

// ResolveOptionInstrument maps (underlying, strike, side) to a tradable
// contract. Used by the rotation cycle, so transient failures retry.
func (a *AnalyticsAPI) ResolveOptionInstrument(ctx context.Context, underlying string, strike float64, side models.OptionSide) (*OptionInstrument, error) {
	params := url.Values{
		"underlying": {underlying},
		"strike":     {strconv.FormatFloat(strike, 'f', -1, 64)},
		"side":       {string(side)},
	}

	var resp OptionInstrument
	fetch := func(ctx context.Context) error {
		return a.getJSON(ctx, "/instruments/resolve", params, &resp)
	}

	var err error
	if a.retrier != nil {
		err = a.retrier.Do(ctx, "resolve option instrument", fetch)
	} else {
		err = fetch(ctx)
	}
	if err != nil {
		return nil, err
	}
	if resp.InstrumentKey == "" {
		return nil, fmt.Errorf("no instrument for %s %v %s", underlying, strike, side)
	}
	return &resp, nil
}

type candlesResponse struct {
	Candles [][]float64 `json:"candles"`
}

// GetHistoricalCandles fetches up to count recent one-minute candles, oldest
// first. Used at warm-up, so transient failures retry.
func (a *AnalyticsAPI) GetHistoricalCandles(ctx context.Context, instrumentKey string, count int) ([]models.Candle, error) {
	params := url.Values{
		"instrument_key": {instrumentKey},
		"count":          {strconv.Itoa(count)},
	}

	var resp candlesResponse
	fetch := func(ctx context.Context) error {
		return a.getJSON(ctx, "/candles/intraday", params, &resp)
	}

	var err error
	if a.retrier != nil {
		err = a.retrier.Do(ctx, "fetch historical candles", fetch)
	} else {
		err = fetch(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching candles for %s: %w", instrumentKey, err)
	}

	candles := make([]models.Candle, 0, len(resp.Candles))
	for i, row := range resp.Candles {
		c, err := CandleFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("candle row %d for %s: %w", i, instrumentKey, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// CandleFromRow decodes one [ts_ms, open, high, low, close, volume] row.
func CandleFromRow(row []float64) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, fmt.Errorf("has %d fields, want 6", len(row))
	}
	return models.Candle{
		Timestamp: time.UnixMilli(int64(row[0])),
		Open:      row[1],
		High:      row[2],
		Low:       row[3],
		Close:     row[4],
		Volume:    int64(row[5]),
	}, nil
}

func (a *AnalyticsAPI) getJSON(ctx context.Context, path string, params url.Values, response interface{}) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := a.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", "Bearer "+a.token)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "niftyscalp/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> failed to read error body", path)}
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s (retry-after: %s)", path, string(body), ra)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s", path, string(body))}
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}
