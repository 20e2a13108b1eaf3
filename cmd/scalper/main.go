// The scalper command runs the confluence engine: it wires the market data
// feed, the options analytics client, the level and signal engines, the risk
// manager, the trade ledger, and the dashboard, then drives the evaluation
// and rotation schedules until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"niftyscalp/internal/config"
	"niftyscalp/internal/dashboard"
	"niftyscalp/internal/ledger"
	"niftyscalp/internal/levels"
	"niftyscalp/internal/logger"
	"niftyscalp/internal/mock"
	"niftyscalp/internal/provider"
	"niftyscalp/internal/retry"
	"niftyscalp/internal/risk"
	"niftyscalp/internal/strategy"
	"niftyscalp/internal/stream"
)

// mockFeedInterval is the synthetic tick cadence in mock mode.
const mockFeedInterval = 200 * time.Millisecond

// Bot holds the wired engine. Run drives it; Shutdown tears it down.
type Bot struct {
	cfg           *config.Config
	log           *logger.Entry
	feed          provider.StreamProvider
	analytics     provider.OptionsAnalytics
	router        *stream.Router
	levels        *levels.Engine
	risk          *risk.Manager
	engine        *strategy.Confluence
	dash          *dashboard.Server
	underlyingKey string
	stop          chan struct{}
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	mockMode := flag.Bool("mock", false, "Force mock mode regardless of the configured mode")
	flag.Parse()

	// .env is optional; real environments inject variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath, func(c *config.Config) {
		if *mockMode {
			c.Environment.Mode = "mock"
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	base := logger.New()
	if err := base.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAgeDays); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		os.Exit(1)
	}
	log := base.WithComponent("main")

	bot, err := buildBot(cfg, base)
	if err != nil {
		log.WithError(err).Fatal("Failed to build engine")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("Shutdown signal received, stopping engine")
		close(bot.stop)
		cancel()
	}()

	if bot.dash != nil {
		go func() {
			if err := bot.dash.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Dashboard server failed")
			}
		}()
	}

	runErr := bot.Run(ctx)
	bot.Shutdown()
	if runErr != nil {
		log.WithError(runErr).Error("Engine run failed")
		os.Exit(1)
	}
	log.Info("Engine stopped")
}

// buildBot wires the engine for the configured mode. Mock mode replaces the
// feed and analytics with the in-process market simulator; everything
// downstream of the provider boundary is identical in both modes.
func buildBot(cfg *config.Config, base *logger.Log) (*Bot, error) {
	underlyingKey := cfg.Underlying.InstrumentKey
	if underlyingKey == "" {
		// Mock mode validates without a streaming key; synthesize a stable one.
		underlyingKey = "MOCK_INDEX|" + cfg.Underlying.Name
	}

	lvl := levels.NewEngine()
	router := stream.NewRouter(underlyingKey, lvl)

	ld, err := ledger.New(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("opening trade ledger: %w", err)
	}

	var feed provider.StreamProvider
	var analytics provider.OptionsAnalytics
	if cfg.IsMockMode() {
		market := mock.NewMarket(cfg.Underlying.Name, underlyingKey, 0, cfg.Underlying.StrikeStep)
		feed = mock.NewFeed(market, mockFeedInterval)
		analytics = mock.NewAnalytics(market)
	} else {
		feed = provider.NewWSFeed(
			cfg.Stream.URL,
			cfg.Stream.AccessToken,
			cfg.Stream.GetPingInterval(),
			cfg.Stream.GetReadTimeout(),
			base.WithComponent("provider"),
		)
		api := provider.NewAnalyticsAPI(
			cfg.Analytics.BaseURL,
			cfg.Analytics.AccessToken,
			cfg.Analytics.GetTimeout(),
			retry.NewRunner(base.WithComponent("provider")),
			provider.WithRateLimit(float64(cfg.Analytics.RequestsPerSecond), cfg.Analytics.BurstSize),
		)
		analytics = provider.NewCircuitBreakerAnalytics(api)
	}

	riskMgr := risk.NewManager(cfg, ld, router, base.WithComponent("risk"))

	sinks := strategy.MultiSink{strategy.NewLogSink(base.WithComponent("strategy"))}
	var dash *dashboard.Server
	if cfg.Dashboard.Enabled {
		dash = dashboard.NewServer(cfg.Dashboard, riskMgr, ld, base.WithComponent("dashboard"))
		sinks = append(sinks, dash)
	}

	engine := strategy.NewConfluence(cfg.Underlying.Name, router, lvl, analytics, riskMgr, sinks)

	bot := &Bot{
		cfg:           cfg,
		log:           base.WithComponent("bot"),
		feed:          feed,
		analytics:     analytics,
		router:        router,
		levels:        lvl,
		risk:          riskMgr,
		engine:        engine,
		dash:          dash,
		underlyingKey: underlyingKey,
		stop:          make(chan struct{}),
	}
	bot.feed.SetCallback(bot.handleFeedMessage)
	return bot, nil
}

// Shutdown stops the feed, flattens any open position at its last seen
// price, and drains the dashboard listener.
func (b *Bot) Shutdown() {
	if err := b.feed.Stop(); err != nil {
		b.log.WithError(err).Warn("Feed stop failed")
	}

	b.risk.CloseForShutdown()

	if b.dash != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.dash.Shutdown(ctx); err != nil {
			b.log.WithError(err).Warn("Dashboard shutdown failed")
		}
	}
}
