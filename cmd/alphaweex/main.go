package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/adversary"
	"github.com/AbhayRathi/AlphaWEEX/internal/alerts"
	"github.com/AbhayRathi/AlphaWEEX/internal/architect"
	"github.com/AbhayRathi/AlphaWEEX/internal/auditor"
	"github.com/AbhayRathi/AlphaWEEX/internal/backtest"
	"github.com/AbhayRathi/AlphaWEEX/internal/bus"
	"github.com/AbhayRathi/AlphaWEEX/internal/config"
	"github.com/AbhayRathi/AlphaWEEX/internal/explorer"
	"github.com/AbhayRathi/AlphaWEEX/internal/guardrails"
	"github.com/AbhayRathi/AlphaWEEX/internal/httpapi"
	"github.com/AbhayRathi/AlphaWEEX/internal/ledger"
	"github.com/AbhayRathi/AlphaWEEX/internal/llm"
	"github.com/AbhayRathi/AlphaWEEX/internal/market"
	"github.com/AbhayRathi/AlphaWEEX/internal/memory"
	"github.com/AbhayRathi/AlphaWEEX/internal/narrative"
	"github.com/AbhayRathi/AlphaWEEX/internal/oracle"
	"github.com/AbhayRathi/AlphaWEEX/internal/reasoning"
	"github.com/AbhayRathi/AlphaWEEX/internal/redteam"
	"github.com/AbhayRathi/AlphaWEEX/internal/regime"
	"github.com/AbhayRathi/AlphaWEEX/internal/risk"
	"github.com/AbhayRathi/AlphaWEEX/internal/sentiment"
	"github.com/AbhayRathi/AlphaWEEX/internal/shadow"
	"github.com/AbhayRathi/AlphaWEEX/internal/state"
	"github.com/AbhayRathi/AlphaWEEX/internal/strategy"
	"github.com/AbhayRathi/AlphaWEEX/internal/supervisor"
	"github.com/AbhayRathi/AlphaWEEX/internal/tracelog"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./configs/config.yaml)")
	verifyKeys := flag.Bool("verify-keys", false, "Verify credentials and configuration, then exit")
	flag.Parse()

	// Default logger until the configured one takes over
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	if *verifyKeys {
		os.Exit(verifyCredentials(cfg))
	}

	log.Info().
		Str("app", cfg.App.Name).
		Str("environment", cfg.App.Environment).
		Str("symbol", cfg.Trading.Symbol).
		Str("timeframe", cfg.Trading.Timeframe).
		Msg("Starting AlphaWEEX control plane")

	sup, shutdown, err := build(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to assemble control plane")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() { errChan <- sup.Run(ctx) }()

	var runErr error
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
		select {
		case runErr = <-errChan:
		case <-time.After(shutdownTimeout):
			log.Error().Msg("Shutdown timed out")
			shutdown()
			os.Exit(1)
		}
	case runErr = <-errChan:
	}

	shutdown()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error().Err(runErr).Msg("Control plane exited with error")
		os.Exit(1)
	}
	log.Info().Msg("Shutdown complete")
}

// build assembles every component and wires them into a supervisor.
// The returned function releases the durable resources; call it after
// the supervisor has stopped.
func build(cfg *config.Config) (*supervisor.Supervisor, func(), error) {
	shared := state.New()
	breakers := risk.NewBreakerManager()

	var closers []func() error
	shutdown := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn().Err(err).Msg("Close failed during shutdown")
			}
		}
	}

	adapter, cacheClose := buildMarket(cfg, breakers)
	if cacheClose != nil {
		closers = append(closers, cacheClose)
	}

	// The client timeout is a hard cap across every caller; per-call
	// options only shorten it, so it carries the slowest (evolution) one.
	llmClient := llm.NewClient(llm.ClientConfig{
		Endpoint:    cfg.LLM.Endpoint,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.GetEvolutionTimeout(),
		Breakers:    breakers,
	})

	store, err := strategy.NewStore(cfg.Paths.Strategy)
	if err != nil {
		shutdown()
		return nil, nil, err
	}

	ldg, err := ledger.Open(cfg.Paths.Ledger)
	if err != nil {
		shutdown()
		return nil, nil, err
	}
	closers = append(closers, ldg.Close)

	trace, err := tracelog.Open(cfg.Paths.TraceLog, 0)
	if err != nil {
		shutdown()
		return nil, nil, err
	}

	prompts, err := adversary.NewPromptStore(cfg.Paths.Prompts)
	if err != nil {
		shutdown()
		return nil, nil, err
	}

	mem := memory.NewEvolutionMemory(cfg.Paths.Memory)
	guards := guardrails.New(cfg.Trading.InitialEquity, cfg.Trading.KillSwitchThreshold, float64(cfg.Trading.StabilityLockHours))

	// The bus is observability, not control flow; run degraded when it
	// cannot start.
	eventBus, err := bus.New(bus.Config{
		Embedded: cfg.NATS.Embedded,
		URL:      cfg.NATS.URL,
		Prefix:   cfg.NATS.Prefix,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Event bus unavailable, running without process events")
	} else {
		closers = append(closers, eventBus.Close)
	}

	configureAlerts(cfg, eventBus)

	loop := reasoning.NewLoop(reasoning.Config{
		Symbol:    cfg.Trading.Symbol,
		Timeframe: cfg.Trading.Timeframe,
		Interval:  cfg.Trading.ReasoningInterval(),
	}, adapter, regime.NewAnalyzer(0, 0))
	var analysisSink reasoning.EventSink
	if eventBus != nil {
		analysisSink = eventBus
	}
	loop.SetSinks(trace, analysisSink)

	macro := oracle.New(oracle.Config{
		SpyThreshold: cfg.Oracle.SPYThreshold,
		Interval:     time.Duration(cfg.Oracle.IntervalMinutes) * time.Minute,
		Tickers:      cfg.Equities.Tickers,
	}, adapter, shared)

	mood := sentiment.New(sentiment.Config{}, adapter, shared)

	pulse := narrative.New(narrative.Config{
		WhaleThresholdBTC: cfg.Narrative.WhaleThreshold,
		Interval:          time.Duration(cfg.Narrative.IntervalMinutes) * time.Minute,
	}, &narrative.VolumeInflow{Feed: adapter, Symbol: cfg.Trading.Symbol}, shared)

	analyst := adversary.NewAnalyst(adversary.AnalystConfig{
		Timeout: cfg.LLM.GetAnalysisTimeout(),
	}, llmClient, prompts)
	scorer := auditor.New(auditor.Config{Symbol: cfg.Trading.Symbol}, ldg, adapter)
	mutator := adversary.NewMutator(adversary.MutatorConfig{
		Interval:      time.Duration(cfg.Evolution.IntervalHours) * time.Hour,
		MinConfidence: cfg.Evolution.FailedPredictionMinConfidence,
		Timeout:       cfg.LLM.GetEvolutionTimeout(),
	}, prompts, llmClient, ldg)

	ideas := explorer.New(explorer.Config{
		Interval:    time.Duration(cfg.Evolution.ExplorerIntervalHours) * time.Hour,
		Temperature: cfg.Evolution.ExplorerTemperature,
	}, llmClient, mem)
	ideas.SetTrace(trace)

	arch := architect.New(architect.Config{
		Symbol:    cfg.Trading.Symbol,
		Timeframe: cfg.Trading.Timeframe,
	}, architect.Deps{
		Store:  store,
		Guards: guards,
		Screen: redteam.New(redteam.Config{
			FlashCrashPct:        cfg.RedTeam.FlashCrashPct,
			MaxDrawdownThreshold: cfg.RedTeam.MaxDrawdownThreshold,
			StopLossRequired:     cfg.RedTeam.StopLossRequired,
		}),
		Gate: backtest.New(backtest.Config{
			InitialCapital:    cfg.Backtest.InitialCapital,
			MinSharpeDeploy:   cfg.Backtest.MinSharpeDeploy,
			MaxDrawdownDeploy: cfg.Backtest.MaxDrawdownDeploy,
		}),
		Memory:  mem,
		Shared:  shared,
		Candles: adapter,
	})

	paperTrader := shadow.New(shadow.Config{
		Iterations:      cfg.Evolution.PromotionThresholdIterations,
		SharpeThreshold: cfg.Evolution.SharpeRatioThreshold,
	})

	apiDeps := httpapi.Deps{
		Reasoning:  loop,
		Guardrails: guards,
		State:      shared,
		Adversary:  analyst,
		Shadow:     paperTrader,
		Ledger:     ldg,
		Narrative:  pulse,
		Traces:     trace,
		Prompts:    prompts,
		Explorer:   ideas,
	}
	if eventBus != nil {
		apiDeps.Events = eventBus
	}
	api := httpapi.NewServer(httpapi.Config{
		Host:    cfg.API.Host,
		Port:    cfg.API.Port,
		Metrics: cfg.Monitoring.EnableMetrics,
	}, apiDeps)

	comp := supervisor.Components{
		Reasoning: loop,
		Market:    adapter,
		Strategy:  store,
		Guards:    guards,
		Shared:    shared,
		Oracle:    macro,
		Sentiment: mood,
		Narrative: pulse,
		Auditor:   scorer,
		Mutator:   mutator,
		Explorer:  ideas,
		Architect: arch,
		Adversary: analyst,
		Ledger:    ldg,
		Shadow:    paperTrader,
		API:       api,
	}
	if eventBus != nil {
		comp.Events = eventBus
	}

	sup, err := supervisor.New(supervisor.Config{
		Symbol:              cfg.Trading.Symbol,
		Timeframe:           cfg.Trading.Timeframe,
		KillSwitchThreshold: cfg.Trading.KillSwitchThreshold,
	}, comp)
	if err != nil {
		shutdown()
		return nil, nil, err
	}

	log.Info().
		Str("market_mode", adapter.Mode()).
		Bool("llm_configured", cfg.LLM.APIKey != "").
		Bool("event_bus", eventBus != nil).
		Bool("telegram", cfg.Telegram.Token != "").
		Int("prompt_version", prompts.Version()).
		Msg("Control plane assembled")

	return sup, shutdown, nil
}

// buildMarket constructs the market adapter from whatever credentials
// are present. Missing pieces degrade to the synthetic feed inside the
// adapter rather than failing startup.
func buildMarket(cfg *config.Config, breakers *risk.BreakerManager) (*market.Adapter, func() error) {
	deps := market.AdapterDeps{
		FearGreed:         market.NewFearGreedClient("", cfg.Exchange.GetTimeout()),
		Breakers:          breakers,
		RequestsPerSecond: cfg.Exchange.RateLimitRPS,
	}

	if cfg.Exchange.APIKey != "" && cfg.Exchange.SecretKey != "" {
		deps.Exchange = market.NewBinanceSource(market.BinanceConfig{
			APIKey:    cfg.Exchange.APIKey,
			SecretKey: cfg.Exchange.SecretKey,
			Testnet:   cfg.Exchange.Testnet,
		})
	} else {
		log.Warn().Msg("Exchange credentials absent, serving synthetic market data")
	}

	if cfg.Equities.APIKey != "" && cfg.Equities.SecretKey != "" {
		deps.Equities = market.NewAlpacaSource(market.AlpacaConfig{
			APIKey:    cfg.Equities.APIKey,
			SecretKey: cfg.Equities.SecretKey,
			Endpoint:  cfg.Equities.Endpoint,
			Timeout:   time.Duration(cfg.Equities.TimeoutMS) * time.Millisecond,
		})
	} else {
		log.Warn().Msg("Equities credentials absent, macro oracle will use fallback bars")
	}

	var cacheClose func() error
	if cfg.Redis.Enabled {
		cache, err := market.NewSeriesCache(cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.GetCacheTTL())
		if err != nil {
			log.Warn().Err(err).Msg("Redis cache unavailable, fetching uncached")
		} else {
			deps.Cache = cache
			cacheClose = cache.Close
		}
	}

	market.SetBaseline(cfg.Trading.Symbol, cfg.Exchange.BaselinePrice)

	return market.NewAdapter(deps), cacheClose
}

// configureAlerts installs the process-wide alert manager
func configureAlerts(cfg *config.Config, eventBus *bus.Bus) {
	alerters := []alerts.Alerter{alerts.NewLogAlerter()}
	if eventBus != nil {
		alerters = append(alerters, alerts.NewBusAlerter(eventBus))
	}
	if cfg.Telegram.Token != "" {
		tg, err := alerts.NewTelegramAlerter(cfg.Telegram.Token, []int64{cfg.Telegram.ChatID})
		if err != nil {
			log.Warn().Err(err).Msg("Telegram alerter unavailable")
		} else {
			alerters = append(alerters, tg)
		}
	}
	alerts.SetDefaultManager(alerts.NewManager(alerters...))
}

// verifyCredentials reports which subsystems will run live and which
// will degrade. Returns 0 when the configuration is runnable, 1 when a
// placeholder credential or a production gap is found.
func verifyCredentials(cfg *config.Config) int {
	log.Info().Msg("Verifying credentials and configuration...")

	allValid := true
	placeholders := []string{"changeme", "your_api_key", "your_secret_key", "test_key", "xxx"}
	isPlaceholder := func(v string) bool {
		lower := strings.ToLower(v)
		for _, p := range placeholders {
			if strings.Contains(lower, p) {
				return true
			}
		}
		return false
	}

	log.Info().Msg("Checking exchange credentials...")
	switch {
	case cfg.Exchange.APIKey == "" || cfg.Exchange.SecretKey == "":
		log.Warn().Msg("Exchange credentials not configured, market data will be synthetic")
		if cfg.App.Environment == "production" {
			log.Error().Msg("Production requires live exchange credentials")
			allValid = false
		}
	case isPlaceholder(cfg.Exchange.APIKey) || isPlaceholder(cfg.Exchange.SecretKey) || isPlaceholder(cfg.Exchange.Passphrase):
		log.Error().Msg("Exchange credentials look like placeholder values")
		allValid = false
	default:
		log.Info().
			Bool("testnet", cfg.Exchange.Testnet).
			Bool("passphrase", cfg.Exchange.Passphrase != "").
			Msg("Exchange credentials present (validation requires a live connection)")
	}

	log.Info().Msg("Checking equities credentials...")
	if cfg.Equities.APIKey == "" || cfg.Equities.SecretKey == "" {
		log.Warn().Msg("Equities credentials not configured, macro oracle will use fallback bars")
	} else if isPlaceholder(cfg.Equities.APIKey) || isPlaceholder(cfg.Equities.SecretKey) {
		log.Error().Msg("Equities credentials look like placeholder values")
		allValid = false
	} else {
		log.Info().Str("endpoint", cfg.Equities.Endpoint).Msg("Equities credentials present")
	}

	log.Info().Msg("Checking LLM configuration...")
	switch {
	case cfg.LLM.APIKey == "":
		log.Warn().Msg("LLM key not configured, analyst and explorer will run in fallback mode")
		if cfg.App.Environment == "production" {
			log.Error().Msg("Production requires an LLM key")
			allValid = false
		}
	case isPlaceholder(cfg.LLM.APIKey):
		log.Error().Msg("LLM key looks like a placeholder value")
		allValid = false
	default:
		log.Info().
			Str("endpoint", cfg.LLM.Endpoint).
			Str("model", cfg.LLM.Model).
			Msg("LLM configuration present")
	}

	log.Info().Msg("Checking alert sinks...")
	if cfg.Telegram.Token == "" {
		log.Info().Msg("Telegram not configured, alerts go to the log and event bus only")
	} else if cfg.Telegram.ChatID == 0 {
		log.Error().Msg("Telegram token set but chat_id missing")
		allValid = false
	} else {
		log.Info().Int64("chat_id", cfg.Telegram.ChatID).Msg("Telegram alerter configured")
	}

	if allValid {
		log.Info().Msg("Configuration verified, system is ready to start")
		return 0
	}
	log.Error().Msg("Configuration has blocking issues, fix the above before starting")
	return 1
}
