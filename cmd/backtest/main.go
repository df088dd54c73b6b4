// Offline deployment-gate runner. Replays a decision document against a
// candle history and applies the same thresholds the architect uses
// before installing an evolution, so a document can be screened without
// starting the control plane.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/backtest"
	"github.com/AbhayRathi/AlphaWEEX/internal/config"
	"github.com/AbhayRathi/AlphaWEEX/internal/market"
	"github.com/AbhayRathi/AlphaWEEX/internal/strategy"
)

var (
	configPath   = flag.String("config", "", "Path to config file (default: ./configs/config.yaml)")
	strategyPath = flag.String("strategy", "", "Decision document to replay (default: the configured active strategy)")
	candlesPath  = flag.String("candles", "", "JSON candle history to replay against (default: synthetic)")
	bars         = flag.Int("bars", 500, "Synthetic history length when no candle file is given")
	seed         = flag.Int64("seed", 42, "Synthetic history seed")
	capital      = flag.Float64("capital", 0, "Override the configured initial capital")
	minSharpe    = flag.Float64("min-sharpe", 0, "Override the configured Sharpe floor")
	maxDrawdown  = flag.Float64("max-drawdown", 0, "Override the configured drawdown ceiling")
	outputFile   = flag.String("output", "", "Write the JSON result to this file as well")
	verbose      = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	btCfg := backtest.Config{
		InitialCapital:    cfg.Backtest.InitialCapital,
		MinSharpeDeploy:   cfg.Backtest.MinSharpeDeploy,
		MaxDrawdownDeploy: cfg.Backtest.MaxDrawdownDeploy,
	}
	if *capital > 0 {
		btCfg.InitialCapital = *capital
	}
	if *minSharpe > 0 {
		btCfg.MinSharpeDeploy = *minSharpe
	}
	if *maxDrawdown > 0 {
		btCfg.MaxDrawdownDeploy = *maxDrawdown
	}

	docPath := *strategyPath
	if docPath == "" {
		docPath = cfg.Paths.Strategy
	}
	doc, err := loadDocument(docPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", docPath).Msg("Failed to load decision document")
	}

	candles, source, err := loadCandles(*candlesPath, *bars, *seed)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load candle history")
	}

	log.Info().
		Str("document", doc.Metadata.Name).
		Str("version", doc.Metadata.Version).
		Int("candles", len(candles)).
		Str("history", source).
		Float64("capital", btCfg.InitialCapital).
		Float64("min_sharpe", btCfg.MinSharpeDeploy).
		Float64("max_drawdown", btCfg.MaxDrawdownDeploy).
		Msg("Starting replay")

	result, err := backtest.New(btCfg).Run(doc, candles)
	if err != nil {
		log.Fatal().Err(err).Msg("Replay failed")
	}

	log.Info().
		Float64("total_return", result.Metrics.TotalReturn).
		Float64("sharpe", result.Metrics.SharpeRatio).
		Float64("max_drawdown", result.Metrics.MaxDrawdown).
		Float64("win_rate", result.Metrics.WinRate).
		Int("trades", result.Metrics.NumTrades).
		Float64("final_equity", result.Metrics.FinalEquity).
		Msg("Replay finished")

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode result")
	}
	fmt.Println(string(out))

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, out, 0600); err != nil {
			log.Warn().Err(err).Str("file", *outputFile).Msg("Failed to write output file")
		} else {
			log.Info().Str("file", *outputFile).Msg("Result written to file")
		}
	}

	if !result.CanDeploy {
		log.Warn().Msg("Deployment gate rejected this document")
		os.Exit(1)
	}
	log.Info().Msg("Deployment gate passed")
}

// loadDocument reads and parses a decision document. A missing file
// falls back to the built-in baseline so the runner works on a fresh
// checkout.
func loadDocument(path string) (*strategy.Document, error) {
	source, err := os.ReadFile(path) // #nosec G304 -- Operator-supplied path
	if os.IsNotExist(err) {
		log.Warn().Str("path", path).Msg("No document found, replaying the built-in baseline")
		return strategy.DefaultDocument(), nil
	}
	if err != nil {
		return nil, err
	}
	return strategy.Parse(source)
}

// loadCandles returns the history to replay and a label for logging
func loadCandles(path string, bars int, seed int64) ([]market.Candle, string, error) {
	if path == "" {
		return backtest.SyntheticCandles(bars, seed, time.Now()), "synthetic", nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- Operator-supplied path
	if err != nil {
		return nil, "", err
	}
	var candles []market.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, "", fmt.Errorf("failed to parse candle history: %w", err)
	}
	if len(candles) == 0 {
		return nil, "", fmt.Errorf("candle history %s is empty", path)
	}
	return candles, path, nil
}
