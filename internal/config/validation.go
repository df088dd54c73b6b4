package config

import (
	"fmt"
	"strings"
)

// ValidationError describes a single invalid configuration field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates all validation failures
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("config validation failed: %s", strings.Join(msgs, "; "))
}

// Validate checks the configuration for values that would make the
// process misbehave at runtime. Credential absence is not an error here:
// the market and LLM adapters degrade to synthetic mode without keys.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Trading.Symbol == "" {
		errs = append(errs, ValidationError{"trading.symbol", "must not be empty"})
	}
	if c.Trading.InitialEquity <= 0 {
		errs = append(errs, ValidationError{"trading.initial_equity", "must be positive"})
	}
	if c.Trading.KillSwitchThreshold <= 0 || c.Trading.KillSwitchThreshold >= 1 {
		errs = append(errs, ValidationError{"trading.kill_switch_threshold", "must be a fraction in (0, 1)"})
	}
	if c.Trading.StabilityLockHours < 0 {
		errs = append(errs, ValidationError{"trading.stability_lock_hours", "must not be negative"})
	}
	if c.Trading.ReasoningIntervalMinutes <= 0 {
		errs = append(errs, ValidationError{"trading.reasoning_interval_minutes", "must be positive"})
	}

	if c.Evolution.IntervalHours <= 0 {
		errs = append(errs, ValidationError{"evolution.interval_hours", "must be positive"})
	}
	if c.Evolution.PromotionThresholdIterations <= 0 {
		errs = append(errs, ValidationError{"evolution.promotion_threshold_iterations", "must be positive"})
	}
	if c.Evolution.SharpeRatioThreshold <= 0 {
		errs = append(errs, ValidationError{"evolution.sharpe_ratio_threshold", "must be positive"})
	}

	if c.Backtest.MinSharpeDeploy <= 0 {
		errs = append(errs, ValidationError{"backtest.min_sharpe_deploy", "must be positive"})
	}
	if c.Backtest.MaxDrawdownDeploy <= 0 || c.Backtest.MaxDrawdownDeploy >= 1 {
		errs = append(errs, ValidationError{"backtest.max_drawdown_deploy", "must be a fraction in (0, 1)"})
	}

	if c.Oracle.SPYThreshold >= 0 {
		errs = append(errs, ValidationError{"oracle.spy_threshold", "must be negative (a drop threshold)"})
	}
	if c.Narrative.WhaleThreshold <= 0 {
		errs = append(errs, ValidationError{"narrative.whale_threshold", "must be positive"})
	}

	if c.RedTeam.FlashCrashPct >= 0 {
		errs = append(errs, ValidationError{"redteam.flash_crash_pct", "must be negative"})
	}
	if c.RedTeam.MaxDrawdownThreshold <= 0 || c.RedTeam.MaxDrawdownThreshold >= 1 {
		errs = append(errs, ValidationError{"redteam.max_drawdown_threshold", "must be a fraction in (0, 1)"})
	}

	if len(c.Equities.Tickers) == 0 {
		errs = append(errs, ValidationError{"equities.tickers", "at least one ticker required"})
	}

	for field, path := range map[string]string{
		"paths.ledger":    c.Paths.Ledger,
		"paths.memory":    c.Paths.Memory,
		"paths.prompts":   c.Paths.Prompts,
		"paths.strategy":  c.Paths.Strategy,
		"paths.trace_log": c.Paths.TraceLog,
	} {
		if path == "" {
			errs = append(errs, ValidationError{field, "must not be empty"})
		}
	}

	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, ValidationError{"api.port", "must be a valid port"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
