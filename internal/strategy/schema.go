package strategy

import (
	"fmt"
	"strings"
)

// ValidationError contains details about a single validation failure
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("strategy validation failed: %s", strings.Join(msgs, "; "))
}

// supportedIndicatorTypes maps indicator type to whether it requires a
// period.
var supportedIndicatorTypes = map[string]bool{
	"sma":              true,
	"ema":              true,
	"rsi":              true,
	"bollinger_upper":  true,
	"bollinger_middle": true,
	"bollinger_lower":  true,
	"current_price":    false,
	"avg_volume":       false,
	"current_volume":   false,
}

var supportedOps = map[string]bool{
	"gt":  true,
	"lt":  true,
	"gte": true,
	"lte": true,
}

// Validate checks the whole document and returns every issue found
func (d *Document) Validate() error {
	var errs ValidationErrors
	errs = append(errs, d.validateMetadata()...)
	errs = append(errs, d.validateIndicators()...)
	errs = append(errs, d.validateSignal()...)
	errs = append(errs, d.validateRisk()...)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (d *Document) validateMetadata() ValidationErrors {
	var errs ValidationErrors

	if d.Metadata.SchemaVersion == "" {
		errs = append(errs, ValidationError{
			Field:   "metadata.schema_version",
			Message: "schema version is required",
		})
	} else if !IsVersionSupported(d.Metadata.SchemaVersion) {
		errs = append(errs, ValidationError{
			Field:   "metadata.schema_version",
			Message: fmt.Sprintf("unsupported schema version %s, supported: %v", d.Metadata.SchemaVersion, SupportedSchemaVersions),
		})
	}

	if d.Metadata.Name == "" {
		errs = append(errs, ValidationError{
			Field:   "metadata.name",
			Message: "strategy name is required",
		})
	} else if len(d.Metadata.Name) > 100 {
		errs = append(errs, ValidationError{
			Field:   "metadata.name",
			Message: "strategy name must be 100 characters or less",
		})
	}

	return errs
}

func (d *Document) validateIndicators() ValidationErrors {
	var errs ValidationErrors

	if len(d.Indicators) == 0 {
		errs = append(errs, ValidationError{
			Field:   "indicators",
			Message: "at least one indicator is required",
		})
		return errs
	}

	seen := make(map[string]bool)
	for i, spec := range d.Indicators {
		field := fmt.Sprintf("indicators[%d]", i)

		if spec.Name == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: "indicator name is required",
			})
		} else if seen[spec.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate indicator name %q", spec.Name),
			})
		}
		seen[spec.Name] = true

		needsPeriod, ok := supportedIndicatorTypes[spec.Type]
		if !ok {
			errs = append(errs, ValidationError{
				Field:   field + ".type",
				Message: fmt.Sprintf("unsupported indicator type %q", spec.Type),
			})
			continue
		}
		if needsPeriod && spec.Period < 1 {
			errs = append(errs, ValidationError{
				Field:   field + ".period",
				Message: fmt.Sprintf("%s indicator requires a period of at least 1", spec.Type),
			})
		}
	}

	return errs
}

func (d *Document) validateSignal() ValidationErrors {
	var errs ValidationErrors

	names := make(map[string]bool, len(d.Indicators))
	for _, spec := range d.Indicators {
		names[spec.Name] = true
	}

	if d.Signal.BaseConfidence < 0 || d.Signal.BaseConfidence > 1 {
		errs = append(errs, ValidationError{
			Field:   "signal.base_confidence",
			Message: "base confidence must be between 0 and 1",
		})
	}

	for i, rule := range d.Signal.Rules {
		field := fmt.Sprintf("signal.rules[%d]", i)

		if rule.Action != ActionBuy && rule.Action != ActionSell {
			errs = append(errs, ValidationError{
				Field:   field + ".action",
				Message: fmt.Sprintf("action must be %s or %s", ActionBuy, ActionSell),
			})
		}
		if rule.Confidence < 0 || rule.Confidence > 1 {
			errs = append(errs, ValidationError{
				Field:   field + ".confidence",
				Message: "confidence must be between 0 and 1",
			})
		}
		if len(rule.When) == 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".when",
				Message: "rule requires at least one condition",
			})
		}

		for j, cond := range rule.When {
			condField := fmt.Sprintf("%s.when[%d]", field, j)

			if !names[cond.Left] {
				errs = append(errs, ValidationError{
					Field:   condField + ".left",
					Message: fmt.Sprintf("unknown indicator %q", cond.Left),
				})
			}
			if !supportedOps[cond.Op] {
				errs = append(errs, ValidationError{
					Field:   condField + ".op",
					Message: fmt.Sprintf("unsupported operator %q", cond.Op),
				})
			}
			hasRight := cond.Right != ""
			hasValue := cond.Value != nil
			if hasRight == hasValue {
				errs = append(errs, ValidationError{
					Field:   condField,
					Message: "exactly one of right and value must be set",
				})
			}
			if hasRight && !names[cond.Right] {
				errs = append(errs, ValidationError{
					Field:   condField + ".right",
					Message: fmt.Sprintf("unknown indicator %q", cond.Right),
				})
			}
		}
	}

	return errs
}

func (d *Document) validateRisk() ValidationErrors {
	var errs ValidationErrors

	if d.Risk.StopLossPct < 0 || d.Risk.StopLossPct > 0.5 {
		errs = append(errs, ValidationError{
			Field:   "risk.stop_loss_pct",
			Message: "stop loss must be between 0 and 0.5 (0-50%)",
		})
	}
	if d.Risk.MaxPositionPct < 0 || d.Risk.MaxPositionPct > 1 {
		errs = append(errs, ValidationError{
			Field:   "risk.max_position_pct",
			Message: "max position must be between 0 and 1",
		})
	}
	if d.Risk.MaxDrawdownPct < 0 || d.Risk.MaxDrawdownPct > 1 {
		errs = append(errs, ValidationError{
			Field:   "risk.max_drawdown_pct",
			Message: "max drawdown must be between 0 and 1",
		})
	}

	return errs
}
