package strategy

import (
	"fmt"

	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"

	"github.com/AbhayRathi/AlphaWEEX/internal/market"
)

// Program is a compiled document ready to run against candle windows
type Program struct {
	doc *Document
}

// Compile validates the document and returns a runnable program
func (d *Document) Compile() (*Program, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &Program{doc: d}, nil
}

// Document returns the definition this program was compiled from
func (p *Program) Document() *Document {
	return p.doc
}

// CalculateIndicators evaluates every declared indicator over the
// window. Windows shorter than two candles yield an empty map.
func (p *Program) CalculateIndicators(candles []market.Candle) map[string]float64 {
	if len(candles) < 2 {
		return map[string]float64{}
	}

	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	out := make(map[string]float64, len(p.doc.Indicators))
	for _, spec := range p.doc.Indicators {
		out[spec.Name] = evalIndicator(spec, closes, volumes)
	}
	return out
}

func evalIndicator(spec IndicatorSpec, closes, volumes []float64) float64 {
	switch spec.Type {
	case "sma":
		if len(closes) < spec.Period {
			return lastSMA(closes, spec.Period)
		}
		sma := trend.NewSmaWithPeriod[float64](spec.Period)
		return lastValue(sma.Compute(sliceToChan(closes)), closes[len(closes)-1])
	case "ema":
		if len(closes) < spec.Period {
			return lastSMA(closes, spec.Period)
		}
		ema := trend.NewEmaWithPeriod[float64](spec.Period)
		return lastValue(ema.Compute(sliceToChan(closes)), closes[len(closes)-1])
	case "rsi":
		if len(closes) < spec.Period+1 {
			return 50.0
		}
		rsi := momentum.NewRsiWithPeriod[float64](spec.Period)
		return lastValue(rsi.Compute(sliceToChan(closes)), 50.0)
	case "bollinger_upper", "bollinger_middle", "bollinger_lower":
		return lastBollinger(spec.Type, closes, spec.Period)
	case "current_price":
		return closes[len(closes)-1]
	case "avg_volume":
		return mean(volumes)
	case "current_volume":
		return volumes[len(volumes)-1]
	default:
		return 0
	}
}

// lastSMA averages the trailing period, or the whole series when it is
// shorter than the period.
func lastSMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if period > len(values) {
		period = len(values)
	}
	return mean(values[len(values)-period:])
}

func lastBollinger(which string, closes []float64, period int) float64 {
	if len(closes) < period {
		return lastSMA(closes, period)
	}
	bb := volatility.NewBollingerBandsWithPeriod[float64](period)
	lowerChan, middleChan, upperChan := bb.Compute(sliceToChan(closes))

	// Drain the three outputs in lockstep so the fan-out never blocks
	fallback := closes[len(closes)-1]
	lower, middle, upper := fallback, fallback, fallback
	for {
		l, lok := <-lowerChan
		m, mok := <-middleChan
		u, uok := <-upperChan
		if !lok || !mok || !uok {
			break
		}
		lower, middle, upper = l, m, u
	}

	switch which {
	case "bollinger_upper":
		return upper
	case "bollinger_lower":
		return lower
	default:
		return middle
	}
}

func sliceToChan(values []float64) chan float64 {
	c := make(chan float64, len(values))
	for _, v := range values {
		c <- v
	}
	close(c)
	return c
}

func lastValue(c <-chan float64, fallback float64) float64 {
	value := fallback
	ok := false
	for v := range c {
		value = v
		ok = true
	}
	if !ok {
		return fallback
	}
	return value
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// GenerateSignal runs the document's rules over computed indicators and
// merges the reasoning analysis. The analysis reinforces a matching
// rule and overrides a conflicting one.
func (p *Program) GenerateSignal(indicators map[string]float64, analysis *AnalysisView) Decision {
	if len(indicators) == 0 {
		return Decision{
			Action:     ActionHold,
			Confidence: 0.0,
			Reason:     "Insufficient indicators",
		}
	}

	decision := Decision{
		Action:     ActionHold,
		Confidence: p.doc.Signal.BaseConfidence,
		Reason:     p.doc.Signal.HoldReason,
	}
	if decision.Reason == "" {
		decision.Reason = "Default hold position"
	}

	for _, rule := range p.doc.Signal.Rules {
		if ruleMatches(rule, indicators) {
			decision.Action = rule.Action
			decision.Confidence = rule.Confidence
			decision.Reason = rule.Reason
			break
		}
	}

	if analysis != nil && analysis.Signal != "" {
		if analysis.Signal == decision.Action {
			decision.Confidence = (decision.Confidence+analysis.Confidence)/2 + 0.1
		} else if analysis.Signal != ActionHold {
			decision.Action = analysis.Signal
			decision.Confidence = analysis.Confidence
			decision.Reason = fmt.Sprintf("Reasoning override: %s", analysis.Reasoning)
		}
	}

	if decision.Confidence > 1.0 {
		decision.Confidence = 1.0
	}
	return decision
}

func ruleMatches(rule Rule, indicators map[string]float64) bool {
	for _, cond := range rule.When {
		left, ok := indicators[cond.Left]
		if !ok {
			return false
		}

		var right float64
		if cond.Value != nil {
			right = *cond.Value
		} else {
			right, ok = indicators[cond.Right]
			if !ok {
				return false
			}
		}

		if !compare(left, cond.Op, right) {
			return false
		}
	}
	return true
}

func compare(left float64, op string, right float64) bool {
	switch op {
	case "gt":
		return left > right
	case "lt":
		return left < right
	case "gte":
		return left >= right
	case "lte":
		return left <= right
	default:
		return false
	}
}
