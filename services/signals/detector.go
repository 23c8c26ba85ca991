// Package signals detects buy/sell crossing events over aligned indicator
// series under a single-open-position state machine.
package signals

import (
	"fmt"
	"math"

	"github.com/eonurk/finance-bro/models"
	"github.com/eonurk/finance-bro/services/indicators"
)

// Oscillator thresholds for RSI/RMI crossings.
const (
	OversoldThreshold   = 30.0
	OverboughtThreshold = 70.0
)

type ruleKind int

const (
	ruleThreshold ruleKind = iota // oscillator vs fixed bounds
	ruleTwoLine                   // line vs reference line
	rulePriceLine                 // close vs moving average
	ruleBands                     // close vs upper/lower bands
)

// CrossingRule decides buy/sell transitions between two consecutive samples.
// One rule value per indicator keeps every profit path on the same detector.
type CrossingRule struct {
	kind       ruleKind
	line       []float64 // oscillator, macd line, or moving average
	ref        []float64 // signal line (two-line) or upper band
	lower      []float64 // lower band
	closes     []float64
	lowerBound float64
	upperBound float64
}

// ThresholdRule triggers on crossings of an oscillator through the
// oversold/overbought bounds.
func ThresholdRule(values []float64, lowerBound, upperBound float64) CrossingRule {
	return CrossingRule{kind: ruleThreshold, line: values, lowerBound: lowerBound, upperBound: upperBound}
}

// TwoLineRule triggers when line crosses its reference line.
func TwoLineRule(line, ref []float64) CrossingRule {
	return CrossingRule{kind: ruleTwoLine, line: line, ref: ref}
}

// PriceLineRule triggers when the close crosses a moving-average line.
func PriceLineRule(closes, ma []float64) CrossingRule {
	return CrossingRule{kind: rulePriceLine, closes: closes, line: ma}
}

// BandRule triggers mean-reversion entries below the lower band and exits
// above the upper band.
func BandRule(closes, upper, lower []float64) CrossingRule {
	return CrossingRule{kind: ruleBands, closes: closes, ref: upper, lower: lower}
}

// defined reports whether the rule can be evaluated at index i.
func (r CrossingRule) defined(i int) bool {
	switch r.kind {
	case ruleThreshold:
		return !math.IsNaN(r.line[i])
	case ruleTwoLine:
		return !math.IsNaN(r.line[i]) && !math.IsNaN(r.ref[i])
	case rulePriceLine:
		return !math.IsNaN(r.line[i])
	case ruleBands:
		return !math.IsNaN(r.ref[i]) && !math.IsNaN(r.lower[i])
	}
	return false
}

// buy reports an upward entry crossing between i-1 and i.
func (r CrossingRule) buy(i int) bool {
	switch r.kind {
	case ruleThreshold:
		return r.line[i-1] < r.lowerBound && r.line[i] >= r.lowerBound
	case ruleTwoLine:
		return r.line[i-1] <= r.ref[i-1] && r.line[i] > r.ref[i]
	case rulePriceLine:
		return r.closes[i-1] <= r.line[i-1] && r.closes[i] > r.line[i]
	case ruleBands:
		return r.closes[i-1] >= r.lower[i-1] && r.closes[i] < r.lower[i]
	}
	return false
}

// sell reports an exit crossing between i-1 and i.
func (r CrossingRule) sell(i int) bool {
	switch r.kind {
	case ruleThreshold:
		return r.line[i-1] > r.upperBound && r.line[i] <= r.upperBound
	case ruleTwoLine:
		return r.line[i-1] >= r.ref[i-1] && r.line[i] < r.ref[i]
	case rulePriceLine:
		return r.closes[i-1] >= r.line[i-1] && r.closes[i] < r.line[i]
	case ruleBands:
		return r.closes[i-1] <= r.ref[i-1] && r.closes[i] > r.ref[i]
	}
	return false
}

// BuildRule computes the indicator series for ind at its default window and
// wraps it in the matching crossing rule.
func BuildRule(ind models.Indicator, closes []float64) (CrossingRule, error) {
	switch ind {
	case models.IndicatorRSI:
		values, err := indicators.RSI(closes, indicators.DefaultRSIPeriod)
		if err != nil {
			return CrossingRule{}, err
		}
		return ThresholdRule(values, OversoldThreshold, OverboughtThreshold), nil

	case models.IndicatorRMI:
		values, err := indicators.RMI(closes, indicators.DefaultRMIPeriod)
		if err != nil {
			return CrossingRule{}, err
		}
		return ThresholdRule(values, OversoldThreshold, OverboughtThreshold), nil

	case models.IndicatorMACD:
		macdLine, signalLine, err := indicators.MACD(closes,
			indicators.DefaultMACDFast, indicators.DefaultMACDSlow, indicators.DefaultMACDSignal)
		if err != nil {
			return CrossingRule{}, err
		}
		return TwoLineRule(macdLine, signalLine), nil

	case models.IndicatorSMA:
		ma, err := indicators.SMA(closes, indicators.DefaultMAPeriod)
		if err != nil {
			return CrossingRule{}, err
		}
		return PriceLineRule(closes, ma), nil

	case models.IndicatorEMA:
		ma, err := indicators.EMA(closes, indicators.DefaultMAPeriod)
		if err != nil {
			return CrossingRule{}, err
		}
		return PriceLineRule(closes, ma), nil

	case models.IndicatorBollinger:
		upper, _, lower, err := indicators.BollingerBands(closes,
			indicators.DefaultBollingerPeriod, indicators.DefaultBollingerK)
		if err != nil {
			return CrossingRule{}, err
		}
		return BandRule(closes, upper, lower), nil
	}
	return CrossingRule{}, fmt.Errorf("%w: no crossing rule for indicator %q", models.ErrConfiguration, ind)
}

// Detect runs a single ascending pass over the price series, evaluating the
// rule at each index where both the current and previous samples are
// defined. At most one position is open at a time; re-entries while long
// are ignored. An open position at series end emits no sell event.
func Detect(symbol string, ind models.Indicator, prices models.PriceSeries, rule CrossingRule) []models.SignalEvent {
	var events []models.SignalEvent
	long := false

	for i := 1; i < len(prices); i++ {
		if !rule.defined(i-1) || !rule.defined(i) {
			continue
		}

		if !long && rule.buy(i) {
			long = true
			events = append(events, models.SignalEvent{
				Index:     i,
				Timestamp: prices[i].Timestamp,
				Price:     prices[i].Close,
				Kind:      models.SignalBuy,
				Indicator: ind,
				Symbol:    symbol,
			})
			continue
		}

		if long && rule.sell(i) {
			long = false
			events = append(events, models.SignalEvent{
				Index:     i,
				Timestamp: prices[i].Timestamp,
				Price:     prices[i].Close,
				Kind:      models.SignalSell,
				Indicator: ind,
				Symbol:    symbol,
			})
		}
	}
	return events
}

// DetectIndicator builds the default rule for ind and runs Detect over the
// series.
func DetectIndicator(symbol string, ind models.Indicator, prices models.PriceSeries) ([]models.SignalEvent, error) {
	rule, err := BuildRule(ind, prices.Closes())
	if err != nil {
		return nil, err
	}
	return Detect(symbol, ind, prices, rule), nil
}
