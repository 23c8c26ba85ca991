package models

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the timestamp format used by the price data provider
// for history keys.
const TimestampLayout = "2006-01-02 15:04:05"

// PricePoint is a single close observation.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Close     float64   `json:"close"`
}

// PriceSeries is a chronologically ordered sequence of price points with
// unique ascending timestamps.
type PriceSeries []PricePoint

// Closes returns the close values in series order.
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, p := range s {
		closes[i] = p.Close
	}
	return closes
}

// Last returns the final point of the series.
func (s PriceSeries) Last() (PricePoint, bool) {
	if len(s) == 0 {
		return PricePoint{}, false
	}
	return s[len(s)-1], true
}

// Period is a lookback period token accepted by the price data provider.
type Period string

const (
	Period1D  Period = "1d"
	Period1W  Period = "1w"
	Period1M  Period = "1m"
	Period3M  Period = "3m"
	PeriodYTD Period = "ytd"
	Period1Y  Period = "1y"
	PeriodAll Period = "all"
)

var validPeriods = map[Period]bool{
	Period1D: true, Period1W: true, Period1M: true, Period3M: true,
	PeriodYTD: true, Period1Y: true, PeriodAll: true,
}

// ParsePeriod validates a raw period token.
func ParsePeriod(raw string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(raw)))
	if !validPeriods[p] {
		return "", fmt.Errorf("%w: unknown period %q", ErrConfiguration, raw)
	}
	return p, nil
}

// Indicator identifies a technical indicator supported by the engine.
type Indicator string

const (
	IndicatorSMA       Indicator = "SMA"
	IndicatorEMA       Indicator = "EMA"
	IndicatorRSI       Indicator = "RSI"
	IndicatorRMI       Indicator = "RMI"
	IndicatorMACD      Indicator = "MACD"
	IndicatorBollinger Indicator = "BB"
)

// AllIndicators returns the supported indicators in display order.
func AllIndicators() []Indicator {
	return []Indicator{
		IndicatorSMA, IndicatorEMA, IndicatorRSI,
		IndicatorRMI, IndicatorMACD, IndicatorBollinger,
	}
}

// ParseIndicator validates a raw indicator name.
func ParseIndicator(raw string) (Indicator, error) {
	ind := Indicator(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range AllIndicators() {
		if ind == known {
			return ind, nil
		}
	}
	return "", fmt.Errorf("%w: unknown indicator %q", ErrConfiguration, raw)
}

// SignalKind is the direction of a crossing signal.
type SignalKind string

const (
	SignalBuy  SignalKind = "buy"
	SignalSell SignalKind = "sell"
)

// SignalEvent is a buy or sell crossing detected at a specific series index.
type SignalEvent struct {
	Index     int        `json:"index"`
	Timestamp time.Time  `json:"timestamp"`
	Price     float64    `json:"price"`
	Kind      SignalKind `json:"kind"`
	Indicator Indicator  `json:"indicator"`
	Symbol    string     `json:"symbol"`
}

// BacktestResult is the outcome of replaying a signal sequence against the
// price series it was detected on, compounding from a baseline capital of 100.
type BacktestResult struct {
	ProfitPercent       float64       `json:"profit_percent"`
	BuyPoints           []SignalEvent `json:"buy_points"`
	SellPoints          []SignalEvent `json:"sell_points"`
	LatestOpenBuyPrice  *float64      `json:"latest_open_buy_price"`
	LatestOpenSellPrice *float64      `json:"latest_open_sell_price"`
}

// NotificationRecord is the most recent signal for a (symbol, indicator)
// pair, flagged fresh when it post-dates the previous completed scan.
type NotificationRecord struct {
	ID string `json:"id"`
	SignalEvent
	IsNew bool `json:"is_new"`
}
