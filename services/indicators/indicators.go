// Package indicators implements the technical indicator library. Every
// function maps a close series to one or more series of the same length,
// with math.NaN() marking entries inside the warm-up window.
package indicators

import (
	"fmt"
	"math"

	"github.com/eonurk/finance-bro/models"
)

// Default smoothing windows used across the engine.
const (
	DefaultMAPeriod        = 14
	DefaultRSIPeriod       = 14
	DefaultRMIPeriod       = 14
	DefaultMACDFast        = 12
	DefaultMACDSlow        = 26
	DefaultMACDSignal      = 9
	DefaultBollingerPeriod = 20
	DefaultBollingerK      = 2.0

	// RMIMomentumLookback is the fixed momentum distance used for RMI
	// deltas (close[i] - close[i-M]).
	RMIMomentumLookback = 5
)

// validate checks the period against the series length and rejects
// non-finite closes.
func validate(closes []float64, period int) error {
	if period < 1 || period > len(closes) {
		return fmt.Errorf("%w: period %d invalid for series of length %d",
			models.ErrConfiguration, period, len(closes))
	}
	for i, c := range closes {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: non-finite close at index %d", models.ErrData, i)
		}
	}
	return nil
}

// undefinedSeries returns a series of n NaN entries.
func undefinedSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA computes the simple moving average. The first period-1 entries are
// undefined; each defined entry is the mean of the trailing period closes.
func SMA(closes []float64, period int) ([]float64, error) {
	if err := validate(closes, period); err != nil {
		return nil, err
	}

	out := undefinedSeries(len(closes))
	var sum float64
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}

// EMA computes the exponential moving average with multiplier 2/(period+1),
// seeded at index period-1 with the SMA over the first period closes.
func EMA(closes []float64, period int) ([]float64, error) {
	if err := validate(closes, period); err != nil {
		return nil, err
	}

	out := undefinedSeries(len(closes))
	m := 2.0 / float64(period+1)

	var seed float64
	for i := 0; i < period; i++ {
		seed += closes[i]
	}
	out[period-1] = seed / float64(period)

	for i := period; i < len(closes); i++ {
		out[i] = closes[i]*m + out[i-1]*(1-m)
	}
	return out, nil
}

// RSI computes the relative strength index with Wilder smoothing over
// 1-period deltas. Defined from index period onward; avgLoss of zero maps
// to 100.
func RSI(closes []float64, period int) ([]float64, error) {
	if err := validate(closes, period); err != nil {
		return nil, err
	}
	if len(closes) <= period {
		// Not enough deltas for the seed averages.
		return undefinedSeries(len(closes)), nil
	}
	return wilderOscillator(closes, period, 1), nil
}

// RMI computes the relative momentum index: the RSI machinery applied to
// momentum deltas close[i] - close[i-RMIMomentumLookback] instead of
// single-bar deltas. Defined from index RMIMomentumLookback+period-1 onward.
func RMI(closes []float64, period int) ([]float64, error) {
	if err := validate(closes, period); err != nil {
		return nil, err
	}
	if len(closes) <= RMIMomentumLookback+period-1 {
		return undefinedSeries(len(closes)), nil
	}
	return wilderOscillator(closes, period, RMIMomentumLookback), nil
}

// wilderOscillator runs the shared Wilder-smoothed gain/loss oscillator.
// Deltas are close[i]-close[i-lookback]; the seed averages the first period
// deltas and subsequent values use avg = (avg*(period-1) + x) / period.
func wilderOscillator(closes []float64, period, lookback int) []float64 {
	out := undefinedSeries(len(closes))

	var avgGain, avgLoss float64
	for i := lookback; i < lookback+period; i++ {
		delta := closes[i] - closes[i-lookback]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	seedIdx := lookback + period - 1
	out[seedIdx] = oscillatorValue(avgGain, avgLoss)

	for i := seedIdx + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-lookback]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = oscillatorValue(avgGain, avgLoss)
	}
	return out
}

func oscillatorValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD computes the MACD line (fast EMA minus slow EMA) and its signal line
// (an EMA of the MACD line over the defined region).
func MACD(closes []float64, fast, slow, signal int) (macdLine, signalLine []float64, err error) {
	if fast >= slow {
		return nil, nil, fmt.Errorf("%w: fast period %d must be below slow period %d",
			models.ErrConfiguration, fast, slow)
	}
	fastEMA, err := EMA(closes, fast)
	if err != nil {
		return nil, nil, err
	}
	slowEMA, err := EMA(closes, slow)
	if err != nil {
		return nil, nil, err
	}

	macdLine = undefinedSeries(len(closes))
	for i := slow - 1; i < len(closes); i++ {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}

	// The signal line smooths only the defined portion of the MACD line.
	defined := macdLine[slow-1:]
	signalLine = undefinedSeries(len(closes))
	if len(defined) >= signal {
		smoothed, err := EMA(defined, signal)
		if err != nil {
			return nil, nil, err
		}
		copy(signalLine[slow-1:], smoothed)
	}
	return macdLine, signalLine, nil
}

// BollingerBands computes the middle band (SMA), and upper/lower bands at
// k standard deviations of the trailing window around it.
func BollingerBands(closes []float64, period int, k float64) (upper, middle, lower []float64, err error) {
	middle, err = SMA(closes, period)
	if err != nil {
		return nil, nil, nil, err
	}

	upper = undefinedSeries(len(closes))
	lower = undefinedSeries(len(closes))
	for i := period - 1; i < len(closes); i++ {
		mean := middle[i]
		var variance float64
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - mean
			variance += d * d
		}
		stddev := math.Sqrt(variance / float64(period))
		upper[i] = mean + k*stddev
		lower[i] = mean - k*stddev
	}
	return upper, middle, lower, nil
}
