package indicators

import (
	"errors"
	"math"
	"testing"

	"github.com/eonurk/finance-bro/models"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("%s: got %v, want %v (tol %v)", label, got, want, tol)
	}
}

func assertUndefined(t *testing.T, label string, values []float64, upto int) {
	t.Helper()
	for i := 0; i < upto; i++ {
		if !math.IsNaN(values[i]) {
			t.Errorf("%s: index %d should be undefined, got %v", label, i, values[i])
		}
	}
}

func TestSMAWindowMean(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6}
	out, err := SMA(closes, 3)
	if err != nil {
		t.Fatalf("SMA: %v", err)
	}
	if len(out) != len(closes) {
		t.Fatalf("length: got %d, want %d", len(out), len(closes))
	}
	assertUndefined(t, "SMA", out, 2)

	want := []float64{2, 3, 4, 5}
	for i, w := range want {
		assertClose(t, "SMA value", out[i+2], w, 1e-12)
	}
}

func TestSMAInvalidPeriod(t *testing.T) {
	cases := []struct {
		name   string
		period int
	}{
		{"zero", 0},
		{"negative", -3},
		{"longer than series", 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := SMA([]float64{1, 2, 3}, tc.period)
			if !errors.Is(err, models.ErrConfiguration) {
				t.Errorf("period %d: got %v, want configuration error", tc.period, err)
			}
		})
	}
}

func TestNonFinitePricesRejected(t *testing.T) {
	closes := []float64{1, 2, math.NaN(), 4}
	if _, err := SMA(closes, 2); !errors.Is(err, models.ErrData) {
		t.Errorf("NaN close: got %v, want data error", err)
	}
	closes[2] = math.Inf(1)
	if _, err := EMA(closes, 2); !errors.Is(err, models.ErrData) {
		t.Errorf("Inf close: got %v, want data error", err)
	}
}

func TestEMASeedAndContinuity(t *testing.T) {
	closes := []float64{22.27, 22.19, 22.08, 22.17, 22.18, 22.13, 22.23, 22.43, 22.24, 22.29, 22.15, 22.39}
	period := 10
	out, err := EMA(closes, period)
	if err != nil {
		t.Fatalf("EMA: %v", err)
	}
	assertUndefined(t, "EMA", out, period-1)

	// Seed equals the SMA over the first period closes.
	var seed float64
	for _, c := range closes[:period] {
		seed += c
	}
	seed /= float64(period)
	assertClose(t, "EMA seed", out[period-1], seed, 1e-12)

	// Recurrence holds for every index past the seed.
	m := 2.0 / float64(period+1)
	for i := period; i < len(closes); i++ {
		want := closes[i]*m + out[i-1]*(1-m)
		assertClose(t, "EMA continuity", out[i], want, 1e-12)
	}
}

// TestRSIWilderTrajectory verifies the smoothed gain/loss trajectory for
// closes [10,9,8,11,14,13,9,8,12,15] with period 3.
//
// Deltas: -1,-1,+3,+3,-1,-4,-1,+4,+3. Seed at index 3: avgGain=1,
// avgLoss=2/3, RSI=60. Wilder updates give:
//
//	i=4: 78.947368  i=5: 63.829787  i=6: 29.702970
//	i=7: 24.742268  i=8: 62.409888  i=9: 75.951243
func TestRSIWilderTrajectory(t *testing.T) {
	closes := []float64{10, 9, 8, 11, 14, 13, 9, 8, 12, 15}
	out, err := RSI(closes, 3)
	if err != nil {
		t.Fatalf("RSI: %v", err)
	}
	assertUndefined(t, "RSI", out, 3)

	want := []float64{60, 78.947368, 63.829787, 29.702970, 24.742268, 62.409888, 75.951243}
	for i, w := range want {
		assertClose(t, "RSI value", out[i+3], w, 1e-4)
	}
}

func TestRSIAllGainsSaturates(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7}
	out, err := RSI(closes, 3)
	if err != nil {
		t.Fatalf("RSI: %v", err)
	}
	for i := 3; i < len(out); i++ {
		assertClose(t, "RSI avgLoss=0", out[i], 100, 1e-12)
	}
}

func TestRSIRange(t *testing.T) {
	closes := []float64{44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
		45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28, 46.00, 46.03, 46.41, 46.22, 45.64}
	out, err := RSI(closes, 14)
	if err != nil {
		t.Fatalf("RSI: %v", err)
	}
	for i, v := range out {
		if math.IsNaN(v) {
			continue
		}
		if v < 0 || v > 100 {
			t.Errorf("RSI[%d] = %v outside [0,100]", i, v)
		}
	}
}

func TestRMIDefinedFromMomentumWarmup(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i%4) + float64(i)/2
	}
	period := 4
	out, err := RMI(closes, period)
	if err != nil {
		t.Fatalf("RMI: %v", err)
	}

	definedFrom := RMIMomentumLookback + period - 1
	assertUndefined(t, "RMI", out, definedFrom)
	for i := definedFrom; i < len(out); i++ {
		if math.IsNaN(out[i]) {
			t.Errorf("RMI[%d] should be defined", i)
		}
		if out[i] < 0 || out[i] > 100 {
			t.Errorf("RMI[%d] = %v outside [0,100]", i, out[i])
		}
	}
}

func TestRMIUsesMomentumDeltas(t *testing.T) {
	// Rising by 1 each bar: every 5-bar momentum delta is +5, so RMI
	// saturates at 100 from the first defined index.
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = float64(10 + i)
	}
	out, err := RMI(closes, 3)
	if err != nil {
		t.Fatalf("RMI: %v", err)
	}
	for i := RMIMomentumLookback + 2; i < len(out); i++ {
		assertClose(t, "RMI rising", out[i], 100, 1e-12)
	}
}

func TestMACDAlignment(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 50 + 10*math.Sin(float64(i)/5)
	}
	macdLine, signalLine, err := MACD(closes, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
	if err != nil {
		t.Fatalf("MACD: %v", err)
	}
	if len(macdLine) != len(closes) || len(signalLine) != len(closes) {
		t.Fatalf("MACD output misaligned: %d/%d vs %d", len(macdLine), len(signalLine), len(closes))
	}

	assertUndefined(t, "macdLine", macdLine, DefaultMACDSlow-1)
	assertUndefined(t, "signalLine", signalLine, DefaultMACDSlow+DefaultMACDSignal-2)

	fastEMA, _ := EMA(closes, DefaultMACDFast)
	slowEMA, _ := EMA(closes, DefaultMACDSlow)
	for i := DefaultMACDSlow - 1; i < len(closes); i++ {
		assertClose(t, "macdLine", macdLine[i], fastEMA[i]-slowEMA[i], 1e-12)
	}
}

func TestMACDFastMustBeBelowSlow(t *testing.T) {
	closes := make([]float64, 40)
	if _, _, err := MACD(closes, 26, 12, 9); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("inverted fast/slow: got %v, want configuration error", err)
	}
}

func TestBollingerConstantSeriesCollapses(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 42
	}
	upper, middle, lower, err := BollingerBands(closes, DefaultBollingerPeriod, DefaultBollingerK)
	if err != nil {
		t.Fatalf("BollingerBands: %v", err)
	}
	for i := DefaultBollingerPeriod - 1; i < len(closes); i++ {
		assertClose(t, "middle", middle[i], 42, 1e-12)
		assertClose(t, "upper", upper[i], 42, 1e-12)
		assertClose(t, "lower", lower[i], 42, 1e-12)
	}
}

func TestBollingerBandWidth(t *testing.T) {
	closes := []float64{2, 4, 2, 4, 2, 4}
	// Trailing window of 4 alternating 2/4: mean 3, population stddev 1.
	upper, middle, lower, err := BollingerBands(closes, 4, 2)
	if err != nil {
		t.Fatalf("BollingerBands: %v", err)
	}
	for i := 3; i < len(closes); i++ {
		assertClose(t, "middle", middle[i], 3, 1e-12)
		assertClose(t, "upper", upper[i], 5, 1e-12)
		assertClose(t, "lower", lower[i], 1, 1e-12)
	}
}
