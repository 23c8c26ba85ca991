package controllers

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eonurk/finance-bro/models"
	"github.com/eonurk/finance-bro/services/backtesting"
	"github.com/eonurk/finance-bro/services/indicators"
	"github.com/eonurk/finance-bro/services/provider"
	"github.com/eonurk/finance-bro/services/signals"
)

// AnalysisController serves indicator series, signal events, and backtest
// results for a single symbol.
type AnalysisController struct {
	provider *provider.Client
}

// NewAnalysisController creates an analysis controller.
func NewAnalysisController(client *provider.Client) *AnalysisController {
	return &AnalysisController{provider: client}
}

// parseRequest extracts and validates the symbol/period/indicator triple.
func parseRequest(c *gin.Context) (symbol string, period models.Period, ind models.Indicator, ok bool) {
	symbol = c.Param("symbol")

	period, err := models.ParsePeriod(c.DefaultQuery("period", string(models.Period1Y)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", "", false
	}

	ind, err = models.ParseIndicator(c.DefaultQuery("indicator", string(models.IndicatorRSI)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", "", false
	}
	return symbol, period, ind, true
}

// fetchSeries loads the close history for one symbol.
func (ac *AnalysisController) fetchSeries(c *gin.Context, symbol string, period models.Period) (models.PriceSeries, bool) {
	histories, err := ac.provider.FetchHistory(c.Request.Context(), []string{symbol}, period)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, models.ErrConfiguration) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return nil, false
	}

	series, ok := histories[symbol]
	if !ok || len(series) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no history for symbol " + symbol})
		return nil, false
	}
	return series, true
}

// GetIndicators returns the aligned indicator series for charting.
// GET /api/v1/stocks/:symbol/indicators
func (ac *AnalysisController) GetIndicators(c *gin.Context) {
	symbol, period, ind, ok := parseRequest(c)
	if !ok {
		return
	}
	series, ok := ac.fetchSeries(c, symbol, period)
	if !ok {
		return
	}

	closes := series.Closes()
	lines, err := indicatorLines(ind, closes)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrConfiguration) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	timestamps := make([]string, len(series))
	for i, p := range series {
		timestamps[i] = p.Timestamp.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":     symbol,
		"period":     period,
		"indicator":  ind,
		"timestamps": timestamps,
		"closes":     closes,
		"series":     lines,
	})
}

// indicatorLines computes the named indicator at its default window and
// returns each output line with undefined entries mapped to JSON null.
func indicatorLines(ind models.Indicator, closes []float64) (gin.H, error) {
	switch ind {
	case models.IndicatorSMA:
		values, err := indicators.SMA(closes, indicators.DefaultMAPeriod)
		if err != nil {
			return nil, err
		}
		return gin.H{"values": jsonSeries(values)}, nil
	case models.IndicatorEMA:
		values, err := indicators.EMA(closes, indicators.DefaultMAPeriod)
		if err != nil {
			return nil, err
		}
		return gin.H{"values": jsonSeries(values)}, nil
	case models.IndicatorRSI:
		values, err := indicators.RSI(closes, indicators.DefaultRSIPeriod)
		if err != nil {
			return nil, err
		}
		return gin.H{"values": jsonSeries(values)}, nil
	case models.IndicatorRMI:
		values, err := indicators.RMI(closes, indicators.DefaultRMIPeriod)
		if err != nil {
			return nil, err
		}
		return gin.H{"values": jsonSeries(values)}, nil
	case models.IndicatorMACD:
		macdLine, signalLine, err := indicators.MACD(closes,
			indicators.DefaultMACDFast, indicators.DefaultMACDSlow, indicators.DefaultMACDSignal)
		if err != nil {
			return nil, err
		}
		return gin.H{
			"macd_line":   jsonSeries(macdLine),
			"signal_line": jsonSeries(signalLine),
		}, nil
	case models.IndicatorBollinger:
		upper, middle, lower, err := indicators.BollingerBands(closes,
			indicators.DefaultBollingerPeriod, indicators.DefaultBollingerK)
		if err != nil {
			return nil, err
		}
		return gin.H{
			"upper":  jsonSeries(upper),
			"middle": jsonSeries(middle),
			"lower":  jsonSeries(lower),
		}, nil
	}
	return nil, models.ErrConfiguration
}

// jsonSeries maps NaN warm-up entries to null so the payload stays valid
// JSON.
func jsonSeries(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			continue
		}
		v := values[i]
		out[i] = &v
	}
	return out
}

// GetSignals returns the signal events for overlay markers.
// GET /api/v1/stocks/:symbol/signals
func (ac *AnalysisController) GetSignals(c *gin.Context) {
	symbol, period, ind, ok := parseRequest(c)
	if !ok {
		return
	}
	series, ok := ac.fetchSeries(c, symbol, period)
	if !ok {
		return
	}

	events, err := signals.DetectIndicator(symbol, ind, series)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if events == nil {
		events = []models.SignalEvent{}
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"period":    period,
		"indicator": ind,
		"events":    events,
	})
}

// GetBacktest returns the compounded profit summary for one indicator.
// GET /api/v1/stocks/:symbol/backtest
func (ac *AnalysisController) GetBacktest(c *gin.Context) {
	symbol, period, ind, ok := parseRequest(c)
	if !ok {
		return
	}
	series, ok := ac.fetchSeries(c, symbol, period)
	if !ok {
		return
	}

	events, err := signals.DetectIndicator(symbol, ind, series)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := backtesting.Simulate(events, series)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"period":    period,
		"indicator": ind,
		"result":    result,
	})
}
