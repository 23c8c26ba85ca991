// Package backtesting replays signal sequences against price series to
// produce compounded profit figures.
package backtesting

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/eonurk/finance-bro/models"
)

var baseCapital = decimal.NewFromInt(100)

// Simulate compounds every completed (buy, sell) round trip in order,
// starting from a capital of 100. A trailing unmatched buy is closed
// synthetically at the last available price for reporting only; the event
// list is never extended. Identical input always yields identical output.
func Simulate(events []models.SignalEvent, prices models.PriceSeries) (models.BacktestResult, error) {
	result := models.BacktestResult{
		BuyPoints:  make([]models.SignalEvent, 0, (len(events)+1)/2),
		SellPoints: make([]models.SignalEvent, 0, len(events)/2),
	}

	capital := baseCapital
	var openBuy *models.SignalEvent

	for i := range events {
		ev := events[i]
		switch ev.Kind {
		case models.SignalBuy:
			if openBuy != nil {
				return result, fmt.Errorf("%w: buy at index %d while position already open",
					models.ErrComputation, ev.Index)
			}
			if ev.Price <= 0 {
				return result, fmt.Errorf("%w: non-positive buy price %v at index %d",
					models.ErrComputation, ev.Price, ev.Index)
			}
			openBuy = &events[i]
			result.BuyPoints = append(result.BuyPoints, ev)

		case models.SignalSell:
			if openBuy == nil {
				return result, fmt.Errorf("%w: sell at index %d with no open position",
					models.ErrComputation, ev.Index)
			}
			capital = applyRoundTrip(capital, openBuy.Price, ev.Price)
			openBuy = nil
			result.SellPoints = append(result.SellPoints, ev)

		default:
			return result, fmt.Errorf("%w: unknown signal kind %q", models.ErrComputation, ev.Kind)
		}
	}

	if openBuy != nil {
		price := openBuy.Price
		result.LatestOpenBuyPrice = &price
		if last, ok := prices.Last(); ok {
			capital = applyRoundTrip(capital, openBuy.Price, last.Close)
		}
	} else if len(result.SellPoints) > 0 {
		price := result.SellPoints[len(result.SellPoints)-1].Price
		result.LatestOpenSellPrice = &price
	}

	profit := capital.Sub(baseCapital).InexactFloat64()
	if math.IsNaN(profit) || math.IsInf(profit, 0) {
		return result, fmt.Errorf("%w: non-finite profit", models.ErrComputation)
	}
	result.ProfitPercent = profit
	return result, nil
}

// applyRoundTrip multiplies capital by 1 + (sell-buy)/buy.
func applyRoundTrip(capital decimal.Decimal, buyPrice, sellPrice float64) decimal.Decimal {
	buy := decimal.NewFromFloat(buyPrice)
	sell := decimal.NewFromFloat(sellPrice)
	ret := sell.Sub(buy).Div(buy)
	return capital.Mul(decimal.NewFromInt(1).Add(ret))
}
