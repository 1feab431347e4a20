package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Bar represents one sanitized OHLCV time step from a daily export.
type Bar struct {
	Unix        int64   `json:"unix"`
	Date        string  `json:"date"`
	Symbol      string  `json:"symbol"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	VolumeBase  float64 `json:"volume_base"`
	VolumeQuote float64 `json:"volume_quote"`
	TradeCount  int64   `json:"trade_count"`
}

// IsFinite reports whether every float field of the bar is finite.
func (b *Bar) IsFinite() bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.VolumeBase, b.VolumeQuote} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// IndicatorSet holds the derived values for a single bar. Bars inside
// the indicator warm-up window carry 0, never NaN.
type IndicatorSet struct {
	MovingAverage float64 `json:"moving_average"`
	RSI           float64 `json:"rsi"`
	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHistogram float64 `json:"macd_histogram"`
}

// ProcessedRow is the API representation of a sanitized, indicator
// augmented bar. Prices are serialized as decimals so downstream
// consumers never see float formatting drift.
type ProcessedRow struct {
	Unix          int64           `json:"unix"`
	Date          string          `json:"date"`
	Symbol        string          `json:"symbol"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Close         decimal.Decimal `json:"close"`
	VolumeBase    decimal.Decimal `json:"volume_base"`
	VolumeQuote   decimal.Decimal `json:"volume_quote"`
	TradeCount    int64           `json:"trade_count"`
	MovingAverage decimal.Decimal `json:"moving_average"`
	RSI           decimal.Decimal `json:"rsi"`
	MACD          decimal.Decimal `json:"macd"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewProcessedRow combines a bar with its indicators for API responses.
func NewProcessedRow(bar Bar, ind IndicatorSet) ProcessedRow {
	return ProcessedRow{
		Unix:          bar.Unix,
		Date:          bar.Date,
		Symbol:        bar.Symbol,
		Open:          decimal.NewFromFloat(bar.Open),
		High:          decimal.NewFromFloat(bar.High),
		Low:           decimal.NewFromFloat(bar.Low),
		Close:         decimal.NewFromFloat(bar.Close),
		VolumeBase:    decimal.NewFromFloat(bar.VolumeBase),
		VolumeQuote:   decimal.NewFromFloat(bar.VolumeQuote),
		TradeCount:    bar.TradeCount,
		MovingAverage: decimal.NewFromFloat(ind.MovingAverage),
		RSI:           decimal.NewFromFloat(ind.RSI),
		MACD:          decimal.NewFromFloat(ind.MACD),
		Timestamp:     time.Unix(bar.Unix, 0).UTC(),
	}
}
