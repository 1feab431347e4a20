package pipeline

import (
	"github.com/sirupsen/logrus"

	"github.com/cryptovista/forecast-go/internal/config"
	"github.com/cryptovista/forecast-go/internal/models"
)

// IndicatorEngine computes rolling indicators over a sanitized,
// chronologically ordered bar sequence. Every output series has the
// same length as the input; bars inside the warm-up window carry the
// placeholder value 0 rather than NaN or a shortened series.
type IndicatorEngine struct {
	maPeriod   int
	rsiPeriod  int
	macdFast   int
	macdSlow   int
	macdSignal int
	logger     *logrus.Logger
}

func NewIndicatorEngine(cfg config.IndicatorConfig, logger *logrus.Logger) *IndicatorEngine {
	e := &IndicatorEngine{
		maPeriod:   cfg.MAPeriod,
		rsiPeriod:  cfg.RSIPeriod,
		macdFast:   cfg.MACDFast,
		macdSlow:   cfg.MACDSlow,
		macdSignal: cfg.MACDSignal,
		logger:     logger,
	}
	if e.maPeriod <= 0 {
		e.maPeriod = 14
	}
	if e.rsiPeriod <= 0 {
		e.rsiPeriod = 14
	}
	if e.macdFast <= 0 || e.macdSlow <= e.macdFast {
		e.macdFast, e.macdSlow = 12, 26
	}
	if e.macdSignal <= 0 {
		e.macdSignal = 9
	}
	return e
}

// Compute derives the full indicator set for each bar.
func (e *IndicatorEngine) Compute(bars []models.Bar) ([]models.IndicatorSet, error) {
	closes := make([]float64, len(bars))
	for i := range bars {
		closes[i] = bars[i].Close
	}

	ma := e.MovingAverage(closes)
	rsi, err := e.RSI(closes)
	if err != nil {
		return nil, err
	}
	macdLine, signal, histogram := e.MACD(closes)

	out := make([]models.IndicatorSet, len(bars))
	for i := range out {
		out[i] = models.IndicatorSet{
			MovingAverage: ma[i],
			RSI:           rsi[i],
			MACD:          macdLine[i],
			MACDSignal:    signal[i],
			MACDHistogram: histogram[i],
		}
	}

	e.logger.WithFields(logrus.Fields{
		"bars":       len(bars),
		"ma_period":  e.maPeriod,
		"rsi_period": e.rsiPeriod,
	}).Debug("Indicators computed")

	return out, nil
}

// MovingAverage is the simple mean of close over the trailing period.
// Indices below the period receive the placeholder 0.
func (e *IndicatorEngine) MovingAverage(closes []float64) []float64 {
	period := e.maPeriod
	out := make([]float64, len(closes))
	for i := range closes {
		if i < period {
			continue
		}
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += closes[j]
		}
		out[i] = sum / float64(period)
	}
	return out
}

// RSI sums close-to-close gains and losses over the trailing window.
// avgLoss of zero means an all-gain window and RSI 100. Any computed
// value outside [0,100] or non-finite is a defect, surfaced as a data
// validation error rather than masked.
func (e *IndicatorEngine) RSI(closes []float64) ([]float64, error) {
	period := e.rsiPeriod
	out := make([]float64, len(closes))
	for i := range closes {
		if i < period {
			continue
		}
		gain, loss := 0.0, 0.0
		for j := i - period + 1; j <= i; j++ {
			change := closes[j] - closes[j-1]
			if change > 0 {
				gain += change
			} else {
				loss -= change
			}
		}
		avgGain := gain / float64(period)
		avgLoss := loss / float64(period)
		if avgLoss == 0 {
			out[i] = 100
			continue
		}
		rs := avgGain / avgLoss
		value := 100 - 100/(1+rs)
		if !isFinite(value) || value < 0 || value > 100 {
			return nil, models.NewError(models.ErrKindDataValidation, "invalid RSI value %v at index %d", value, i)
		}
		out[i] = value
	}
	return out, nil
}

// MACD returns the MACD line, signal line and histogram. Each EMA is
// seeded with the simple mean of its first period values at index
// period-1 and zero before that, so the first slow-period bars are
// placeholders by construction.
func (e *IndicatorEngine) MACD(closes []float64) (line, signal, histogram []float64) {
	fast := ema(closes, e.macdFast)
	slow := ema(closes, e.macdSlow)

	line = make([]float64, len(closes))
	signal = make([]float64, len(closes))
	histogram = make([]float64, len(closes))

	// The line is defined once the slow EMA is seeded.
	start := e.macdSlow - 1
	if start >= len(closes) {
		return line, signal, histogram
	}
	for i := start; i < len(closes); i++ {
		line[i] = fast[i] - slow[i]
	}

	// Signal EMA runs over the defined segment of the line.
	seg := ema(line[start:], e.macdSignal)
	for i, v := range seg {
		signal[start+i] = v
	}
	sigStart := start + e.macdSignal - 1
	for i := sigStart; i < len(closes); i++ {
		histogram[i] = line[i] - signal[i]
	}

	return line, signal, histogram
}

// ema seeds at index period-1 with the simple mean of the first period
// values, leaves zero before that, and applies the standard recursion
// with k = 2/(period+1) after.
func ema(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[period-1] = sum / float64(period)

	k := 2.0 / (float64(period) + 1.0)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}
