package pipeline

import (
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/cryptovista/forecast-go/internal/models"
)

// RepairPolicy selects how non-finite values are repaired. Exactly one
// policy applies to a run; no stage downstream re-repairs ad hoc.
type RepairPolicy string

const (
	// PolicyDropRow removes any bar containing a non-finite value.
	PolicyDropRow RepairPolicy = "drop_row"
	// PolicyColumnMean replaces a non-finite value with the mean of the
	// finite values in the same column, falling back to zero when the
	// column has no finite values at all.
	PolicyColumnMean RepairPolicy = "column_mean"
	// PolicyZero replaces every non-finite value with zero.
	PolicyZero RepairPolicy = "zero"
)

// barColumn exposes one float column of a bar batch for batch-level
// repair.
type barColumn struct {
	name string
	get  func(*models.Bar) float64
	set  func(*models.Bar, float64)
}

var barColumns = []barColumn{
	{"open", func(b *models.Bar) float64 { return b.Open }, func(b *models.Bar, v float64) { b.Open = v }},
	{"high", func(b *models.Bar) float64 { return b.High }, func(b *models.Bar, v float64) { b.High = v }},
	{"low", func(b *models.Bar) float64 { return b.Low }, func(b *models.Bar, v float64) { b.Low = v }},
	{"close", func(b *models.Bar) float64 { return b.Close }, func(b *models.Bar, v float64) { b.Close = v }},
	{"volume_base", func(b *models.Bar) float64 { return b.VolumeBase }, func(b *models.Bar, v float64) { b.VolumeBase = v }},
	{"volume_quote", func(b *models.Bar) float64 { return b.VolumeQuote }, func(b *models.Bar, v float64) { b.VolumeQuote = v }},
}

// Sanitizer repairs non-finite values across a whole batch of bars.
type Sanitizer struct {
	policy RepairPolicy
	logger *logrus.Logger
}

func NewSanitizer(policy RepairPolicy, logger *logrus.Logger) *Sanitizer {
	return &Sanitizer{policy: policy, logger: logger}
}

// Sanitize returns a repaired copy of the batch and the number of
// values (or rows, under drop_row) repaired. The input is not mutated.
// After repair every float field must be finite; anything surviving is
// a data validation failure that aborts the run.
func (s *Sanitizer) Sanitize(bars []models.Bar) ([]models.Bar, int, error) {
	out := make([]models.Bar, len(bars))
	copy(out, bars)

	repaired := 0
	switch s.policy {
	case PolicyDropRow:
		kept := out[:0]
		for i := range out {
			if out[i].IsFinite() {
				kept = append(kept, out[i])
			} else {
				repaired++
			}
		}
		out = kept
	case PolicyZero:
		for i := range out {
			for _, col := range barColumns {
				if !isFinite(col.get(&out[i])) {
					col.set(&out[i], 0)
					repaired++
				}
			}
		}
	case PolicyColumnMean:
		for _, col := range barColumns {
			finite := make([]float64, 0, len(out))
			for i := range out {
				if v := col.get(&out[i]); isFinite(v) {
					finite = append(finite, v)
				}
			}
			replacement := 0.0
			if len(finite) > 0 {
				replacement = stat.Mean(finite, nil)
			}
			for i := range out {
				if !isFinite(col.get(&out[i])) {
					col.set(&out[i], replacement)
					repaired++
					s.logger.WithFields(logrus.Fields{
						"column":      col.name,
						"index":       i,
						"replacement": replacement,
					}).Debug("Repaired non-finite value")
				}
			}
		}
	default:
		return nil, 0, models.NewError(models.ErrKindDataValidation, "unknown repair policy %q", s.policy)
	}

	// Fixed point: repair must not leave non-finite values behind.
	if err := Verify(out); err != nil {
		return nil, repaired, err
	}

	if repaired > 0 {
		s.logger.WithFields(logrus.Fields{
			"policy":   string(s.policy),
			"repaired": repaired,
		}).Info("Sanitization repaired values")
	}

	return out, repaired, nil
}

// Verify confirms that every float field in the batch is finite.
func Verify(bars []models.Bar) error {
	for i := range bars {
		for _, col := range barColumns {
			if !isFinite(col.get(&bars[i])) {
				return models.NewError(models.ErrKindDataValidation,
					"non-finite %s at row %d survived sanitization", col.name, i)
			}
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
