package pipeline

import (
	"github.com/cryptovista/forecast-go/internal/models"
)

// Split partitions a chronologically ordered dataset into a training
// prefix and a test suffix. No shuffling crosses the boundary, so the
// test partition never leaks into training. Pure function; the halves
// alias the input's backing arrays, which is safe because a dataset is
// owned by a single run.
func Split(ds *models.Dataset, ratio float64) (train, test *models.Dataset, err error) {
	if ratio <= 0 || ratio >= 1 {
		return nil, nil, models.NewError(models.ErrKindDataValidation, "split ratio must be in (0,1), got %v", ratio)
	}
	if len(ds.Features) != len(ds.Labels) {
		return nil, nil, models.NewError(models.ErrKindShapeMismatch,
			"feature count %d does not match label count %d", len(ds.Features), len(ds.Labels))
	}

	n := ds.Len()
	cut := int(float64(n) * ratio)

	train = &models.Dataset{Features: ds.Features[:cut], Labels: ds.Labels[:cut]}
	test = &models.Dataset{Features: ds.Features[cut:], Labels: ds.Labels[cut:]}
	return train, test, nil
}
