package forest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepData returns rows where y jumps from 2 to 10 at x0 = 50; x1 is noise.
func stepData() ([][]float64, []float64) {
	var X [][]float64
	var y []float64
	for i := 0; i < 100; i++ {
		X = append(X, []float64{float64(i), float64((i * 7) % 13)})
		if i < 50 {
			y = append(y, 2)
		} else {
			y = append(y, 10)
		}
	}
	return X, y
}

func TestFit_RegressionLearnsStep(t *testing.T) {
	X, y := stepData()
	f, err := Fit(Regression, X, y, Params{Trees: 20, Seed: 42})
	require.NoError(t, err)

	low, err := f.Predict([]float64{10, 3})
	require.NoError(t, err)
	high, err := f.Predict([]float64{90, 3})
	require.NoError(t, err)

	assert.InDelta(t, 2, low, 0.5)
	assert.InDelta(t, 10, high, 0.5)
}

func TestFit_ClassificationLearnsThreshold(t *testing.T) {
	X, y := stepData()
	labels := make([]float64, len(y))
	for i, v := range y {
		if v > 5 {
			labels[i] = 1
		}
	}
	f, err := Fit(Classification, X, labels, Params{Trees: 25, Seed: 7})
	require.NoError(t, err)

	var preds []float64
	for _, row := range X {
		p, err := f.Predict(row)
		require.NoError(t, err)
		preds = append(preds, p)
	}
	acc, err := Accuracy(labels, preds)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, acc, 0.95)
}

func TestFit_ClassificationReturnsOriginalLabels(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}, {3}}
	y := []float64{3, 3, 7, 7}
	f, err := Fit(Classification, X, y, Params{Trees: 5, Seed: 1})
	require.NoError(t, err)

	for _, row := range X {
		p, err := f.Predict(row)
		require.NoError(t, err)
		assert.Contains(t, []float64{3, 7}, p)
	}
}

func TestFit_Deterministic(t *testing.T) {
	X, y := stepData()
	a, err := Fit(Regression, X, y, Params{Trees: 10, Seed: 42, MaxFeatures: 1})
	require.NoError(t, err)
	b, err := Fit(Regression, X, y, Params{Trees: 10, Seed: 42, MaxFeatures: 1})
	require.NoError(t, err)

	for _, row := range X {
		pa, _ := a.Predict(row)
		pb, _ := b.Predict(row)
		assert.Equal(t, pa, pb)
	}
}

func TestFit_ConstantTarget(t *testing.T) {
	X := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	f, err := Fit(Regression, X, []float64{4, 4, 4}, Params{Trees: 3})
	require.NoError(t, err)
	p, err := f.Predict([]float64{100, 100})
	require.NoError(t, err)
	assert.Equal(t, 4.0, p)
}

func TestFit_InvalidInput(t *testing.T) {
	_, err := Fit(Regression, nil, nil, Params{})
	assert.Error(t, err)

	_, err = Fit(Regression, [][]float64{{1}}, []float64{1, 2}, Params{})
	assert.Error(t, err)

	_, err = Fit(Regression, [][]float64{{1, 2}, {1}}, []float64{1, 2}, Params{})
	assert.Error(t, err)
}

func TestPredict_WrongWidth(t *testing.T) {
	f, err := Fit(Regression, [][]float64{{1, 2}, {3, 4}}, []float64{1, 2}, Params{Trees: 2})
	require.NoError(t, err)
	_, err = f.Predict([]float64{1})
	assert.Error(t, err)
	assert.Equal(t, 2, f.nFeatures)
}

func TestMetrics(t *testing.T) {
	mae, err := MeanAbsoluteError([]float64{1, 2, 3}, []float64{2, 2, 1})
	require.NoError(t, err)
	assert.True(t, math.Abs(mae-1) < 1e-9)

	acc, err := Accuracy([]float64{0, 1, 1, 0}, []float64{0, 1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.75, acc)

	_, err = Accuracy(nil, nil)
	assert.Error(t, err)
	_, err = MeanAbsoluteError([]float64{1}, []float64{1, 2})
	assert.Error(t, err)
}
