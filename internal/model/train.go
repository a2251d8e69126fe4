package model

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"tanpredict/internal/dataprep"
	"tanpredict/internal/forest"
)

// Target is one prediction target: the column it learns and the model kind.
type Target struct {
	Column string
	Kind   forest.Kind
	Label  string // shown in the UI
}

// Targets drives training: one model per entry, fitted and scored in order.
var Targets = []Target{
	{Column: dataprep.ColWaitTime, Kind: forest.Regression, Label: "Wait time"},
	{Column: dataprep.ColIncident, Kind: forest.Classification, Label: "Traffic incident"},
	{Column: dataprep.ColRealTime, Kind: forest.Classification, Label: "Real-time available"},
	{Column: dataprep.ColLastDeparture, Kind: forest.Classification, Label: "Last departure"},
}

// LookupTarget returns the target training the given column.
func LookupTarget(column string) (Target, bool) {
	for _, t := range Targets {
		if t.Column == column {
			return t, true
		}
	}
	return Target{}, false
}

// Model is a fitted forest with its held-out score.
type Model struct {
	Target Target
	// Score is the mean absolute error in minutes for regression, or the
	// accuracy in [0,1] for classification.
	Score  float64
	forest *forest.Forest
}

// ScoreName names the metric stored in Score.
func (m *Model) ScoreName() string {
	if m.Target.Kind == forest.Regression {
		return "mean absolute error"
	}
	return "accuracy"
}

// Set holds one model per target, all bound to the same schema.
// A Set is never modified after Train returns.
type Set struct {
	Schema    dataprep.Schema
	models    map[string]*Model
	TrainRows int
	TestRows  int
	TrainedAt time.Time
}

// Model returns the model for a target column.
func (s *Set) Model(column string) (*Model, bool) {
	m, ok := s.models[column]
	return m, ok
}

// Models returns the models in Targets order.
func (s *Set) Models() []*Model {
	out := make([]*Model, 0, len(s.models))
	for _, t := range Targets {
		if m, ok := s.models[t.Column]; ok {
			out = append(out, m)
		}
	}
	return out
}

// TrainOptions control splitting and the forest hyperparameters.
type TrainOptions struct {
	TestFraction float64 // default 0.2
	Seed         int64
	Forest       forest.Params
}

// Split partitions row indices 0..n-1 into train and test sets. The same
// (n, testFraction, seed) always yields the same partition.
func Split(n int, testFraction float64, seed int64) (train, test []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := int(math.Ceil(float64(n) * testFraction))
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	return perm[nTest:], perm[:nTest]
}

// Train fits and scores one model per entry in Targets, all on the same split.
func Train(ds *dataprep.Dataset, opts TrainOptions, logger *slog.Logger) (*Set, error) {
	if opts.TestFraction <= 0 || opts.TestFraction >= 1 {
		opts.TestFraction = 0.2
	}
	if ds.Rows() < 2 {
		return nil, fmt.Errorf("train: need at least 2 rows, have %d", ds.Rows())
	}
	trainIdx, testIdx := Split(ds.Rows(), opts.TestFraction, opts.Seed)
	Xtrain := pick(ds.X, trainIdx)
	Xtest := pick(ds.X, testIdx)

	set := &Set{
		Schema:    ds.Schema,
		models:    make(map[string]*Model, len(Targets)),
		TrainRows: len(trainIdx),
		TestRows:  len(testIdx),
	}

	for _, target := range Targets {
		y, ok := ds.Targets[target.Column]
		if !ok {
			return nil, fmt.Errorf("train: dataset has no %q target", target.Column)
		}
		start := time.Now()

		params := opts.Forest
		params.Seed = opts.Seed
		f, err := forest.Fit(target.Kind, Xtrain, pickY(y, trainIdx), params)
		if err != nil {
			return nil, fmt.Errorf("train %s: %w", target.Column, err)
		}

		score, err := evaluate(f, target.Kind, Xtest, pickY(y, testIdx))
		if err != nil {
			return nil, fmt.Errorf("score %s: %w", target.Column, err)
		}
		set.models[target.Column] = &Model{Target: target, Score: score, forest: f}

		logger.Info("model trained",
			"target", target.Column,
			"kind", target.Kind.String(),
			"score", fmt.Sprintf("%.3f", score),
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}
	set.TrainedAt = time.Now()
	return set, nil
}

func evaluate(f *forest.Forest, kind forest.Kind, X [][]float64, want []float64) (float64, error) {
	got := make([]float64, len(X))
	for i, row := range X {
		p, err := f.Predict(row)
		if err != nil {
			return 0, err
		}
		got[i] = p
	}
	if kind == forest.Regression {
		return forest.MeanAbsoluteError(want, got)
	}
	return forest.Accuracy(want, got)
}

func pick(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}

func pickY(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}
