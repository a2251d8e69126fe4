package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tanpredict/internal/dataprep"
	"tanpredict/internal/forest"
)

type fakeSource struct {
	events []dataprep.StopEvent
	err    error
}

func (f fakeSource) StopEvents(context.Context) ([]dataprep.StopEvent, error) {
	return f.events, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// corpus builds events where line 1 waits ~3 min and line C2 ~12 min.
func corpus() []dataprep.StopEvent {
	base := time.Date(2025, 6, 16, 7, 0, 0, 0, time.UTC)
	var out []dataprep.StopEvent
	for i := 0; i < 60; i++ {
		ev := dataprep.StopEvent{
			StopCode:  []string{"COMM", "BOFA", "GSNO"}[i%3],
			StopLabel: "stop",
			Direction: 1 + i%2,
			Date:      base.Add(time.Duration(i) * 37 * time.Minute),
		}
		if i%2 == 0 {
			ev.Line, ev.LineType, ev.Mode, ev.Terminus = "1", "1", "Tram", "Beaujoire"
			ev.WaitText = "3mn"
			ev.RealTime = true
		} else {
			ev.Line, ev.LineType, ev.Mode, ev.Terminus = "C2", "3", "Bus", "Orvault"
			ev.WaitText = "12mn"
			ev.Incident = i%4 == 1
		}
		out = append(out, ev)
	}
	out = append(out, dataprep.StopEvent{StopCode: "ZZZZ", WaitText: "Proche", Date: base})
	return out
}

func buildPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := Build(context.Background(), fakeSource{events: corpus()}, BuildOptions{
		Prepare: dataprep.Options{WithMinuteOfDay: true},
		Train:   TrainOptions{TestFraction: 0.2, Seed: 42, Forest: forest.Params{Trees: 15}},
	}, discardLogger())
	require.NoError(t, err)
	return p
}

func TestSplit_Reproducible(t *testing.T) {
	trainA, testA := Split(100, 0.2, 42)
	trainB, testB := Split(100, 0.2, 42)
	assert.Equal(t, trainA, trainB)
	assert.Equal(t, testA, testB)
	assert.Len(t, testA, 20)
	assert.Len(t, trainA, 80)

	seen := make(map[int]bool)
	for _, i := range append(append([]int{}, trainA...), testA...) {
		assert.False(t, seen[i], "index %d appears twice", i)
		seen[i] = true
	}
	assert.Len(t, seen, 100)

	_, testC := Split(100, 0.2, 7)
	assert.NotEqual(t, testA, testC)
}

func TestSplit_SmallCorpusKeepsTrainingRows(t *testing.T) {
	train, test := Split(2, 0.9, 1)
	assert.Len(t, train, 1)
	assert.Len(t, test, 1)
}

func TestBuild_TrainsEveryTarget(t *testing.T) {
	p := buildPipeline(t)

	models := p.Models()
	require.Len(t, models, len(Targets))
	for i, m := range models {
		assert.Equal(t, Targets[i].Column, m.Target.Column)
		if m.Target.Kind == forest.Regression {
			assert.Equal(t, "mean absolute error", m.ScoreName())
			assert.GreaterOrEqual(t, m.Score, 0.0)
		} else {
			assert.Equal(t, "accuracy", m.ScoreName())
			assert.GreaterOrEqual(t, m.Score, 0.0)
			assert.LessOrEqual(t, m.Score, 1.0)
		}
	}

	kept, dropped := p.Rows()
	assert.Equal(t, 60, kept)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, []int{1, 2}, p.Directions())
	assert.Equal(t, []string{"BOFA", "COMM", "GSNO"}, p.Vocabulary(dataprep.ColStopCode))
	assert.Nil(t, p.Vocabulary("nope"))
}

func TestPredict_WaitTime(t *testing.T) {
	p := buildPipeline(t)

	pred, err := p.Predict(Request{
		Target:   dataprep.ColWaitTime,
		StopCode: "COMM", Direction: 2, Terminus: "Orvault",
		Line: "C2", LineType: "3", Mode: "Bus",
		At: time.Date(2025, 6, 17, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.InDelta(t, 12, pred.Value, 3)
	assert.Equal(t, "Wait time", pred.Target.Label)
}

func TestPredict_UnknownStopCode(t *testing.T) {
	p := buildPipeline(t)

	pred, err := p.Predict(Request{
		Target:   dataprep.ColWaitTime,
		StopCode: "NEVER", Terminus: "Orvault",
		Line: "C2", LineType: "3", Mode: "Bus",
		At: time.Now(),
	})
	require.Error(t, err)
	assert.Nil(t, pred)
	assert.True(t, errors.Is(err, dataprep.ErrUnknownValue))
}

func TestPredict_UnknownTarget(t *testing.T) {
	p := buildPipeline(t)
	_, err := p.Predict(Request{Target: "nope"})
	assert.Error(t, err)
}

func TestPredict_Classifiers(t *testing.T) {
	p := buildPipeline(t)
	for _, target := range []string{dataprep.ColIncident, dataprep.ColRealTime, dataprep.ColLastDeparture} {
		pred, err := p.Predict(Request{
			Target:   target,
			StopCode: "BOFA", Direction: 2, Terminus: "Beaujoire",
			Line: "1", LineType: "1", Mode: "Tram", RealTime: true,
			At: time.Date(2025, 6, 18, 8, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err, target)
		assert.Contains(t, []float64{0, 1}, pred.Value, target)
	}
}

func TestModelPredict_SchemaMismatch(t *testing.T) {
	p := buildPipeline(t)
	m, ok := p.set.Model(dataprep.ColWaitTime)
	require.True(t, ok)

	short := dataprep.FeatureVector{Columns: []string{dataprep.ColStopCode}, Values: []float64{0}}
	_, err := m.predict(p.set.Schema, short)
	assert.ErrorIs(t, err, dataprep.ErrSchemaMismatch)
}

func TestBuild_SourceError(t *testing.T) {
	_, err := Build(context.Background(), fakeSource{err: fmt.Errorf("db down")}, BuildOptions{}, discardLogger())
	assert.ErrorContains(t, err, "db down")
}
