package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tanpredict/internal/dataprep"
	"tanpredict/internal/forest"
)

// EventSource supplies the training corpus.
type EventSource interface {
	StopEvents(ctx context.Context) ([]dataprep.StopEvent, error)
}

// BuildOptions configure a pipeline build.
type BuildOptions struct {
	Prepare dataprep.Options
	Train   TrainOptions
}

// Pipeline is the trained artifact: encoders, schema and models built from one
// snapshot of the corpus. It is built once and shared read-only by the
// serving layer.
type Pipeline struct {
	encoders   map[string]*dataprep.Encoder
	directions []int
	set        *Set
	rows       int
	dropped    int
}

// Build loads the corpus, prepares it and trains every target.
func Build(ctx context.Context, src EventSource, opts BuildOptions, logger *slog.Logger) (*Pipeline, error) {
	start := time.Now()
	events, err := src.StopEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stop events: %w", err)
	}
	ds, err := dataprep.Prepare(events, opts.Prepare, logger)
	if err != nil {
		return nil, err
	}
	set, err := Train(ds, opts.Train, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("prediction pipeline ready",
		"events", len(events),
		"rows", ds.Rows(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return &Pipeline{
		encoders:   ds.Encoders,
		directions: ds.Directions,
		set:        set,
		rows:       ds.Rows(),
		dropped:    ds.Dropped,
	}, nil
}

// Request is one inference query, in human terms.
type Request struct {
	Target        string // target column, e.g. "temps"
	StopCode      string
	Direction     int
	Terminus      string
	Line          string
	LineType      string
	Mode          string
	LastDeparture bool
	RealTime      bool
	Incident      bool
	At            time.Time
}

// Prediction is the model output for one Request.
type Prediction struct {
	Target    Target
	Value     float64 // minutes for the regressor, 0/1 for classifiers
	Score     float64
	ScoreName string
}

// Positive reports a classifier's yes/no answer.
func (p *Prediction) Positive() bool { return p.Value >= 0.5 }

// Predict encodes the request, assembles a schema-ordered row and runs the
// model for the requested target. An unknown categorical value fails with
// dataprep.ErrUnknownValue.
func (p *Pipeline) Predict(req Request) (*Prediction, error) {
	m, ok := p.set.Model(req.Target)
	if !ok {
		return nil, fmt.Errorf("unknown prediction target %q", req.Target)
	}

	fields, err := dataprep.EncodeFields(p.encoders, dataprep.StopEvent{
		StopCode:      req.StopCode,
		Terminus:      req.Terminus,
		Direction:     req.Direction,
		Line:          req.Line,
		LineType:      req.LineType,
		Mode:          req.Mode,
		LastDeparture: req.LastDeparture,
		RealTime:      req.RealTime,
		Incident:      req.Incident,
		Date:          req.At,
	})
	if err != nil {
		return nil, err
	}
	vec, err := p.set.Schema.Assemble(fields)
	if err != nil {
		return nil, err
	}
	return m.predict(p.set.Schema, vec)
}

func (m *Model) predict(schema dataprep.Schema, vec dataprep.FeatureVector) (*Prediction, error) {
	if err := schema.Check(vec); err != nil {
		return nil, err
	}
	v, err := m.forest.Predict(vec.Values)
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", m.Target.Column, err)
	}
	if m.Target.Kind == forest.Regression && v < 0 {
		v = 0
	}
	return &Prediction{Target: m.Target, Value: v, Score: m.Score, ScoreName: m.ScoreName()}, nil
}

// Vocabulary returns the trained values of a nominal column, sorted.
func (p *Pipeline) Vocabulary(column string) []string {
	enc, ok := p.encoders[column]
	if !ok {
		return nil
	}
	return enc.Classes()
}

// Directions returns the distinct direction values seen in training.
func (p *Pipeline) Directions() []int {
	out := make([]int, len(p.directions))
	copy(out, p.directions)
	return out
}

// Models returns the trained models with their scores.
func (p *Pipeline) Models() []*Model { return p.set.Models() }

// TrainedAt returns when the models finished training.
func (p *Pipeline) TrainedAt() time.Time { return p.set.TrainedAt }

// Rows returns how many events were kept for training, and how many were dropped.
func (p *Pipeline) Rows() (kept, dropped int) { return p.rows, p.dropped }
