package dataprep

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrSchemaMismatch is returned when a feature row does not match the schema
// the models were fit on.
var ErrSchemaMismatch = errors.New("feature row does not match schema")

// ParseWaitTime converts a wait-time text such as "4mn" or " 12 mn" to minutes.
// Returns false for anything that is not a finite, non-negative number once
// the unit suffix is stripped ("Proche", "", ">20mn", "NaN").
func ParseWaitTime(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	s = strings.TrimSpace(strings.TrimSuffix(s, "mn"))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

// DayOfWeek returns the weekday with Monday = 0 and Sunday = 6.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// MinuteOfDay returns minutes since midnight, in [0,1439].
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// Schema is the ordered list of feature columns a model expects.
type Schema []string

// NewSchema returns the feature schema used for training and inference.
func NewSchema(withMinuteOfDay bool) Schema {
	s := Schema{
		ColStopCode, ColDirection, ColTerminus,
		ColLastDeparture, ColRealTime, ColIncident,
		ColLine, ColLineType, ColMode, ColDayOfWeek,
	}
	if withMinuteOfDay {
		s = append(s, ColMinuteOfDay)
	}
	return s
}

// FeatureVector is one row of encoded features with the column names it was
// assembled for.
type FeatureVector struct {
	Columns []string
	Values  []float64
}

// Assemble builds a row in schema order from named feature values.
// Every schema column must be present in fields.
func (s Schema) Assemble(fields map[string]float64) (FeatureVector, error) {
	v := FeatureVector{
		Columns: make([]string, len(s)),
		Values:  make([]float64, len(s)),
	}
	for i, col := range s {
		val, ok := fields[col]
		if !ok {
			return FeatureVector{}, fmt.Errorf("missing feature %q: %w", col, ErrSchemaMismatch)
		}
		v.Columns[i] = col
		v.Values[i] = val
	}
	return v, nil
}

// Check reports whether v has exactly the columns of s, in order.
func (s Schema) Check(v FeatureVector) error {
	if len(v.Values) != len(s) || len(v.Columns) != len(s) {
		return fmt.Errorf("got %d fields, want %d: %w", len(v.Values), len(s), ErrSchemaMismatch)
	}
	for i, col := range s {
		if v.Columns[i] != col {
			return fmt.Errorf("field %d is %q, want %q: %w", i, v.Columns[i], col, ErrSchemaMismatch)
		}
	}
	return nil
}

// Options control data preparation.
type Options struct {
	WithMinuteOfDay bool
}

// Dataset is the cleaned, encoded training corpus.
type Dataset struct {
	Schema   Schema
	X        [][]float64          // one row per kept event, in Schema order
	Targets  map[string][]float64 // temps, infotrafic, tempsReel, dernierDepart
	Encoders map[string]*Encoder  // one per nominal column
	// Directions lists the distinct sens values seen, sorted.
	Directions []int
	Dropped    int // rows excluded for an unparseable wait time
}

// Rows returns the number of kept rows.
func (d *Dataset) Rows() int { return len(d.X) }

// Prepare cleans and encodes raw stop events. Rows whose wait time does not
// parse are dropped; no other row is removed.
func Prepare(events []StopEvent, opts Options, logger *slog.Logger) (*Dataset, error) {
	type kept struct {
		ev   StopEvent
		wait float64
	}
	rows := make([]kept, 0, len(events))
	for _, ev := range events {
		wait, ok := ParseWaitTime(ev.WaitText)
		if !ok {
			continue
		}
		rows = append(rows, kept{ev: ev, wait: wait})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("prepare: none of %d events has a usable wait time", len(events))
	}

	ds := &Dataset{
		Schema:   NewSchema(opts.WithMinuteOfDay),
		X:        make([][]float64, 0, len(rows)),
		Targets:  make(map[string][]float64, 4),
		Encoders: make(map[string]*Encoder, len(NominalColumns)),
		Dropped:  len(events) - len(rows),
	}

	for _, col := range NominalColumns {
		values := make([]string, len(rows))
		for i, r := range rows {
			values[i] = r.ev.nominal(col)
		}
		ds.Encoders[col] = FitEncoder(col, values)
	}

	dirs := make(map[int]bool)
	for _, r := range rows {
		fields, err := ds.fields(r.ev)
		if err != nil {
			return nil, err
		}
		vec, err := ds.Schema.Assemble(fields)
		if err != nil {
			return nil, err
		}
		ds.X = append(ds.X, vec.Values)

		ds.Targets[ColWaitTime] = append(ds.Targets[ColWaitTime], r.wait)
		ds.Targets[ColIncident] = append(ds.Targets[ColIncident], boolFloat(r.ev.Incident))
		ds.Targets[ColRealTime] = append(ds.Targets[ColRealTime], boolFloat(r.ev.RealTime))
		ds.Targets[ColLastDeparture] = append(ds.Targets[ColLastDeparture], boolFloat(r.ev.LastDeparture))
		dirs[r.ev.Direction] = true
	}
	for d := range dirs {
		ds.Directions = append(ds.Directions, d)
	}
	sort.Ints(ds.Directions)

	logger.Info("training data prepared",
		"rows", len(ds.X),
		"dropped", ds.Dropped,
		"features", len(ds.Schema),
	)
	return ds, nil
}

// fields encodes one event into named feature values using the fitted encoders.
func (ds *Dataset) fields(ev StopEvent) (map[string]float64, error) {
	return EncodeFields(ds.Encoders, ev)
}

// EncodeFields maps an event to named feature values. Nominal columns go
// through their encoder and fail with ErrUnknownValue when the value was
// never seen during training.
func EncodeFields(encoders map[string]*Encoder, ev StopEvent) (map[string]float64, error) {
	fields := make(map[string]float64, 11)
	for _, col := range []string{ColStopCode, ColTerminus, ColLine, ColLineType, ColMode} {
		enc, ok := encoders[col]
		if !ok {
			return nil, fmt.Errorf("no encoder for column %q", col)
		}
		code, err := enc.Encode(ev.nominal(col))
		if err != nil {
			return nil, err
		}
		fields[col] = float64(code)
	}
	fields[ColDirection] = float64(ev.Direction)
	fields[ColLastDeparture] = boolFloat(ev.LastDeparture)
	fields[ColRealTime] = boolFloat(ev.RealTime)
	fields[ColIncident] = boolFloat(ev.Incident)
	fields[ColDayOfWeek] = float64(DayOfWeek(ev.Date))
	fields[ColMinuteOfDay] = float64(MinuteOfDay(ev.Date))
	return fields, nil
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
