package dataprep

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseWaitTime(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"4mn", 4, true},
		{"4 mn", 4, true},
		{" 12mn ", 12, true},
		{"0mn", 0, true},
		{"2.5mn", 2.5, true},
		{"7", 7, true},
		{"Proche", 0, false},
		{"", 0, false},
		{"mn", 0, false},
		{">20mn", 0, false},
		{"-3mn", 0, false},
		{"NaNmn", 0, false},
		{"Infmn", 0, false},
		{"4mn30", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseWaitTime(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDayOfWeekAndMinuteOfDay(t *testing.T) {
	// 2025-06-16 is a Monday
	mon := time.Date(2025, 6, 16, 8, 30, 0, 0, time.UTC)
	assert.Equal(t, 0, DayOfWeek(mon))
	assert.Equal(t, 6, DayOfWeek(mon.AddDate(0, 0, 6)))
	assert.Equal(t, 510, MinuteOfDay(mon))
	assert.Equal(t, 0, MinuteOfDay(time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1439, MinuteOfDay(time.Date(2025, 6, 16, 23, 59, 59, 0, time.UTC)))
}

func TestEncoder_RoundTrip(t *testing.T) {
	enc := FitEncoder(ColStopCode, []string{"COMM", "BOFA", "COMM", "ADIE"})

	require.Equal(t, 3, enc.Len())
	assert.Equal(t, []string{"ADIE", "BOFA", "COMM"}, enc.Classes())

	for _, v := range enc.Classes() {
		code, err := enc.Encode(v)
		require.NoError(t, err)
		back, err := enc.Decode(code)
		require.NoError(t, err)
		assert.Equal(t, v, back)
	}
}

func TestEncoder_UnknownValue(t *testing.T) {
	enc := FitEncoder(ColStopCode, []string{"COMM"})

	_, err := enc.Encode("XXXX")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownValue))
	assert.Contains(t, err.Error(), "codeArret")

	_, err = enc.Decode(1)
	assert.Error(t, err)
	_, err = enc.Decode(-1)
	assert.Error(t, err)
}

func TestEncoder_Deterministic(t *testing.T) {
	a := FitEncoder("x", []string{"b", "a", "c"})
	b := FitEncoder("x", []string{"c", "c", "a", "b"})
	assert.Equal(t, a.Classes(), b.Classes())
}

func sampleEvents() []StopEvent {
	mon := time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC)
	return []StopEvent{
		{StopCode: "COMM", StopLabel: "Commerce", Terminus: "Beaujoire", Direction: 1, Line: "1", LineType: "1", Mode: "Tram", RealTime: true, WaitText: "4mn", Date: mon},
		{StopCode: "BOFA", StopLabel: "Bouffay", Terminus: "François Mitterrand", Direction: 2, Line: "1", LineType: "1", Mode: "Tram", Incident: true, WaitText: "Proche", Date: mon},
		{StopCode: "GSNO", StopLabel: "Gare SNCF Nord", Terminus: "Orvault", Direction: 1, Line: "C2", LineType: "3", Mode: "Bus", LastDeparture: true, WaitText: "12mn", Date: mon.AddDate(0, 0, 5).Add(14 * time.Hour)},
	}
}

func TestPrepare_DropsOnlyUnparseableWaitTimes(t *testing.T) {
	ds, err := Prepare(sampleEvents(), Options{WithMinuteOfDay: true}, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, 2, ds.Rows())
	assert.Equal(t, 1, ds.Dropped)
	assert.Equal(t, []float64{4, 12}, ds.Targets[ColWaitTime])
	assert.Equal(t, []float64{0, 1}, ds.Targets[ColLastDeparture])
	assert.Equal(t, []float64{1, 0}, ds.Targets[ColRealTime])
	assert.Equal(t, []float64{0, 0}, ds.Targets[ColIncident])
	assert.Equal(t, []int{1}, ds.Directions)

	// The dropped row's values never reach the vocabulary
	_, err = ds.Encoders[ColStopCode].Encode("BOFA")
	assert.ErrorIs(t, err, ErrUnknownValue)
}

func TestPrepare_FeatureRowsFollowSchema(t *testing.T) {
	ds, err := Prepare(sampleEvents(), Options{WithMinuteOfDay: true}, discardLogger())
	require.NoError(t, err)

	require.Len(t, ds.Schema, 11)
	for _, row := range ds.X {
		assert.Len(t, row, len(ds.Schema))
	}

	gsno := ds.X[1]
	idx := func(col string) int {
		for i, c := range ds.Schema {
			if c == col {
				return i
			}
		}
		t.Fatalf("column %s not in schema", col)
		return -1
	}
	assert.Equal(t, 5.0, gsno[idx(ColDayOfWeek)]) // Saturday
	assert.Equal(t, 22.0*60, gsno[idx(ColMinuteOfDay)])
	assert.Equal(t, 1.0, gsno[idx(ColLastDeparture)])
	assert.Equal(t, 1.0, gsno[idx(ColStopCode)]) // COMM=0, GSNO=1
}

func TestPrepare_WithoutMinuteOfDay(t *testing.T) {
	ds, err := Prepare(sampleEvents(), Options{}, discardLogger())
	require.NoError(t, err)
	assert.Len(t, ds.Schema, 10)
	assert.NotContains(t, ds.Schema, ColMinuteOfDay)
}

func TestPrepare_NoUsableRows(t *testing.T) {
	_, err := Prepare([]StopEvent{{WaitText: "Proche"}}, Options{}, discardLogger())
	assert.Error(t, err)
}

func TestSchema_Check(t *testing.T) {
	s := NewSchema(false)
	fields := map[string]float64{}
	for _, c := range s {
		fields[c] = 1
	}

	vec, err := s.Assemble(fields)
	require.NoError(t, err)
	assert.NoError(t, s.Check(vec))

	// Wider schema than the row
	assert.ErrorIs(t, NewSchema(true).Check(vec), ErrSchemaMismatch)

	// Same length, wrong order
	swapped := FeatureVector{Columns: append([]string(nil), vec.Columns...), Values: vec.Values}
	swapped.Columns[0], swapped.Columns[1] = swapped.Columns[1], swapped.Columns[0]
	assert.ErrorIs(t, s.Check(swapped), ErrSchemaMismatch)

	// Missing field
	delete(fields, ColMode)
	_, err = s.Assemble(fields)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}
