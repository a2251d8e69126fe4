package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tanpredict/internal/dataprep"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleEvents() []dataprep.StopEvent {
	day := time.Date(2025, 3, 4, 8, 15, 0, 0, time.Local)
	return []dataprep.StopEvent{
		{StopCode: "COMM", StopLabel: "Commerce", Terminus: "Beaujoire", Direction: 1,
			Line: "1", LineType: "1", Mode: "Tram", RealTime: true, WaitText: "4mn", Date: day},
		{StopCode: "COMM", StopLabel: "Commerce", Terminus: "Orvault", Direction: 2,
			Line: "C2", LineType: "3", Mode: "Bus", Incident: true, WaitText: "Proche", Date: day.Add(time.Hour)},
		{StopCode: "BOFA", StopLabel: "Bouffay", Terminus: "Beaujoire", Direction: 1,
			Line: "1", LineType: "1", Mode: "Tram", Date: day.AddDate(0, 0, 1)},
	}
}

func TestReplaceStopEvents_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.ReplaceStopEvents(ctx, sampleEvents()))
	require.NoError(t, db.ReplaceStopEvents(ctx, sampleEvents()))

	got, err := db.Corpus(false).StopEvents(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3, "replace must not append")

	want := sampleEvents()
	for i := range want {
		assert.Equal(t, want[i].StopCode, got[i].StopCode)
		assert.Equal(t, want[i].Line, got[i].Line)
		assert.Equal(t, want[i].Direction, got[i].Direction)
		assert.Equal(t, want[i].Incident, got[i].Incident)
		assert.Equal(t, want[i].RealTime, got[i].RealTime)
		assert.Equal(t, want[i].WaitText, got[i].WaitText)
		assert.True(t, want[i].Date.Equal(got[i].Date), "date %d", i)
	}

	imported, err := db.GetMetadata(ctx, ImportedAtKey)
	require.NoError(t, err)
	assert.NotEmpty(t, imported)
}

func TestEnsureTable_RecreatesOnColumnChange(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	recreated, err := db.EnsureTable(ctx, "snap", []Column{{"a", "TEXT"}, {"b", "INTEGER"}})
	require.NoError(t, err)
	assert.False(t, recreated)
	_, err = db.Exec(`INSERT INTO snap (a, b) VALUES ('x', 1)`)
	require.NoError(t, err)

	// Same set, different order: kept.
	recreated, err = db.EnsureTable(ctx, "snap", []Column{{"b", "INTEGER"}, {"a", "TEXT"}})
	require.NoError(t, err)
	assert.False(t, recreated)
	assert.Equal(t, 1, countRows(t, db, "snap"))

	recreated, err = db.EnsureTable(ctx, "snap", []Column{{"a", "TEXT"}, {"c", "REAL"}})
	require.NoError(t, err)
	assert.True(t, recreated)
	cols, err := db.TableColumns(ctx, "snap")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, cols)
	assert.Equal(t, 0, countRows(t, db, "snap"))
}

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func TestMetadata(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	got, err := db.GetMetadata(ctx, CollectedAtKey)
	require.NoError(t, err)
	assert.Empty(t, got)

	at := time.Date(2025, 6, 16, 8, 30, 0, 0, time.Local)
	require.NoError(t, db.MarkCollected(ctx, at))
	require.NoError(t, db.MarkCollected(ctx, at.Add(time.Minute)))

	got, err = db.GetMetadata(ctx, CollectedAtKey)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-16 08:31:00", got)
}

func TestTableColumns_RejectsBadNames(t *testing.T) {
	db := openTestDB(t)
	_, err := db.TableColumns(context.Background(), "x; DROP TABLE stop_events")
	assert.ErrorIs(t, err, ErrBadTableName)

	cols, err := db.TableColumns(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestBuildEnriched_JoinsOnStopLineAndDay(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.ReplaceStopEvents(ctx, sampleEvents()))

	_, err := db.BuildEnriched(ctx, SnapshotsTable)
	assert.Error(t, err, "no snapshots yet")

	at := time.Date(2025, 3, 4, 17, 0, 0, 0, time.Local)
	recreated, err := db.InsertSnapshots(ctx, SnapshotsTable, []Snapshot{
		{BatchID: "b1", RequestedAt: at, StopCode: "COMM", StopLat: 47.21, StopLon: -1.56, Arret: "COMM", Line: "1", WaitText: "2mn"},
		{BatchID: "b1", RequestedAt: at, StopCode: "COMM", StopLat: 47.21, StopLon: -1.56, Arret: "COMM", Line: "2"},
		{BatchID: "b1", RequestedAt: at, StopCode: "BOFA", StopLat: 47.215, StopLon: -1.55, Arret: "BOFA", Line: "1"},
	})
	require.NoError(t, err)
	assert.False(t, recreated)

	// Only COMM/1 on 2025-03-04 matches: BOFA's event is the next day.
	n, err := db.BuildEnriched(ctx, SnapshotsTable)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	events, err := db.Corpus(true).StopEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "COMM", events[0].StopCode)
	assert.Equal(t, "1", events[0].Line)

	var lat float64
	require.NoError(t, db.QueryRow(`SELECT stop_lat FROM `+EnrichedTable).Scan(&lat))
	assert.InDelta(t, 47.21, lat, 1e-9)

	// Rebuilding replaces rather than duplicates.
	n, err = db.BuildEnriched(ctx, SnapshotsTable)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInsertSnapshots_Empty(t *testing.T) {
	db := openTestDB(t)
	recreated, err := db.InsertSnapshots(context.Background(), SnapshotsTable, nil)
	require.NoError(t, err)
	assert.False(t, recreated)
}
