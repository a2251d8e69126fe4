package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Snapshot is one live wait-time record polled for a stop, with the stop's
// location and the batch it was collected in.
type Snapshot struct {
	BatchID       string
	RequestedAt   time.Time
	StopCode      string // stop polled (codeArret)
	StopName      string
	StopLat       float64
	StopLon       float64
	Arret         string // stop code echoed by the API
	Line          string
	LineType      string
	Direction     int
	Terminus      string
	WaitText      string
	Incident      bool
	RealTime      bool
	LastDeparture bool
}

// SnapshotColumns is the schema of the snapshot table. EnsureTable compares
// it against the stored table before every batch.
var SnapshotColumns = []Column{
	{"batch_id", "TEXT"},
	{"requested_at", "TEXT"},
	{"codeArret", "TEXT"},
	{"libelleArret", "TEXT"},
	{"stop_lat", "REAL"},
	{"stop_lon", "REAL"},
	{"arret", "TEXT"},
	{"ligne", "TEXT"},
	{"typeLigne", "TEXT"},
	{"sens", "INTEGER"},
	{"terminus", "TEXT"},
	{"temps", "TEXT"},
	{"infotrafic", "INTEGER"},
	{"tempsReel", "INTEGER"},
	{"dernierDepart", "INTEGER"},
}

func (s Snapshot) values() []any {
	return []any{
		s.BatchID, formatTime(s.RequestedAt), s.StopCode, s.StopName, s.StopLat, s.StopLon,
		s.Arret, s.Line, s.LineType, s.Direction, s.Terminus, s.WaitText,
		s.Incident, s.RealTime, s.LastDeparture,
	}
}

// InsertSnapshots appends a batch to table, first recreating the table if its
// column set no longer matches SnapshotColumns.
func (db *DB) InsertSnapshots(ctx context.Context, table string, snaps []Snapshot) (recreated bool, err error) {
	if len(snaps) == 0 {
		return false, nil
	}
	recreated, err = db.EnsureTable(ctx, table, SnapshotColumns)
	if err != nil {
		return recreated, err
	}

	names := make([]string, len(SnapshotColumns))
	for i, c := range SnapshotColumns {
		names[i] = c.Name
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return recreated, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+table+` (`+strings.Join(names, ", ")+`) VALUES (`+placeholders+`)`)
	if err != nil {
		return recreated, fmt.Errorf("prepare %s: %w", table, err)
	}
	defer stmt.Close()

	for _, s := range snaps {
		if _, err := stmt.ExecContext(ctx, s.values()...); err != nil {
			return recreated, fmt.Errorf("insert snapshot %s/%s: %w", s.StopCode, s.Line, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return recreated, fmt.Errorf("commit: %w", err)
	}
	return recreated, nil
}

// BuildEnriched rebuilds stop_events_enriched: every stop event joined with the
// snapshots taken at the same stop, on the same line, on the same calendar day.
// It returns the number of enriched rows.
func (db *DB) BuildEnriched(ctx context.Context, snapshotTable string) (int, error) {
	cols, err := db.TableColumns(ctx, snapshotTable)
	if err != nil {
		return 0, err
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("enrich: no snapshots collected in %s", snapshotTable)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+EnrichedTable); err != nil {
		return 0, fmt.Errorf("drop %s: %w", EnrichedTable, err)
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE `+EnrichedTable+` AS
		SELECT t1.*, t2.stop_lat, t2.stop_lon, t2.requested_at
		FROM stop_events AS t1
		JOIN `+snapshotTable+` AS t2
		  ON t1.codeArret = t2.codeArret
		 AND t1.numLigne = t2.ligne
		 AND date(t1.Date) = date(t2.requested_at)`); err != nil {
		return 0, fmt.Errorf("create %s: %w", EnrichedTable, err)
	}

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+EnrichedTable).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", EnrichedTable, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	db.logger.Info("enriched table built", "table", EnrichedTable, "rows", n)
	return n, nil
}
