package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"time"

	"tanpredict/internal/dataprep"
)

// Table names.
const (
	EventsTable    = "stop_events"
	EnrichedTable  = "stop_events_enriched"
	SnapshotsTable = "stop_snapshots"
)

// timeLayout is how timestamps are stored. SQLite's date() understands it,
// which the enrichment join relies on.
const timeLayout = "2006-01-02 15:04:05"

var parseLayouts = []string{timeLayout, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func formatTime(t time.Time) string { return t.Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrBadTableName is returned for table names that are not plain identifiers.
var ErrBadTableName = errors.New("invalid table name")

func checkTable(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrBadTableName, name)
	}
	return nil
}

// Bookkeeping keys in feed_metadata.
const (
	ImportedAtKey  = "imported_at"
	CollectedAtKey = "collected_at"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putMetadata(ctx context.Context, ex execer, key, value string) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO feed_metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// GetMetadata returns the value stored under key, or "" when it was never set.
func (db *DB) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM feed_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (db *DB) SetMetadata(ctx context.Context, key, value string) error {
	return putMetadata(ctx, db, key, value)
}

// MarkCollected records t as the time of the last collection round.
func (db *DB) MarkCollected(ctx context.Context, t time.Time) error {
	return db.SetMetadata(ctx, CollectedAtKey, formatTime(t))
}

// Corpus reads stop events from one table. It satisfies model.EventSource.
type Corpus struct {
	db    *DB
	table string
}

// Corpus returns a reader over stop_events, or over stop_events_enriched when
// enriched is set.
func (db *DB) Corpus(enriched bool) *Corpus {
	if enriched {
		return &Corpus{db: db, table: EnrichedTable}
	}
	return &Corpus{db: db, table: EventsTable}
}

// Table is the table the corpus reads from.
func (c *Corpus) Table() string { return c.table }

// StopEvents returns every row of the corpus table in insertion order.
func (c *Corpus) StopEvents(ctx context.Context) ([]dataprep.StopEvent, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT codeArret, libelleArret, terminus, sens, numLigne, typeLigne,
		       ModeTransport, dernierDepart, tempsReel, infotrafic, temps, Date
		FROM `+c.table+`
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.table, err)
	}
	defer rows.Close()

	var events []dataprep.StopEvent
	for rows.Next() {
		var ev dataprep.StopEvent
		var temps sql.NullString
		var date string
		if err := rows.Scan(&ev.StopCode, &ev.StopLabel, &ev.Terminus, &ev.Direction,
			&ev.Line, &ev.LineType, &ev.Mode,
			&ev.LastDeparture, &ev.RealTime, &ev.Incident,
			&temps, &date); err != nil {
			return nil, fmt.Errorf("scan stop event: %w", err)
		}
		ev.WaitText = temps.String
		if ev.Date, err = parseTime(date); err != nil {
			return nil, fmt.Errorf("stop event %d in %s: %w", len(events)+1, c.table, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ReplaceStopEvents empties stop_events and loads events in one transaction.
func (db *DB) ReplaceStopEvents(ctx context.Context, events []dataprep.StopEvent) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stop_events`); err != nil {
		return fmt.Errorf("clear stop_events: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stop_events (codeArret, libelleArret, terminus, sens, numLigne,
		 typeLigne, ModeTransport, dernierDepart, tempsReel, infotrafic, temps, Date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare stop_events: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		var temps any
		if ev.WaitText != "" {
			temps = ev.WaitText
		}
		if _, err := stmt.ExecContext(ctx, ev.StopCode, ev.StopLabel, ev.Terminus, ev.Direction,
			ev.Line, ev.LineType, ev.Mode, ev.LastDeparture, ev.RealTime, ev.Incident,
			temps, formatTime(ev.Date)); err != nil {
			return fmt.Errorf("insert stop event %s: %w", ev.StopCode, err)
		}
	}

	if err := putMetadata(ctx, tx, ImportedAtKey, formatTime(time.Now())); err != nil {
		return fmt.Errorf("record import: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	db.logger.Info("stop events replaced", "rows", len(events))
	return nil
}

// Column is one column of a dynamically created table.
type Column struct {
	Name string
	Type string // SQLite type affinity
}

// TableColumns lists a table's column names in declaration order. A missing
// table yields an empty list.
func (db *DB) TableColumns(ctx context.Context, table string) ([]string, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `PRAGMA table_info(`+table+`)`)
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, ctype      string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// EnsureTable makes table match cols. A missing table is created; an existing
// table whose column set differs is dropped and recreated, losing its rows.
// Column order is not significant.
func (db *DB) EnsureTable(ctx context.Context, table string, cols []Column) (recreated bool, err error) {
	existing, err := db.TableColumns(ctx, table)
	if err != nil {
		return false, err
	}
	want := make([]string, len(cols))
	for i, c := range cols {
		want[i] = c.Name
	}
	if len(existing) > 0 && sameColumnSet(existing, want) {
		return false, nil
	}

	if len(existing) > 0 {
		db.logger.Warn("table schema changed, recreating",
			"table", table, "old", existing, "new", want)
		if _, err := db.ExecContext(ctx, `DROP TABLE `+table); err != nil {
			return false, fmt.Errorf("drop %s: %w", table, err)
		}
		recreated = true
	}

	ddl := `CREATE TABLE ` + table + ` (`
	for i, c := range cols {
		if !identRe.MatchString(c.Name) {
			return recreated, fmt.Errorf("invalid column name %q", c.Name)
		}
		if i > 0 {
			ddl += ", "
		}
		ddl += c.Name + " " + c.Type
	}
	ddl += `)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return recreated, fmt.Errorf("create %s: %w", table, err)
	}
	return recreated, nil
}

func sameColumnSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
