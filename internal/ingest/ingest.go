// Package ingest loads historical stop events from spreadsheet or CSV exports.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"tanpredict/internal/dataprep"
	"tanpredict/internal/gtfs"
)

// DefaultSheet is the worksheet read when none is given.
const DefaultSheet = "Feuil1"

// Store receives the imported corpus.
type Store interface {
	ReplaceStopEvents(ctx context.Context, events []dataprep.StopEvent) error
}

// Importer replaces the stop_events table with the content of an export file.
type Importer struct {
	store  Store
	logger *slog.Logger
}

// New creates an importer.
func New(store Store, logger *slog.Logger) *Importer {
	return &Importer{store: store, logger: logger}
}

// ImportFile reads path (.xlsx/.xlsm or .csv) and replaces the stored events
// with its rows. sheet is ignored for CSV files.
func (imp *Importer) ImportFile(ctx context.Context, path, sheet string) (int, error) {
	start := time.Now()
	var (
		events []dataprep.StopEvent
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		events, err = ReadXLSX(path, sheet)
	case ".csv":
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return 0, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		events, err = ReadCSV(f)
	default:
		return 0, fmt.Errorf("unsupported import format %q", filepath.Ext(path))
	}
	if err != nil {
		return 0, err
	}

	if err := imp.store.ReplaceStopEvents(ctx, events); err != nil {
		return 0, fmt.Errorf("store stop events: %w", err)
	}
	imp.logger.Info("stop events imported",
		"file", filepath.Base(path),
		"rows", len(events),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return len(events), nil
}

// ReadXLSX reads stop events from one worksheet. The first row is the header.
func ReadXLSX(path, sheet string) ([]dataprep.StopEvent, error) {
	if sheet == "" {
		sheet = DefaultSheet
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}
	return decode(rows[0], rows[1:])
}

// ReadCSV reads stop events from a CSV export with a header row.
func ReadCSV(r io.Reader) ([]dataprep.StopEvent, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv is empty")
	}
	return decode(records[0], records[1:])
}

// rawEvent is one exported row before type coercion.
type rawEvent struct {
	StopCode      string `csv:"codeArret,required"`
	StopLabel     string `csv:"libelleArret"`
	Terminus      string `csv:"terminus"`
	Direction     string `csv:"sens"`
	Line          string `csv:"numLigne"`
	LineType      string `csv:"typeLigne"`
	Mode          string `csv:"ModeTransport"`
	LastDeparture string `csv:"dernierDepart"`
	RealTime      string `csv:"tempsReel"`
	Incident      string `csv:"infotrafic"`
	WaitText      string `csv:"temps"`
	Date          string `csv:"Date,required"`
}

var canonical = []string{
	dataprep.ColStopCode, dataprep.ColStopLabel, dataprep.ColTerminus, dataprep.ColDirection,
	dataprep.ColLine, dataprep.ColLineType, dataprep.ColMode, dataprep.ColLastDeparture,
	dataprep.ColRealTime, dataprep.ColIncident, dataprep.ColWaitTime, "Date",
}

// normalizeHeader maps header cells onto the canonical column names, ignoring
// case ("LibelleArret" and "libelleArret" are the same column). The first
// occurrence of a column wins; later duplicates are renamed away.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]bool)
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\xef\xbb\xbf"))
		out[i] = h
		for _, c := range canonical {
			if strings.EqualFold(h, c) {
				if used[c] {
					out[i] = h + "_dup"
				} else {
					out[i] = c
					used[c] = true
				}
				break
			}
		}
	}
	return out
}

func decode(header []string, rows [][]string) ([]dataprep.StopEvent, error) {
	recs, err := gtfs.DecodeRecords[rawEvent](normalizeHeader(header), rows)
	if err != nil {
		return nil, err
	}
	return convert(recs)
}

func convert(recs []rawEvent) ([]dataprep.StopEvent, error) {
	events := make([]dataprep.StopEvent, 0, len(recs))
	for i, r := range recs {
		ev, err := r.event()
		if err != nil {
			// +2: header row, 1-based
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (r rawEvent) event() (dataprep.StopEvent, error) {
	ev := dataprep.StopEvent{
		StopCode:  r.StopCode,
		StopLabel: r.StopLabel,
		Terminus:  r.Terminus,
		Line:      r.Line,
		LineType:  r.LineType,
		Mode:      r.Mode,
		WaitText:  r.WaitText,
	}
	if ev.StopCode == "" {
		return ev, fmt.Errorf("missing %s", dataprep.ColStopCode)
	}
	var err error
	if ev.Direction, err = parseInt(r.Direction); err != nil {
		return ev, fmt.Errorf("%s: %w", dataprep.ColDirection, err)
	}
	if ev.LastDeparture, err = parseBool(r.LastDeparture); err != nil {
		return ev, fmt.Errorf("%s: %w", dataprep.ColLastDeparture, err)
	}
	if ev.RealTime, err = parseBool(r.RealTime); err != nil {
		return ev, fmt.Errorf("%s: %w", dataprep.ColRealTime, err)
	}
	if ev.Incident, err = parseBool(r.Incident); err != nil {
		return ev, fmt.Errorf("%s: %w", dataprep.ColIncident, err)
	}
	if ev.Date, err = parseDate(r.Date); err != nil {
		return ev, fmt.Errorf("Date: %w", err)
	}
	return ev, nil
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "vrai", "yes", "oui":
		return true, nil
	case "0", "false", "faux", "no", "non", "":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
}

// parseDate accepts text timestamps and raw spreadsheet date serials.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty")
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		// Serials carry no zone: read the wall clock as local time.
		t = t.Round(time.Second)
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
