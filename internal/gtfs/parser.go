package gtfs

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
)

// LoadStops reads stops.txt either directly or from inside a GTFS zip,
// depending on the file extension.
func LoadStops(path string, logger *slog.Logger) ([]Stop, error) {
	var (
		stops []Stop
		err   error
	)
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		stops, err = parseStopsZip(path)
	} else {
		stops, err = parseStopsFile(path)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("GTFS stops parsed", "path", filepath.Base(path), "stops", len(stops))
	return stops, nil
}

func parseStopsFile(path string) ([]Stop, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stops: %w", err)
	}
	defer f.Close()
	stops, err := ReadCSV[Stop](f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return stops, nil
}

func parseStopsZip(path string) ([]Stop, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != "stops.txt" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open file: %w", err)
		}
		defer rc.Close()
		stops, err := ReadCSV[Stop](rc)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", f.Name, err)
		}
		return stops, nil
	}
	return nil, fmt.Errorf("no stops.txt in %s", filepath.Base(path))
}

// ReadCSV decodes a CSV stream with a header row into a slice of T, matching
// columns to the string fields' csv tags. Unknown columns are ignored.
func ReadCSV[T any](r io.Reader) ([]T, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		records = append(records, record)
	}
	return DecodeRecords[T](header, records)
}

// DecodeRecords maps already-split rows (from CSV or a spreadsheet) onto T
// using the header row. A field tagged `csv:"name,required"` makes the
// column mandatory; short rows leave trailing fields empty.
func DecodeRecords[T any](header []string, records [][]string) ([]T, error) {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\xef\xbb\xbf")
	}
	cols, err := bindColumns[T](header)
	if err != nil {
		return nil, err
	}

	out := make([]T, len(records))
	for i, record := range records {
		v := reflect.ValueOf(&out[i]).Elem()
		for _, c := range cols {
			if c.column < len(record) {
				v.Field(c.field).SetString(strings.TrimSpace(record[c.column]))
			}
		}
	}
	return out, nil
}

type binding struct {
	column int // header position
	field  int // struct field index
}

// bindColumns pairs header positions with the string fields of T by csv tag.
func bindColumns[T any](header []string) ([]binding, error) {
	typ := reflect.TypeFor[T]()
	byName := make(map[string]int)
	var required []string
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		name, opts, _ := strings.Cut(f.Tag.Get("csv"), ",")
		if name == "" || f.Type.Kind() != reflect.String {
			continue
		}
		byName[name] = i
		if opts == "required" {
			required = append(required, name)
		}
	}

	var out []binding
	seen := make(map[string]bool)
	for pos, col := range header {
		col = strings.TrimSpace(col)
		if field, ok := byName[col]; ok && !seen[col] {
			out = append(out, binding{column: pos, field: field})
			seen[col] = true
		}
	}
	for _, name := range required {
		if !seen[name] {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}
	return out, nil
}
