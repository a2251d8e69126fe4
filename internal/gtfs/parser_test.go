package gtfs

import (
	"archive/zip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const stopsTxt = "\xef\xbb\xbfstop_id,stop_name,stop_desc,stop_lat,stop_lon,zone_id,location_type\n" +
	"COMM1,Commerce,,47.21312,-1.56142,A,0\n" +
	"GSNO2, Gare Sud ,\"Quai, sud\",47.21710,-1.54190,A,0\n"

func TestReadCSV(t *testing.T) {
	stops, err := ReadCSV[Stop](strings.NewReader(stopsTxt))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(stops) != 2 {
		t.Fatalf("len = %d, want 2", len(stops))
	}
	if stops[0].StopID != "COMM1" {
		t.Errorf("BOM not stripped: StopID = %q", stops[0].StopID)
	}
	if stops[1].StopName != "Gare Sud" || stops[1].StopDesc != "Quai, sud" {
		t.Errorf("second = %+v", stops[1])
	}
	lat, lon, err := stops[0].Coords()
	if err != nil || lat != 47.21312 || lon != -1.56142 {
		t.Errorf("Coords() = %v, %v, %v", lat, lon, err)
	}
}

func TestCoords_Invalid(t *testing.T) {
	if _, _, err := (Stop{StopID: "X", StopLat: "n/a", StopLon: "1"}).Coords(); err == nil {
		t.Error("expected error for non-numeric latitude")
	}
}

func TestDecodeRecords_ShortRows(t *testing.T) {
	got, err := DecodeRecords[Stop]([]string{"stop_id", "stop_name"}, [][]string{{"A"}, {"B", "Bouffay"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].StopName != "" || got[1].StopName != "Bouffay" {
		t.Errorf("got %+v", got)
	}
}

func TestDecodeRecords_RequiredColumn(t *testing.T) {
	_, err := DecodeRecords[Stop]([]string{"stop_name", "stop_lat"}, [][]string{{"Bouffay", "47.2"}})
	if err == nil || !strings.Contains(err.Error(), "stop_id") {
		t.Errorf("err = %v, want missing stop_id", err)
	}
}

func TestDecodeRecords_DuplicateColumnFirstWins(t *testing.T) {
	got, err := DecodeRecords[Stop]([]string{"stop_id", "stop_name", "stop_name"}, [][]string{{"A", "first", "second"}})
	if err != nil {
		t.Fatal(err)
	}
	if got[0].StopName != "first" {
		t.Errorf("StopName = %q, want first", got[0].StopName)
	}
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := zip.NewWriter(f)
	for name, body := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(fw, body)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadStops_ZipAndText(t *testing.T) {
	dir := t.TempDir()

	zipPath := filepath.Join(dir, "feed.zip")
	writeZip(t, zipPath, map[string]string{"agency.txt": "agency_id\nTAN\n", "stops.txt": stopsTxt})
	stops, err := LoadStops(zipPath, testLogger())
	if err != nil || len(stops) != 2 {
		t.Fatalf("zip: %d stops, err %v", len(stops), err)
	}

	txtPath := filepath.Join(dir, "stops.txt")
	if err := os.WriteFile(txtPath, []byte(stopsTxt), 0644); err != nil {
		t.Fatal(err)
	}
	stops, err = LoadStops(txtPath, testLogger())
	if err != nil || len(stops) != 2 {
		t.Fatalf("txt: %d stops, err %v", len(stops), err)
	}

	emptyZip := filepath.Join(dir, "empty.zip")
	writeZip(t, emptyZip, map[string]string{"agency.txt": "agency_id\n"})
	if _, err := LoadStops(emptyZip, testLogger()); err == nil {
		t.Error("expected error for zip without stops.txt")
	}
}

func TestDownloader_FetchStops(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "src.zip")
	writeZip(t, zipPath, map[string]string{"stops.txt": stopsTxt})
	body, err := os.ReadFile(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	modified := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	var downloads, conditional int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if since, err := http.ParseTime(r.Header.Get("If-Modified-Since")); err == nil && !since.Before(modified) {
			conditional++
			w.WriteHeader(http.StatusNotModified)
			return
		}
		downloads++
		w.Header().Set("Last-Modified", modified.Format(http.TimeFormat))
		w.Write(body)
	}))
	defer srv.Close()

	dlDir := filepath.Join(dir, "dl")
	d := NewDownloader(srv.URL, dlDir, testLogger())
	for i := 0; i < 2; i++ {
		stops, err := d.FetchStops(context.Background())
		if err != nil {
			t.Fatalf("FetchStops #%d: %v", i+1, err)
		}
		if len(stops) != 2 {
			t.Errorf("len = %d, want 2", len(stops))
		}
	}
	if downloads != 1 || conditional != 1 {
		t.Errorf("downloads = %d, 304s = %d; want 1 and 1", downloads, conditional)
	}

	left, _ := os.ReadDir(dlDir)
	if len(left) != 1 || left[0].Name() != "gtfs.zip" {
		t.Errorf("cache dir holds %v, want only gtfs.zip", left)
	}
}

func TestDownloader_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewDownloader(srv.URL, t.TempDir(), testLogger()).FetchStops(context.Background()); err == nil {
		t.Error("expected error for 404")
	}
}
