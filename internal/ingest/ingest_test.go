package ingest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"tanpredict/internal/dataprep"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	events []dataprep.StopEvent
	calls  int
}

func (f *fakeStore) ReplaceStopEvents(_ context.Context, events []dataprep.StopEvent) error {
	f.calls++
	f.events = events
	return nil
}

const exportCSV = `codeArret,LibelleArret,terminus,sens,numLigne,typeLigne,ModeTransport,dernierDepart,tempsReel,infotrafic,temps,Date,codeArret
COMM1,Commerce,Beaujoire,1,1,1,Tram,False,True,False,4mn,2025-03-04 08:15:00,COMM
BOFA2,Bouffay,Orvault,2.0,C2,3,Bus,FALSE,0,VRAI,Proche,04/03/2025 09:00,BOFA
`

func TestReadCSV(t *testing.T) {
	events, err := ReadCSV(strings.NewReader(exportCSV))
	require.NoError(t, err)
	require.Len(t, events, 2)

	first := events[0]
	assert.Equal(t, "COMM1", first.StopCode, "first codeArret column wins")
	assert.Equal(t, "Commerce", first.StopLabel)
	assert.Equal(t, 1, first.Direction)
	assert.True(t, first.RealTime)
	assert.False(t, first.LastDeparture)
	assert.Equal(t, "4mn", first.WaitText)
	assert.Equal(t, time.Date(2025, 3, 4, 8, 15, 0, 0, time.Local), first.Date)

	second := events[1]
	assert.Equal(t, 2, second.Direction)
	assert.True(t, second.Incident)
	assert.False(t, second.RealTime)
	assert.Equal(t, "Proche", second.WaitText, "wait-time cleaning is left to dataprep")
	assert.Equal(t, time.Date(2025, 3, 4, 9, 0, 0, 0, time.Local), second.Date)
}

func TestReadCSV_BadRow(t *testing.T) {
	bad := "codeArret,sens,Date\nCOMM1,1,2025-03-04\nBOFA2,north,2025-03-04\n"
	_, err := ReadCSV(strings.NewReader(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 3")
	assert.Contains(t, err.Error(), "sens")

	_, err = ReadCSV(strings.NewReader("codeArret,Date\n,2025-03-04\n"))
	assert.ErrorContains(t, err, "missing codeArret")

	_, err = ReadCSV(strings.NewReader("codeArret,temps\nCOMM1,2mn\n"))
	assert.ErrorContains(t, err, `missing required column "Date"`)

	_, err = ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestParseDate_ExcelSerial(t *testing.T) {
	// 45720.34375 is 2025-03-04 08:15 in the 1900 date system.
	got, err := parseDate("45720.34375")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 4, 8, 15, 0, 0, time.Local), got)

	_, err = parseDate("yesterday")
	assert.Error(t, err)
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"1", true, false},
		{"TRUE", true, false},
		{"Vrai", true, false},
		{"0", false, false},
		{"", false, false},
		{"faux", false, false},
		{"peut-être", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseBool(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func writeWorkbook(t *testing.T, path string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	rows := [][]any{
		{"codeArret", "libelleArret", "terminus", "sens", "numLigne", "typeLigne", "ModeTransport",
			"dernierDepart", "tempsReel", "infotrafic", "temps", "Date"},
		{"COMM1", "Commerce", "Beaujoire", 1, "1", "1", "Tram", false, true, false, "4mn",
			time.Date(2025, 3, 4, 8, 15, 0, 0, time.UTC)},
		{"GSNO1", "Gare Sud", "Orvault", 2, "C2", "3", "Bus", true, false, true, "12mn",
			"2025-03-05 18:40:00"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trafic.xlsx")
	writeWorkbook(t, path)

	events, err := ReadXLSX(path, "Sheet1")
	require.NoError(t, err)
	require.Len(t, events, 2)

	first := events[0]
	assert.Equal(t, "COMM1", first.StopCode)
	assert.Equal(t, 1, first.Direction)
	assert.True(t, first.RealTime)
	assert.False(t, first.Incident)
	assert.Equal(t, 2025, first.Date.Year())
	assert.Equal(t, time.March, first.Date.Month())
	assert.Equal(t, 8, first.Date.Hour())
	assert.Equal(t, 15, first.Date.Minute())

	second := events[1]
	assert.Equal(t, "C2", second.Line)
	assert.True(t, second.LastDeparture)
	assert.True(t, second.Incident)
	assert.Equal(t, 18, second.Date.Hour())

	_, err = ReadXLSX(path, DefaultSheet)
	assert.Error(t, err, "workbook has no Feuil1 sheet")
}

func TestImportFile(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{}
	imp := New(store, testLogger())

	csvPath := filepath.Join(dir, "trafic.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(exportCSV), 0644))
	n, err := imp.ImportFile(context.Background(), csvPath, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, store.events, 2)

	xlsxPath := filepath.Join(dir, "trafic.xlsx")
	writeWorkbook(t, xlsxPath)
	n, err = imp.ImportFile(context.Background(), xlsxPath, "Sheet1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, store.calls)

	_, err = imp.ImportFile(context.Background(), filepath.Join(dir, "trafic.json"), "")
	assert.ErrorContains(t, err, "unsupported")
}
