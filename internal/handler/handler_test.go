package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tanpredict/internal/config"
	"tanpredict/internal/dataprep"
	"tanpredict/internal/directions"
	"tanpredict/internal/forest"
	"tanpredict/internal/model"
	"tanpredict/internal/realtime"
	"tanpredict/internal/route"
	"tanpredict/internal/storage"
	"tanpredict/internal/tan"
)

type fakeSource []dataprep.StopEvent

func (f fakeSource) StopEvents(context.Context) ([]dataprep.StopEvent, error) { return f, nil }

type fakeRouter struct {
	res *route.Result
	err error
	got route.Request
}

func (f *fakeRouter) Resolve(_ context.Context, req route.Request) (*route.Result, error) {
	f.got = req
	return f.res, f.err
}

type fakeTan struct {
	statuses []tan.Status
	err      error
}

func (f fakeTan) WaitTimes(context.Context, string) ([]tan.Status, error) { return f.statuses, f.err }

var (
	pipelineOnce sync.Once
	pipeline     *model.Pipeline
	pipelineErr  error
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testPipeline trains once on a corpus where tram 1 waits ~3 min and bus C2 ~12 min.
func testPipeline(t *testing.T) *model.Pipeline {
	t.Helper()
	pipelineOnce.Do(func() {
		base := time.Date(2025, 6, 16, 7, 0, 0, 0, time.UTC)
		var events fakeSource
		for i := 0; i < 60; i++ {
			ev := dataprep.StopEvent{
				StopCode:  []string{"COMM", "BOFA", "GSNO"}[i%3],
				Direction: 1 + i%2,
				Date:      base.Add(time.Duration(i) * 37 * time.Minute),
			}
			if i%2 == 0 {
				ev.Line, ev.LineType, ev.Mode, ev.Terminus, ev.WaitText, ev.RealTime = "1", "1", "Tram", "Beaujoire", "3mn", true
			} else {
				ev.Line, ev.LineType, ev.Mode, ev.Terminus, ev.WaitText = "C2", "3", "Bus", "Orvault", "12mn"
			}
			events = append(events, ev)
		}
		pipeline, pipelineErr = model.Build(context.Background(), events, model.BuildOptions{
			Prepare: dataprep.Options{WithMinuteOfDay: true},
			Train:   model.TrainOptions{TestFraction: 0.2, Seed: 42, Forest: forest.Params{Trees: 10}},
		}, discardLogger())
	})
	require.NoError(t, pipelineErr)
	return pipeline
}

func newTestHandler(t *testing.T, router Router, status StopStatus) *Handler {
	t.Helper()
	rt := realtime.NewStore()
	rt.SetAlerts([]realtime.Alert{
		{ID: "a1", HeaderText: "Travaux Commerce", RouteIDs: []string{"C2"}, StopIDs: []string{"COMM1"}, Effect: "DETOUR"},
	})
	static := fstest.MapFS{"style.css": {Data: []byte("body{}")}}
	deps := Deps{
		Pipeline: testPipeline(t),
		Routes:   router,
		Stops:    status,
		Alerts:   rt,
		Meta:     fakeMeta{storage.ImportedAtKey: "2025-06-16 06:00:00"},
	}
	return New(deps, static, &config.Config{}, discardLogger())
}

type fakeMeta map[string]string

func (m fakeMeta) GetMetadata(_ context.Context, key string) (string, error) {
	return m[key], nil
}

func transitResult() *route.Result {
	path := orb.LineString{{-1.5536, 47.2184}, {-1.5580, 47.2130}, {-1.5420, 47.2060}}
	return &route.Result{
		Request: route.Request{Origin: "Commerce", Destination: "Gare Sud", Mode: directions.Transit},
		Options: []route.Option{
			{Number: 1, Label: "Route 1 – TRAM 1 – 12 mins", Distance: "2.1 km", Duration: "12 mins", Path: path, PathMeters: 2140,
				Steps: []route.Step{{Line: "1", Vehicle: "TRAM", From: "Commerce", To: "Gare Sud", Stops: 4, Headsign: "Beaujoire"}}},
			{Number: 2, Label: "Route 2 – BUS C2 – 15 mins", Distance: "2.4 km", Duration: "15 mins", Path: path[:2]},
		},
		Duplicates:  1,
		Origin:      route.Marker{Name: "Place du Commerce", Point: path[0]},
		Destination: route.Marker{Name: "Gare Sud", Point: path[2]},
	}
}

func TestHome(t *testing.T) {
	h := newTestHandler(t, &fakeRouter{}, fakeTan{})

	w := httptest.NewRecorder()
	h.Home(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Wait time")
	assert.Contains(t, body, "mean absolute error")
	assert.Contains(t, body, "stop_events")
	assert.Contains(t, body, "1 active service alerts")
	assert.Contains(t, body, "Last import: 2025-06-16 06:00:00")
	assert.Contains(t, body, "Last collection: never")

	w = httptest.NewRecorder()
	h.Home(w, httptest.NewRequest("GET", "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoute_EmptyForm(t *testing.T) {
	router := &fakeRouter{}
	h := newTestHandler(t, router, fakeTan{})

	w := httptest.NewRecorder()
	h.Route(w, httptest.NewRequest("GET", "/route", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `id="map"`)
	assert.Empty(t, router.got.Origin)
}

func TestRoute_TransitOptionSelection(t *testing.T) {
	router := &fakeRouter{res: transitResult()}
	h := newTestHandler(t, router, fakeTan{})

	q := url.Values{
		"origin": {"Commerce"}, "destination": {"Gare Sud"}, "mode": {"transit"},
		"date": {"2025-06-16"}, "time": {"08:30"}, "option": {"2"},
	}
	w := httptest.NewRecorder()
	h.Route(w, httptest.NewRequest("GET", "/route?"+q.Encode(), nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, directions.Transit, router.got.Mode)
	assert.Equal(t, 8, router.got.Departure.Hour())
	assert.Equal(t, 30, router.got.Departure.Minute())

	body := w.Body.String()
	assert.Contains(t, body, `<strong aria-current="true">Route 2 – BUS C2 – 15 mins</strong>`)
	assert.Contains(t, body, "option=1")
	assert.Contains(t, body, "2.4 km · 15 mins")
	assert.Contains(t, body, "1 identical alternatives hidden")
	assert.Contains(t, body, `id="map"`)
	assert.Contains(t, body, "FeatureCollection")
}

func TestRoute_StandardModeHasNoOptionList(t *testing.T) {
	res := transitResult()
	res.Request.Mode = directions.Walking
	res.Options = res.Options[:1]
	router := &fakeRouter{res: res}
	h := newTestHandler(t, router, fakeTan{})

	w := httptest.NewRecorder()
	h.Route(w, httptest.NewRequest("GET", "/route?origin=a&destination=b&mode=walking", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, router.got.Departure.IsZero())
	assert.NotContains(t, w.Body.String(), "Choose an option")
	assert.Contains(t, w.Body.String(), `id="map"`)
	assert.Contains(t, w.Body.String(), "2.1 km along the drawn path")
}

func TestRoute_Errors(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		err    error
		status int
		want   string
	}{
		{"api status", "origin=a&destination=b", &route.StatusError{Status: "ZERO_RESULTS"}, http.StatusOK, "ZERO_RESULTS"},
		{"transport", "origin=a&destination=b", errors.New("connection refused"), http.StatusBadGateway, "connection refused"},
		{"bad mode", "origin=a&destination=b&mode=teleport", nil, http.StatusBadRequest, "unknown travel mode"},
		{"missing destination", "origin=a", nil, http.StatusBadRequest, "required"},
		{"bad time", "origin=a&destination=b&mode=transit&time=25h", nil, http.StatusBadRequest, "invalid date/time"},
		{"option out of range", "origin=a&destination=b&mode=transit&option=9", nil, http.StatusBadRequest, "out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := &fakeRouter{res: transitResult(), err: tt.err}
			if tt.err != nil {
				router.res = nil
			}
			h := newTestHandler(t, router, fakeTan{})

			w := httptest.NewRecorder()
			h.Route(w, httptest.NewRequest("GET", "/route?"+tt.query, nil))
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
			assert.NotContains(t, w.Body.String(), `id="map"`)
		})
	}
}

func TestPredict_Form(t *testing.T) {
	h := newTestHandler(t, &fakeRouter{}, fakeTan{})

	w := httptest.NewRecorder()
	h.Predict(w, httptest.NewRequest("GET", "/predict", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	for _, want := range []string{"BOFA", "GSNO", "Orvault", "Tram", `value="temps" selected`, "Last departure"} {
		assert.Contains(t, body, want)
	}
}

func postForm(h http.HandlerFunc, form url.Values) *httptest.ResponseRecorder {
	r := httptest.NewRequest("POST", "/predict", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h(w, r)
	return w
}

func TestPredict_Post(t *testing.T) {
	h := newTestHandler(t, &fakeRouter{}, fakeTan{})
	form := url.Values{
		"target": {"temps"}, "stop": {"COMM"}, "direction": {"2"}, "terminus": {"Orvault"},
		"line": {"C2"}, "line_type": {"3"}, "mode": {"Bus"},
		"date": {"2025-06-17"}, "time": {"09:00"},
	}

	w := postForm(h.Predict, form)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, " min")
	assert.Contains(t, body, "mean absolute error")
	assert.Contains(t, body, "Travaux Commerce")

	form.Set("target", "infotrafic")
	w = postForm(h.Predict, form)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Regexp(t, `Yes|No`, w.Body.String())
}

func TestPredict_PostErrors(t *testing.T) {
	h := newTestHandler(t, &fakeRouter{}, fakeTan{})
	base := url.Values{
		"target": {"temps"}, "stop": {"COMM"}, "direction": {"1"}, "terminus": {"Beaujoire"},
		"line": {"1"}, "line_type": {"1"}, "mode": {"Tram"},
	}
	tests := []struct {
		name   string
		key    string
		value  string
		status int
	}{
		{"unknown stop", "stop", "NEVER", http.StatusUnprocessableEntity},
		{"unknown line", "line", "99", http.StatusUnprocessableEntity},
		{"bad direction", "direction", "up", http.StatusBadRequest},
		{"bad target", "target", "price", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{}
			for k, v := range base {
				form[k] = v
			}
			form.Set(tt.key, tt.value)
			w := postForm(h.Predict, form)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), `role="alert"`)
		})
	}
}

func TestAPIPredict(t *testing.T) {
	h := newTestHandler(t, &fakeRouter{}, fakeTan{})

	call := func(body string) (*httptest.ResponseRecorder, map[string]any) {
		w := httptest.NewRecorder()
		h.APIPredict(w, httptest.NewRequest("POST", "/api/predict", strings.NewReader(body)))
		var out map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		return w, out
	}

	w, out := call(`{"target":"temps","stop":"BOFA","direction":1,"terminus":"Beaujoire","line":"1","line_type":"1","mode":"Tram","real_time":true,"at":"2025-06-17T08:00:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "temps", out["target"])
	assert.Equal(t, "mean absolute error", out["score_name"])
	assert.NotContains(t, out, "positive")

	w, out = call(`{"target":"tempsReel","stop":"BOFA","direction":1,"terminus":"Beaujoire","line":"1","line_type":"1","mode":"Tram"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, out, "positive")
	assert.Equal(t, "accuracy", out["score_name"])

	w, out = call(`{"target":"temps","stop":"NEVER","direction":1,"terminus":"Beaujoire","line":"1","line_type":"1","mode":"Tram"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, out["error"], "NEVER")

	w, _ = call(`{"target":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = call(`{"target":"temps","colour":"red"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStopDetail(t *testing.T) {
	statuses := []tan.Status{
		{Direction: 2, Terminus: "Orvault", WaitText: "Proche", Incident: true, Line: tan.LineRef{Number: "C2"}},
		{Direction: 1, Terminus: "Beaujoire", WaitText: "4mn", RealTime: true, Line: tan.LineRef{Number: "1"}},
	}
	h := newTestHandler(t, &fakeRouter{}, fakeTan{statuses: statuses})

	r := httptest.NewRequest("GET", "/stops/comm", nil)
	r.SetPathValue("code", "comm")
	w := httptest.NewRecorder()
	h.StopDetail(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Stop COMM")
	assert.Contains(t, body, "Travaux Commerce")
	assert.Less(t, strings.Index(body, "Beaujoire"), strings.Index(body, "Orvault"))
}

func TestStopDetail_Unavailable(t *testing.T) {
	h := newTestHandler(t, &fakeRouter{}, fakeTan{err: errors.New("timeout")})

	r := httptest.NewRequest("GET", "/stops/COMM", nil)
	r.SetPathValue("code", "COMM")
	w := httptest.NewRecorder()
	h.StopDetail(w, r)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "unavailable")
}

func TestParseDateTime(t *testing.T) {
	now := time.Date(2025, 6, 16, 14, 5, 0, 0, time.UTC)
	tests := []struct {
		date, clock string
		want        time.Time
		wantErr     bool
	}{
		{"", "", now, false},
		{"2025-06-20", "", time.Date(2025, 6, 20, 14, 5, 0, 0, time.UTC), false},
		{"", "07:45", time.Date(2025, 6, 16, 7, 45, 0, 0, time.UTC), false},
		{"2025-06-20", "23:59", time.Date(2025, 6, 20, 23, 59, 0, 0, time.UTC), false},
		{"20/06/2025", "10:00", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.date+" "+tt.clock, func(t *testing.T) {
			got, err := parseDateTime(tt.date, tt.clock, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestComputeAssetVersion(t *testing.T) {
	a := computeAssetVersion(fstest.MapFS{"style.css": {Data: []byte("a")}, "logo.png": {Data: []byte("x")}})
	b := computeAssetVersion(fstest.MapFS{"style.css": {Data: []byte("a")}, "logo.png": {Data: []byte("y")}})
	c := computeAssetVersion(fstest.MapFS{"style.css": {Data: []byte("b")}})
	assert.Len(t, a, 8)
	assert.Equal(t, a, b, "non-css/js files must not affect the version")
	assert.NotEqual(t, a, c)
}
