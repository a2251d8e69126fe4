package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("countrycodes"); got != "fr" {
			t.Errorf("countrycodes = %q", got)
		}
		if r.Header.Get("User-Agent") != "ua" {
			t.Errorf("missing User-Agent")
		}
		io.WriteString(w, `[{"lat": "47.2131", "lon": "-1.5614", "display_name": "Place du Commerce, Nantes", "category": "highway"}]`)
	}))
	defer srv.Close()

	got, err := New(srv.URL, "ua").Search(context.Background(), "Commerce")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got == nil || got.Point.Lat() != 47.2131 || got.Point.Lon() != -1.5614 {
		t.Fatalf("got %+v", got)
	}
	if got.DisplayName != "Place du Commerce, Nantes" {
		t.Errorf("DisplayName = %q", got.DisplayName)
	}
	if got.Category != "highway" {
		t.Errorf("Category = %q", got.Category)
	}
}

func TestSearch_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	got, err := New(srv.URL, "ua").Search(context.Background(), "nowhere")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestSearch_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "ua").Search(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSearch_CachesNormalisedQuery(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		io.WriteString(w, `[{"lat": "47.2", "lon": "-1.5", "display_name": "Gare de Nantes"}]`)
	}))
	defer srv.Close()

	c := New(srv.URL, "ua")
	for _, q := range []string{"Gare  Nord", "gare nord", " GARE NORD "} {
		got, err := c.Search(context.Background(), q)
		if err != nil {
			t.Fatal(err)
		}
		if got == nil || got.DisplayName != "Gare de Nantes" {
			t.Fatalf("Search(%q) = %+v", q, got)
		}
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	got, err := New("http://127.0.0.1:1", "ua").Search(context.Background(), "   ")
	if err != nil || got != nil {
		t.Errorf("Search(blank) = %+v, %v", got, err)
	}
}

func TestSearch_BadCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"lat": "north", "lon": "-1.5"}]`)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "ua").Search(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}
