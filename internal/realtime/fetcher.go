// Package realtime keeps the TAN GTFS-RT service alerts in memory.
package realtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// Fetcher polls the alerts feed and replaces the store's content on change.
type Fetcher struct {
	url      string
	interval time.Duration
	store    *Store
	client   *http.Client
	logger   *slog.Logger

	etag         string
	lastModified string
}

// NewFetcher creates a fetcher polling alertsURL every interval (default 1 min).
func NewFetcher(alertsURL string, interval time.Duration, store *Store, logger *slog.Logger) *Fetcher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Fetcher{
		url:      alertsURL,
		interval: interval,
		store:    store,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

// Start polls until ctx is cancelled. A failed poll keeps the previous alerts.
func (f *Fetcher) Start(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		if err := f.FetchOnce(ctx); err != nil {
			f.logger.Warn("fetch alerts failed", "url", f.url, "error", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			f.logger.Info("alerts fetcher stopped")
			return
		}
	}
}

// FetchOnce downloads the feed and replaces the stored alerts. The request
// is conditional on the previous ETag/Last-Modified; 304 leaves the store as is.
func (f *Fetcher) FetchOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", f.url, nil)
	if err != nil {
		return fmt.Errorf("create alerts request: %w", err)
	}
	if f.etag != "" {
		req.Header.Set("If-None-Match", f.etag)
	}
	if f.lastModified != "" {
		req.Header.Set("If-Modified-Since", f.lastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("alerts request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		f.logger.Debug("alerts feed unchanged")
		return nil
	default:
		return fmt.Errorf("alerts feed returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read alerts body: %w", err)
	}
	alerts, err := ParseAlerts(body)
	if err != nil {
		return err
	}
	f.store.SetAlerts(alerts)
	f.etag = resp.Header.Get("ETag")
	f.lastModified = resp.Header.Get("Last-Modified")
	f.logger.Info("service alerts updated", "count", len(alerts))
	return nil
}

// ParseAlerts decodes a GTFS-RT FeedMessage and keeps its alert entities.
// Lines and stops named by several informed entities are listed once.
func ParseAlerts(body []byte) ([]Alert, error) {
	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("parse alerts protobuf: %w", err)
	}

	var alerts []Alert
	for _, entity := range feed.GetEntity() {
		a := entity.GetAlert()
		if a == nil || entity.GetIsDeleted() {
			continue
		}
		alert := Alert{
			ID:         entity.GetId(),
			HeaderText: translation(a.GetHeaderText()),
			DescText:   translation(a.GetDescriptionText()),
			Effect:     a.GetEffect().String(),
			Cause:      a.GetCause().String(),
		}
		for _, p := range a.GetActivePeriod() {
			alert.Active = append(alert.Active, Period{Start: unix(p.GetStart()), End: unix(p.GetEnd())})
		}
		for _, ie := range a.GetInformedEntity() {
			alert.RouteIDs = addUnique(alert.RouteIDs, ie.GetRouteId())
			alert.StopIDs = addUnique(alert.StopIDs, ie.GetStopId())
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

func unix(sec uint64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0)
}

func addUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// translation prefers the French text, then the first non-empty one.
func translation(ts *gtfs.TranslatedString) string {
	first := ""
	for _, t := range ts.GetTranslation() {
		text := t.GetText()
		if text == "" {
			continue
		}
		if t.GetLanguage() == "fr" {
			return text
		}
		if first == "" {
			first = text
		}
	}
	return first
}

var effectLabels = map[string]string{
	"NO_SERVICE":          "No service",
	"REDUCED_SERVICE":     "Reduced service",
	"SIGNIFICANT_DELAYS":  "Significant delays",
	"DETOUR":              "Detour",
	"ADDITIONAL_SERVICE":  "Additional service",
	"MODIFIED_SERVICE":    "Modified service",
	"STOP_MOVED":          "Stop moved",
	"ACCESSIBILITY_ISSUE": "Accessibility issue",
}

// FormatAlertEffect returns a display label for a GTFS-RT effect name.
func FormatAlertEffect(effect string) string {
	if label, ok := effectLabels[effect]; ok {
		return label
	}
	return "Alert"
}
