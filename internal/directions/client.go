package directions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	resty "gopkg.in/resty.v1"
)

// Mode is a travel mode understood by the Directions API.
type Mode string

const (
	Driving   Mode = "driving"
	Walking   Mode = "walking"
	Bicycling Mode = "bicycling"
	Transit   Mode = "transit"
)

// Modes lists the supported travel modes in display order.
var Modes = []Mode{Driving, Walking, Bicycling, Transit}

// ParseMode validates a travel mode name.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown travel mode %q", s)
}

// Query is one directions request.
type Query struct {
	Origin      string
	Destination string
	Mode        Mode
	// Departure is only sent for transit queries; zero means "now".
	Departure time.Time
	Language  string
}

// ErrNoAPIKey is returned when the client has no API key configured.
var ErrNoAPIKey = errors.New("directions: no API key configured")

// Client queries the Google Directions JSON API.
type Client struct {
	http   *resty.Client
	url    string
	apiKey string
	logger *slog.Logger
}

// NewClient creates a Directions client. Requests time out after 10 seconds
// and are not retried.
func NewClient(endpoint, apiKey string, logger *slog.Logger) *Client {
	r := resty.New().
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json")
	return &Client{http: r, url: endpoint, apiKey: apiKey, logger: logger}
}

// Query sends q and decodes the response. A transport error or non-200 HTTP
// status is an error; an API-level status such as "ZERO_RESULTS" is not, it
// is left in Response.Status for the caller to inspect.
func (c *Client) Query(ctx context.Context, q Query) (*Response, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if q.Mode == "" {
		q.Mode = Driving
	}

	params := map[string]string{
		"origin":      q.Origin,
		"destination": q.Destination,
		"mode":        string(q.Mode),
		"key":         c.apiKey,
	}
	if q.Language != "" {
		params["language"] = q.Language
	}
	if q.Mode == Transit {
		params["alternatives"] = "true"
		if q.Departure.IsZero() {
			params["departure_time"] = "now"
		} else {
			params["departure_time"] = strconv.FormatInt(q.Departure.Unix(), 10)
		}
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("directions request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("directions: HTTP %d", resp.StatusCode())
	}

	var out Response
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode directions: %w", err)
	}

	c.logger.Info("directions query",
		"mode", q.Mode,
		"status", out.Status,
		"routes", len(out.Routes),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return &out, nil
}
