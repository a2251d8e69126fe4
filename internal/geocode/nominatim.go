// Package geocode names route endpoints through Nominatim.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/paulmach/orb"
)

// DefaultBaseURL is the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// nantesViewbox biases searches toward Nantes Métropole (lon,lat,lon,lat).
const nantesViewbox = "-1.80,47.10,-1.35,47.35"

// Result is the best match for a query.
type Result struct {
	Point       orb.Point // lon, lat
	DisplayName string
	Category    string // OSM class, e.g. "railway", "highway"
}

// Client is a Nominatim search client. Answers are cached per normalised
// query, including empty ones.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	cache      gcache.Cache
}

// New creates a client. userAgent is required by Nominatim's usage policy.
// An empty baseURL means DefaultBaseURL.
func New(baseURL, userAgent string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		userAgent:  userAgent,
		cache:      gcache.New(512).LRU().Expiration(24 * time.Hour).Build(),
	}
}

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
}

// Search geocodes a free-form query, preferring places around Nantes.
// It returns nil when nothing matches.
func (c *Client) Search(ctx context.Context, query string) (*Result, error) {
	key := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if key == "" {
		return nil, nil
	}
	if v, err := c.cache.Get(key); err == nil {
		return v.(*Result), nil
	}

	places, err := c.search(ctx, query)
	if err != nil {
		return nil, err
	}
	var res *Result
	if len(places) > 0 {
		if res, err = places[0].result(); err != nil {
			return nil, err
		}
	}
	c.cache.Set(key, res)
	return res, nil
}

func (c *Client) search(ctx context.Context, query string) ([]place, error) {
	u := c.baseURL + "/search?" + url.Values{
		"q":            {query},
		"format":       {"jsonv2"},
		"limit":        {"1"},
		"countrycodes": {"fr"},
		"viewbox":      {nantesViewbox},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "fr")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim status %d", resp.StatusCode)
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("nominatim decode: %w", err)
	}
	return places, nil
}

func (p place) result() (*Result, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("parse lat %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("parse lon %q: %w", p.Lon, err)
	}
	return &Result{Point: orb.Point{lon, lat}, DisplayName: p.DisplayName, Category: p.Category}, nil
}
