// Package route resolves origin/destination queries into drawable itineraries.
package route

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"tanpredict/internal/directions"
	"tanpredict/internal/geo"
	"tanpredict/internal/geocode"
)

// Directions is the subset of the directions client used by the resolver.
type Directions interface {
	Query(ctx context.Context, q directions.Query) (*directions.Response, error)
}

// Geocoder names the route endpoints. It may be nil.
type Geocoder interface {
	Search(ctx context.Context, query string) (*geocode.Result, error)
}

// StatusError reports a non-OK status from the directions API.
type StatusError struct {
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("directions: %s: %s", e.Status, e.Message)
	}
	return "directions: " + e.Status
}

// Request is one route query.
type Request struct {
	Origin      string
	Destination string
	Mode        directions.Mode
	Departure   time.Time // transit only
}

// Step is one transit ride within an option.
type Step struct {
	Line     string
	Vehicle  string
	From     string
	To       string
	Stops    int
	Headsign string
	Depart   string
	Arrive   string
}

// Option is one drawable itinerary.
type Option struct {
	Number      int // 1-based
	Label       string
	Fingerprint string
	Distance    string
	Duration    string
	Path        orb.LineString
	PathMeters  float64
	Steps       []Step
}

// Marker is a named point on the map.
type Marker struct {
	Name  string
	Point orb.Point
}

// Result is the outcome of one Resolve call. It is never modified after
// Resolve returns; each request gets its own.
type Result struct {
	Request     Request
	Options     []Option
	Duplicates  int // transit alternatives dropped as identical
	Origin      Marker
	Destination Marker
}

// Transit reports whether the result holds transit alternatives rather than
// a single standard route.
func (r *Result) Transit() bool { return r.Request.Mode == directions.Transit }

// Option returns option n (1-based).
func (r *Result) Option(n int) (*Option, error) {
	if n < 1 || n > len(r.Options) {
		return nil, fmt.Errorf("route option %d out of range [1,%d]", n, len(r.Options))
	}
	return &r.Options[n-1], nil
}

// StraightLine is the great-circle distance between the two markers, in meters.
func (r *Result) StraightLine() float64 {
	return geo.PointDistance(r.Origin.Point, r.Destination.Point)
}

// Resolver turns Requests into Results.
type Resolver struct {
	dirs     Directions
	geocoder Geocoder
	logger   *slog.Logger
}

// NewResolver creates a resolver. geocoder may be nil.
func NewResolver(dirs Directions, geocoder Geocoder, logger *slog.Logger) *Resolver {
	return &Resolver{dirs: dirs, geocoder: geocoder, logger: logger}
}

// Resolve queries the directions API and builds the result. A non-OK API
// status yields a *StatusError and no result. Standard modes keep the first
// route only; transit keeps every distinct alternative.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Origin) == "" || strings.TrimSpace(req.Destination) == "" {
		return nil, fmt.Errorf("origin and destination are required")
	}
	if req.Mode == "" {
		req.Mode = directions.Driving
	}

	q := directions.Query{
		Origin:      req.Origin,
		Destination: req.Destination,
		Mode:        req.Mode,
	}
	if req.Mode == directions.Transit {
		q.Departure = req.Departure
	}
	resp, err := r.dirs.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &StatusError{Status: resp.Status, Message: resp.ErrorMessage}
	}
	if len(resp.Routes) == 0 {
		return nil, &StatusError{Status: "ZERO_RESULTS"}
	}

	routes := resp.Routes[:1]
	if req.Mode == directions.Transit {
		routes = Dedup(resp.Routes)
	}

	res := &Result{Request: req}
	if req.Mode == directions.Transit {
		res.Duplicates = len(resp.Routes) - len(routes)
	}
	for i, rt := range routes {
		opt, err := buildOption(i+1, rt, req.Mode == directions.Transit)
		if err != nil {
			return nil, err
		}
		res.Options = append(res.Options, opt)
	}

	first := res.Options[0].Path
	res.Origin = Marker{Name: req.Origin, Point: first[0]}
	res.Destination = Marker{Name: req.Destination, Point: first[len(first)-1]}
	r.nameMarker(ctx, &res.Origin)
	r.nameMarker(ctx, &res.Destination)

	r.logger.Info("route resolved",
		"mode", req.Mode,
		"options", len(res.Options),
		"duplicates", res.Duplicates,
	)
	return res, nil
}

func buildOption(n int, rt directions.Route, transit bool) (Option, error) {
	path, err := Decode(rt.OverviewPolyline.Points)
	if err != nil {
		return Option{}, fmt.Errorf("route %d: %w", n, err)
	}
	if len(path) == 0 {
		return Option{}, fmt.Errorf("route %d: empty path", n)
	}
	opt := Option{
		Number:      n,
		Fingerprint: Fingerprint(rt.OverviewPolyline.Points),
		Path:        path,
		PathMeters:  geo.PathLength(path),
	}
	if len(rt.Legs) > 0 {
		leg := rt.Legs[0]
		opt.Distance = leg.Distance.Text
		opt.Duration = leg.Duration.Text
		for _, s := range leg.Steps {
			if s.TravelMode != "TRANSIT" || s.TransitDetails == nil {
				continue
			}
			td := s.TransitDetails
			opt.Steps = append(opt.Steps, Step{
				Line:     orUnknown(td.Line.ShortName),
				Vehicle:  orUnknown(td.Line.Vehicle.Type),
				From:     td.DepartureStop.Name,
				To:       td.ArrivalStop.Name,
				Stops:    td.NumStops,
				Headsign: td.Headsign,
				Depart:   td.DepartureTime.Text,
				Arrive:   td.ArrivalTime.Text,
			})
		}
	}
	if transit {
		opt.Label = Label(n, rt)
	} else {
		opt.Label = fmt.Sprintf("%s – %s", opt.Distance, opt.Duration)
	}
	return opt, nil
}

// nameMarker replaces a marker's name with the geocoder's display name.
// Geocoding failures keep the path endpoint and the user's text.
func (r *Resolver) nameMarker(ctx context.Context, m *Marker) {
	if r.geocoder == nil {
		return
	}
	g, err := r.geocoder.Search(ctx, m.Name)
	if err != nil {
		r.logger.Warn("geocode failed", "query", m.Name, "error", err)
		return
	}
	if g == nil {
		return
	}
	m.Name = g.DisplayName
}

// GeoJSON renders option n as a FeatureCollection: the path followed by the
// start and end markers.
func (r *Result) GeoJSON(n int) ([]byte, error) {
	opt, err := r.Option(n)
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()

	path := geojson.NewFeature(opt.Path)
	path.Properties["role"] = "path"
	path.Properties["label"] = opt.Label
	fc.Append(path)

	for _, m := range []struct {
		role   string
		marker Marker
	}{{"start", r.Origin}, {"end", r.Destination}} {
		f := geojson.NewFeature(m.marker.Point)
		f.Properties["role"] = m.role
		f.Properties["name"] = m.marker.Name
		fc.Append(f)
	}
	return fc.MarshalJSON()
}
