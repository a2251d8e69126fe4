package route

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-polyline"

	"tanpredict/internal/directions"
)

// Fingerprint is the hex MD5 digest of an encoded polyline. Two alternatives
// with the same fingerprint follow the same geometry.
func Fingerprint(encoded string) string {
	sum := md5.Sum([]byte(encoded))
	return hex.EncodeToString(sum[:])
}

// Dedup keeps the first route seen for each distinct overview polyline, in
// input order. Dedup(Dedup(x)) == Dedup(x).
func Dedup(routes []directions.Route) []directions.Route {
	seen := make(map[string]bool, len(routes))
	out := make([]directions.Route, 0, len(routes))
	for _, r := range routes {
		fp := Fingerprint(r.OverviewPolyline.Points)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, r)
	}
	return out
}

// Label summarises a transit alternative: "Route 2 – BUS C2 + TRAM 1 – 25 mins".
// n is 1-based. Missing line metadata is shown as "?"; an alternative with no
// transit step is summarised as "WALKING".
func Label(n int, r directions.Route) string {
	var legs []string
	duration := ""
	if len(r.Legs) > 0 {
		leg := r.Legs[0]
		duration = leg.Duration.Text
		for _, s := range leg.Steps {
			if s.TravelMode != "TRANSIT" || s.TransitDetails == nil {
				continue
			}
			line := s.TransitDetails.Line
			legs = append(legs, orUnknown(line.Vehicle.Type)+" "+orUnknown(line.ShortName))
		}
	}
	summary := strings.Join(legs, " + ")
	if summary == "" {
		summary = "WALKING"
	}
	return fmt.Sprintf("Route %d – %s – %s", n, summary, duration)
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

// Decode turns an encoded polyline into a path of lon/lat points.
func Decode(encoded string) (orb.LineString, error) {
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("decode polyline: %d trailing bytes", len(rest))
	}
	ls := make(orb.LineString, len(coords))
	for i, c := range coords {
		ls[i] = orb.Point{c[1], c[0]}
	}
	return ls, nil
}
