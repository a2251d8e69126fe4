package gtfs

import (
	"fmt"
	"strconv"
)

// Stop is a row of stops.txt.
type Stop struct {
	StopID        string `csv:"stop_id,required"`
	StopCode      string `csv:"stop_code"`
	StopName      string `csv:"stop_name"`
	StopDesc      string `csv:"stop_desc"`
	StopLat       string `csv:"stop_lat"`
	StopLon       string `csv:"stop_lon"`
	LocationType  string `csv:"location_type"`
	ParentStation string `csv:"parent_station"`
}

// Coords parses the stop's latitude and longitude.
func (s Stop) Coords() (lat, lon float64, err error) {
	lat, err = strconv.ParseFloat(s.StopLat, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("stop %s: parse stop_lat: %w", s.StopID, err)
	}
	lon, err = strconv.ParseFloat(s.StopLon, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("stop %s: parse stop_lon: %w", s.StopID, err)
	}
	return lat, lon, nil
}
