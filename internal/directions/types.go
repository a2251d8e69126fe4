package directions

// Response is the Google Directions API JSON response.
type Response struct {
	Status       string  `json:"status"` // "OK", "ZERO_RESULTS", "REQUEST_DENIED", ...
	ErrorMessage string  `json:"error_message,omitempty"`
	Routes       []Route `json:"routes"`
}

// OK reports whether the API answered with status "OK".
func (r *Response) OK() bool { return r.Status == "OK" }

// Route is one itinerary.
type Route struct {
	Summary          string   `json:"summary"`
	OverviewPolyline Polyline `json:"overview_polyline"`
	Legs             []Leg    `json:"legs"`
	Warnings         []string `json:"warnings"`
	Copyrights       string   `json:"copyrights"`
}

// Polyline carries an encoded polyline (Google's algorithm, precision 5).
type Polyline struct {
	Points string `json:"points"`
}

// Leg is the part of a route between two waypoints.
type Leg struct {
	Distance      TextValue `json:"distance"`
	Duration      TextValue `json:"duration"`
	StartAddress  string    `json:"start_address"`
	EndAddress    string    `json:"end_address"`
	StartLocation LatLng    `json:"start_location"`
	EndLocation   LatLng    `json:"end_location"`
	DepartureTime *TimeText `json:"departure_time,omitempty"`
	ArrivalTime   *TimeText `json:"arrival_time,omitempty"`
	Steps         []Step    `json:"steps"`
}

// Step is one instruction within a leg.
type Step struct {
	TravelMode       string          `json:"travel_mode"` // WALKING, TRANSIT, DRIVING
	HTMLInstructions string          `json:"html_instructions"`
	Distance         TextValue       `json:"distance"`
	Duration         TextValue       `json:"duration"`
	Polyline         Polyline        `json:"polyline"`
	TransitDetails   *TransitDetails `json:"transit_details,omitempty"`
}

// TransitDetails describes a transit step.
type TransitDetails struct {
	DepartureStop Stop     `json:"departure_stop"`
	ArrivalStop   Stop     `json:"arrival_stop"`
	DepartureTime TimeText `json:"departure_time"`
	ArrivalTime   TimeText `json:"arrival_time"`
	Headsign      string   `json:"headsign"`
	NumStops      int      `json:"num_stops"`
	Line          Line     `json:"line"`
}

// Stop is a transit stop.
type Stop struct {
	Name     string `json:"name"`
	Location LatLng `json:"location"`
}

// Line is a transit line.
type Line struct {
	Name      string  `json:"name"`
	ShortName string  `json:"short_name"`
	Color     string  `json:"color"`
	Vehicle   Vehicle `json:"vehicle"`
}

// Vehicle is the kind of vehicle serving a line.
type Vehicle struct {
	Name string `json:"name"`
	Type string `json:"type"` // BUS, TRAM, SUBWAY, ...
}

// TextValue is a quantity with its display text, e.g. {"text": "25 mins", "value": 1500}.
type TextValue struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

// TimeText is a time with its display text.
type TimeText struct {
	Text     string `json:"text"`
	TimeZone string `json:"time_zone"`
	Value    int64  `json:"value"` // Unix seconds
}

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
