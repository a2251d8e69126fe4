// Package templates holds the HTML pages. Components live in the .templ
// sources; the *_templ.go files are produced from them by templ generate.
package templates

import "strconv"

// Page carries the fields every page layout needs.
type Page struct {
	Title        string
	CurrentPath  string
	AssetVersion string
	WithMap      bool // load the map library
}

var nav = []struct{ Path, Label string }{
	{"/", "Home"},
	{"/route", "Route"},
	{"/predict", "Predict"},
}

// AlertDisplay is a service alert ready for display.
type AlertDisplay struct {
	HeaderText string
	DescText   string
	Effect     string
}

// ModelScore is one trained model's summary line.
type ModelScore struct {
	Label     string
	Kind      string
	ScoreName string
	Score     string
}

// HomeData is the data for the home page.
type HomeData struct {
	Page
	Models      []ModelScore
	Rows        int
	Dropped     int
	TrainedAt   string
	Source      string // corpus table
	ImportedAt  string
	CollectedAt string
	Alerts      int
}

// RouteForm echoes the submitted route query.
type RouteForm struct {
	Origin      string
	Destination string
	Mode        string
	Date        string // YYYY-MM-DD, transit only
	Time        string // HH:MM, transit only
}

// RouteOption is one selectable itinerary.
type RouteOption struct {
	Label    string
	Href     string
	Selected bool
}

// TransitStep is one ride of the selected itinerary.
type TransitStep struct {
	Line     string
	Vehicle  string
	From     string
	To       string
	Stops    int
	Headsign string
}

// RouteView is a resolved route ready for display.
type RouteView struct {
	Distance     string
	Duration     string
	PathLength   string // length of the decoded polyline
	StraightLine string
	Duplicates   int
	Options      []RouteOption // transit alternatives; empty for standard routes
	Steps        []TransitStep
	GeoJSON      string
}

// RouteData is the data for the route page.
type RouteData struct {
	Page
	Form   RouteForm
	Modes  []string
	Error  string
	Result *RouteView // nil when there is nothing to draw
}

// PredictForm echoes the submitted prediction query.
type PredictForm struct {
	Target        string
	StopCode      string
	Direction     string
	Terminus      string
	Line          string
	LineType      string
	Mode          string
	LastDeparture bool
	RealTime      bool
	Incident      bool
	Date          string
	Time          string
}

// TargetOption is one selectable prediction target.
type TargetOption struct {
	Column string
	Label  string
}

// PredictionView is a model answer ready for display.
type PredictionView struct {
	Label     string
	Answer    string // "12.4 min" or "Yes"/"No"
	ScoreName string
	Score     string
}

// PredictData is the data for the prediction page.
type PredictData struct {
	Page
	Form       PredictForm
	Targets    []TargetOption
	Stops      []string
	Termini    []string
	Lines      []string
	LineTypes  []string
	Modes      []string
	Directions []int
	Error      string
	Result     *PredictionView
	Alerts     []AlertDisplay
}

// LineStatus is one live row of the stop page.
type LineStatus struct {
	Line          string
	Direction     int
	Terminus      string
	Wait          string
	RealTime      bool
	LastDeparture bool
	Incident      bool
}

// StopData is the data for the live stop page.
type StopData struct {
	Page
	StopCode string
	Lines    []LineStatus
	Alerts   []AlertDisplay
	Error    string
}

func orNever(s string) string {
	if s == "" {
		return "never"
	}
	return s
}

func directionOptions(dirs []int) []string {
	out := make([]string, len(dirs))
	for i, d := range dirs {
		out[i] = strconv.Itoa(d)
	}
	return out
}
