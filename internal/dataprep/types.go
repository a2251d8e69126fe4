package dataprep

import "time"

// StopEvent is one historical observation at a stop: which line passed in which
// direction, how long riders waited and what the real-time feed reported.
type StopEvent struct {
	StopCode      string // codeArret
	StopLabel     string // libelleArret
	Terminus      string
	Direction     int    // sens
	Line          string // numLigne
	LineType      string // typeLigne
	Mode          string // ModeTransport
	LastDeparture bool   // dernierDepart
	RealTime      bool   // tempsReel
	Incident      bool   // infotrafic
	WaitText      string // temps, e.g. "4mn"
	Date          time.Time
}

// Column names, as used by the source tables and the feature schema.
const (
	ColStopCode      = "codeArret"
	ColStopLabel     = "libelleArret"
	ColTerminus      = "terminus"
	ColDirection     = "sens"
	ColLine          = "numLigne"
	ColLineType      = "typeLigne"
	ColMode          = "ModeTransport"
	ColLastDeparture = "dernierDepart"
	ColRealTime      = "tempsReel"
	ColIncident      = "infotrafic"
	ColWaitTime      = "temps"
	ColDayOfWeek     = "jour_semaine"
	ColMinuteOfDay   = "heure_en_minutes"
)

// NominalColumns are the string columns that get a CategoricalEncoder.
var NominalColumns = []string{
	ColStopCode, ColStopLabel, ColTerminus, ColLine, ColLineType, ColMode,
}

// nominal returns the raw string value of a nominal column.
func (e StopEvent) nominal(col string) string {
	switch col {
	case ColStopCode:
		return e.StopCode
	case ColStopLabel:
		return e.StopLabel
	case ColTerminus:
		return e.Terminus
	case ColLine:
		return e.Line
	case ColLineType:
		return e.LineType
	case ColMode:
		return e.Mode
	default:
		return ""
	}
}
