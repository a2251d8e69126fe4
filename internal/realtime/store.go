package realtime

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Period is a window during which an alert applies. A zero bound is open.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	if !p.Start.IsZero() && t.Before(p.Start) {
		return false
	}
	if !p.End.IsZero() && !t.Before(p.End) {
		return false
	}
	return true
}

// Alert is one service alert from the feed.
type Alert struct {
	ID         string
	HeaderText string
	DescText   string
	RouteIDs   []string // TAN line numbers
	StopIDs    []string // TAN platform codes, e.g. "COMM2"
	Effect     string   // GTFS-RT effect name, e.g. "DETOUR"
	Cause      string
	Active     []Period // empty means always active
}

// ActiveAt reports whether the alert applies at t.
func (a Alert) ActiveAt(t time.Time) bool {
	if len(a.Active) == 0 {
		return true
	}
	for _, p := range a.Active {
		if p.Contains(t) {
			return true
		}
	}
	return false
}

// Store holds the latest alerts, indexed by line and stop area.
type Store struct {
	mu        sync.RWMutex
	alerts    []Alert
	byLine    map[string][]int // lower-case line -> alert positions
	byArea    map[string][]int // stop area ("COMM") -> alert positions
	byStop    map[string][]int // platform code ("COMM2") -> alert positions
	updatedAt time.Time
	now       func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// SetAlerts replaces all alerts and rebuilds the indexes.
func (s *Store) SetAlerts(alerts []Alert) {
	byLine := make(map[string][]int)
	byArea := make(map[string][]int)
	byStop := make(map[string][]int)
	for i, a := range alerts {
		for _, r := range a.RouteIDs {
			k := strings.ToLower(r)
			byLine[k] = appendOnce(byLine[k], i)
		}
		for _, sid := range a.StopIDs {
			byStop[sid] = appendOnce(byStop[sid], i)
			if area := stopArea(sid); area != sid {
				byArea[area] = appendOnce(byArea[area], i)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = alerts
	s.byLine, s.byArea, s.byStop = byLine, byArea, byStop
	s.updatedAt = s.now()
}

// UpdatedAt returns when the alerts were last replaced.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// AlertsForLine returns the active alerts on a line (case-insensitive).
func (s *Store) AlertsForLine(line string) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active(s.byLine[strings.ToLower(line)])
}

// AlertsForStop returns the active alerts on a platform code, or on any
// platform of a stop area code ("COMM" matches "COMM1" and "COMM2").
func (s *Store) AlertsForStop(code string) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := append(append([]int(nil), s.byStop[code]...), s.byArea[code]...)
	slices.Sort(idx)
	return s.active(slices.Compact(idx))
}

// AllAlerts returns every active alert.
func (s *Store) AllAlerts() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := make([]int, len(s.alerts))
	for i := range idx {
		idx[i] = i
	}
	return s.active(idx)
}

func (s *Store) active(idx []int) []Alert {
	now := s.now()
	var out []Alert
	for _, i := range idx {
		if a := s.alerts[i]; a.ActiveAt(now) {
			out = append(out, a)
		}
	}
	return out
}

// stopArea strips the trailing platform number from a TAN stop code.
func stopArea(code string) string {
	end := len(code)
	for end > 0 && code[end-1] >= '0' && code[end-1] <= '9' {
		end--
	}
	if end == 0 {
		return code
	}
	return code[:end]
}

func appendOnce(s []int, i int) []int {
	if n := len(s); n > 0 && s[n-1] == i {
		return s
	}
	return append(s, i)
}
