package handler

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"tanpredict/internal/tan"
	"tanpredict/internal/templates"
)

// StopDetail serves live wait times and active alerts for one stop code.
func (h *Handler) StopDetail(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(r.PathValue("code")))
	if code == "" {
		http.NotFound(w, r)
		return
	}

	data := templates.StopData{
		Page:     h.page(fmt.Sprintf("Stop %s", code), ""),
		StopCode: code,
		Alerts:   h.alertsForStop(code),
	}
	statuses, err := h.tan.WaitTimes(r.Context(), code)
	if err != nil {
		h.logger.Error("fetching wait times", "stop", code, "error", err)
		data.Error = "Live wait times are unavailable right now."
		h.render(w, r, http.StatusBadGateway, templates.StopPage(data))
		return
	}
	data.Lines = lineStatuses(statuses)
	h.render(w, r, http.StatusOK, templates.StopPage(data))
}

// lineStatuses converts API rows, ordered by line then direction. Rows keep
// their API order within a line and direction.
func lineStatuses(statuses []tan.Status) []templates.LineStatus {
	out := make([]templates.LineStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, templates.LineStatus{
			Line:          s.Line.Number,
			Direction:     s.Direction,
			Terminus:      s.Terminus,
			Wait:          s.WaitText,
			RealTime:      bool(s.RealTime),
			LastDeparture: bool(s.LastDeparture),
			Incident:      bool(s.Incident),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Direction < out[j].Direction
	})
	return out
}
