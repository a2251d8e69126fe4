package handler

import (
	"tanpredict/internal/realtime"
	"tanpredict/internal/templates"
)

// alertsForStop returns active feed alerts for a stop code.
func (h *Handler) alertsForStop(stopCode string) []templates.AlertDisplay {
	if h.rt == nil || stopCode == "" {
		return nil
	}
	return toDisplay(h.rt.AlertsForStop(stopCode))
}

// alertsForLine returns active feed alerts for a line number.
func (h *Handler) alertsForLine(line string) []templates.AlertDisplay {
	if h.rt == nil || line == "" {
		return nil
	}
	return toDisplay(h.rt.AlertsForLine(line))
}

func toDisplay(alerts []realtime.Alert) []templates.AlertDisplay {
	var out []templates.AlertDisplay
	for _, a := range alerts {
		if alertExists(out, a.HeaderText) {
			continue
		}
		out = append(out, templates.AlertDisplay{
			HeaderText: a.HeaderText,
			DescText:   a.DescText,
			Effect:     realtime.FormatAlertEffect(a.Effect),
		})
	}
	return out
}

func alertExists(alerts []templates.AlertDisplay, text string) bool {
	for _, a := range alerts {
		if a.HeaderText == text {
			return true
		}
	}
	return false
}
