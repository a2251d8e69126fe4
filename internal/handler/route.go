package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tanpredict/internal/directions"
	"tanpredict/internal/geo"
	"tanpredict/internal/route"
	"tanpredict/internal/templates"
)

// Route serves the route planner. With no origin or destination it shows the
// empty form; otherwise it resolves the query and draws the selected option.
func (h *Handler) Route(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	form := templates.RouteForm{
		Origin:      strings.TrimSpace(q.Get("origin")),
		Destination: strings.TrimSpace(q.Get("destination")),
		Mode:        q.Get("mode"),
		Date:        q.Get("date"),
		Time:        q.Get("time"),
	}
	if form.Mode == "" {
		form.Mode = string(directions.Driving)
	}
	page := h.page("Route", "/route")
	page.WithMap = true
	data := templates.RouteData{Page: page, Form: form, Modes: modeNames()}

	if form.Origin == "" && form.Destination == "" {
		h.render(w, r, http.StatusOK, templates.RoutePage(data))
		return
	}

	req, err := routeRequest(form, time.Now())
	if err != nil {
		data.Error = err.Error()
		h.render(w, r, http.StatusBadRequest, templates.RoutePage(data))
		return
	}

	res, err := h.routes.Resolve(r.Context(), req)
	if err != nil {
		data.Error = err.Error()
		status := http.StatusBadGateway
		var se *route.StatusError
		if errors.As(err, &se) {
			status = http.StatusOK
			h.logger.Warn("directions status", "status", se.Status, "origin", req.Origin, "destination", req.Destination)
		} else {
			h.logger.Error("resolving route", "error", err)
		}
		h.render(w, r, status, templates.RoutePage(data))
		return
	}

	n := 1
	if s := q.Get("option"); s != "" {
		if n, err = strconv.Atoi(s); err != nil {
			n = 0
		}
	}
	view, err := routeView(res, n, q)
	if err != nil {
		data.Error = err.Error()
		h.render(w, r, http.StatusBadRequest, templates.RoutePage(data))
		return
	}
	data.Result = view
	h.render(w, r, http.StatusOK, templates.RoutePage(data))
}

func modeNames() []string {
	out := make([]string, len(directions.Modes))
	for i, m := range directions.Modes {
		out[i] = string(m)
	}
	return out
}

// routeRequest validates the form. Transit departures default to now when
// date and time are both empty.
func routeRequest(form templates.RouteForm, now time.Time) (route.Request, error) {
	mode, err := directions.ParseMode(form.Mode)
	if err != nil {
		return route.Request{}, err
	}
	if form.Origin == "" || form.Destination == "" {
		return route.Request{}, fmt.Errorf("origin and destination are required")
	}
	req := route.Request{Origin: form.Origin, Destination: form.Destination, Mode: mode}
	if mode == directions.Transit {
		if req.Departure, err = parseDateTime(form.Date, form.Time, now); err != nil {
			return route.Request{}, err
		}
	}
	return req, nil
}

// parseDateTime reads a YYYY-MM-DD date and HH:MM time in local time.
// A missing date means today; a missing time means now.
func parseDateTime(date, clock string, now time.Time) (time.Time, error) {
	if date == "" && clock == "" {
		return now, nil
	}
	if date == "" {
		date = now.Format("2006-01-02")
	}
	if clock == "" {
		clock = now.Format("15:04")
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/time %q %q", date, clock)
	}
	return t, nil
}

func routeView(res *route.Result, n int, q url.Values) (*templates.RouteView, error) {
	opt, err := res.Option(n)
	if err != nil {
		return nil, err
	}
	gj, err := res.GeoJSON(n)
	if err != nil {
		return nil, fmt.Errorf("draw route: %w", err)
	}
	view := &templates.RouteView{
		Distance:     opt.Distance,
		Duration:     opt.Duration,
		StraightLine: geo.FormatKm(res.StraightLine()),
		Duplicates:   res.Duplicates,
		GeoJSON:      string(gj),
	}
	if opt.PathMeters > 0 {
		view.PathLength = geo.FormatKm(opt.PathMeters)
	}
	if res.Transit() {
		for _, o := range res.Options {
			link := url.Values{}
			for k, v := range q {
				link[k] = v
			}
			link.Set("option", strconv.Itoa(o.Number))
			view.Options = append(view.Options, templates.RouteOption{
				Label:    o.Label,
				Href:     "/route?" + link.Encode(),
				Selected: o.Number == n,
			})
		}
	}
	for _, s := range opt.Steps {
		view.Steps = append(view.Steps, templates.TransitStep{
			Line:     s.Line,
			Vehicle:  s.Vehicle,
			From:     s.From,
			To:       s.To,
			Stops:    s.Stops,
			Headsign: s.Headsign,
		})
	}
	return view, nil
}
