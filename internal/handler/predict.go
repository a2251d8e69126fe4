package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tanpredict/internal/dataprep"
	"tanpredict/internal/forest"
	"tanpredict/internal/model"
	"tanpredict/internal/templates"
)

// Predict serves the prediction form. GET shows it with the trained
// vocabularies; POST also runs the chosen model.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	data := h.predictData(templates.PredictForm{
		Target: dataprep.ColWaitTime,
		Date:   now.Format("2006-01-02"),
		Time:   now.Format("15:04"),
	})
	if r.Method != http.MethodPost {
		h.render(w, r, http.StatusOK, templates.PredictPage(data))
		return
	}

	if err := r.ParseForm(); err != nil {
		data.Error = "invalid form"
		h.render(w, r, http.StatusBadRequest, templates.PredictPage(data))
		return
	}
	form := templates.PredictForm{
		Target:        r.PostForm.Get("target"),
		StopCode:      r.PostForm.Get("stop"),
		Direction:     r.PostForm.Get("direction"),
		Terminus:      r.PostForm.Get("terminus"),
		Line:          r.PostForm.Get("line"),
		LineType:      r.PostForm.Get("line_type"),
		Mode:          r.PostForm.Get("mode"),
		LastDeparture: r.PostForm.Get("last_departure") != "",
		RealTime:      r.PostForm.Get("real_time") != "",
		Incident:      r.PostForm.Get("incident") != "",
		Date:          r.PostForm.Get("date"),
		Time:          r.PostForm.Get("time"),
	}
	data = h.predictData(form)
	data.Alerts = h.alertsForLine(form.Line)

	req, err := predictRequest(form, now)
	if err != nil {
		data.Error = err.Error()
		h.render(w, r, http.StatusBadRequest, templates.PredictPage(data))
		return
	}
	pred, err := h.pipeline.Predict(req)
	if err != nil {
		data.Error = err.Error()
		h.render(w, r, predictStatus(err), templates.PredictPage(data))
		return
	}
	h.logger.Info("prediction", "target", req.Target, "stop", req.StopCode, "line", req.Line, "value", pred.Value)
	data.Result = &templates.PredictionView{
		Label:     pred.Target.Label,
		Answer:    answer(pred),
		ScoreName: pred.ScoreName,
		Score:     formatScore(pred.Target.Kind, pred.Score),
	}
	h.render(w, r, http.StatusOK, templates.PredictPage(data))
}

func (h *Handler) predictData(form templates.PredictForm) templates.PredictData {
	data := templates.PredictData{
		Page:       h.page("Predict", "/predict"),
		Form:       form,
		Stops:      h.pipeline.Vocabulary(dataprep.ColStopCode),
		Termini:    h.pipeline.Vocabulary(dataprep.ColTerminus),
		Lines:      h.pipeline.Vocabulary(dataprep.ColLine),
		LineTypes:  h.pipeline.Vocabulary(dataprep.ColLineType),
		Modes:      h.pipeline.Vocabulary(dataprep.ColMode),
		Directions: h.pipeline.Directions(),
	}
	for _, t := range model.Targets {
		data.Targets = append(data.Targets, templates.TargetOption{Column: t.Column, Label: t.Label})
	}
	return data
}

func predictRequest(form templates.PredictForm, now time.Time) (model.Request, error) {
	if _, ok := model.LookupTarget(form.Target); !ok {
		return model.Request{}, fmt.Errorf("unknown prediction target %q", form.Target)
	}
	dir, err := strconv.Atoi(strings.TrimSpace(form.Direction))
	if err != nil {
		return model.Request{}, fmt.Errorf("invalid direction %q", form.Direction)
	}
	at, err := parseDateTime(form.Date, form.Time, now)
	if err != nil {
		return model.Request{}, err
	}
	return model.Request{
		Target:        form.Target,
		StopCode:      form.StopCode,
		Direction:     dir,
		Terminus:      form.Terminus,
		Line:          form.Line,
		LineType:      form.LineType,
		Mode:          form.Mode,
		LastDeparture: form.LastDeparture,
		RealTime:      form.RealTime,
		Incident:      form.Incident,
		At:            at,
	}, nil
}

// predictStatus maps inference errors to a status code. Values the encoders
// never saw are the caller's fault.
func predictStatus(err error) int {
	if errors.Is(err, dataprep.ErrUnknownValue) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func answer(p *model.Prediction) string {
	if p.Target.Kind == forest.Regression {
		return fmt.Sprintf("%.1f min", p.Value)
	}
	if p.Positive() {
		return "Yes"
	}
	return "No"
}

type apiRequest struct {
	Target        string    `json:"target"`
	StopCode      string    `json:"stop"`
	Direction     int       `json:"direction"`
	Terminus      string    `json:"terminus"`
	Line          string    `json:"line"`
	LineType      string    `json:"line_type"`
	Mode          string    `json:"mode"`
	LastDeparture bool      `json:"last_departure"`
	RealTime      bool      `json:"real_time"`
	Incident      bool      `json:"incident"`
	At            time.Time `json:"at"` // zero means now
}

type apiResponse struct {
	Target    string  `json:"target"`
	Label     string  `json:"label"`
	Value     float64 `json:"value"`
	Positive  *bool   `json:"positive,omitempty"` // classifiers only
	Score     float64 `json:"score"`
	ScoreName string  `json:"score_name"`
}

type apiError struct {
	Error string `json:"error"`
}

// APIPredict is the JSON form of Predict.
func (h *Handler) APIPredict(w http.ResponseWriter, r *http.Request) {
	var in apiRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if _, ok := model.LookupTarget(in.Target); !ok {
		writeJSON(w, http.StatusBadRequest, apiError{Error: fmt.Sprintf("unknown prediction target %q", in.Target)})
		return
	}
	if in.At.IsZero() {
		in.At = time.Now()
	}

	pred, err := h.pipeline.Predict(model.Request(in))
	if err != nil {
		writeJSON(w, predictStatus(err), apiError{Error: err.Error()})
		return
	}
	out := apiResponse{
		Target:    pred.Target.Column,
		Label:     pred.Target.Label,
		Value:     pred.Value,
		Score:     pred.Score,
		ScoreName: pred.ScoreName,
	}
	if pred.Target.Kind == forest.Classification {
		pos := pred.Positive()
		out.Positive = &pos
	}
	writeJSON(w, http.StatusOK, out)
}
