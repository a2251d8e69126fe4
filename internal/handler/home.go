package handler

import (
	"context"
	"fmt"
	"net/http"

	"tanpredict/internal/forest"
	"tanpredict/internal/storage"
	"tanpredict/internal/templates"
)

// Home serves the dashboard: model scores and links to the tools.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	kept, dropped := h.pipeline.Rows()
	data := templates.HomeData{
		Page:      h.page("TAN", "/"),
		Rows:      kept,
		Dropped:   dropped,
		TrainedAt: h.pipeline.TrainedAt().Format("2006-01-02 15:04"),
		Source:    storage.EventsTable,
	}
	if h.cfg.EnrichedData {
		data.Source = storage.EnrichedTable
	}
	for _, m := range h.pipeline.Models() {
		data.Models = append(data.Models, templates.ModelScore{
			Label:     m.Target.Label,
			Kind:      m.Target.Kind.String(),
			ScoreName: m.ScoreName(),
			Score:     formatScore(m.Target.Kind, m.Score),
		})
	}
	if h.rt != nil {
		data.Alerts = len(h.rt.AllAlerts())
	}
	if h.meta != nil {
		data.ImportedAt = h.metadata(r.Context(), storage.ImportedAtKey)
		data.CollectedAt = h.metadata(r.Context(), storage.CollectedAtKey)
	}
	h.render(w, r, http.StatusOK, templates.HomePage(data))
}

// metadata returns a bookkeeping value, or "" if it cannot be read.
func (h *Handler) metadata(ctx context.Context, key string) string {
	v, err := h.meta.GetMetadata(ctx, key)
	if err != nil {
		h.logger.Warn("reading metadata", "key", key, "error", err)
		return ""
	}
	return v
}

func formatScore(kind forest.Kind, score float64) string {
	if kind == forest.Regression {
		return fmt.Sprintf("%.2f min", score)
	}
	return fmt.Sprintf("%.2f", score)
}
