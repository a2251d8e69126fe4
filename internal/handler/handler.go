package handler

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"sort"

	"github.com/a-h/templ"

	"tanpredict/internal/config"
	"tanpredict/internal/model"
	"tanpredict/internal/realtime"
	"tanpredict/internal/route"
	"tanpredict/internal/tan"
	"tanpredict/internal/templates"
)

// Router resolves route queries.
type Router interface {
	Resolve(ctx context.Context, req route.Request) (*route.Result, error)
}

// StopStatus reports live wait times at a stop.
type StopStatus interface {
	WaitTimes(ctx context.Context, stopCode string) ([]tan.Status, error)
}

// Metadata reads the import and collection bookkeeping.
type Metadata interface {
	GetMetadata(ctx context.Context, key string) (string, error)
}

// Deps are the services the handlers read from. Alerts and Meta may be nil.
type Deps struct {
	Pipeline *model.Pipeline // fully trained, shared read-only
	Routes   Router
	Stops    StopStatus
	Alerts   *realtime.Store
	Meta     Metadata
}

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	pipeline *model.Pipeline
	routes   Router
	tan      StopStatus
	rt       *realtime.Store
	meta     Metadata
	cfg      *config.Config
	logger   *slog.Logger
	version  string // content hash of static assets, for cache busting
}

// New creates a Handler. static is the asset tree served under /static/.
func New(deps Deps, static fs.FS, cfg *config.Config, logger *slog.Logger) *Handler {
	v := computeAssetVersion(static)
	logger.Info("asset version computed", "version", v)
	return &Handler{
		pipeline: deps.Pipeline,
		routes:   deps.Routes,
		tan:      deps.Stops,
		rt:       deps.Alerts,
		meta:     deps.Meta,
		cfg:      cfg,
		logger:   logger,
		version:  v,
	}
}

// computeAssetVersion hashes all CSS and JS files in the static tree
// to produce a short version string. Changes to any file produce a new version.
func computeAssetVersion(static fs.FS) string {
	h := md5.New()
	var paths []string
	fs.WalkDir(static, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if ext := path.Ext(p); ext == ".css" || ext == ".js" {
			paths = append(paths, p)
		}
		return nil
	})
	sort.Strings(paths) // deterministic order
	for _, p := range paths {
		f, err := static.Open(p)
		if err != nil {
			continue
		}
		io.Copy(h, f)
		f.Close()
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:8]
}

// page creates a templates.Page with the asset version pre-filled.
func (h *Handler) page(title, currentPath string) templates.Page {
	return templates.Page{
		Title:        title,
		CurrentPath:  currentPath,
		AssetVersion: h.version,
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		h.logger.Error("rendering page", "path", r.URL.Path, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
