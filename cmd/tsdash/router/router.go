// Package router configures the HTTP routes of the dashboard.
//
// Routes configured:
//   - POST /upload - Analyse an uploaded CSV or Excel file (multipart field "file")
//   - GET  /sample - Default values of the sample form
//   - POST /sample - Generate and analyse an ARMA sample
//   - POST /sample/random - Analyse the default 100-day ARMA(1, 1) sample
//   - POST /import - Import and analyse a series from a remote source (when enabled)
//   - POST /model - Refit an ARIMA(p, d, q) model on a loaded series
//   - GET  /ws/model - Websocket variant of /model, one reply per message
//   - GET  /sessions/{id} - A loaded series
//   - GET  /results/{id} - Prediction table of a session as CSV
//   - GET  /plots/{name} - A rendered SVG plot
//   - GET  /server_timeout - Informational reply for requests that ran too long
//   - GET  /healthz - Health check endpoint
//   - GET  /metrics - Prometheus metrics endpoint
//
// Failures the user can act on are answered with {"error", "kind"} and the
// status of their kind, which is 200 for input problems so the form can
// display the message in place. Anything else is a 500.
package router

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/HatiCode/tsdash/pkg/analysis"
	"github.com/HatiCode/tsdash/pkg/httpx"
	"github.com/HatiCode/tsdash/pkg/models"
	"github.com/HatiCode/tsdash/pkg/plotting"
	"github.com/HatiCode/tsdash/pkg/sample"
	"github.com/HatiCode/tsdash/pkg/storage"
)

// Service runs the analysis pipeline behind the routes.
type Service interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*analysis.Result, error)
	Sample(ctx context.Context, p sample.Params) (*analysis.Result, error)
	RandomSample(ctx context.Context) (*analysis.Result, error)
	Import(ctx context.Context, req ImportRequest) (*analysis.Result, error)
	Refit(ctx context.Context, sessionID string, order models.Order) (*RefitView, error)
	Session(ctx context.Context, id string) (storage.Session, error)
	// ResultsFile returns the path of the results CSV of a session.
	ResultsFile(ctx context.Context, id string) (string, error)
	PlotPath(name string) (string, bool)
	Ready(ctx context.Context) error
}

// ImportRequest asks for a series from a remote metrics source.
type ImportRequest struct {
	Adapter string
	Config  map[string]string
	Window  time.Duration
	Step    time.Duration
}

// RefitView is the reply to a refit: the forecast and decomposition
// figures plus the fitted model.
type RefitView struct {
	Session    string             `json:"session"`
	Forecast   *plotting.Figure   `json:"forecast"`
	Components *plotting.Figure   `json:"components"`
	Model      analysis.ModelInfo `json:"model"`
	Interval   string             `json:"interval"`
}

// Options tunes the routes.
type Options struct {
	MaxUploadBytes int64
	// Limiter guards the fitting routes. Nil disables rate limiting.
	Limiter       *rate.Limiter
	ImportEnabled bool
	// Gatherer backs /metrics. Nil uses the default gatherer.
	Gatherer prometheus.Gatherer
	// Now dates the sample form defaults.
	Now func() time.Time
}

type handler struct {
	svc      Service
	opts     Options
	validate *validate
	logger   *slog.Logger
}

// New configures the dashboard routes.
func New(svc Service, opts Options, logger *slog.Logger) http.Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	h := &handler{svc: svc, opts: opts, validate: newValidate(), logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(httpx.LoggingMiddleware(logger))
	r.Use(httpx.RecoveryMiddleware(logger))

	r.Get("/healthz", httpx.HealthHandlerWithCheck(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return svc.Ready(ctx)
	}))
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/server_timeout", h.serverTimeout)

	r.Get("/sample", h.sampleDefaults)
	r.Get("/sessions/{id}", h.getSession)
	r.Get("/results/{id}", h.getResults)
	r.Get("/plots/{name}", h.getPlot)

	r.Group(func(r chi.Router) {
		r.Use(httpx.RateLimitMiddleware(opts.Limiter))

		r.Post("/upload", h.upload)
		r.Post("/sample", h.sample)
		r.Post("/sample/random", h.randomSample)
		r.Post("/model", h.refit)
		r.Get("/ws/model", h.refitSocket)
		if opts.ImportEnabled {
			r.Post("/import", h.importSeries)
		}
	})

	return r
}

// writeResult answers with the result or with the failure err describes.
func (h *handler) writeResult(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusOK, v)
}

func (h *handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, body := failureBody(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	httpx.WriteJSON(w, r, status, body)
}
