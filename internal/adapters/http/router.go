package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/job-application-tracker/internal/config"
	"github.com/kirillkom/job-application-tracker/internal/core/domain"
	"github.com/kirillkom/job-application-tracker/internal/core/ports"
	"github.com/kirillkom/job-application-tracker/internal/observability/metrics"
)

const (
	serviceName          = "api"
	maxRunRequestBytes   = 4 << 10
	defaultReviewLimit   = 50
	maxReviewLimit       = 500
	backpressureMaxQueue = 2 * time.Second
)

type Router struct {
	cfg     config.Config
	runs    ports.RunSubmitter
	reader  ports.ApplicationReader
	metrics *metrics.HTTPServerMetrics
}

// NewRouter builds the API. httpMetrics may be nil.
func NewRouter(
	cfg config.Config,
	runs ports.RunSubmitter,
	reader ports.ApplicationReader,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:     cfg,
		runs:    runs,
		reader:  reader,
		metrics: httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/runs", rt.submitRun)
	mux.HandleFunc("GET /v1/runs/{id}", rt.getRun)
	mux.HandleFunc("GET /v1/applications/{id}", rt.getApplication)
	mux.HandleFunc("GET /v1/emails/review", rt.listReview)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureMaxQueue)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitRunRequest struct {
	Limit *int `json:"limit"`
}

func (rt *Router) submitRun(w http.ResponseWriter, r *http.Request) {
	var req submitRunRequest
	body := http.MaxBytesReader(w, r.Body, maxRunRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "decode run request", err))
		return
	}

	limit := rt.cfg.FetchLimit
	if req.Limit != nil {
		limit = *req.Limit
	}

	run, err := rt.runs.Submit(r.Context(), limit)
	if err != nil {
		rt.recordSubmission(submissionResult(err))
		writeError(w, err)
		return
	}
	rt.recordSubmission("accepted")
	slog.Info("run_submitted", "request_id", requestIDFromContext(r.Context()), "run_id", run.ID, "limit", run.Limit)
	writeJSON(w, http.StatusAccepted, run)
}

func (rt *Router) getRun(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "get run", errors.New("run id is required")))
		return
	}
	run, err := rt.runs.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) getApplication(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "get application", errors.New("application id must be a positive integer")))
		return
	}
	view, err := rt.reader.GetApplication(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) listReview(w http.ResponseWriter, r *http.Request) {
	limit := defaultReviewLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxReviewLimit {
			writeError(w, domain.WrapError(domain.ErrInvalidInput, "list review", errors.New("limit must be between 1 and 500")))
			return
		}
		limit = n
	}
	emails, err := rt.reader.ListEmailsNeedingReview(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if emails == nil {
		emails = []domain.ApplicationEmail{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"emails": emails})
}

func (rt *Router) recordSubmission(result string) {
	if rt.metrics != nil {
		rt.metrics.RecordRunSubmission(serviceName, result)
	}
}

func submissionResult(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrRunInProgress):
		return "rejected"
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid"
	default:
		return "failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed", "status", status, "error", err)
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}
