package bridge

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"genbridge/internal/comfy"
	"genbridge/pkg/types"
)

// maxBodyBytes limits JSON request bodies. Generation requests carry base64
// images and masks, so the ceiling is generous.
var maxBodyBytes int64 = 64 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 64 << 20
		return
	}
	maxBodyBytes = n
}

// MuxOptions configures the HTTP surface.
type MuxOptions struct {
	CORSEnabled    bool
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// NewMux builds the bridge's HTTP handler. All API routes live under /api;
// health and metrics are also exposed at the root for probes and scrapers.
func NewMux(svc Service, opts MuxOptions) http.Handler {
	log := opts.Logger

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	r.Use(requestLogger(log))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if opts.CORSEnabled {
		origins := opts.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/connection", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, svc.Connection())
		})

		r.Post("/connection", func(w http.ResponseWriter, r *http.Request) {
			var req types.ConnectionRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			st, err := svc.Connect(r.Context(), req)
			if err != nil {
				writeJSONError(w, http.StatusBadGateway, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, st)
		})

		r.Post("/generate", func(w http.ResponseWriter, r *http.Request) {
			var req types.GenerateRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			if req.Width <= 0 || req.Height <= 0 {
				writeJSONError(w, http.StatusBadRequest, "width and height must be positive")
				return
			}
			if req.Mask != "" && req.Image == "" {
				writeJSONError(w, http.StatusBadRequest, "inpaint requires a base image")
				return
			}
			id, err := svc.Generate(r.Context(), &req)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			countJob("generate")
			writeJSON(w, http.StatusOK, types.GenerateResponse{JobID: id, Status: types.JobQueued})
		})

		r.Post("/upscale", func(w http.ResponseWriter, r *http.Request) {
			var req types.UpscaleRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			if req.Image == "" {
				writeJSONError(w, http.StatusBadRequest, "image is required")
				return
			}
			id, err := svc.Upscale(r.Context(), &req)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			countJob("upscale")
			writeJSON(w, http.StatusOK, types.GenerateResponse{JobID: id, Status: types.JobQueued})
		})

		r.Post("/custom", func(w http.ResponseWriter, r *http.Request) {
			var req types.CustomWorkflowRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			if len(req.Workflow) == 0 {
				writeJSONError(w, http.StatusBadRequest, "workflow is required")
				return
			}
			id, err := svc.Custom(r.Context(), req.Workflow)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			countJob("custom")
			writeJSON(w, http.StatusOK, types.GenerateResponse{JobID: id, Status: types.JobQueued})
		})

		r.Get("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
			st, err := svc.JobStatus(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, st)
		})

		r.Get("/jobs/{id}/images", func(w http.ResponseWriter, r *http.Request) {
			images, err := svc.JobImages(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			if len(images.Images) == 0 {
				writeJSONError(w, http.StatusNotFound, "no images generated")
				return
			}
			writeJSON(w, http.StatusOK, images)
		})

		r.Post("/jobs/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			if err := svc.Cancel(r.Context(), id); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "cancelled": true})
		})

		r.Get("/styles", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, types.StylesResponse{Styles: svc.Styles()})
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// requestLogger emits one structured line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sr := &statusRecorder{ResponseWriter: w, status: 200}
			start := time.Now()
			next.ServeHTTP(sr, r)
			ev := log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sr.status).
				Dur("dur", time.Since(start))
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				ev = ev.Str("request_id", rid)
			}
			ev.Msg("request")
		})
	}
}

// decodeJSON enforces the content type and body limit, then decodes into v.
// On failure it writes the error response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeServiceError maps well-known service errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, comfy.ErrNotConnected):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, comfy.ErrUnknownJob):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, comfy.ErrNotFinished):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone; nothing useful left to do.
		return
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
