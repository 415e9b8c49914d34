// Package httpapi exposes the supervisor and completion client over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"inferd/internal/manager"
	"inferd/internal/supervisor"
	"inferd/pkg/types"
)

// Service is the subset of the manager the HTTP layer depends on.
type Service interface {
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Status(ctx context.Context) types.StatusResponse
	Generate(ctx context.Context, msgs []types.Message, params types.GenerateParams) (string, error)
	Stream(ctx context.Context, msgs []types.Message, params types.GenerateParams) (manager.TokenStream, error)
}

var log zerolog.Logger = zerolog.Nop()

// SetLogger installs the package logger. Call before NewRouter.
func SetLogger(l zerolog.Logger) { log = l.With().Str("component", "httpapi").Logger() }

// NewRouter builds the chi router over svc.
func NewRouter(svc Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	r.Use(securityHeaders)

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(svc))
	r.Get("/status", handleStatus(svc))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/initialize", handleInitialize(svc))
		r.Post("/shutdown", handleShutdown(svc))
		r.Post("/generate", handleGenerate(svc))
		r.Post("/stream", handleStream(svc))
	})

	return r
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// readyz reports 200 only when the model server answers completion traffic.
func handleReadyz(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := svc.Status(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if st.State == string(supervisor.StateReady) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ready"}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "unready", "state": st.State})
	}
}

func handleStatus(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := svc.Status(r.Context())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(st)
	}
}

func handleInitialize(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Initialize(r.Context()); err != nil {
			log.Warn().Err(err).Msg("initialize failed")
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"initialized"}`))
	}
}

func handleShutdown(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Shutdown(r.Context()); err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"stopped"}`))
	}
}

func decodeGenerateRequest(w http.ResponseWriter, r *http.Request) (*types.GenerateRequest, bool) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	var req types.GenerateRequest
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, false
	}
	if len(req.Messages) == 0 {
		writeJSONError(w, http.StatusBadRequest, "messages must not be empty")
		return nil, false
	}
	return &req, true
}

func handleGenerate(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeGenerateRequest(w, r)
		if !ok {
			return
		}
		ctx, cancel := joinContexts(r.Context(), serverBaseCtx)
		defer cancel()
		content, err := svc.Generate(ctx, req.Messages, req.Params)
		if err != nil {
			log.Warn().Err(err).Msg("generate failed")
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(types.GenerateResponse{Content: content})
	}
}

type streamLine struct {
	Token string `json:"token,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}

// handleStream writes newline-delimited JSON, one token fragment per line.
func handleStream(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeGenerateRequest(w, r)
		if !ok {
			return
		}
		ctx, cancel := joinContexts(r.Context(), serverBaseCtx)
		defer cancel()

		ts, err := svc.Stream(ctx, req.Messages, req.Params)
		if err != nil {
			log.Warn().Err(err).Msg("stream setup failed")
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		defer ts.Close()

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)

		enc := json.NewEncoder(w)
		for ts.Next() {
			if err := enc.Encode(streamLine{Token: ts.Fragment()}); err != nil {
				// client went away, stop pulling tokens
				return
			}
			tokensStreamed.Inc()
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err := ts.Err(); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("stream aborted")
			_ = enc.Encode(streamLine{Error: err.Error()})
			if flusher != nil {
				flusher.Flush()
			}
			return
		}
		_ = enc.Encode(streamLine{Done: true})
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then drains
// with a bounded shutdown.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
