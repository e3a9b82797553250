package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ytsummarizer/internal/config"
	"ytsummarizer/internal/model"
	"ytsummarizer/internal/pipeline"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type PipelineService interface {
	Process(ctx context.Context, input string) pipeline.Result
}

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
	IncSummary()
	IncPipelineFailure(stage string)
}

type Dependencies struct {
	Pipeline       PipelineService
	Metrics        MetricsObserver
	MetricsHandler http.Handler
}

type server struct {
	cfg          config.Config
	logger       *slog.Logger
	pipeline     PipelineService
	metrics      MetricsObserver
	metricsRoute http.Handler
	markdown     *markdownRenderer
}

type ctxKey string

const (
	serviceName      = "ytsummarizer"
	requestIDHeader  = "X-Request-Id"
	requestIDContext = ctxKey("request_id")
)

func NewServer(cfg config.Config, logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Pipeline == nil {
		panic("web: pipeline dependency is required")
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		pipeline:     deps.Pipeline,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
		markdown:     newMarkdownRenderer(),
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/", s.handleIndex)
	r.Post("/", s.handleSummarizeForm)
	r.Post("/api/summaries", s.handleSummarizeJSON)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}

	return r
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{OK: true})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.ReadyResponse{OK: true, ServiceName: serviceName, Model: s.cfg.ModelName})
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, http.StatusOK, pageData{})
}

func (s *server) handleSummarizeForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxInputBytes)
	if err := r.ParseForm(); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.renderPage(w, r, http.StatusRequestEntityTooLarge, pageData{Notice: fmt.Sprintf("Input exceeds %d bytes.", s.cfg.MaxInputBytes)})
			return
		}
		s.renderPage(w, r, http.StatusBadRequest, pageData{Notice: "Invalid form submission."})
		return
	}

	input := strings.TrimSpace(r.PostFormValue("input"))
	if input == "" {
		s.renderPage(w, r, http.StatusBadRequest, pageData{Notice: "Enter a YouTube video ID or URL."})
		return
	}

	result := s.run(r.Context(), input)
	data := pageData{Input: input, VideoID: result.VideoID}
	if result.Failed() {
		data.Error = result.Text()
		data.Alert = result.Failure.Stage == pipeline.StageTranscript
	} else {
		data.Summary = result.Summary
		html, err := s.markdown.Render(result.Summary)
		if err != nil {
			s.logger.Warn("markdown render failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		} else {
			data.SummaryHTML = html
		}
	}
	s.renderPage(w, r, http.StatusOK, data)
}

func (s *server) handleSummarizeJSON(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxInputBytes)
	defer func() { _ = r.Body.Close() }()

	var req model.SummaryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return
	}
	if err := ensureBodyFullyConsumed(decoder); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return
	}
	input := strings.TrimSpace(req.Input)
	if input == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "input is required", nil)
		return
	}

	result := s.run(r.Context(), input)
	if result.Failed() {
		s.writeFailure(w, r, result)
		return
	}

	writeJSON(w, http.StatusOK, model.SummaryResponse{
		VideoID: result.VideoID,
		Summary: result.Summary,
		Usage:   toModelTokenUsage(result),
		TimingsMS: model.SummaryTimings{
			Transcript: result.Timings.Transcript.Milliseconds(),
			Summary:    result.Timings.Summary.Milliseconds(),
			Total:      result.Timings.Total.Milliseconds(),
		},
	})
}

// run executes one pipeline pass and records its outcome.
func (s *server) run(ctx context.Context, input string) pipeline.Result {
	result := s.pipeline.Process(ctx, input)
	if s.metrics != nil {
		if result.Failed() {
			s.metrics.IncPipelineFailure(string(result.Failure.Stage))
		} else {
			s.metrics.IncSummary()
		}
	}
	return result
}

func (s *server) handleJSONDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", "JSON body too large", nil)
		return
	}
	s.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
}

func (s *server) writeFailure(w http.ResponseWriter, r *http.Request, result pipeline.Result) {
	code := "pipeline_failed"
	switch result.Failure.Stage {
	case pipeline.StageTranscript:
		code = "transcript_failed"
	case pipeline.StageSummary:
		code = "llm_failed"
	}

	status := http.StatusBadGateway
	switch {
	case errors.Is(result.Failure, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(result.Failure, context.Canceled):
		status = 499
	}

	if rid := requestIDFromContext(r.Context()); rid != "" {
		w.Header().Set(requestIDHeader, rid)
	}
	writeJSON(w, status, model.ErrorResponse{
		Error:     model.APIError{Code: code, Message: result.Text()},
		VideoID:   result.VideoID,
		RequestID: requestIDFromContext(r.Context()),
	})
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	if rid := requestIDFromContext(r.Context()); rid != "" {
		w.Header().Set(requestIDHeader, rid)
	}
	writeJSON(w, status, model.ErrorResponse{
		Error:     model.APIError{Code: code, Message: message, Details: details},
		RequestID: requestIDFromContext(r.Context()),
	})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = newRequestID()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		s.logger.Info("http_request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "request_id", requestIDFromContext(r.Context()), "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func ensureBodyFullyConsumed(decoder *json.Decoder) error {
	var extra any
	if err := decoder.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("multiple JSON values")
		}
		return err
	}
	return nil
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}

func newRequestID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func toModelTokenUsage(result pipeline.Result) *model.TokenUsage {
	if result.Usage == nil {
		return nil
	}
	return &model.TokenUsage{
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		TotalTokens:      result.Usage.TotalTokens,
	}
}
