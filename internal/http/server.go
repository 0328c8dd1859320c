package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"time"

	"budgetcast/internal/config"
	"budgetcast/internal/core"
	"budgetcast/internal/log"
	"budgetcast/internal/services"
	appweb "budgetcast/web"
)

const requestIDHeader = "X-Request-ID"

// ForecastRunner is the part of the forecast service the HTTP layer drives.
type ForecastRunner interface {
	Run(ctx context.Context, req services.Request) (services.Result, error)
	RecentRuns(ctx context.Context, limit int) ([]core.RunSummary, error)
	Ready(ctx context.Context) error
}

// Options configures the HTTP server.
type Options struct {
	Addr               string
	MaxUploadBytes     int64
	RateLimitPerMinute int
	DefaultMonths      int
	MaxMonths          int
}

// OptionsFromConfig derives server options from the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Addr:               ":" + cfg.Port,
		MaxUploadBytes:     cfg.MaxUploadBytes,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		DefaultMonths:      cfg.DefaultForecastMonths,
		MaxMonths:          cfg.MaxForecastMonths,
	}
}

type Server struct {
	http.Server
	opts       Options
	runner     ForecastRunner
	logger     *log.Logger
	structured *log.StructuredLogger
	templates  *template.Template
	limiter    *rateLimiter
	metrics    *securityMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes, templates and middleware, returning a
// ready-to-run server.
func NewServer(opts Options, runner ForecastRunner, logger *log.Logger) (*Server, error) {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 16 << 20
	}
	if opts.DefaultMonths <= 0 {
		opts.DefaultMonths = core.DefaultForecastMonths
	}
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}

	s := &Server{
		opts:       opts,
		runner:     runner,
		logger:     logger,
		structured: log.NewStructuredLogger(logger),
		templates:  t,
		limiter:    newRateLimiter(opts.RateLimitPerMinute),
		metrics:    &securityMetrics{},
	}

	mux := http.NewServeMux()
	staticHandler := http.StripPrefix("/static/", http.FileServer(http.FS(static)))
	mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		staticHandler.ServeHTTP(w, r)
	}))
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/api/forecast", s.handleForecast)
	mux.HandleFunc("/api/runs", s.handleRuns)

	var handler http.Handler = mux
	handler = s.withRequestLifecycle(handler)
	handler = log.RequestIDMiddleware(func(r *http.Request) string { return r.Header.Get(requestIDHeader) })(handler)
	handler = withRequestID(handler)
	handler = log.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// withRequestID assigns every request an ID, reusing a well-formed incoming
// X-Request-ID, and echoes it on the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := requestIDFrom(r)
		r.Header.Set(requestIDHeader, requestID)
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r)
	})
}

// withRequestLifecycle adds security headers, suspicious request detection,
// rate limiting of POST requests, panic recovery and request logging.
func (s *Server) withRequestLifecycle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		requestID := r.Header.Get(requestIDHeader)
		clientIP := extractClientIP(r)

		s.structured.LogHTTPStart(ctx, r, requestID, clientIP)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		defer func() {
			if rec := recover(); rec != nil {
				err := core.Internal(fmt.Errorf("panic serving %s: %v", r.URL.Path, rec))
				s.structured.LogError(ctx, "Recovered from handler panic", err, log.ComponentHTTP, "serve", log.NewFields().WithRequestID(requestID))
				if !rw.wroteHeader {
					writeJSONError(rw, err.Message, http.StatusInternalServerError)
				}
			}
			s.structured.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), requestID, clientIP)
		}()

		setSecurityHeaders(rw.Header())

		if detectSuspiciousRequest(r, s.metrics) {
			fields := log.NewFields().
				WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), "").
				WithRequestID(requestID).
				WithClientIP(clientIP)
			s.logger.WithComponent(log.ComponentSecurity).WarnContext(ctx, "Suspicious request detected", fields.ToSlice()...)
		}

		if r.Method == http.MethodPost {
			if ok, retryAfter := s.limiter.allow(clientIP, s.metrics); !ok {
				fields := log.NewFields().WithRequestID(requestID).WithClientIP(clientIP)
				s.logger.WithComponent(log.ComponentRateLimit).WarnContext(ctx, "Rate limit exceeded", fields.ToSlice()...)
				rw.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
				writeJSONError(rw, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
		}

		next.ServeHTTP(rw, r)
	})
}

// Shutdown gracefully shuts down the server and its limiter state.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		rateLimitHits, oversized, suspicious := s.metrics.snapshot()
		s.logger.InfoContext(ctx, "HTTP server shutting down",
			log.FieldOperation, log.OpShutdown,
			"rate_limit_hits", rateLimitHits,
			"oversized_uploads", oversized,
			"suspicious_requests", suspicious)

		s.limiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
