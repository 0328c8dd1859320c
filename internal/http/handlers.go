package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"budgetcast/internal/core"
	"budgetcast/internal/log"
	"budgetcast/internal/services"
)

const readyTimeout = 2 * time.Second

// indexData feeds the upload form defaults into the page template.
type indexData struct {
	DefaultMonths int
	MaxMonths     int
	MaxUploadMB   int64
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data := indexData{
		DefaultMonths: s.opts.DefaultMonths,
		MaxMonths:     s.opts.MaxMonths,
		MaxUploadMB:   max(s.opts.MaxUploadBytes>>20, 1),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Index template execution failed", log.FieldError, err.Error(), "template", "index.html")
		writeJSONError(w, "Server error: page could not be rendered", http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = NewJSONResponse().
		Header("Cache-Control", "no-store").
		Data(map[string]string{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		}).
		Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.runner.Ready(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
		_ = NewJSONResponse().
			Status(http.StatusServiceUnavailable).
			Header("Cache-Control", "no-store").
			Data(map[string]string{"status": "unavailable", "error": err.Error()}).
			Write(w)
		return
	}
	_ = NewJSONResponse().
		Header("Cache-Control", "no-store").
		Data(map[string]string{"status": "ready"}).
		Write(w)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, cleanup, err := parseForecastRequest(w, r, s.opts.MaxUploadBytes)
	defer cleanup()
	if err != nil {
		s.writeParseError(w, r, err)
		return
	}

	res, err := s.runner.Run(r.Context(), req)
	if err != nil {
		ce := core.Classify(err)
		writeJSONError(w, ce.Message, statusForError(ce))
		return
	}

	_ = NewJSONResponse().
		Header("X-Forecast-Run-ID", res.RunID).
		Header("Cache-Control", "no-store").
		Data(res.Forecast).
		Write(w)
}

func (s *Server) writeParseError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errUploadTooLarge) {
		atomic.AddInt64(&s.metrics.oversizedUploads, 1)
		log.FromContext(r.Context()).WarnContext(r.Context(), "Upload exceeds size limit", "max_bytes", s.opts.MaxUploadBytes)
		writeJSONError(w, fmt.Sprintf("File too large (maximum %d MB)", max(s.opts.MaxUploadBytes>>20, 1)), http.StatusRequestEntityTooLarge)
		return
	}
	ce := core.Classify(err)
	log.FromContext(r.Context()).DebugContext(r.Context(), "Forecast form rejected",
		log.NewFields().WithErrorKind(string(ce.Kind)).WithError(ce).WithOperation(log.OpParse).ToSlice()...)
	writeJSONError(w, ce.Message, statusForError(ce))
}

// runsResponse is the body of GET /api/runs.
type runsResponse struct {
	Runs  []core.RunSummary `json:"runs"`
	Count int               `json:"count"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := parseLimit(r)
	runs, err := s.runner.RecentRuns(r.Context(), limit)
	if err != nil {
		if errors.Is(err, services.ErrJournalUnavailable) {
			writeJSONError(w, "Run journal is not enabled", http.StatusNotFound)
			return
		}
		fields := log.NewFields()
		fields["limit"] = limit
		s.structured.LogError(r.Context(), "Failed to list forecast runs", err, log.ComponentHTTP, log.OpList, fields)
		writeJSONError(w, "Server error: runs could not be listed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []core.RunSummary{}
	}

	body := runsResponse{Runs: runs, Count: len(runs)}
	etag, err := generateETag(body)
	if err != nil {
		s.structured.LogError(r.Context(), "Failed to compute ETag", err, log.ComponentHTTP, log.OpList, nil)
		writeJSONError(w, "Server error: runs could not be listed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	_ = NewJSONResponse().Data(body).Write(w)
}
