package http

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"budgetcast/internal/core"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
	maxRequestIDLen  = 64
)

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// requestIDFrom reuses a well-formed incoming X-Request-ID or creates a new one.
func requestIDFrom(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if validRequestID(id) {
		return id
	}
	return generateRequestID()
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}

// statusForError maps a classified error to the HTTP status it is reported with.
func statusForError(err *core.Error) int {
	if err.IsClientError() {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// parseLimit reads ?limit=N, defaulting to 20 and clamping to [1, 100].
func parseLimit(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultRunsLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultRunsLimit
	}
	if n < 1 {
		return 1
	}
	if n > maxRunsLimit {
		return maxRunsLimit
	}
	return n
}

// generateETag hashes the JSON form of data.
func generateETag(data any) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data for ETag generation: %w", err)
	}
	hash := sha256.Sum256(jsonData)
	return `"` + hex.EncodeToString(hash[:]) + `"`, nil
}

// etagMatches reports whether an If-None-Match header lists etag.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	if strings.TrimSpace(header) == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}
