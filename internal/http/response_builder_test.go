package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	err := NewJSONResponse().
		Status(http.StatusCreated).
		Data(map[string]int{"month": 5}).
		Write(w)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var got map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got["month"] != 5 {
		t.Errorf("body = %v", got)
	}
}

func TestJSONResponseBuilder_Headers(t *testing.T) {
	w := httptest.NewRecorder()

	_ = NewJSONResponse().
		Header("ETag", `"abc"`).
		Header("Cache-Control", "no-cache").
		Write(w)

	if w.Header().Get("ETag") != `"abc"` {
		t.Errorf("ETag = %q", w.Header().Get("ETag"))
	}
	if w.Header().Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q", w.Header().Get("Cache-Control"))
	}
	if w.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", w.Body.String())
	}
}

func TestJSONResponseBuilder_Error(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSONError(w, "Monthly salary is required", http.StatusBadRequest)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusBadRequest)
	}
	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got["error"] != "Monthly salary is required" {
		t.Errorf("error = %q", got["error"])
	}
}

func TestJSONResponseBuilder_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	err := NewJSONResponse().Data(map[string]any{"bad": make(chan int)}).Write(w)
	if err == nil {
		t.Fatal("expected encode error")
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status code = %d, want 500", w.Code)
	}
}
