// Package http provides HTTP server and handler implementations.
//
// This file turns a forecast upload into a services.Request. It only collects
// fields; validation and its ordering belong to the forecast service.

package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"budgetcast/internal/core"
	"budgetcast/internal/services"
)

const (
	fieldSalary  = "salary"
	fieldHorizon = "forecast_months"
	fieldFile    = "csv_file"

	maxFormMemory = 8 << 20
	sniffLen      = 512
)

// errUploadTooLarge is returned when the request body exceeds the upload limit.
var errUploadTooLarge = errors.New("request body too large")

// parseForecastRequest reads the multipart (or urlencoded) form of r. The
// returned cleanup func removes any temporary files and must always be called.
func parseForecastRequest(w http.ResponseWriter, r *http.Request, maxBytes int64) (services.Request, func(), error) {
	cleanup := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	err := r.ParseMultipartForm(min(maxBytes, maxFormMemory))
	switch {
	case err == nil:
		form := r.MultipartForm
		cleanup = func() { _ = form.RemoveAll() }
	case errors.Is(err, http.ErrNotMultipart):
		if err := r.ParseForm(); err != nil {
			return services.Request{}, cleanup, formError(err)
		}
	default:
		return services.Request{}, cleanup, formError(err)
	}

	var req services.Request
	if values, ok := r.PostForm[fieldSalary]; ok && len(values) > 0 {
		req.Salary, req.SalarySet = values[0], true
	}
	if values, ok := r.PostForm[fieldHorizon]; ok && len(values) > 0 {
		req.Horizon, req.HorizonSet = values[0], true
	}

	file, header, err := formFile(r)
	switch {
	case err == nil:
		req.File = newSniffingReader(file)
		req.Filename = header.Filename
		req.FileSet = true
	case errors.Is(err, http.ErrMissingFile):
		// A browser submits an empty file input as a plain field with no filename.
		if values, ok := r.PostForm[fieldFile]; ok && len(values) > 0 {
			req.File = strings.NewReader(values[0])
			req.FileSet = true
		}
	default:
		return services.Request{}, cleanup, formError(err)
	}

	return req, cleanup, nil
}

func formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if r.MultipartForm == nil || r.MultipartForm.File == nil {
		return nil, nil, http.ErrMissingFile
	}
	return r.FormFile(fieldFile)
}

func formError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		return errUploadTooLarge
	}
	return &core.Error{Kind: core.KindInvalidFile, Message: "Invalid form data", Err: err}
}

// sniffingReader rejects uploads whose leading bytes identify a known binary
// format. The check runs on the first Read so it surfaces while the CSV is
// being decoded, after the form fields have been validated.
type sniffingReader struct {
	src     io.Reader
	checked bool
	err     error
}

func newSniffingReader(r io.Reader) *sniffingReader {
	return &sniffingReader{src: r}
}

func (s *sniffingReader) Read(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if !s.checked {
		s.checked = true
		head := make([]byte, sniffLen)
		n, err := io.ReadFull(s.src, head)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			s.err = err
			return 0, err
		}
		head = head[:n]
		if contentType := http.DetectContentType(head); !allowedContentType(contentType) {
			s.err = fmt.Errorf("file type %s is not allowed", contentType)
			return 0, s.err
		}
		s.src = io.MultiReader(strings.NewReader(string(head)), s.src)
	}
	return s.src.Read(p)
}

// allowedContentType accepts text and the generic binary fallback, which
// ingestion inspects byte by byte.
func allowedContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "text/") ||
		strings.HasPrefix(contentType, "application/octet-stream")
}
