package httputil

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yeganesereshgi/Demo-Experiment/internal/testutil"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"samples": 42})

	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}
	if got := decode(t, rec)["samples"]; got != 42.0 {
		t.Errorf("samples = %v, want 42", got)
	}
}

func TestWriteJSONOK(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSONOK(rec, []string{"a"})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		msg    string
	}{
		{"error", func(w http.ResponseWriter) { WriteJSONError(w, http.StatusBadRequest, "bad key") }, http.StatusBadRequest, "bad key"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "no samples") }, http.StatusNotFound, "no samples"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, errors.New("disk full")) }, http.StatusInternalServerError, "disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			testutil.AssertStatusCode(t, rec.Code, tt.status)
			if got := decode(t, rec)["error"]; got != tt.msg {
				t.Errorf("error = %v, want %q", got, tt.msg)
			}
		})
	}
}

func TestWriteJSONEncodeFailureLogged(t *testing.T) {
	logs := testutil.CaptureLogs(t)
	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]float64{"x": math.NaN()})
	if !logs.Contains("failed to encode json response") {
		t.Errorf("expected encode failure to be logged, got %v", logs.Lines())
	}
}
