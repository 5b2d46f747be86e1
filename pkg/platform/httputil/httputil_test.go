package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dErrors "homechef/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.Wrap(errors.New("redis down"), dErrors.CodeInternal, "failed to place order"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "internal_error" {
			t.Fatalf("expected error code internal_error, got %q", body["error"])
		}
		if _, ok := body["error_description"]; ok {
			t.Fatalf("expected error_description to be omitted for internal errors")
		}
	})

	t.Run("invalid state maps to conflict", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInvalidState, "order is already cancelled"))

		if w.Code != http.StatusConflict {
			t.Fatalf("expected status %d, got %d", http.StatusConflict, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error_description"] != "order is already cancelled" {
			t.Fatalf("expected description to be returned, got %q", body["error_description"])
		}
	})

	t.Run("uncoded errors are internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("boom"))
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (r *quantityRequest) Validate() error {
	if r.Quantity < 1 {
		return dErrors.New(dErrors.CodeValidation, "quantity must be at least 1")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		body       string
		wantOK     bool
		wantStatus int
	}{
		{"valid body", `{"quantity":2}`, true, http.StatusOK},
		{"malformed json", `{"quantity":`, false, http.StatusBadRequest},
		{"validation failure", `{"quantity":0}`, false, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			req, ok := DecodeAndPrepare[quantityRequest](w, r, logger, r.Context(), "req-1")
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if ok && req.Quantity != 2 {
				t.Fatalf("expected quantity 2, got %d", req.Quantity)
			}
			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestStreamSSE(t *testing.T) {
	updates := make(chan map[string]int, 2)
	updates <- map[string]int{"n": 2}
	updates <- map[string]int{"n": 3}
	close(updates)
	initial := map[string]int{"n": 1}

	w := httptest.NewRecorder()
	err := StreamSSE(t.Context(), w, "cart", &initial, updates)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("expected event-stream content type, got %q", got)
	}
	want := "event: cart\ndata: {\"n\":1}\n\n" +
		"event: cart\ndata: {\"n\":2}\n\n" +
		"event: cart\ndata: {\"n\":3}\n\n"
	if w.Body.String() != want {
		t.Fatalf("unexpected stream body:\n%s", w.Body.String())
	}
}
