package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/barekit/relnotes/pkg/rag"
)

type mockAnswerer struct {
	answer   rag.Answer
	err      error
	question string
}

func (m *mockAnswerer) Answer(ctx context.Context, question string) (rag.Answer, error) {
	m.question = question
	return m.answer, m.err
}

type mockCounter struct {
	n   int
	err error
}

func (m *mockCounter) Name() string { return "release_notes" }

func (m *mockCounter) Count(ctx context.Context) (int, error) { return m.n, m.err }

func newTestServer(a Answerer, c Counter) http.Handler {
	return New(a, c, ":0", slog.New(slog.NewTextHandler(io.Discard, nil))).Handler()
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHandleInvoke(t *testing.T) {
	mock := &mockAnswerer{answer: rag.Answer{Answer: "Use volume mounts."}}
	w := post(t, newTestServer(mock, &mockCounter{}), "/rag/invoke", `{"input": "How do I mount storage?"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var out struct {
		Output struct {
			Answer  string `json:"answer"`
			Blocked bool   `json:"blocked"`
		} `json:"output"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Output.Answer != "Use volume mounts." || out.Output.Blocked {
		t.Errorf("unexpected output: %+v", out)
	}
	if mock.question != "How do I mount storage?" {
		t.Errorf("question not forwarded: %q", mock.question)
	}
}

func TestHandleAnswer_Blocked(t *testing.T) {
	mock := &mockAnswerer{answer: rag.Answer{Blocked: true}}
	w := post(t, newTestServer(mock, &mockCounter{}), "/answer", `{"question": "something unsafe"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out answerBody
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !out.Blocked || out.Answer != "" {
		t.Errorf("unexpected body: %+v", out)
	}
}

func TestHandleAnswer_ErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"invalid body", `{"question":`, nil, http.StatusBadRequest},
		{"empty question", `{"question": ""}`, rag.ErrEmptyQuestion, http.StatusBadRequest},
		{"timeout", `{"question": "q"}`, errors.Join(rag.ErrTimeout, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"failure", `{"question": "q"}`, errors.New("generation failed"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, newTestServer(&mockAnswerer{err: tt.err}, &mockCounter{}), "/answer", tt.body)
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d", w.Code, tt.want)
			}
			var out map[string]string
			if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
				t.Fatal(err)
			}
			if out["error"] == "" {
				t.Error("expected error message in body")
			}
		})
	}
}

func TestRootRedirectsToDocs(t *testing.T) {
	h := newTestServer(&mockAnswerer{}, &mockCounter{})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status: got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/docs" {
		t.Errorf("redirect location: got %q", loc)
	}
}

func TestDocsAndOpenAPI(t *testing.T) {
	h := newTestServer(&mockAnswerer{}, &mockCounter{})
	for _, path := range []string{"/docs", "/openapi.yaml"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK || w.Body.Len() == 0 {
			t.Errorf("%s: status %d, %d bytes", path, w.Code, w.Body.Len())
		}
	}
}

func TestHandleStatus(t *testing.T) {
	h := newTestServer(&mockAnswerer{}, &mockCounter{n: 42})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Collection string `json:"collection"`
		Entries    int    `json:"entries"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Collection != "release_notes" || out.Entries != 42 {
		t.Errorf("unexpected status: %+v", out)
	}
}

func TestHandleHealth(t *testing.T) {
	h := newTestServer(&mockAnswerer{}, &mockCounter{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleAnswer_HidesInternalErrors(t *testing.T) {
	mock := &mockAnswerer{err: errors.New("dial tcp 10.0.0.7:5432: connection refused")}
	w := post(t, newTestServer(mock, &mockCounter{}), "/answer", `{"question": "q"}`)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "10.0.0.7") {
		t.Errorf("internal error leaked to client: %s", w.Body.String())
	}
}

func TestHandleStatus_HidesInternalErrors(t *testing.T) {
	h := newTestServer(&mockAnswerer{}, &mockCounter{err: errors.New("pq: password authentication failed")})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Errorf("internal error leaked to client: %s", w.Body.String())
	}
}

func TestHandleAnswer_BodyTooLarge(t *testing.T) {
	mock := &mockAnswerer{}
	body := `{"question": "` + strings.Repeat("a", maxBodyBytes) + `"}`
	w := post(t, newTestServer(mock, &mockCounter{}), "/answer", body)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status: got %d", w.Code)
	}
	if mock.question != "" {
		t.Error("oversized request reached the answerer")
	}
}
