package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/barekit/relnotes/pkg/rag"
	"github.com/go-chi/chi/v5/middleware"
)

// maxBodyBytes caps request bodies of the answer endpoints.
const maxBodyBytes = 1 << 20

type invokeRequest struct {
	Input string `json:"input"`
}

type invokeResponse struct {
	Output answerBody `json:"output"`
}

type answerRequest struct {
	Question string `json:"question"`
}

type answerBody struct {
	Answer  string `json:"answer"`
	Blocked bool   `json:"blocked"`
}

const docsPage = `<!doctype html>
<html>
<head><title>Release notes API</title></head>
<body>
<h1>Release notes API</h1>
<p>POST /rag/invoke with {"input": "your question"} or POST /answer with {"question": "your question"}.</p>
<p>The OpenAPI document is at <a href="/openapi.yaml">/openapi.yaml</a>.</p>
</body>
</html>
`

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if !s.decode(w, r, &req) {
		return
	}
	body, ok := s.answer(w, r, req.Input)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, invokeResponse{Output: body})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !s.decode(w, r, &req) {
		return
	}
	body, ok := s.answer(w, r, req.Question)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, body)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		s.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	case err != nil:
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request, question string) (answerBody, bool) {
	reqID := middleware.GetReqID(r.Context())
	a, err := s.answerer.Answer(r.Context(), question)
	switch {
	case errors.Is(err, rag.ErrEmptyQuestion):
		s.respondError(w, http.StatusBadRequest, rag.ErrEmptyQuestion.Error())
		return answerBody{}, false
	case errors.Is(err, rag.ErrTimeout):
		s.logger.Error("answer timed out", "request_id", reqID, "error", err)
		s.respondError(w, http.StatusGatewayTimeout, "request timed out")
		return answerBody{}, false
	case err != nil:
		s.logger.Error("answer failed", "request_id", reqID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to answer question")
		return answerBody{}, false
	}
	if a.Blocked {
		s.logger.Info("answer blocked", "request_id", reqID, "categories", a.Categories)
	}
	return answerBody{Answer: a.Answer, Blocked: a.Blocked}, true
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(docsPage))
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openAPISpec)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.index.Count(r.Context())
	if err != nil {
		s.logger.Error("status: count entries failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to read index status")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"collection": s.index.Name(),
		"entries":    count,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
