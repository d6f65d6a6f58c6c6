// Package httpapi exposes the dispatch and pool-management surface over
// HTTP. Task-level failures come back as 200 with success:false and a
// human-readable reason; only the no-capacity rejection and transport-level
// faults use error status codes.
package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog"

	"media-agent/internal/application/port/input"
	"media-agent/internal/application/port/output"
	"media-agent/internal/domain/entity"
	"media-agent/internal/usecase/pool"
)

type Server struct {
	dispatcher input.Dispatcher
	pool       input.PoolManager
	log        output.LoggerPort
	service    string
}

func New(dispatcher input.Dispatcher, pm input.PoolManager, log output.LoggerPort, service string) *Server {
	if service == "" {
		service = "media-agent"
	}
	return &Server{dispatcher: dispatcher, pool: pm, log: log, service: service}
}

// Router builds the chi router with request logging.
func (s *Server) Router() http.Handler {
	requestLogger := httplog.NewLogger(s.service, httplog.Options{JSON: true, Concise: true})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(requestLogger))

	r.Get("/health", s.handleHealth)
	r.Post("/generate", s.handleGenerate)

	r.Route("/api/workers", func(r chi.Router) {
		r.Get("/", s.handleListWorkers)
		r.Post("/", s.handleCreateWorker)
		r.Route("/{workerID}", func(r chi.Router) {
			r.Get("/", s.handleGetWorker)
			r.Post("/start", s.handleStartWorker)
			r.Post("/stop", s.handleStopWorker)
			r.Delete("/", s.handleDeleteWorker)
		})
	})
	return r
}

type generateRequest struct {
	Prompt      string   `json:"prompt"`
	Attachments []string `json:"reference_images_b64,omitempty"`
	AspectRatio string   `json:"aspect_ratio,omitempty"`
	Class       string   `json:"class,omitempty"`
}

type generateResponse struct {
	TaskID  string         `json:"task_id"`
	Success bool           `json:"success"`
	Text    string         `json:"text,omitempty"`
	Media   []mediaPayload `json:"media,omitempty"`
	Error   string         `json:"error_reason,omitempty"`
}

type mediaPayload struct {
	MIME string `json:"mime"`
	B64  string `json:"data_b64"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false, "error_reason": "invalid JSON body: " + err.Error(),
		})
		return
	}
	if req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false, "error_reason": "prompt is required",
		})
		return
	}

	class := entity.TaskClass(req.Class)
	if class == "" {
		class = entity.TaskClassImage
	}

	res := s.dispatcher.Dispatch(r.Context(), input.GenerateRequest{
		Prompt:      req.Prompt,
		Attachments: req.Attachments,
		AspectRatio: req.AspectRatio,
		Class:       class,
	})

	status := http.StatusOK
	if res.Failure == entity.FailureNoCapacity {
		// The request was never accepted; tell callers to retry later.
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, toGenerateResponse(res))
}

func toGenerateResponse(res entity.TaskResult) generateResponse {
	out := generateResponse{
		TaskID:  res.TaskID,
		Success: res.Success,
		Text:    res.Text,
		Error:   res.Reason,
	}
	for _, m := range res.Media {
		out.Media = append(out.Media, mediaPayload{
			MIME: m.MIME,
			B64:  base64.StdEncoding.EncodeToString(m.Data),
		})
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.pool.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"browser_workers": stats,
		"concurrency":     stats.Running,
	})
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	workers := s.pool.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"workers": workers,
		"total":   len(workers),
	})
}

type createWorkerRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateWorker(w http.ResponseWriter, r *http.Request) {
	var req createWorkerRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means unnamed
	}
	id, err := s.pool.Create(req.Name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false, "error_reason": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "worker_id": id})
}

func (s *Server) handleGetWorker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workerID")
	info, ok := s.pool.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"success": false, "error_reason": "worker not found",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "worker": info})
}

func (s *Server) handleStartWorker(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, s.pool.Start)
}

func (s *Server) handleStopWorker(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, s.pool.Stop)
}

func (s *Server) handleDeleteWorker(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, s.pool.Delete)
}

// lifecycle runs one pool operation and maps its failure modes. Start
// failures land on the worker record as well; they are reported, never
// retried here.
func (s *Server) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) error) {
	id := chi.URLParam(r, "workerID")
	if err := op(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pool.ErrWorkerNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]any{"success": false, "error_reason": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
