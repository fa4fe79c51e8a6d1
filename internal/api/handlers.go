package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/randomizedcoder/strands-bridge/internal/bridge"
)

// maxBodyBytes bounds request bodies, config files included.
const maxBodyBytes = 8 << 20

type launchRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type idResponse struct {
	ID string `json:"id"`
}

type configResponse struct {
	Content string `json:"content"`
}

type writeConfigRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type watchRequest struct {
	Path string `json:"path"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleLaunch runs the CLI and answers once it exited. The launch is not
// tied to the request: a client that disconnects does not stop the CLI.
func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var req launchRequest
	if !s.decode(w, r, &req) {
		return
	}

	msg, err := s.ops.Launch(context.WithoutCancel(r.Context()), req.Command, req.Args)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: msg})
}

// handleStartLaunch starts the CLI and answers with the launch ID.
func (s *Server) handleStartLaunch(w http.ResponseWriter, r *http.Request) {
	var req launchRequest
	if !s.decode(w, r, &req) {
		return
	}

	h, err := s.ops.Start(context.WithoutCancel(r.Context()), req.Args)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, idResponse{ID: h.ID()})
}

func (s *Server) handleListLaunches(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.ops.Launches())
}

func (s *Server) handleCancelLaunch(w http.ResponseWriter, r *http.Request) {
	if err := s.ops.Cancel(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReadConfig(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	content, err := s.ops.ReadConfig(path)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, configResponse{Content: content})
}

func (s *Server) handleWriteConfig(w http.ResponseWriter, r *http.Request) {
	var req writeConfigRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		s.writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	if err := s.ops.WriteConfig(req.Path, req.Content); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		s.writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	id, err := s.ops.WatchConfig(req.Path)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, idResponse{ID: id})
}

func (s *Server) handleListWatches(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.ops.Watches())
}

func (s *Server) handleUnwatch(w http.ResponseWriter, r *http.Request) {
	if err := s.ops.Unwatch(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeploymentStatus(w http.ResponseWriter, r *http.Request) {
	updates, err := s.ops.GetDeploymentStatus(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, updates)
}

// decode reads a JSON body into v, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func statusFor(err error) int {
	if errors.Is(err, bridge.ErrUnknownLaunch) || errors.Is(err, bridge.ErrUnknownWatch) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
