// Package server exposes the watch pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/andresmejia3/lookout/internal/alert"
	"github.com/andresmejia3/lookout/internal/query"
	"github.com/andresmejia3/lookout/internal/types"
)

const (
	maxUploadSize = 20 << 20
	defaultLimit  = 50
	maxLimit      = 1000
)

// Registry is the part of the suspect registry the HTTP surface mutates.
type Registry interface {
	Add(ctx context.Context, identity, filename string, data []byte) (types.SuspectRecord, error)
	Remove(identity string) (int, error)
}

// Streamer produces annotated JPEG frames until ctx ends or emit fails.
type Streamer interface {
	Run(ctx context.Context, emit func([]byte) error) error
}

type Deps struct {
	Registry Registry
	Query    *query.Service
	History  alert.History
	Hub      *Hub
	// NewStream returns a compositor for one /video viewer.
	NewStream func() Streamer
	// Health reports pipeline statistics for /health.
	Health func() any
	// OnRemove runs after a suspect identity was deleted.
	OnRemove func(identity string)
}

type Server struct {
	deps   Deps
	router *mux.Router
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type messageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func New(deps Deps) *Server {
	s := &Server{deps: deps, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(corsMiddleware)

	r.HandleFunc("/video", s.handleVideo).Methods(http.MethodGet)
	r.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/check", s.handleCheck).Methods(http.MethodGet)
	r.HandleFunc("/detect", s.handleDetect).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/suspects", s.handleSuspects).Methods(http.MethodGet)
	r.HandleFunc("/suspects/{name}", s.handleDeleteSuspect).Methods(http.MethodDelete, http.MethodOptions)
	r.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.deps.Hub != nil {
		r.HandleFunc("/alerts/ws", s.deps.Hub.ServeWS).Methods(http.MethodGet)
	}
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// Request contexts derive from ctx so open video streams end with it.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("failed to write response")
	}
}

func sendError(w http.ResponseWriter, status int, code, message string) {
	sendJSON(w, status, ErrorResponse{Status: "error", Code: code, Message: message})
}

// sendDomainError maps pipeline errors to HTTP responses.
func sendDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidIdentity):
		sendError(w, http.StatusBadRequest, "INVALID_NAME", err.Error())
	case errors.Is(err, types.ErrImageDecode):
		sendError(w, http.StatusBadRequest, "INVALID_IMAGE", "Could not decode image.")
	case errors.Is(err, types.ErrNoFaceDetected):
		sendError(w, http.StatusUnprocessableEntity, "NO_FACE", "No face detected in the image.")
	case errors.Is(err, types.ErrNotFound):
		sendError(w, http.StatusNotFound, "NOT_FOUND", "Suspect not found.")
	case errors.Is(err, types.ErrDetection):
		sendError(w, http.StatusServiceUnavailable, "DETECTION_FAILED", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		sendError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
	default:
		sendError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}

// readImage returns the uploaded bytes from the multipart "file" field or the raw body.
func readImage(w http.ResponseWriter, r *http.Request) (data []byte, filename string, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			return nil, "", fmt.Errorf("failed to parse form: %w", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("missing file field: %w", err)
		}
		defer file.Close()
		data, err = io.ReadAll(file)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read file: %w", err)
		}
		return data, filepath.Base(header.Filename), nil
	}

	data, err = io.ReadAll(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body: %w", err)
	}
	name := r.URL.Query().Get("filename")
	if name == "" {
		name = "upload.jpg"
	}
	return data, filepath.Base(name), nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	data, filename, err := readImage(w, r)
	if err != nil {
		sendError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if len(data) == 0 {
		sendError(w, http.StatusBadRequest, "INVALID_REQUEST", "empty image")
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = r.FormValue("name")
	}

	if _, err := s.deps.Registry.Add(r.Context(), name, filename, data); err != nil {
		log.Warn().Err(err).Str("identity", name).Msg("suspect upload rejected")
		sendDomainError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, messageResponse{
		Status:  "success",
		Message: fmt.Sprintf("Suspect %s added and loaded.", name),
	})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, s.deps.Query.CurrentStatus())
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	data, _, err := readImage(w, r)
	if err != nil {
		sendError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	res, err := s.deps.Query.OneShotCheck(r.Context(), data)
	if errors.Is(err, types.ErrNoFaceDetected) {
		sendJSON(w, http.StatusOK, query.NoFaceResult())
		return
	}
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, res)
}

func (s *Server) handleSuspects(w http.ResponseWriter, r *http.Request) {
	names, err := s.deps.Query.Suspects()
	if err != nil {
		sendDomainError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	sendJSON(w, http.StatusOK, map[string][]string{"suspects": names})
}

func (s *Server) handleDeleteSuspect(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	removed, err := s.deps.Registry.Remove(name)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	if s.deps.OnRemove != nil {
		s.deps.OnRemove(name)
	}
	log.Info().Str("identity", name).Int("files", removed).Msg("suspect deleted")
	sendJSON(w, http.StatusOK, messageResponse{
		Status:  "success",
		Message: fmt.Sprintf("Suspect %s deleted.", name),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			sendError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
			return
		}
		limit = min(n, maxLimit)
	}

	if s.deps.History == nil {
		sendJSON(w, http.StatusOK, map[string][]types.AlertEvent{"alerts": {}})
		return
	}
	events, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	if events == nil {
		events = []types.AlertEvent{}
	}
	sendJSON(w, http.StatusOK, map[string][]types.AlertEvent{"alerts": events})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.deps.Health != nil {
		body["pipeline"] = s.deps.Health()
	}
	if s.deps.Hub != nil {
		body["alert_viewers"] = s.deps.Hub.Count()
	}
	sendJSON(w, http.StatusOK, body)
}

// handleVideo streams annotated frames as multipart/x-mixed-replace until the client leaves.
func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	if s.deps.NewStream == nil {
		sendError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "video stream not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		sendError(w, http.StatusInternalServerError, "INTERNAL", "streaming unsupported")
		return
	}

	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary("frame"); err != nil {
		sendError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)

	partHeader := textproto.MIMEHeader{"Content-Type": {"image/jpeg"}}
	emit := func(jpeg []byte) error {
		part, err := mw.CreatePart(partHeader)
		if err != nil {
			return err
		}
		if _, err := part.Write(jpeg); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	log.Debug().Str("remote", r.RemoteAddr).Msg("video viewer connected")
	err := s.deps.NewStream().Run(r.Context(), emit)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("video stream ended")
	}
}
