package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/ssargent/boarddb/pkg/board"
	"github.com/ssargent/boarddb/pkg/idalloc"
)

const (
	maxRequestBody   = 64 << 10
	defaultListLimit = 50
	maxListLimit     = 1000
)

// Server holds the API server state
type Server struct {
	service MessageService
	metrics *Metrics
	logger  zerolog.Logger
}

// NewServer creates a new API server
func NewServer(service MessageService, metrics *Metrics, logger *zerolog.Logger) *Server {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "api").Logger()
	}
	return &Server{
		service: service,
		metrics: metrics,
		logger:  l,
	}
}

func (s *Server) recordOp(op string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBOperation(op, err == nil, time.Since(start))
	}
}

// sendServiceError maps service errors to HTTP status codes
func (s *Server) sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case board.IsNotFound(err):
		sendError(w, err.Error(), http.StatusNotFound)
	case board.IsEncodingViolation(err):
		sendError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, idalloc.ErrExhausted):
		sendError(w, err.Error(), http.StatusInsufficientStorage)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		sendError(w, "request canceled", http.StatusServiceUnavailable)
	default:
		s.logger.Error().Err(err).Msg("message operation failed")
		sendError(w, fmt.Sprintf("storage failure: %v", err), http.StatusInternalServerError)
	}
}

func parseID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
}

func decodeMessageRequest(w http.ResponseWriter, r *http.Request) (board.Payload, error) {
	var req MessageRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return board.Payload{}, err
	}
	return board.Payload{
		Title:         req.Title,
		Body:          req.Body,
		AttachmentURL: req.AttachmentURL,
	}, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.metrics != nil {
		s.metrics.RecordHealthCheck(true)
	}
	sendSuccess(w, map[string]string{"status": "healthy"})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	payload, err := decodeMessageRequest(w, r)
	if err != nil {
		sendError(w, "Invalid JSON request", http.StatusBadRequest)
		return
	}

	msg, err := s.service.Create(r.Context(), payload)
	s.recordOp("create", start, err)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/messages/%d", msg.ID))
	sendJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, err := parseID(r)
	if err != nil {
		sendError(w, "Invalid message id", http.StatusBadRequest)
		return
	}

	msg, err := s.service.Read(r.Context(), id)
	s.recordOp("read", start, err)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	sendSuccess(w, msg)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, err := parseID(r)
	if err != nil {
		sendError(w, "Invalid message id", http.StatusBadRequest)
		return
	}

	payload, err := decodeMessageRequest(w, r)
	if err != nil {
		sendError(w, "Invalid JSON request", http.StatusBadRequest)
		return
	}

	msg, err := s.service.Update(r.Context(), id, payload)
	s.recordOp("update", start, err)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	sendSuccess(w, msg)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, err := parseID(r)
	if err != nil {
		sendError(w, "Invalid message id", http.StatusBadRequest)
		return
	}

	msg, err := s.service.Delete(r.Context(), id)
	s.recordOp("delete", start, err)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	sendSuccess(w, msg)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	query := r.URL.Query()

	var afterID uint64
	if v := query.Get("after_id"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			sendError(w, "Invalid after_id", http.StatusBadRequest)
			return
		}
		afterID = parsed
	}

	limit := defaultListLimit
	if v := query.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > maxListLimit {
			sendError(w, fmt.Sprintf("limit must be between 1 and %d", maxListLimit), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	msgs, err := s.service.List(r.Context(), afterID, limit)
	s.recordOp("list", start, err)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	resp := ListResponse{Messages: msgs}
	if len(msgs) == limit {
		resp.NextAfter = msgs[len(msgs)-1].ID
	}
	sendSuccess(w, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.service.Stats()
	if s.metrics != nil {
		s.metrics.UpdateDBStats(stats.Keys, stats.DataSize, stats.Counter)
	}
	sendSuccess(w, stats)
}

// startMetricsUpdater periodically updates store metrics until ctx is done
func (s *Server) startMetricsUpdater(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.service.Stats()
			s.metrics.UpdateDBStats(stats.Keys, stats.DataSize, stats.Counter)
		}
	}
}
