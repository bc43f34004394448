package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/storage"
	"go.uber.org/zap"
)

// Version is reported by GET /.
var Version = "dev"

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "kikoe",
		"version": Version,
		"endpoints": []string{
			"GET /query?search=<text>&top_k=<n>&podcast=<source_id>&local=<bool>",
			"POST /update",
			"GET /health",
			"GET /api/v1/status",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := models.SearchQuery{
		Search:  strings.TrimSpace(params.Get("search")),
		Podcast: params.Get("podcast"),
	}
	if query.Search == "" {
		s.respondError(w, http.StatusBadRequest, "Missing required parameter: search")
		return
	}
	if v := params.Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("top_k must be a positive integer, got %q", v))
			return
		}
		query.TopK = n
	} else if s.config != nil {
		query.TopK = s.config.Search.DefaultTopK
	}
	if v := params.Get("local"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("local must be a boolean, got %q", v))
			return
		}
		query.Local = &b
	}

	s.logger.Debug("query request",
		zap.String("search", query.Search), zap.Int("top_k", query.TopK), zap.String("podcast", query.Podcast))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		s.respondError(w, http.StatusNotImplemented, "no transcript source configured")
		return
	}
	report, err := s.indexer.IngestAll(r.Context(), s.source)
	if err != nil {
		s.logger.Error("update failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	status := "success"
	if report.Failed() {
		status = "partial"
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"message": fmt.Sprintf("Processed %d transcripts", report.Documents),
		"report":  report,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("status: stats failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	resp := map[string]interface{}{
		"records":          stats.Records,
		"sources":          stats.Sources,
		"dimension":        stats.Dimension,
		"disk_usage_bytes": stats.DiskBytes,
	}
	if ts, ok := s.store.(*storage.TranscriptStore); ok {
		resp["index_dir"] = ts.Dir()
	}
	if s.config != nil {
		resp["config"] = map[string]interface{}{
			"embedding_provider": s.config.Embedding.Provider,
			"window_size":        s.config.Chunking.WindowSize,
			"overlap_fraction":   s.config.Chunking.OverlapOrDefault(),
			"transcripts_dir":    s.config.Transcripts.Directory,
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps core errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDimensionMismatch):
		return http.StatusConflict
	case errors.Is(err, models.ErrRateLimitExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrEmbeddingProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
