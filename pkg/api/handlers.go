package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/soilsense/soilsense/pkg/models"
	"github.com/soilsense/soilsense/pkg/retention"
)

// ClearAllConfirmation must be sent as "confirm" to DELETE /api/cache-cleanup.
const ClearAllConfirmation = "DELETE_ALL_CACHE"

var validActions = []string{"cleanup", "start-auto", "stop-auto", "configure", "cleanup-rod"}

type suggestionRequest struct {
	Reading   models.SensorReading `json:"reading"`
	RodID     string               `json:"rodId"`
	PlantType string               `json:"plantType"`
}

type suggestionResponse struct {
	RodID       string            `json:"rodId"`
	PlantType   string            `json:"plantType"`
	LastUpdate  time.Time         `json:"lastUpdate"`
	Cached      bool              `json:"cached"`
	Suggestions models.Suggestion `json:"suggestions"`
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	var req suggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reading.ID == "" {
		writeJSONError(w, http.StatusBadRequest, "reading.id is required")
		return
	}
	rodID := req.RodID
	if rodID == "" {
		rodID = req.Reading.RodID
	}

	res, err := s.suggester.GetOrCreate(r.Context(), req.Reading, rodID, req.PlantType)
	if err != nil {
		s.writeFailure(w, r, "Failed to generate suggestions", err)
		return
	}

	writeJSON(w, http.StatusOK, suggestionResponse{
		RodID:       rodID,
		PlantType:   res.PlantType,
		LastUpdate:  req.Reading.Timestamp,
		Cached:      res.Cached,
		Suggestions: res.Suggestion,
	})
}

type cleanupStatusData struct {
	models.CleanupStatus
	CacheStatistics models.CacheStats `json:"cacheStatistics"`
}

type successBody struct {
	Success bool   `json:"success"`
	Action  string `json:"action,omitempty"`
	Data    any    `json:"data"`
}

func (s *Server) handleCleanupStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.retention.CacheStats(r.Context())
	if err != nil {
		s.writeFailure(w, r, "Failed to get cleanup status", err)
		return
	}
	writeJSON(w, http.StatusOK, successBody{
		Success: true,
		Data: cleanupStatusData{
			CleanupStatus:   s.retention.Status(),
			CacheStatistics: stats,
		},
	})
}

type cleanupActionRequest struct {
	Action    string               `json:"action"`
	Config    *models.CleanupPatch `json:"config"`
	RodID     string               `json:"rodId"`
	KeepCount *int                 `json:"keepCount"`
}

func (s *Server) handleCleanupAction(w http.ResponseWriter, r *http.Request) {
	var req cleanupActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Action {
	case "":
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:        "Missing or invalid action parameter",
			ValidActions: validActions,
		})

	case "cleanup":
		stats, err := s.retention.RunCleanup(r.Context())
		if err != nil {
			s.writeFailure(w, r, "Cache cleanup operation failed", err)
			return
		}
		writeJSON(w, http.StatusOK, successBody{Success: true, Action: req.Action, Data: map[string]any{
			"message":    "Manual cleanup completed successfully",
			"statistics": stats,
		}})

	case "start-auto":
		s.retention.Start()
		writeJSON(w, http.StatusOK, successBody{Success: true, Action: req.Action, Data: map[string]any{
			"message": "Automatic cleanup started",
			"status":  s.retention.Status(),
		}})

	case "stop-auto":
		s.retention.Stop()
		writeJSON(w, http.StatusOK, successBody{Success: true, Action: req.Action, Data: map[string]any{
			"message": "Automatic cleanup stopped",
			"status":  s.retention.Status(),
		}})

	case "configure":
		if req.Config == nil {
			writeJSONError(w, http.StatusBadRequest, "Missing or invalid config parameter for configure action")
			return
		}
		if err := s.retention.Configure(*req.Config); err != nil {
			if errors.Is(err, retention.ErrInvalidConfig) {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid cleanup configuration", Details: err.Error()})
				return
			}
			s.writeFailure(w, r, "Cache cleanup operation failed", err)
			return
		}
		s.logger.Info("cleanup configuration updated",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.Any("config", s.retention.Config()),
		)
		writeJSON(w, http.StatusOK, successBody{Success: true, Action: req.Action, Data: map[string]any{
			"message":   "Configuration updated successfully",
			"newConfig": s.retention.Config(),
		}})

	case "cleanup-rod":
		if req.RodID == "" {
			writeJSONError(w, http.StatusBadRequest, "Missing or invalid rodId parameter for cleanup-rod action")
			return
		}
		keep := -1
		if req.KeepCount != nil {
			if *req.KeepCount < 0 {
				writeJSONError(w, http.StatusBadRequest, "keepCount must not be negative")
				return
			}
			keep = *req.KeepCount
		}
		n, err := s.retention.CleanupRod(r.Context(), req.RodID, keep)
		if err != nil {
			s.writeFailure(w, r, "Cache cleanup operation failed", err)
			return
		}
		writeJSON(w, http.StatusOK, successBody{Success: true, Action: req.Action, Data: map[string]any{
			"message":            "Rod cleanup completed",
			"rodId":              req.RodID,
			"suggestionsDeleted": n,
		}})

	default:
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:        "Unknown action: " + req.Action,
			ValidActions: validActions,
		})
	}
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm string `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Confirm != ClearAllConfirmation {
		writeJSONError(w, http.StatusBadRequest,
			`This operation requires confirmation. Include "confirm": "`+ClearAllConfirmation+`" in request body.`)
		return
	}

	stats, err := s.retention.ClearAll(r.Context())
	if err != nil {
		s.writeFailure(w, r, "Cache clear operation failed", err)
		return
	}
	s.logger.Warn("suggestion cache cleared",
		zap.String("request_id", RequestIDFrom(r.Context())),
		zap.Int64("deleted", stats.TotalDeleted),
	)
	writeJSON(w, http.StatusOK, successBody{Success: true, Action: "clear-all", Data: map[string]any{
		"message":    "All cache entries cleared",
		"statistics": stats,
		"warning":    "All AI suggestions have been permanently deleted",
	}})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "report" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(s.metrics.SummaryReport()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics":      s.metrics.GetMetrics(),
		"recentEvents": s.metrics.GetRecentEvents(recentEventsLimit),
		"timestamp":    s.now().UTC(),
	})
}

func (s *Server) handleResetMetrics(w http.ResponseWriter, _ *http.Request) {
	s.metrics.ResetMetrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Cache metrics reset successfully",
		"timestamp": s.now().UTC(),
	})
}

func (s *Server) handleRodMetrics(w http.ResponseWriter, r *http.Request) {
	rodID := mux.Vars(r)["rodId"]
	rm := s.metrics.GetRodMetrics(rodID)
	writeJSON(w, http.StatusOK, map[string]any{
		"rodId":   rodID,
		"hits":    rm.Hits,
		"misses":  rm.Misses,
		"hitRate": rm.HitRate,
	})
}
