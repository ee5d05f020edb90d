package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"advancebot/internal/core"
	"advancebot/internal/log"
)

// maxMessageBody bounds one inbound message request. Messages are a
// few hundred runes at most; anything bigger is not a conversation.
const maxMessageBody = 4 << 10

type messageRequest struct {
	EmployeeID string `json:"employee_id"`
	Text       string `json:"text"`
}

type messageResponse struct {
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "only POST is supported")
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxMessageBody)
	defer body.Close()

	var req messageRequest
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		slog.WarnContext(r.Context(), "Malformed message request",
			log.FieldError, err,
			log.FieldComponent, log.ComponentGateway)
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if strings.TrimSpace(req.EmployeeID) == "" {
		writeError(w, http.StatusBadRequest, "employee_id must not be empty")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	reply, err := s.engine.Handle(ctx, req.EmployeeID, req.Text)
	if err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		slog.ErrorContext(ctx, "Message handling failed",
			log.FieldEmployeeID, req.EmployeeID,
			log.FieldError, err,
			log.FieldComponent, log.ComponentGateway)
		writeError(w, http.StatusServiceUnavailable, "temporarily unable to process the message")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Text: reply.Text, Options: reply.Options})
}

// handleMetrics reports the engine counters and process uptime as JSON.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Stats()
	writeJSON(w, http.StatusOK, map[string]int64{
		"commits_total":          stats.Commits,
		"audit_failures_total":   stats.AuditFailures,
		"publish_failures_total": stats.PublishFailures,
		"active_sessions":        stats.ActiveSessions,
		"uptime_seconds":         int64(time.Since(s.started).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
