package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vantaloop/VantaLoop/internal/models"
	"github.com/vantaloop/VantaLoop/internal/webhook"
)

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(v)
}

// healthHandler reports liveness and whether the store answers queries.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK
	if _, err := s.st.ListRegisterItems(r.Context(), models.ColumnArchived); err != nil {
		slog.Warn("Health check: store query failed", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Store unavailable"
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}

// smsWebhookHandler handles POST /api/sms/webhook. Every well-formed request
// gets a 200 TwiML reply, even when processing fails.
func (s *Server) smsWebhookHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		slog.Warn("Server.smsWebhookHandler: failed to read body", "error", err)
		// An oversized body cannot be parsed, so it is rejected like any malformed webhook.
		if errBodyTooLarge(err) {
			msg := fmt.Errorf("%w: body exceeds %d bytes", webhook.ErrMalformedRequest, maxWebhookBodyBytes)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(msg.Error()))
			return
		}
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unable to read request body"))
		return
	}
	resp := s.adapter.Respond(r.Context(), r.Header.Get("Content-Type"), raw)
	w.Header().Set("Content-Type", resp.ContentType)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.WriteString(w, resp.Body); err != nil {
		slog.Error("Server.smsWebhookHandler: failed to write response", "error", err)
	}
}

// submitIntakeHandler handles POST /api/intake from the web form.
func (s *Server) submitIntakeHandler(w http.ResponseWriter, r *http.Request) {
	var req models.IntakeSubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.submitIntakeHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	sub, err := s.triage.SubmitWeb(r.Context(), req)
	if err != nil {
		writeError(w, "submitIntakeHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Feedback submitted", sub))
}

// listIntakeHandler handles GET /api/intake?status=.
func (s *Server) listIntakeHandler(w http.ResponseWriter, r *http.Request) {
	status := models.IntakeStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	if status != "" && !models.IsValidIntakeStatus(status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrInvalidIntakeStatus.Error()))
		return
	}
	subs, err := s.st.ListSubmissions(r.Context(), status)
	if err != nil {
		writeError(w, "listIntakeHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(subs))
}

func (s *Server) getIntakeHandler(w http.ResponseWriter, r *http.Request) {
	sub, err := s.st.GetSubmission(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "getIntakeHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sub))
}

// triageHandler handles POST /api/intake/{id}/triage.
func (s *Server) triageHandler(w http.ResponseWriter, r *http.Request) {
	var req models.TriageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.triageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	res, err := s.triage.Triage(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, "triageHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

// listRegisterHandler handles GET /api/register?column=.
func (s *Server) listRegisterHandler(w http.ResponseWriter, r *http.Request) {
	column := models.ColumnStatus(strings.TrimSpace(r.URL.Query().Get("column")))
	if column != "" && !models.IsValidColumnStatus(column) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrInvalidColumnStatus.Error()))
		return
	}
	items, err := s.st.ListRegisterItems(r.Context(), column)
	if err != nil {
		writeError(w, "listRegisterHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(items))
}

func (s *Server) getRegisterItemHandler(w http.ResponseWriter, r *http.Request) {
	detail, err := s.triage.GetItemDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "getRegisterItemHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(detail))
}

// updateRegisterItemHandler handles PATCH /api/register/{id}.
func (s *Server) updateRegisterItemHandler(w http.ResponseWriter, r *http.Request) {
	var upd models.RegisterItemUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		slog.Warn("Server.updateRegisterItemHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	item, err := s.triage.UpdateRegisterItem(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		writeError(w, "updateRegisterItemHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(item))
}

// addCommentHandler handles POST /api/register/{id}/comments.
func (s *Server) addCommentHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.addCommentHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	c, err := s.triage.AddComment(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, "addCommentHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(c))
}

// summarizeCommentsHandler handles POST /api/register/{id}/comments/summary.
func (s *Server) summarizeCommentsHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.st.GetRegisterItem(r.Context(), id); err != nil {
		writeError(w, "summarizeCommentsHandler", err)
		return
	}
	summary, err := s.summarizer.Summarize(r.Context(), id)
	if err != nil {
		writeError(w, "summarizeCommentsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"summary": summary}))
}

// transcribeHandler handles POST /api/transcribe.
func (s *Server) transcribeHandler(w http.ResponseWriter, r *http.Request) {
	var req models.TranscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.transcribeHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if strings.TrimSpace(req.FileURL) == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("fileUrl is required"))
		return
	}
	analysis, err := s.media.Analyze(r.Context(), req.FileURL)
	if err != nil {
		writeError(w, "transcribeHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(analysis))
}

// digestHandler handles GET /api/digest.
func (s *Server) digestHandler(w http.ResponseWriter, r *http.Request) {
	d, err := s.digests.Generate(r.Context())
	if err != nil {
		writeError(w, "digestHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(d))
}

// errBodyTooLarge reports whether err came from MaxBytesReader.
func errBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
