// Package api provides HTTP response utilities for VantaLoop.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vantaloop/VantaLoop/internal/digest"
	"github.com/vantaloop/VantaLoop/internal/models"
	"github.com/vantaloop/VantaLoop/internal/store"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so encoding errors are caught before headers go out
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// validationErrors are reported to the caller verbatim with a 400.
var validationErrors = []error{
	models.ErrEmptySubmitterName,
	models.ErrEmptySubject,
	models.ErrSubjectTooLong,
	models.ErrNameTooLong,
	models.ErrNarrativeTooLong,
	models.ErrInvalidFeedbackType,
	models.ErrInvalidChannel,
	models.ErrInvalidIntakeStatus,
	models.ErrInvalidPriority,
	models.ErrInvalidColumnStatus,
	models.ErrInvalidAuthorTeam,
	models.ErrEmptyCommentText,
	models.ErrEmptyTriagedBy,
	digest.ErrInvalidMediaURL,
	digest.ErrMediaDownload,
	digest.ErrMediaTooLarge,
}

// writeError maps a service error onto an HTTP status and JSON error envelope.
func writeError(w http.ResponseWriter, op string, err error) {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			slog.Warn("Server."+op+": validation failed", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Not found"))
	case errors.Is(err, digest.ErrAIUnavailable):
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("AI features are not configured"))
	default:
		slog.Error("Server."+op+": request failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}
