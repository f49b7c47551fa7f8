// Package lambdafn adapts the SMS webhook to API Gateway proxy events.
package lambdafn

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/vantaloop/VantaLoop/internal/webhook"
)

const correlationHeader = "X-Correlation-Id"

// Responder turns a raw webhook body into an HTTP response.
type Responder interface {
	Respond(ctx context.Context, contentType string, raw []byte) webhook.Response
}

var _ Responder = (*webhook.Adapter)(nil)

// Handler serves API Gateway proxy requests for the SMS webhook.
type Handler struct {
	responder Responder
}

// NewHandler validates dependencies and returns a Handler.
func NewHandler(responder Responder) (*Handler, error) {
	if responder == nil {
		return nil, errors.New("lambdafn: responder is required")
	}
	return &Handler{responder: responder}, nil
}

// Handle processes one inbound SMS webhook event. Protocol failures are
// reported in the response; the returned error is always nil so API Gateway
// never retries a message the state machine already consumed.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := slog.With("correlationId", correlationID)

	if req.HTTPMethod != "" && req.HTTPMethod != http.MethodPost {
		log.Warn("Handler.Handle: unsupported method", "method", req.HTTPMethod)
		return response(http.StatusMethodNotAllowed, webhook.ContentTypeJSON,
			`{"status":"error","message":"Method not allowed"}`, correlationID), nil
	}

	raw := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			log.Warn("Handler.Handle: invalid base64 body", "error", err)
			return response(http.StatusBadRequest, webhook.ContentTypeJSON,
				`{"status":"error","message":"Invalid request body"}`, correlationID), nil
		}
		raw = decoded
	}

	res := h.responder.Respond(ctx, headerValue(req.Headers, "Content-Type"), raw)
	log.Info("Handler.Handle: webhook processed", "status", res.StatusCode)
	return response(res.StatusCode, res.ContentType, res.Body, correlationID), nil
}

func response(status int, contentType, body, correlationID string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    contentType,
			correlationHeader: correlationID,
		},
		Body: body,
	}
}

// headerValue looks a header up case-insensitively; API Gateway passes
// headers through exactly as the client sent them.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
