// Package webhook adapts inbound telephony webhook requests to the SMS intake
// engine and renders every outcome as a TwiML reply.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/vantaloop/VantaLoop/internal/models"
	"github.com/vantaloop/VantaLoop/internal/util"
)

// ErrMalformedRequest is returned when the inbound event lacks From or Body.
var ErrMalformedRequest = errors.New("malformed webhook request")

// DefaultErrorReply is sent whenever processing fails after a valid request.
const DefaultErrorReply = "Sorry, something went wrong. Please try again."

// Content types produced by the adapter.
const (
	ContentTypeXML  = "text/xml"
	ContentTypeJSON = "application/json"
)

// MessageHandler processes one inbound message and returns the reply text.
type MessageHandler interface {
	Handle(ctx context.Context, phoneNumber, body string) (string, error)
}

// Inbound is a parsed webhook event.
type Inbound struct {
	From string
	Body string
}

// Response is a transport-neutral HTTP response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        string
}

// Adapter turns raw webhook requests into TwiML responses.
type Adapter struct {
	handler    MessageHandler
	errorReply string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithErrorReply overrides the apology text sent on internal failure.
func WithErrorReply(text string) Option {
	return func(a *Adapter) {
		if strings.TrimSpace(text) != "" {
			a.errorReply = text
		}
	}
}

// NewAdapter creates an Adapter dispatching messages to handler.
func NewAdapter(handler MessageHandler, opts ...Option) *Adapter {
	a := &Adapter{handler: handler, errorReply: DefaultErrorReply}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ParseInbound decodes a form-encoded or JSON webhook body. A field that is
// absent is malformed; a field that is present but empty is not.
func ParseInbound(contentType string, raw []byte) (Inbound, error) {
	mediaType := ""
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			mediaType = mt
		}
	}

	if mediaType == "" && strings.HasPrefix(strings.TrimSpace(string(raw)), "{") {
		mediaType = ContentTypeJSON
	}

	if mediaType == ContentTypeJSON {
		var payload struct {
			From *string `json:"From"`
			Body *string `json:"Body"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Inbound{}, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedRequest, err)
		}
		if payload.From == nil || payload.Body == nil {
			return Inbound{}, fmt.Errorf("%w: From and Body are required", ErrMalformedRequest)
		}
		return newInbound(*payload.From, *payload.Body)
	}

	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return Inbound{}, fmt.Errorf("%w: invalid form body: %v", ErrMalformedRequest, err)
	}
	from, hasFrom := values["From"]
	body, hasBody := values["Body"]
	if !hasFrom || !hasBody {
		return Inbound{}, fmt.Errorf("%w: From and Body are required", ErrMalformedRequest)
	}
	return newInbound(first(from), first(body))
}

func newInbound(from, body string) (Inbound, error) {
	from = strings.TrimSpace(from)
	if from == "" {
		return Inbound{}, fmt.Errorf("%w: From is empty", ErrMalformedRequest)
	}
	return Inbound{From: from, Body: strings.TrimSpace(body)}, nil
}

func first(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Process runs one parsed message through the handler and always returns a
// valid TwiML document.
func (a *Adapter) Process(ctx context.Context, in Inbound) string {
	reply, err := a.handler.Handle(ctx, in.From, in.Body)
	if err != nil {
		slog.Error("Adapter.Process: failed to handle inbound message", "from", util.MaskPhone(in.From), "error", err)
		reply = a.errorReply
	}
	return RenderReply(reply)
}

// Respond parses a raw request body and produces the full HTTP response.
// Malformed requests get a 400 JSON error envelope and never reach the handler.
func (a *Adapter) Respond(ctx context.Context, contentType string, raw []byte) Response {
	in, err := ParseInbound(contentType, raw)
	if err != nil {
		slog.Warn("Adapter.Respond: rejecting malformed webhook", "error", err)
		return Response{
			StatusCode:  http.StatusBadRequest,
			ContentType: ContentTypeJSON,
			Body:        string(errorEnvelope(err)),
		}
	}
	slog.Debug("Adapter.Respond: inbound message", "from", util.MaskPhone(in.From), "bodyLength", len(in.Body))
	return Response{
		StatusCode:  http.StatusOK,
		ContentType: ContentTypeXML,
		Body:        a.Process(ctx, in),
	}
}

func errorEnvelope(err error) []byte {
	b, mErr := json.Marshal(models.Error(err.Error()))
	if mErr != nil {
		return []byte(`{"status":"error","message":"malformed webhook request"}`)
	}
	return b
}
