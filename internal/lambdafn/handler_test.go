package lambdafn

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"github.com/vantaloop/VantaLoop/internal/flow"
	"github.com/vantaloop/VantaLoop/internal/store"
	"github.com/vantaloop/VantaLoop/internal/webhook"
)

type stubResponder struct {
	contentType string
	raw         []byte
	out         webhook.Response
}

func (s *stubResponder) Respond(_ context.Context, contentType string, raw []byte) webhook.Response {
	s.contentType = contentType
	s.raw = raw
	return s.out
}

func formBody(from, body string) string {
	return url.Values{"From": {from}, "Body": {body}}.Encode()
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_PassesBodyAndContentType(t *testing.T) {
	stub := &stubResponder{out: webhook.Response{StatusCode: http.StatusOK, ContentType: webhook.ContentTypeXML, Body: "<Response/>"}}
	h, err := NewHandler(stub)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Headers:    map[string]string{"content-type": "application/x-www-form-urlencoded"},
		Body:       "From=%2B1555&Body=hi",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<Response/>", resp.Body)
	require.Equal(t, webhook.ContentTypeXML, resp.Headers["Content-Type"])
	require.NotEmpty(t, resp.Headers[correlationHeader])
	require.Equal(t, "application/x-www-form-urlencoded", stub.contentType)
	require.Equal(t, "From=%2B1555&Body=hi", string(stub.raw))
}

func TestHandle_DecodesBase64(t *testing.T) {
	stub := &stubResponder{out: webhook.Response{StatusCode: http.StatusOK}}
	h, _ := NewHandler(stub)

	_, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPost,
		Body:            base64.StdEncoding.EncodeToString([]byte("From=x&Body=y")),
		IsBase64Encoded: true,
	})
	require.NoError(t, err)
	require.Equal(t, "From=x&Body=y", string(stub.raw))
}

func TestHandle_InvalidBase64(t *testing.T) {
	stub := &stubResponder{}
	h, _ := NewHandler(stub)

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPost,
		Body:            "%%%",
		IsBase64Encoded: true,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Nil(t, stub.raw)
}

func TestHandle_RejectsGet(t *testing.T) {
	h, _ := NewHandler(&stubResponder{})
	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet})
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandle_KeepsCorrelationID(t *testing.T) {
	h, _ := NewHandler(&stubResponder{out: webhook.Response{StatusCode: http.StatusOK}})
	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Headers:    map[string]string{"x-correlation-id": "abc"},
	})
	require.NoError(t, err)
	require.Equal(t, "abc", resp.Headers[correlationHeader])
}

func TestHandle_ConversationThroughAdapter(t *testing.T) {
	st := store.NewInMemoryStore()
	h, err := NewHandler(webhook.NewAdapter(flow.NewEngine(st, st)))
	require.NoError(t, err)

	send := func(body string) events.APIGatewayProxyResponse {
		resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod: http.MethodPost,
			Headers:    map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
			Body:       formBody("+15551234567", body),
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		return resp
	}

	require.Contains(t, send("hi").Body, flow.WelcomeReply)
	require.Contains(t, send("Jane").Body, flow.SubjectPrompt)

	conv, err := st.GetActiveConversation(context.Background(), "+15551234567")
	require.NoError(t, err)
	require.NotNil(t, conv)
	require.Equal(t, "Jane", *conv.PartialData.SubmitterName)
}
