// Package testutil provides common HTTP test helpers for VantaLoop tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON envelope, checks its status field and
// returns the decoded map.
func AssertJSONResponse(t testing.TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode JSON response: %v (body %q)", err, rr.Body.String())
	}
	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s' (message %v)", expectedStatus, status, response["message"])
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}
	return response
}

// DecodeResult decodes the "result" field of a JSON envelope into v.
func DecodeResult(t testing.TB, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode JSON envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Result, v); err != nil {
		t.Fatalf("failed to decode result: %v (raw %s)", err, envelope.Result)
	}
}

// CreateJSONRequest creates an HTTP request whose body is body marshaled as JSON.
// A string body is sent as-is.
func CreateJSONRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody []byte
	switch b := body.(type) {
	case nil:
	case string:
		reqBody = []byte(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = data
	}
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	return req
}
