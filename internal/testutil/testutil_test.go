package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAssertJSONResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.WriteString(`{"status":"ok","result":{"id":"abc"}}`)
	resp := AssertJSONResponse(t, rr, "ok")
	if resp["result"] == nil {
		t.Error("expected result in decoded response")
	}

	var out struct {
		ID string `json:"id"`
	}
	DecodeResult(t, rr, &out)
	if out.ID != "abc" {
		t.Errorf("DecodeResult id = %q", out.ID)
	}
}

func TestCreateJSONRequest(t *testing.T) {
	req := CreateJSONRequest(t, http.MethodPost, "/api/intake", map[string]string{"subject": "Nav"})
	body, _ := io.ReadAll(req.Body)
	if string(body) != `{"subject":"Nav"}` {
		t.Errorf("body = %s", body)
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Error("missing JSON content type")
	}

	raw := CreateJSONRequest(t, http.MethodPost, "/x", `{"a":1}`)
	body, _ = io.ReadAll(raw.Body)
	if string(body) != `{"a":1}` {
		t.Errorf("string body not sent verbatim: %s", body)
	}

	empty := CreateJSONRequest(t, http.MethodGet, "/x", nil)
	body, _ = io.ReadAll(empty.Body)
	if len(body) != 0 {
		t.Errorf("expected empty body, got %s", body)
	}
}

func TestAssertHTTPStatus(t *testing.T) {
	AssertHTTPStatus(t, http.StatusOK, http.StatusOK, "matching status")
}
