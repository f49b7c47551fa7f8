package digest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeTranscriber struct {
	text     string
	err      error
	audio    string
	filename string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, r io.Reader, filename string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.audio = string(b)
	f.filename = filename
	return f.text, f.err
}

func mediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/recordings/review.m4a", "/recordings/raw":
			_, _ = io.WriteString(w, "audio-bytes")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalyze_WithInsights(t *testing.T) {
	srv := mediaServer(t)
	tr := &fakeTranscriber{text: "We agreed to ship the new nav."}
	ai := &fakeCompleter{reply: `{"summary":"Team agreed on nav.","keyPoints":["nav"],"actionItems":["ship nav"],"questionsRaised":[]}`}
	m := NewMediaAnalyzer(tr, ai)

	got, err := m.Analyze(context.Background(), srv.URL+"/recordings/review.m4a")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if tr.audio != "audio-bytes" || tr.filename != "review.m4a" {
		t.Errorf("transcriber got %q as %q", tr.audio, tr.filename)
	}
	if got.Transcript != "We agreed to ship the new nav." || got.Summary != "Team agreed on nav." {
		t.Errorf("unexpected analysis %+v", got)
	}
	if len(got.ActionItems) != 1 || got.ActionItems[0] != "ship nav" {
		t.Errorf("action items = %v", got.ActionItems)
	}
	if !strings.Contains(ai.prompts[0], "We agreed to ship the new nav.") {
		t.Error("prompt should carry the transcript")
	}
}

func TestAnalyze_DefaultFilename(t *testing.T) {
	srv := mediaServer(t)
	tr := &fakeTranscriber{text: "hi"}
	if _, err := NewMediaAnalyzer(tr, nil).Analyze(context.Background(), srv.URL+"/recordings/raw"); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if tr.filename != defaultMediaFilename {
		t.Errorf("filename = %q", tr.filename)
	}
}

func TestAnalyze_FallsBackWithoutInsights(t *testing.T) {
	srv := mediaServer(t)
	cases := map[string]Completer{
		"no ai":      nil,
		"ai failure": &fakeCompleter{err: errors.New("rate limited")},
	}
	for name, ai := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := NewMediaAnalyzer(&fakeTranscriber{text: "transcript"}, ai).Analyze(context.Background(), srv.URL+"/recordings/review.m4a")
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if got.Transcript != "transcript" || got.Summary != AnalysisUnavailableSummary {
				t.Errorf("unexpected analysis %+v", got)
			}
			if got.KeyPoints == nil || got.ActionItems == nil || got.QuestionsRaised == nil {
				t.Error("insight lists should be empty, not nil")
			}
		})
	}

	got, err := NewMediaAnalyzer(&fakeTranscriber{text: "t"}, &fakeCompleter{reply: "Plain prose."}).
		Analyze(context.Background(), srv.URL+"/recordings/review.m4a")
	if err != nil || got.Summary != "Plain prose." {
		t.Errorf("non-JSON reply: %+v, %v", got, err)
	}
}

func TestAnalyze_Errors(t *testing.T) {
	srv := mediaServer(t)
	ctx := context.Background()

	if _, err := NewMediaAnalyzer(nil, nil).Analyze(ctx, srv.URL+"/recordings/review.m4a"); !errors.Is(err, ErrAIUnavailable) {
		t.Errorf("no transcriber: %v", err)
	}
	m := NewMediaAnalyzer(&fakeTranscriber{text: "x"}, nil)
	for _, bad := range []string{"", "ftp://example.com/a.mp3", "not a url"} {
		if _, err := m.Analyze(ctx, bad); !errors.Is(err, ErrInvalidMediaURL) {
			t.Errorf("Analyze(%q) = %v, want ErrInvalidMediaURL", bad, err)
		}
	}
	if _, err := m.Analyze(ctx, srv.URL+"/missing.mp3"); !errors.Is(err, ErrMediaDownload) {
		t.Errorf("404 download: %v", err)
	}
	failing := NewMediaAnalyzer(&fakeTranscriber{err: errors.New("whisper down")}, nil)
	if _, err := failing.Analyze(ctx, srv.URL+"/recordings/review.m4a"); err == nil || !strings.Contains(err.Error(), "whisper down") {
		t.Errorf("transcription failure: %v", err)
	}
}

func TestAnalyze_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, MaxMediaBytes+1))
	}))
	defer srv.Close()
	_, err := NewMediaAnalyzer(&fakeTranscriber{}, nil).Analyze(context.Background(), srv.URL+"/big.wav")
	if !errors.Is(err, ErrMediaTooLarge) {
		t.Errorf("expected ErrMediaTooLarge, got %v", err)
	}
}
