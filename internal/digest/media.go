package digest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/vantaloop/VantaLoop/internal/models"
)

const (
	// MaxMediaBytes is the largest recording accepted for transcription.
	MaxMediaBytes = 25 << 20

	// AnalysisUnavailableSummary is used when the transcript could not be analyzed.
	AnalysisUnavailableSummary = "AI analysis unavailable."

	defaultMediaFilename = "upload.mp3"
	mediaDownloadTimeout = 60 * time.Second
)

var (
	// ErrInvalidMediaURL is returned for a missing or non-HTTP(S) file URL.
	ErrInvalidMediaURL = errors.New("digest: invalid media URL")
	// ErrMediaDownload is returned when the recording cannot be fetched.
	ErrMediaDownload = errors.New("digest: failed to download media")
	// ErrMediaTooLarge is returned for recordings over MaxMediaBytes.
	ErrMediaTooLarge = errors.New("digest: media file too large")
)

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, r io.Reader, filename string) (string, error)
}

// MediaAnalyzer downloads a recorded feedback session, transcribes it and
// extracts structured insights from the transcript.
type MediaAnalyzer struct {
	transcriber Transcriber
	ai          Completer
	httpClient  *http.Client
}

// MediaOption configures a MediaAnalyzer.
type MediaOption func(*MediaAnalyzer)

// WithHTTPClient sets the client used to download recordings.
func WithHTTPClient(c *http.Client) MediaOption {
	return func(m *MediaAnalyzer) { m.httpClient = c }
}

// NewMediaAnalyzer creates a MediaAnalyzer. A nil transcriber disables
// analysis; a nil ai returns the transcript without insights.
func NewMediaAnalyzer(transcriber Transcriber, ai Completer, opts ...MediaOption) *MediaAnalyzer {
	m := &MediaAnalyzer{
		transcriber: transcriber,
		ai:          ai,
		httpClient:  &http.Client{Timeout: mediaDownloadTimeout},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Analyze fetches fileURL, transcribes it and summarizes the transcript. A
// failed insight extraction still returns the transcript.
func (m *MediaAnalyzer) Analyze(ctx context.Context, fileURL string) (models.TranscriptAnalysis, error) {
	if m.transcriber == nil {
		return models.TranscriptAnalysis{}, ErrAIUnavailable
	}
	u, err := url.Parse(strings.TrimSpace(fileURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.TranscriptAnalysis{}, fmt.Errorf("%w: %q", ErrInvalidMediaURL, fileURL)
	}

	audio, err := m.download(ctx, u.String())
	if err != nil {
		return models.TranscriptAnalysis{}, err
	}
	transcript, err := m.transcriber.Transcribe(ctx, bytes.NewReader(audio), mediaFilename(u))
	if err != nil {
		return models.TranscriptAnalysis{}, fmt.Errorf("digest: transcribe media: %w", err)
	}
	slog.Debug("MediaAnalyzer.Analyze: transcribed", "host", u.Host, "bytes", len(audio), "chars", len(transcript))

	return m.insights(ctx, transcript), nil
}

func (m *MediaAnalyzer) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaDownload, err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaDownload, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrMediaDownload, resp.StatusCode)
	}
	if resp.ContentLength > MaxMediaBytes {
		return nil, ErrMediaTooLarge
	}
	audio, err := io.ReadAll(io.LimitReader(resp.Body, MaxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaDownload, err)
	}
	if len(audio) > MaxMediaBytes {
		return nil, ErrMediaTooLarge
	}
	return audio, nil
}

func (m *MediaAnalyzer) insights(ctx context.Context, transcript string) models.TranscriptAnalysis {
	out := models.TranscriptAnalysis{
		Transcript:      transcript,
		Summary:         AnalysisUnavailableSummary,
		KeyPoints:       []string{},
		ActionItems:     []string{},
		QuestionsRaised: []string{},
	}
	if m.ai == nil {
		return out
	}

	prompt := "Analyze this transcript from a design feedback meeting or review session. Extract structured insights.\n\n" +
		"Transcript:\n" + transcript + "\n\n" +
		"Return ONLY valid JSON with these fields:\n" +
		"- summary: 2-3 sentence executive summary\n" +
		"- keyPoints: array of 3-5 key discussion points (strings)\n" +
		"- actionItems: array of specific action items mentioned (strings)\n" +
		"- questionsRaised: array of open questions raised (strings)"

	var reply struct {
		Summary         string   `json:"summary"`
		KeyPoints       []string `json:"keyPoints"`
		ActionItems     []string `json:"actionItems"`
		QuestionsRaised []string `json:"questionsRaised"`
	}
	raw, err := m.ai.CompleteJSON(ctx, analystSystemPrompt, prompt, &reply)
	if err != nil {
		if raw != "" {
			slog.Debug("MediaAnalyzer.insights: reply was not JSON, using it as the summary")
			out.Summary = raw
			return out
		}
		slog.Warn("MediaAnalyzer.insights: analysis failed, returning transcript only", "error", err)
		return out
	}
	if s := strings.TrimSpace(reply.Summary); s != "" {
		out.Summary = s
	}
	if reply.KeyPoints != nil {
		out.KeyPoints = reply.KeyPoints
	}
	if reply.ActionItems != nil {
		out.ActionItems = reply.ActionItems
	}
	if reply.QuestionsRaised != nil {
		out.QuestionsRaised = reply.QuestionsRaised
	}
	return out
}

// mediaFilename keeps the URL's file name so the extension identifies the
// audio format.
func mediaFilename(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" || path.Ext(name) == "" {
		return defaultMediaFilename
	}
	return name
}
