// Package genai wraps OpenAI chat completions for the digest and comment
// summary features, and Whisper transcription for recorded feedback.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = string(openai.ChatModelGPT4oMini)

// TranscriptionModel is the speech-to-text model used by Transcribe.
const TranscriptionModel = openai.AudioModelWhisper1

// ErrNoChoicesReturned is returned when the completion carries no choices.
var ErrNoChoicesReturned = errors.New("genai: no choices returned")

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionsAdapter adapts the SDK completion service to chatService.
type completionsAdapter struct {
	svc openai.ChatCompletionService
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// transcriptionService defines the minimal interface for audio transcription.
type transcriptionService interface {
	Create(ctx context.Context, params openai.AudioTranscriptionNewParams) (openai.Transcription, error)
}

type transcriptionsAdapter struct {
	svc openai.AudioTranscriptionService
}

func (a transcriptionsAdapter) Create(ctx context.Context, params openai.AudioTranscriptionNewParams) (openai.Transcription, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.Transcription{}, err
	}
	return *resp, nil
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	DebugMode   bool
	StateDir    string
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// WithDebugMode writes every request and response under <stateDir>/debug.
func WithDebugMode(enabled bool, stateDir string) Option {
	return func(o *Opts) {
		o.DebugMode = enabled
		o.StateDir = stateDir
	}
}

// Client wraps the OpenAI chat completion and transcription services.
type Client struct {
	chat        chatService
	audio       transcriptionService
	model       string
	temperature float64
	maxTokens   int
	debugMode   bool
	stateDir    string
}

// NewClient creates a Client. An API key is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Model: DefaultModel, Temperature: 0.3, MaxTokens: 1024}
	for _, opt := range opts {
		opt(&cfg)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("genai: API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("genai.NewClient: client created", "model", cfg.Model, "debug", cfg.DebugMode)
	return &Client{
		chat:        completionsAdapter{svc: cli.Chat.Completions},
		audio:       transcriptionsAdapter{svc: cli.Audio.Transcriptions},
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		debugMode:   cfg.DebugMode,
		stateDir:    cfg.StateDir,
	}, nil
}

// Complete sends a system and user prompt and returns the first choice.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.maxTokens))
	}

	start := time.Now()
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("Client.Complete: completion failed", "model", c.model, "error", err)
		return "", fmt.Errorf("genai: completion: %w", err)
	}
	c.writeDebugLog("Complete", params, resp)
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	content := resp.Choices[0].Message.Content
	slog.Debug("Client.Complete: completion received", "model", c.model, "chars", len(content), "elapsed", time.Since(start))
	return content, nil
}

// Transcribe converts the audio in r to text. filename carries the extension
// the API uses to detect the audio format.
func (c *Client) Transcribe(ctx context.Context, r io.Reader, filename string) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(r, filename, ""),
		Model: TranscriptionModel,
	}
	start := time.Now()
	resp, err := c.audio.Create(ctx, params)
	if err != nil {
		slog.Error("Client.Transcribe: transcription failed", "filename", filename, "error", err)
		return "", fmt.Errorf("genai: transcription: %w", err)
	}
	slog.Debug("Client.Transcribe: transcript received", "filename", filename, "chars", len(resp.Text), "elapsed", time.Since(start))
	return resp.Text, nil
}

// CompleteJSON runs Complete and decodes the reply into v after removing any
// markdown code fence around it.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string, v any) (string, error) {
	raw, err := c.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", err
	}
	cleaned := StripCodeFences(raw)
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return cleaned, fmt.Errorf("genai: decode JSON reply: %w", err)
	}
	return cleaned, nil
}

// StripCodeFences removes a surrounding ```json ... ``` block, if present.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func (c *Client) writeDebugLog(method string, params openai.ChatCompletionNewParams, resp openai.ChatCompletion) {
	if !c.debugMode || c.stateDir == "" {
		return
	}
	dir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Warn("Client.writeDebugLog: failed to create debug dir", "dir", dir, "error", err)
		return
	}
	entry := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"method":    method,
		"model":     c.model,
		"params":    params,
		"response":  resp,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("Client.writeDebugLog: failed to marshal entry", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%d.json", strings.ToLower(method), time.Now().UnixNano())
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		slog.Warn("Client.writeDebugLog: failed to write entry", "error", err)
	}
}
