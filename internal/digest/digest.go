// Package digest builds the weekly register digest and comment summaries.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vantaloop/VantaLoop/internal/models"
)

const (
	// EmptyRegisterSummary is the digest summary when the register has no items.
	EmptyRegisterSummary = "No feedback items in the register yet."

	// DefaultStaleAfter is how long an open item may sit unchanged before it is stale.
	DefaultStaleAfter = 5 * 24 * time.Hour

	analystSystemPrompt = "You are a design operations analyst. Return only valid JSON."
)

// ErrAIUnavailable is returned when an operation requires the AI client and none is configured.
var ErrAIUnavailable = errors.New("digest: AI client not configured")

// Completer asks a language model for a JSON reply and decodes it into v.
// The cleaned raw reply is returned even when decoding fails.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string, v any) (string, error)
}

// RegisterLister lists register items, newest first. An empty column lists all.
type RegisterLister interface {
	ListRegisterItems(ctx context.Context, column models.ColumnStatus) ([]models.RegisterItem, error)
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// WithStaleAfter overrides DefaultStaleAfter.
func WithStaleAfter(d time.Duration) GeneratorOption {
	return func(g *Generator) { g.staleAfter = d }
}

// Generator produces the weekly digest, preferring an AI summary and falling
// back to a digest computed from the register alone.
type Generator struct {
	items      RegisterLister
	ai         Completer
	now        func() time.Time
	staleAfter time.Duration
}

// NewGenerator creates a Generator. ai may be nil.
func NewGenerator(items RegisterLister, ai Completer, opts ...GeneratorOption) *Generator {
	g := &Generator{
		items:      items,
		ai:         ai,
		now:        func() time.Time { return time.Now().UTC() },
		staleAfter: DefaultStaleAfter,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WeekOf returns the Monday of t's week as YYYY-MM-DD.
func WeekOf(t time.Time) string {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset).Format("2006-01-02")
}

type aiDigest struct {
	Summary           string   `json:"summary"`
	NewConcepts       []string `json:"newConcepts"`
	DecisionsThisWeek []string `json:"decisionsThisWeek"`
	OpenItems         []string `json:"openItems"`
	StaleItems        []string `json:"staleItems"`
}

// Generate builds the digest for the current week.
func (g *Generator) Generate(ctx context.Context) (models.Digest, error) {
	now := g.now()
	items, err := g.items.ListRegisterItems(ctx, "")
	if err != nil {
		return models.Digest{}, fmt.Errorf("digest: list register items: %w", err)
	}

	base := models.Digest{
		NewConcepts:       []string{},
		DecisionsThisWeek: []string{},
		OpenItems:         []string{},
		StaleItems:        []string{},
		WeekOf:            WeekOf(now),
		GeneratedAt:       now,
	}
	if len(items) == 0 {
		base.Summary = EmptyRegisterSummary
		return base, nil
	}

	if g.ai == nil {
		return g.staticDigest(base, items, ""), nil
	}

	var out aiDigest
	raw, err := g.ai.CompleteJSON(ctx, analystSystemPrompt, g.prompt(items, now), &out)
	if err != nil {
		if raw == "" {
			slog.Warn("Generator.Generate: AI digest failed, using static digest", "error", err)
			return g.staticDigest(base, items, " AI summary unavailable."), nil
		}
		slog.Warn("Generator.Generate: AI reply was not JSON, using it as the summary", "error", err)
		base.Summary = raw
		base.AIGenerated = true
		return base, nil
	}

	base.Summary = out.Summary
	base.NewConcepts = nonNil(out.NewConcepts)
	base.DecisionsThisWeek = nonNil(out.DecisionsThisWeek)
	base.OpenItems = nonNil(out.OpenItems)
	base.StaleItems = nonNil(out.StaleItems)
	base.AIGenerated = true
	slog.Info("Generator.Generate: AI digest generated", "items", len(items), "weekOf", base.WeekOf)
	return base, nil
}

func (g *Generator) prompt(items []models.RegisterItem, now time.Time) string {
	var b strings.Builder
	b.WriteString("Analyze these feedback register items and generate a weekly digest.\n\nItems:\n")
	for _, it := range items {
		epic := it.EpicID
		if epic == "" {
			epic = "none"
		}
		decision := models.StringValue(it.Decision)
		if decision == "" {
			decision = "pending"
		}
		fmt.Fprintf(&b, "- %q (%s, %s, epic: %s): Goal: %s. Decision needed: %s. Decision: %s. Updated: %s\n",
			it.Title, it.ColumnStatus, it.Priority, epic,
			orNA(it.GoalOfShare), orNA(it.DecisionNeeded), decision,
			it.UpdatedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "\nToday's date: %s\n\n", now.Format("2006-01-02"))
	b.WriteString(`Generate a JSON response with these fields:
- summary: A 2-3 sentence executive summary of the week's design feedback activity
- newConcepts: Array of strings describing new items waiting in the "backlog" column
- decisionsThisWeek: Array of strings describing decisions recorded on items
- openItems: Array of strings describing open items awaiting action
- staleItems: Array of strings describing open items that haven't moved in 5+ days

Return ONLY valid JSON, no markdown.`)
	return b.String()
}

func (g *Generator) staticDigest(d models.Digest, items []models.RegisterItem, note string) models.Digest {
	now := d.GeneratedAt
	d.Summary = fmt.Sprintf("This week the register contains %d items across various stages.%s", len(items), note)
	for _, it := range items {
		decision := models.StringValue(it.Decision)
		if it.ColumnStatus == models.ColumnBacklog {
			d.NewConcepts = append(d.NewConcepts, fmt.Sprintf("%s (%s)", it.Title, it.Priority))
		}
		if decision != "" {
			d.DecisionsThisWeek = append(d.DecisionsThisWeek, fmt.Sprintf("%s: %s", it.Title, decision))
		}
		if !it.ColumnStatus.IsOpen() {
			continue
		}
		if decision == "" {
			needed := models.StringValue(it.DecisionNeeded)
			if needed == "" {
				needed = "pending"
			}
			d.OpenItems = append(d.OpenItems, fmt.Sprintf("%s -- %s", it.Title, needed))
		}
		if now.Sub(it.UpdatedAt) >= g.staleAfter {
			days := int(now.Sub(it.UpdatedAt).Hours() / 24)
			d.StaleItems = append(d.StaleItems, fmt.Sprintf("%s (no movement for %d days)", it.Title, days))
		}
	}
	return d
}

func orNA(s *string) string {
	if v := models.StringValue(s); v != "" {
		return v
	}
	return "N/A"
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
