package digest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vantaloop/VantaLoop/internal/models"
)

// NoCommentsSummary is returned when a register item has no comments.
const NoCommentsSummary = "No comments to summarize."

// CommentLister lists the comments on a register item, oldest first.
type CommentLister interface {
	ListComments(ctx context.Context, registerItemID string) ([]models.Comment, error)
}

// Summarizer condenses a register item's discussion thread.
type Summarizer struct {
	comments CommentLister
	ai       Completer
}

// NewSummarizer creates a Summarizer. ai may be nil, in which case only
// threads without comments can be summarized.
func NewSummarizer(comments CommentLister, ai Completer) *Summarizer {
	return &Summarizer{comments: comments, ai: ai}
}

// Summarize returns a 2-3 sentence summary of the comments on registerItemID.
func (s *Summarizer) Summarize(ctx context.Context, registerItemID string) (string, error) {
	comments, err := s.comments.ListComments(ctx, registerItemID)
	if err != nil {
		return "", fmt.Errorf("digest: list comments: %w", err)
	}
	if len(comments) == 0 {
		return NoCommentsSummary, nil
	}
	if s.ai == nil {
		return "", ErrAIUnavailable
	}

	var b strings.Builder
	for _, c := range comments {
		fmt.Fprintf(&b, "[%s (%s)]: %s\n", c.AuthorName, c.AuthorTeam, c.Text)
	}
	prompt := "Analyze this design feedback discussion thread and provide a concise 2-3 sentence summary. " +
		"Highlight key themes, any disagreements between commenters, and action items that emerged.\n\n" +
		"Comments:\n" + b.String() +
		"\nReturn ONLY a JSON object with a single \"summary\" field containing your analysis."

	var out struct {
		Summary string `json:"summary"`
	}
	raw, err := s.ai.CompleteJSON(ctx, analystSystemPrompt, prompt, &out)
	if err != nil {
		if raw == "" {
			return "", fmt.Errorf("digest: summarize comments: %w", err)
		}
		slog.Debug("Summarizer.Summarize: reply was not JSON, returning it verbatim", "registerItemID", registerItemID)
		return raw, nil
	}
	if strings.TrimSpace(out.Summary) == "" {
		return raw, nil
	}
	return out.Summary, nil
}
