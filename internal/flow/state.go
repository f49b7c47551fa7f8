package flow

import (
	"context"

	"github.com/vantaloop/VantaLoop/internal/models"
)

// ConversationStore persists SMS intake conversations between turns.
type ConversationStore interface {
	// GetActiveConversation returns the most recent non-finalized conversation
	// for phoneNumber, or nil when there is none.
	GetActiveConversation(ctx context.Context, phoneNumber string) (*models.Conversation, error)

	// CreateConversation opens a conversation at awaiting-name with empty data.
	CreateConversation(ctx context.Context, phoneNumber string) (string, error)

	// UpdateConversation replaces step and data. No-op on finalized conversations.
	UpdateConversation(ctx context.Context, id string, step models.Step, data models.PartialData) error

	// FinalizeConversation marks the conversation finalized at step complete.
	FinalizeConversation(ctx context.Context, id string) error
}

// SubmissionSink receives finalized intake submissions. Implementations must
// be idempotent on a non-empty ConversationID: a second call for the same
// conversation returns the existing submission id.
type SubmissionSink interface {
	CreateSubmission(ctx context.Context, sub models.IntakeSubmission) (string, error)
}
