package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vantaloop/VantaLoop/internal/models"
)

// Defaults applied to fields the sender never provided.
const (
	DefaultSubmitterName = "Unknown"
	DefaultSubject       = "SMS Feedback"
)

// Finalizer turns a completed conversation into an intake submission and
// closes the conversation once the submission write is confirmed.
type Finalizer struct {
	sink  SubmissionSink
	store ConversationStore
	now   func() time.Time
}

// FinalizerOption configures a Finalizer.
type FinalizerOption func(*Finalizer)

// WithClock overrides the time source used for timestamps and week ids.
func WithClock(now func() time.Time) FinalizerOption {
	return func(f *Finalizer) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFinalizer creates a Finalizer writing to sink and closing conversations in store.
func NewFinalizer(sink SubmissionSink, store ConversationStore, opts ...FinalizerOption) *Finalizer {
	f := &Finalizer{sink: sink, store: store, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// BuildSubmission maps partial data onto an SMS-channel submission, applying
// defaults and dropping empty narrative answers.
func (f *Finalizer) BuildSubmission(conv *models.Conversation, data models.PartialData) models.IntakeSubmission {
	now := f.now()
	feedbackType := models.FeedbackTypeGeneral
	if data.FeedbackType != nil && models.IsValidFeedbackType(*data.FeedbackType) {
		feedbackType = *data.FeedbackType
	}
	return models.IntakeSubmission{
		ConversationID: conv.ID,
		SubmitterName:  truncate(orDefault(data.SubmitterName, DefaultSubmitterName), models.MaxNameLength),
		Channel:        models.ChannelSMS,
		PhoneNumber:    conv.PhoneNumber,
		FeedbackType:   feedbackType,
		Subject:        truncate(orDefault(data.Subject, DefaultSubject), models.MaxSubjectLength),
		GoalOfShare:    narrative(data.GoalOfShare),
		WhatsWorking:   narrative(data.WhatsWorking),
		QuestionsRisks: narrative(data.QuestionsRisks),
		Suggestions:    narrative(data.Suggestions),
		DecisionNeeded: narrative(data.DecisionNeeded),
		Status:         models.IntakeStatusNew,
		WeekID:         models.WeekID(now),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Finalize writes the submission and then finalizes the conversation. If the
// finalize step fails the conversation stays open; a retry reuses the
// submission already written for this conversation.
func (f *Finalizer) Finalize(ctx context.Context, conv *models.Conversation, data models.PartialData) (string, error) {
	if conv == nil {
		return "", errors.New("finalizer: conversation is nil")
	}
	if conv.Finalized {
		return "", models.ErrConversationFinished
	}

	sub := f.BuildSubmission(conv, data)
	if err := sub.Validate(); err != nil {
		slog.Error("Finalizer.Finalize: submission failed validation", "conversationID", conv.ID, "error", err)
		return "", fmt.Errorf("validate submission: %w", err)
	}

	id, err := f.sink.CreateSubmission(ctx, sub)
	if err != nil {
		slog.Error("Finalizer.Finalize: failed to create submission", "conversationID", conv.ID, "error", err)
		return "", fmt.Errorf("create submission: %w", err)
	}

	if err := f.store.FinalizeConversation(ctx, conv.ID); err != nil {
		slog.Error("Finalizer.Finalize: submission stored but conversation not finalized", "conversationID", conv.ID, "submissionID", id, "error", err)
		return id, fmt.Errorf("finalize conversation: %w", err)
	}

	slog.Info("Finalizer.Finalize: submission created", "conversationID", conv.ID, "submissionID", id, "feedbackType", sub.FeedbackType)
	return id, nil
}

func orDefault(s *string, def string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return def
	}
	return *s
}

func narrative(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return models.StringPtr(truncate(*s, models.MaxNarrativeLength))
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
