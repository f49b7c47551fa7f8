package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vantaloop/VantaLoop/internal/models"
	"github.com/vantaloop/VantaLoop/internal/util"
)

// Engine drives one SMS intake turn: load or open the sender's conversation,
// apply the transition table, then persist or finalize.
type Engine struct {
	store     ConversationStore
	finalizer *Finalizer
}

// NewEngine creates an Engine. The finalizer defaults to one built on store and sink.
func NewEngine(store ConversationStore, sink SubmissionSink, opts ...FinalizerOption) *Engine {
	return &Engine{
		store:     store,
		finalizer: NewFinalizer(sink, store, opts...),
	}
}

// Handle processes one inbound message and returns the reply text. The body
// is expected to be trimmed by the caller; Transition trims again regardless.
func (e *Engine) Handle(ctx context.Context, phoneNumber, body string) (string, error) {
	if phoneNumber == "" {
		return "", errors.New("engine: phone number is required")
	}

	conv, err := e.store.GetActiveConversation(ctx, phoneNumber)
	if err != nil {
		return "", fmt.Errorf("load conversation: %w", err)
	}

	if conv == nil {
		id, err := e.store.CreateConversation(ctx, phoneNumber)
		if err != nil {
			return "", fmt.Errorf("create conversation: %w", err)
		}
		slog.Info("Engine.Handle: started conversation", "conversationID", id, "phone", util.MaskPhone(phoneNumber))
		return Restart(models.PartialData{}).Reply, nil
	}

	if !models.IsValidStep(conv.CurrentStep) {
		slog.Warn("Engine.Handle: unrecognized stored step, restarting", "conversationID", conv.ID, "step", conv.CurrentStep)
	}

	res := Transition(conv.CurrentStep, body, conv.PartialData)
	slog.Debug("Engine.Handle: transition", "conversationID", conv.ID, "from", conv.CurrentStep, "to", res.Next)

	if res.Terminal() {
		if _, err := e.finalizer.Finalize(ctx, conv, res.Data); err != nil {
			return "", err
		}
		return res.Reply, nil
	}

	if err := e.store.UpdateConversation(ctx, conv.ID, res.Next, res.Data); err != nil {
		return "", fmt.Errorf("update conversation: %w", err)
	}
	return res.Reply, nil
}
