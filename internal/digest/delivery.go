package digest

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/vantaloop/VantaLoop/internal/models"
	"github.com/vantaloop/VantaLoop/internal/util"
)

const (
	// OutboxKind tags digest messages in the outbox.
	OutboxKind = "digest"

	// maxSMSLength is Twilio's limit for a single message body.
	maxSMSLength = 1600
)

// Enqueuer queues an outbound message. A non-empty dedupeKey that is already
// queued or sent returns the existing message id.
type Enqueuer interface {
	EnqueueOutboxMessage(ctx context.Context, recipient, kind, body, dedupeKey string) (string, error)
}

// Job generates the weekly digest and queues it for every recipient.
type Job struct {
	generator  *Generator
	outbox     Enqueuer
	recipients []string
}

// NewJob creates a Job. Recipients must already be canonicalized.
func NewJob(generator *Generator, outbox Enqueuer, recipients []string) *Job {
	return &Job{generator: generator, outbox: outbox, recipients: recipients}
}

// DedupeKey identifies one recipient's digest for one week.
func DedupeKey(weekOf, recipient string) string {
	return fmt.Sprintf("digest:%s:%s", weekOf, recipient)
}

// Run generates the digest and enqueues it, returning the number of
// recipients queued. Running twice in one week queues nothing new.
func (j *Job) Run(ctx context.Context) (int, error) {
	if len(j.recipients) == 0 {
		slog.Debug("Job.Run: no digest recipients configured")
		return 0, nil
	}
	d, err := j.generator.Generate(ctx)
	if err != nil {
		return 0, err
	}
	body := FormatSMS(d)

	queued := 0
	var firstErr error
	for _, r := range j.recipients {
		if _, err := j.outbox.EnqueueOutboxMessage(ctx, r, OutboxKind, body, DedupeKey(d.WeekOf, r)); err != nil {
			slog.Error("Job.Run: enqueue digest failed", "recipient", util.MaskPhone(r), "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("digest: enqueue for %s: %w", util.MaskPhone(r), err)
			}
			continue
		}
		queued++
	}
	slog.Info("Job.Run: weekly digest queued", "weekOf", d.WeekOf, "recipients", queued, "aiGenerated", d.AIGenerated)
	return queued, firstErr
}

// FormatSMS renders a digest as a single text message.
func FormatSMS(d models.Digest) string {
	body := fmt.Sprintf("VantaLoop digest, week of %s\n%s\nOpen: %d | Stale: %d | Decisions: %d | New: %d",
		d.WeekOf, d.Summary, len(d.OpenItems), len(d.StaleItems), len(d.DecisionsThisWeek), len(d.NewConcepts))
	if len(body) <= maxSMSLength {
		return body
	}
	cut := maxSMSLength - len("...")
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "..."
}
