package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/vantaloop/VantaLoop/internal/models"
	"github.com/vantaloop/VantaLoop/internal/util"
)

// sqlBackend holds the queries shared by the SQLite and PostgreSQL stores.
// Queries are written with ? placeholders and rebound for PostgreSQL.
type sqlBackend struct {
	db       *sql.DB
	name     string
	postgres bool
}

// rebind rewrites ? placeholders to $n when talking to PostgreSQL.
func (b *sqlBackend) rebind(query string) string {
	if !b.postgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (b *sqlBackend) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return b.db.ExecContext(ctx, b.rebind(query), args...)
}

func (b *sqlBackend) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return b.db.QueryRowContext(ctx, b.rebind(query), args...)
}

func (b *sqlBackend) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return b.db.QueryContext(ctx, b.rebind(query), args...)
}

// Close closes the underlying database connection.
func (b *sqlBackend) Close() error {
	return b.db.Close()
}

// --- conversations ---

func (b *sqlBackend) GetActiveConversation(ctx context.Context, phoneNumber string) (*models.Conversation, error) {
	row := b.queryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE phone_number = ? AND finalized = ?
		 ORDER BY created_at DESC LIMIT 1`,
		phoneNumber, false,
	)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(b.name+".GetActiveConversation failed", "error", err, "phone", util.MaskPhone(phoneNumber))
		return nil, fmt.Errorf("get active conversation: %w", err)
	}
	return c, nil
}

func (b *sqlBackend) CreateConversation(ctx context.Context, phoneNumber string) (string, error) {
	id := newID()
	now := time.Now().UTC()
	data, err := encodePartialData(models.PartialData{})
	if err != nil {
		return "", err
	}
	_, err = b.exec(ctx,
		`INSERT INTO conversations (`+conversationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, phoneNumber, string(models.StepAwaitingName), data, false, now, now,
	)
	if err != nil {
		slog.Error(b.name+".CreateConversation failed", "error", err, "phone", util.MaskPhone(phoneNumber))
		return "", fmt.Errorf("create conversation for %s: %w", util.MaskPhone(phoneNumber), err)
	}
	slog.Debug(b.name+".CreateConversation succeeded", "id", id, "phone", util.MaskPhone(phoneNumber))
	return id, nil
}

func (b *sqlBackend) UpdateConversation(ctx context.Context, id string, step models.Step, data models.PartialData) error {
	encoded, err := encodePartialData(data)
	if err != nil {
		return err
	}
	_, err = b.exec(ctx,
		`UPDATE conversations SET current_step = ?, partial_data = ?, updated_at = ?
		 WHERE id = ? AND finalized = ?`,
		string(step), encoded, time.Now().UTC(), id, false,
	)
	if err != nil {
		slog.Error(b.name+".UpdateConversation failed", "error", err, "id", id)
		return fmt.Errorf("update conversation %s: %w", id, err)
	}
	return nil
}

func (b *sqlBackend) FinalizeConversation(ctx context.Context, id string) error {
	_, err := b.exec(ctx,
		`UPDATE conversations SET finalized = ?, current_step = ?, updated_at = ? WHERE id = ?`,
		true, string(models.StepComplete), time.Now().UTC(), id,
	)
	if err != nil {
		slog.Error(b.name+".FinalizeConversation failed", "error", err, "id", id)
		return fmt.Errorf("finalize conversation %s: %w", id, err)
	}
	return nil
}

// --- intake submissions ---

func (b *sqlBackend) submissionIDForConversation(ctx context.Context, conversationID string) (string, error) {
	var id string
	err := b.queryRow(ctx, `SELECT id FROM intake_items WHERE conversation_id = ?`, conversationID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup submission for conversation %s: %w", conversationID, err)
	}
	return id, nil
}

func (b *sqlBackend) CreateSubmission(ctx context.Context, sub models.IntakeSubmission) (string, error) {
	if sub.ConversationID != "" {
		existing, err := b.submissionIDForConversation(ctx, sub.ConversationID)
		if err != nil {
			return "", err
		}
		if existing != "" {
			slog.Info(b.name+".CreateSubmission: submission already exists for conversation", "conversationID", sub.ConversationID, "id", existing)
			return existing, nil
		}
	}

	if sub.ID == "" {
		sub.ID = newID()
	}
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = sub.CreatedAt
	}
	if sub.Status == "" {
		sub.Status = models.IntakeStatusNew
	}
	if sub.WeekID == "" {
		sub.WeekID = models.WeekID(sub.CreatedAt)
	}

	res, err := b.exec(ctx,
		`INSERT INTO intake_items (`+submissionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		sub.ID, nilIfEmpty(sub.ConversationID), sub.SubmitterName, string(sub.Channel), nilIfEmpty(sub.PhoneNumber),
		string(sub.FeedbackType), sub.Subject,
		nullableString(sub.GoalOfShare), nullableString(sub.WhatsWorking), nullableString(sub.QuestionsRisks),
		nullableString(sub.Suggestions), nullableString(sub.DecisionNeeded),
		string(sub.Status), nilIfEmpty(sub.TriagedBy), nullableTime(sub.TriagedAt), nilIfEmpty(sub.TriageNotes),
		sub.WeekID, sub.CreatedAt.UTC(), sub.UpdatedAt.UTC(),
	)
	if err != nil {
		slog.Error(b.name+".CreateSubmission failed", "error", err, "conversationID", sub.ConversationID)
		return "", fmt.Errorf("insert submission: %w", err)
	}

	// Lost a race with a concurrent write for the same conversation.
	if n, _ := res.RowsAffected(); n == 0 && sub.ConversationID != "" {
		existing, err := b.submissionIDForConversation(ctx, sub.ConversationID)
		if err != nil {
			return "", err
		}
		if existing != "" {
			return existing, nil
		}
	}
	slog.Debug(b.name+".CreateSubmission succeeded", "id", sub.ID, "channel", sub.Channel)
	return sub.ID, nil
}

func (b *sqlBackend) GetSubmission(ctx context.Context, id string) (*models.IntakeSubmission, error) {
	sub, err := scanSubmission(b.queryRow(ctx, `SELECT `+submissionColumns+` FROM intake_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get submission %s: %w", id, err)
	}
	return sub, nil
}

func (b *sqlBackend) ListSubmissions(ctx context.Context, status models.IntakeStatus) ([]models.IntakeSubmission, error) {
	q := `SELECT ` + submissionColumns + ` FROM intake_items`
	var args []interface{}
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC`

	rows, err := b.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	subs := []models.IntakeSubmission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission row: %w", err)
		}
		subs = append(subs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submission rows: %w", err)
	}
	return subs, nil
}

func (b *sqlBackend) UpdateTriage(ctx context.Context, id string, status models.IntakeStatus, triagedBy, notes string, at time.Time) error {
	res, err := b.exec(ctx,
		`UPDATE intake_items SET status = ?, triaged_by = ?, triaged_at = ?, triage_notes = ?, updated_at = ? WHERE id = ?`,
		string(status), triagedBy, at.UTC(), nilIfEmpty(notes), at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update triage for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- register ---

func (b *sqlBackend) CreateRegisterItem(ctx context.Context, item models.RegisterItem) (string, error) {
	if item.IntakeItemID != "" {
		var existing string
		err := b.queryRow(ctx, `SELECT id FROM register_items WHERE intake_item_id = ?`, item.IntakeItemID).Scan(&existing)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("lookup register item for intake %s: %w", item.IntakeItemID, err)
		}
	}
	if item.ID == "" {
		item.ID = newID()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}
	if item.Priority == "" {
		item.Priority = models.PriorityP2
	}
	if item.ColumnStatus == "" {
		item.ColumnStatus = models.ColumnBacklog
	}
	_, err := b.exec(ctx,
		`INSERT INTO register_items (`+registerColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		registerArgs(item)...,
	)
	if err != nil {
		slog.Error(b.name+".CreateRegisterItem failed", "error", err, "intakeItemID", item.IntakeItemID)
		return "", fmt.Errorf("insert register item: %w", err)
	}
	return item.ID, nil
}

func registerArgs(item models.RegisterItem) []interface{} {
	return []interface{}{
		item.ID, nilIfEmpty(item.IntakeItemID), item.Title, nilIfEmpty(item.EpicID),
		string(item.Priority), string(item.FeedbackType), string(item.ColumnStatus), nilIfEmpty(item.Assignee),
		nullableString(item.GoalOfShare), nullableString(item.WhatsWorking), nullableString(item.QuestionsRisks),
		nullableString(item.Suggestions), nullableString(item.DecisionNeeded),
		nullableString(item.Decision), nullableString(item.DecisionRationale),
		nilIfEmpty(item.PromotedBy), nullableTime(item.PromotedAt), item.CreatedAt.UTC(), item.UpdatedAt.UTC(),
	}
}

func (b *sqlBackend) GetRegisterItem(ctx context.Context, id string) (*models.RegisterItem, error) {
	it, err := scanRegisterItem(b.queryRow(ctx, `SELECT `+registerColumns+` FROM register_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get register item %s: %w", id, err)
	}
	return it, nil
}

func (b *sqlBackend) ListRegisterItems(ctx context.Context, column models.ColumnStatus) ([]models.RegisterItem, error) {
	q := `SELECT ` + registerColumns + ` FROM register_items`
	var args []interface{}
	if column != "" {
		q += ` WHERE column_status = ?`
		args = append(args, string(column))
	}
	q += ` ORDER BY created_at DESC`

	rows, err := b.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list register items: %w", err)
	}
	defer rows.Close()

	items := []models.RegisterItem{}
	for rows.Next() {
		it, err := scanRegisterItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan register row: %w", err)
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate register rows: %w", err)
	}
	return items, nil
}

func (b *sqlBackend) SaveRegisterItem(ctx context.Context, item models.RegisterItem) error {
	res, err := b.exec(ctx,
		`UPDATE register_items SET title = ?, epic_id = ?, priority = ?, column_status = ?, assignee = ?,
		 decision = ?, decision_rationale = ?, updated_at = ? WHERE id = ?`,
		item.Title, nilIfEmpty(item.EpicID), string(item.Priority), string(item.ColumnStatus), nilIfEmpty(item.Assignee),
		nullableString(item.Decision), nullableString(item.DecisionRationale), item.UpdatedAt.UTC(), item.ID,
	)
	if err != nil {
		return fmt.Errorf("save register item %s: %w", item.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *sqlBackend) AddComment(ctx context.Context, c models.Comment) (string, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := b.exec(ctx,
		`INSERT INTO comments (id, register_item_id, author_name, author_team, text, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.RegisterItemID, nilIfEmpty(c.AuthorName), string(c.AuthorTeam), c.Text, c.CreatedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert comment on %s: %w", c.RegisterItemID, err)
	}
	return c.ID, nil
}

func (b *sqlBackend) ListComments(ctx context.Context, registerItemID string) ([]models.Comment, error) {
	rows, err := b.query(ctx,
		`SELECT id, register_item_id, author_name, author_team, text, created_at
		 FROM comments WHERE register_item_id = ? ORDER BY created_at ASC`,
		registerItemID,
	)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment row: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comment rows: %w", err)
	}
	return comments, nil
}

// --- outbox ---

const outboxColumns = `id, recipient, kind, body, status, attempts, next_attempt_at, dedupe_key, locked_at, last_error, created_at, updated_at`

func (b *sqlBackend) EnqueueOutboxMessage(ctx context.Context, recipient, kind, body, dedupeKey string) (string, error) {
	id := outboxIDPrefix + newID()
	now := time.Now().UTC()

	if dedupeKey != "" {
		var existingID string
		err := b.queryRow(ctx,
			`SELECT id FROM outbox_messages WHERE dedupe_key = ? AND status NOT IN ('failed', 'canceled')`,
			dedupeKey,
		).Scan(&existingID)
		if err == nil {
			slog.Debug(b.name+".EnqueueOutboxMessage: dedupe hit", "dedupeKey", dedupeKey, "existingID", existingID)
			return existingID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("outbox dedupe check failed: %w", err)
		}
	}

	_, err := b.exec(ctx,
		`INSERT INTO outbox_messages (id, recipient, kind, body, status, attempts, dedupe_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?)`,
		id, recipient, kind, body, nilIfEmpty(dedupeKey), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue outbox message failed: %w", err)
	}
	slog.Debug(b.name+".EnqueueOutboxMessage", "id", id, "recipient", util.MaskPhone(recipient), "kind", kind)
	return id, nil
}

func (b *sqlBackend) ClaimDueOutboxMessages(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error) {
	now = now.UTC()
	var rows *sql.Rows
	var err error
	if b.postgres {
		rows, err = b.query(ctx,
			`UPDATE outbox_messages SET status = 'sending', locked_at = ?, updated_at = ?
			 WHERE id IN (
			   SELECT id FROM outbox_messages WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
			   ORDER BY created_at ASC LIMIT ?
			   FOR UPDATE SKIP LOCKED
			 )
			 RETURNING `+outboxColumns,
			now, now, now, limit,
		)
	} else {
		rows, err = b.query(ctx,
			`SELECT `+outboxColumns+` FROM outbox_messages
			 WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
			 ORDER BY created_at ASC LIMIT ?`,
			now, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("claim due outbox messages failed: %w", err)
	}

	var msgs []OutboxMessage
	for rows.Next() {
		m, err := scanOutboxMessage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		msgs = append(msgs, m)
	}
	iterErr := rows.Err()
	rows.Close()
	if iterErr != nil {
		return nil, fmt.Errorf("claim outbox iteration failed: %w", iterErr)
	}
	if b.postgres {
		return msgs, nil
	}

	for i := range msgs {
		_, err := b.exec(ctx,
			`UPDATE outbox_messages SET status = 'sending', locked_at = ?, updated_at = ? WHERE id = ?`,
			now, now, msgs[i].ID,
		)
		if err != nil {
			return nil, fmt.Errorf("mark outbox sending failed: %w", err)
		}
		msgs[i].Status = OutboxStatusSending
		msgs[i].LockedAt = &now
	}
	return msgs, nil
}

func (b *sqlBackend) MarkOutboxMessageSent(ctx context.Context, id string) error {
	_, err := b.exec(ctx,
		`UPDATE outbox_messages SET status = 'sent', locked_at = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox sent failed: %w", err)
	}
	return nil
}

func (b *sqlBackend) FailOutboxMessage(ctx context.Context, id string, errMsg string, nextAttemptAt time.Time, maxAttempts int) error {
	_, err := b.exec(ctx,
		`UPDATE outbox_messages
		 SET status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE 'queued' END,
		     attempts = attempts + 1, last_error = ?, next_attempt_at = ?, locked_at = NULL, updated_at = ?
		 WHERE id = ?`,
		maxAttempts, errMsg, nextAttemptAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("fail outbox message failed: %w", err)
	}
	return nil
}

func (b *sqlBackend) RequeueStaleSendingMessages(ctx context.Context, staleBefore time.Time) (int, error) {
	result, err := b.exec(ctx,
		`UPDATE outbox_messages SET status = 'queued', locked_at = NULL, updated_at = ? WHERE status = 'sending' AND locked_at < ?`,
		time.Now().UTC(), staleBefore.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale outbox messages failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info(b.name+".RequeueStaleSendingMessages", "requeued", n)
	}
	return int(n), nil
}
