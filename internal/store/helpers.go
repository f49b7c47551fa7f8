package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vantaloop/VantaLoop/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullableString maps an optional narrative field to a nullable column value.
func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// nullableTime maps an optional timestamp to a nullable column value.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

func encodePartialData(d models.PartialData) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode partial data: %w", err)
	}
	return string(b), nil
}

func decodePartialData(s string) (models.PartialData, error) {
	var d models.PartialData
	if strings.TrimSpace(s) == "" {
		return d, nil
	}
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return d, fmt.Errorf("decode partial data: %w", err)
	}
	return d, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const conversationColumns = `id, phone_number, current_step, partial_data, finalized, created_at, updated_at`

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var c models.Conversation
	var step, data string
	if err := row.Scan(&c.ID, &c.PhoneNumber, &step, &data, &c.Finalized, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.CurrentStep = models.Step(step)
	applyPartialData(&c, data)
	return &c, nil
}

// applyPartialData decodes raw into c. Unreadable data clears the step and
// the collected fields so the next message restarts at awaiting-name.
func applyPartialData(c *models.Conversation, raw string) {
	pd, err := decodePartialData(raw)
	if err != nil {
		slog.Warn("store: unreadable partial data, restarting conversation", "conversationID", c.ID, "error", err)
		c.CurrentStep = ""
		c.PartialData = models.PartialData{}
		return
	}
	c.PartialData = pd
}

const submissionColumns = `id, conversation_id, submitter_name, channel, phone_number, feedback_type, subject,
	goal_of_share, whats_working, questions_risks, suggestions, decision_needed,
	status, triaged_by, triaged_at, triage_notes, week_id, created_at, updated_at`

func scanSubmission(row rowScanner) (*models.IntakeSubmission, error) {
	var s models.IntakeSubmission
	var convID, phone, triagedBy, notes sql.NullString
	var goal, working, risks, suggestions, decision sql.NullString
	var triagedAt sql.NullTime
	var channel, feedbackType, status string
	err := row.Scan(
		&s.ID, &convID, &s.SubmitterName, &channel, &phone, &feedbackType, &s.Subject,
		&goal, &working, &risks, &suggestions, &decision,
		&status, &triagedBy, &triagedAt, &notes, &s.WeekID, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.ConversationID = convID.String
	s.PhoneNumber = phone.String
	s.Channel = models.Channel(channel)
	s.FeedbackType = models.FeedbackType(feedbackType)
	s.GoalOfShare = stringPtr(goal)
	s.WhatsWorking = stringPtr(working)
	s.QuestionsRisks = stringPtr(risks)
	s.Suggestions = stringPtr(suggestions)
	s.DecisionNeeded = stringPtr(decision)
	s.Status = models.IntakeStatus(status)
	s.TriagedBy = triagedBy.String
	s.TriagedAt = timePtr(triagedAt)
	s.TriageNotes = notes.String
	return &s, nil
}

const registerColumns = `id, intake_item_id, title, epic_id, priority, feedback_type, column_status, assignee,
	goal_of_share, whats_working, questions_risks, suggestions, decision_needed,
	decision, decision_rationale, promoted_by, promoted_at, created_at, updated_at`

func scanRegisterItem(row rowScanner) (*models.RegisterItem, error) {
	var it models.RegisterItem
	var intakeID, epicID, assignee, promotedBy sql.NullString
	var goal, working, risks, suggestions, decisionNeeded, decision, rationale sql.NullString
	var promotedAt sql.NullTime
	var priority, feedbackType, column string
	err := row.Scan(
		&it.ID, &intakeID, &it.Title, &epicID, &priority, &feedbackType, &column, &assignee,
		&goal, &working, &risks, &suggestions, &decisionNeeded,
		&decision, &rationale, &promotedBy, &promotedAt, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	it.IntakeItemID = intakeID.String
	it.EpicID = epicID.String
	it.Priority = models.Priority(priority)
	it.FeedbackType = models.FeedbackType(feedbackType)
	it.ColumnStatus = models.ColumnStatus(column)
	it.Assignee = assignee.String
	it.GoalOfShare = stringPtr(goal)
	it.WhatsWorking = stringPtr(working)
	it.QuestionsRisks = stringPtr(risks)
	it.Suggestions = stringPtr(suggestions)
	it.DecisionNeeded = stringPtr(decisionNeeded)
	it.Decision = stringPtr(decision)
	it.DecisionRationale = stringPtr(rationale)
	it.PromotedBy = promotedBy.String
	it.PromotedAt = timePtr(promotedAt)
	return &it, nil
}

func scanComment(row rowScanner) (models.Comment, error) {
	var c models.Comment
	var authorName sql.NullString
	var team string
	if err := row.Scan(&c.ID, &c.RegisterItemID, &authorName, &team, &c.Text, &c.CreatedAt); err != nil {
		return c, err
	}
	c.AuthorName = authorName.String
	c.AuthorTeam = models.AuthorTeam(team)
	return c, nil
}

func scanOutboxMessage(row rowScanner) (OutboxMessage, error) {
	var m OutboxMessage
	var dedupeKey, lastError sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := row.Scan(
		&m.ID, &m.Recipient, &m.Kind, &m.Body, &m.Status, &m.Attempts,
		&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, fmt.Errorf("scan outbox message failed: %w", err)
	}
	m.DedupeKey = dedupeKey.String
	m.LastError = lastError.String
	m.NextAttemptAt = timePtr(nextAttemptAt)
	m.LockedAt = timePtr(lockedAt)
	return m, nil
}
