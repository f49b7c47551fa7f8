// Package models defines the curated feedback register.
package models

import (
	"strings"
	"time"
)

// Priority ranks register items, P0 being the most urgent.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

// IsValidPriority checks if the given priority is supported.
func IsValidPriority(p Priority) bool {
	switch p {
	case PriorityP0, PriorityP1, PriorityP2, PriorityP3:
		return true
	default:
		return false
	}
}

// ColumnStatus is the Kanban column a register item sits in.
type ColumnStatus string

const (
	ColumnBacklog    ColumnStatus = "backlog"
	ColumnInProgress ColumnStatus = "in-progress"
	ColumnResolved   ColumnStatus = "resolved"
	ColumnArchived   ColumnStatus = "archived"
)

// IsValidColumnStatus checks if the given column is a board column.
func IsValidColumnStatus(c ColumnStatus) bool {
	switch c {
	case ColumnBacklog, ColumnInProgress, ColumnResolved, ColumnArchived:
		return true
	default:
		return false
	}
}

// IsOpen reports whether items in this column still await action.
func (c ColumnStatus) IsOpen() bool {
	return c != ColumnResolved && c != ColumnArchived
}

// RegisterItem is a curated, actionable piece of feedback promoted from intake.
type RegisterItem struct {
	ID                string       `json:"id"`
	IntakeItemID      string       `json:"intake_item_id,omitempty"`
	Title             string       `json:"title"`
	EpicID            string       `json:"epic_id,omitempty"`
	Priority          Priority     `json:"priority"`
	FeedbackType      FeedbackType `json:"feedback_type"`
	ColumnStatus      ColumnStatus `json:"column_status"`
	Assignee          string       `json:"assignee,omitempty"`
	GoalOfShare       *string      `json:"goal_of_share,omitempty"`
	WhatsWorking      *string      `json:"whats_working,omitempty"`
	QuestionsRisks    *string      `json:"questions_risks,omitempty"`
	Suggestions       *string      `json:"suggestions,omitempty"`
	DecisionNeeded    *string      `json:"decision_needed,omitempty"`
	Decision          *string      `json:"decision,omitempty"`
	DecisionRationale *string      `json:"decision_rationale,omitempty"`
	PromotedBy        string       `json:"promoted_by,omitempty"`
	PromotedAt        *time.Time   `json:"promoted_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// RegisterItemFromSubmission builds the register entry created when a submission is promoted.
func RegisterItemFromSubmission(sub IntakeSubmission, promotedBy string, now time.Time) RegisterItem {
	return RegisterItem{
		IntakeItemID:   sub.ID,
		Title:          sub.Subject,
		Priority:       PriorityP2,
		FeedbackType:   sub.FeedbackType,
		ColumnStatus:   ColumnBacklog,
		GoalOfShare:    sub.GoalOfShare,
		WhatsWorking:   sub.WhatsWorking,
		QuestionsRisks: sub.QuestionsRisks,
		Suggestions:    sub.Suggestions,
		DecisionNeeded: sub.DecisionNeeded,
		PromotedBy:     promotedBy,
		PromotedAt:     &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// RegisterItemUpdate represents a partial update of a register item. Nil fields are left untouched.
type RegisterItemUpdate struct {
	Title             *string       `json:"title,omitempty"`
	Priority          *Priority     `json:"priority,omitempty"`
	ColumnStatus      *ColumnStatus `json:"columnStatus,omitempty"`
	Assignee          *string       `json:"assignee,omitempty"`
	EpicID            *string       `json:"epicId,omitempty"`
	Decision          *string       `json:"decision,omitempty"`
	DecisionRationale *string       `json:"decisionRationale,omitempty"`
}

// Validate validates a RegisterItemUpdate.
func (u *RegisterItemUpdate) Validate() error {
	if u.Title != nil {
		if strings.TrimSpace(*u.Title) == "" {
			return ErrEmptySubject
		}
		if len(*u.Title) > MaxSubjectLength {
			return ErrSubjectTooLong
		}
	}
	if u.Priority != nil && !IsValidPriority(*u.Priority) {
		return ErrInvalidPriority
	}
	if u.ColumnStatus != nil && !IsValidColumnStatus(*u.ColumnStatus) {
		return ErrInvalidColumnStatus
	}
	return nil
}

// Apply copies the set fields of u onto item.
func (u *RegisterItemUpdate) Apply(item *RegisterItem, now time.Time) {
	if u.Title != nil {
		item.Title = *u.Title
	}
	if u.Priority != nil {
		item.Priority = *u.Priority
	}
	if u.ColumnStatus != nil {
		item.ColumnStatus = *u.ColumnStatus
	}
	if u.Assignee != nil {
		item.Assignee = *u.Assignee
	}
	if u.EpicID != nil {
		item.EpicID = *u.EpicID
	}
	if u.Decision != nil {
		item.Decision = u.Decision
	}
	if u.DecisionRationale != nil {
		item.DecisionRationale = u.DecisionRationale
	}
	item.UpdatedAt = now
}

// AuthorTeam identifies which side of the engagement wrote a comment.
type AuthorTeam string

const (
	AuthorTeamVanta   AuthorTeam = "Vanta"
	AuthorTeamMetalab AuthorTeam = "Metalab"
)

// Comment is one entry in a register item's discussion thread.
type Comment struct {
	ID             string     `json:"id"`
	RegisterItemID string     `json:"register_item_id"`
	AuthorName     string     `json:"author_name"`
	AuthorTeam     AuthorTeam `json:"author_team"`
	Text           string     `json:"text"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CommentRequest represents the payload for adding a comment.
type CommentRequest struct {
	AuthorName string     `json:"authorName"`
	AuthorTeam AuthorTeam `json:"authorTeam"`
	Text       string     `json:"text"`
}

// Validate validates a CommentRequest.
func (r *CommentRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyCommentText
	}
	if r.AuthorTeam != AuthorTeamVanta && r.AuthorTeam != AuthorTeamMetalab {
		return ErrInvalidAuthorTeam
	}
	if len(r.AuthorName) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// Digest is the weekly summary of register activity.
type Digest struct {
	Summary           string    `json:"summary"`
	NewConcepts       []string  `json:"newConcepts"`
	DecisionsThisWeek []string  `json:"decisionsThisWeek"`
	OpenItems         []string  `json:"openItems"`
	StaleItems        []string  `json:"staleItems"`
	WeekOf            string    `json:"weekOf"`
	GeneratedAt       time.Time `json:"generatedAt"`
	AIGenerated       bool      `json:"aiGenerated"`
}

// TranscribeRequest asks for a recorded session at FileURL to be transcribed.
type TranscribeRequest struct {
	FileURL string `json:"fileUrl"`
}

// TranscriptAnalysis is the transcript of a recorded feedback session and the
// insights extracted from it.
type TranscriptAnalysis struct {
	Transcript      string   `json:"transcript"`
	Summary         string   `json:"summary"`
	KeyPoints       []string `json:"keyPoints"`
	ActionItems     []string `json:"actionItems"`
	QuestionsRaised []string `json:"questionsRaised"`
}
