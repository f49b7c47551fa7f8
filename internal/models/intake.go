// Package models defines intake submissions and their triage lifecycle.
package models

import (
	"fmt"
	"strings"
	"time"
)

// FeedbackType is the fixed tag attached to every submission and register item.
type FeedbackType string

const (
	FeedbackTypeConceptDirection        FeedbackType = "concept-direction"
	FeedbackTypeInformationArchitecture FeedbackType = "information-architecture"
	FeedbackTypeInteractionPattern      FeedbackType = "interaction-pattern"
	FeedbackTypeVisualDesign            FeedbackType = "visual-design"
	FeedbackTypeCopyContent             FeedbackType = "copy-content"
	FeedbackTypeGeneral                 FeedbackType = "general"
)

// FeedbackTypes lists the feedback types in menu order (1-indexed in SMS).
var FeedbackTypes = []FeedbackType{
	FeedbackTypeConceptDirection,
	FeedbackTypeInformationArchitecture,
	FeedbackTypeInteractionPattern,
	FeedbackTypeVisualDesign,
	FeedbackTypeCopyContent,
	FeedbackTypeGeneral,
}

// IsValidFeedbackType checks if the given feedback type is supported.
func IsValidFeedbackType(t FeedbackType) bool {
	for _, ft := range FeedbackTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// Channel identifies how a submission arrived.
type Channel string

const (
	ChannelWeb Channel = "web"
	ChannelSMS Channel = "sms"
)

// IntakeStatus is the triage state of a submission.
type IntakeStatus string

const (
	IntakeStatusNew         IntakeStatus = "new"
	IntakeStatusUnderReview IntakeStatus = "under-review"
	IntakeStatusPromoted    IntakeStatus = "promoted"
	IntakeStatusDismissed   IntakeStatus = "dismissed"
)

// IsValidIntakeStatus checks if the given status is a known triage status.
func IsValidIntakeStatus(s IntakeStatus) bool {
	switch s {
	case IntakeStatusNew, IntakeStatusUnderReview, IntakeStatusPromoted, IntakeStatusDismissed:
		return true
	default:
		return false
	}
}

// IntakeSubmission is the canonical feedback record produced by the web form or the SMS flow.
type IntakeSubmission struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id,omitempty"` // dedup key for SMS submissions
	SubmitterName  string       `json:"submitter_name"`
	Channel        Channel      `json:"channel"`
	PhoneNumber    string       `json:"phone_number,omitempty"`
	FeedbackType   FeedbackType `json:"feedback_type"`
	Subject        string       `json:"subject"`
	GoalOfShare    *string      `json:"goal_of_share,omitempty"`
	WhatsWorking   *string      `json:"whats_working,omitempty"`
	QuestionsRisks *string      `json:"questions_risks,omitempty"`
	Suggestions    *string      `json:"suggestions,omitempty"`
	DecisionNeeded *string      `json:"decision_needed,omitempty"`
	Status         IntakeStatus `json:"status"`
	TriagedBy      string       `json:"triaged_by,omitempty"`
	TriagedAt      *time.Time   `json:"triaged_at,omitempty"`
	TriageNotes    string       `json:"triage_notes,omitempty"`
	WeekID         string       `json:"week_id"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Validate checks the invariants every stored submission must satisfy.
func (s *IntakeSubmission) Validate() error {
	if strings.TrimSpace(s.SubmitterName) == "" {
		return ErrEmptySubmitterName
	}
	if len(s.SubmitterName) > MaxNameLength {
		return ErrNameTooLong
	}
	if strings.TrimSpace(s.Subject) == "" {
		return ErrEmptySubject
	}
	if len(s.Subject) > MaxSubjectLength {
		return ErrSubjectTooLong
	}
	if !IsValidFeedbackType(s.FeedbackType) {
		return ErrInvalidFeedbackType
	}
	switch s.Channel {
	case ChannelWeb:
	case ChannelSMS:
		if s.PhoneNumber == "" {
			return ErrMissingPhoneNumber
		}
	default:
		return ErrInvalidChannel
	}
	for _, field := range []*string{s.GoalOfShare, s.WhatsWorking, s.QuestionsRisks, s.Suggestions, s.DecisionNeeded} {
		if field != nil && len(*field) > MaxNarrativeLength {
			return ErrNarrativeTooLong
		}
	}
	if s.Status != "" && !IsValidIntakeStatus(s.Status) {
		return ErrInvalidIntakeStatus
	}
	return nil
}

// IntakeSubmitRequest represents the payload of the web feedback form.
type IntakeSubmitRequest struct {
	SubmitterName  string       `json:"submitterName"`
	FeedbackType   FeedbackType `json:"feedbackType,omitempty"`
	Subject        string       `json:"subject"`
	GoalOfShare    *string      `json:"goalOfShare,omitempty"`
	WhatsWorking   *string      `json:"whatsWorking,omitempty"`
	QuestionsRisks *string      `json:"questionsRisks,omitempty"`
	Suggestions    *string      `json:"suggestions,omitempty"`
	DecisionNeeded *string      `json:"decisionNeeded,omitempty"`
}

// ToSubmission converts the form payload into a web-channel submission and validates it.
func (r IntakeSubmitRequest) ToSubmission(now time.Time) (IntakeSubmission, error) {
	feedbackType := r.FeedbackType
	if feedbackType == "" {
		feedbackType = FeedbackTypeGeneral
	}
	sub := IntakeSubmission{
		SubmitterName:  strings.TrimSpace(r.SubmitterName),
		Channel:        ChannelWeb,
		FeedbackType:   feedbackType,
		Subject:        strings.TrimSpace(r.Subject),
		GoalOfShare:    r.GoalOfShare,
		WhatsWorking:   r.WhatsWorking,
		QuestionsRisks: r.QuestionsRisks,
		Suggestions:    r.Suggestions,
		DecisionNeeded: r.DecisionNeeded,
		Status:         IntakeStatusNew,
		WeekID:         WeekID(now),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := sub.Validate(); err != nil {
		return IntakeSubmission{}, err
	}
	return sub, nil
}

// TriageRequest represents the payload for triaging an intake submission.
type TriageRequest struct {
	Status      IntakeStatus `json:"status"`
	TriagedBy   string       `json:"triagedBy"`
	TriageNotes string       `json:"triageNotes,omitempty"`
}

// Validate validates a TriageRequest. Only reviewer decisions are accepted, never "new".
func (r *TriageRequest) Validate() error {
	switch r.Status {
	case IntakeStatusUnderReview, IntakeStatusPromoted, IntakeStatusDismissed:
	default:
		return ErrInvalidIntakeStatus
	}
	if strings.TrimSpace(r.TriagedBy) == "" {
		return ErrEmptyTriagedBy
	}
	return nil
}

// WeekID returns the ISO week identifier for t, e.g. "2026-W09".
func WeekID(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
