// Package models defines the SMS intake conversation state.
package models

import "time"

// Step is one named stage of the SMS intake sequence.
type Step string

const (
	StepAwaitingName        Step = "awaiting-name"
	StepAwaitingSubject     Step = "awaiting-subject"
	StepAwaitingType        Step = "awaiting-type"
	StepAwaitingGoal        Step = "awaiting-goal"
	StepAwaitingWorking     Step = "awaiting-working"
	StepAwaitingRisks       Step = "awaiting-risks"
	StepAwaitingSuggestions Step = "awaiting-suggestions"
	StepAwaitingDecision    Step = "awaiting-decision"
	StepComplete            Step = "complete"
)

// Steps lists every step in sequence order.
var Steps = []Step{
	StepAwaitingName,
	StepAwaitingSubject,
	StepAwaitingType,
	StepAwaitingGoal,
	StepAwaitingWorking,
	StepAwaitingRisks,
	StepAwaitingSuggestions,
	StepAwaitingDecision,
	StepComplete,
}

// IsValidStep checks if the given step is part of the intake sequence.
func IsValidStep(s Step) bool {
	for _, step := range Steps {
		if step == s {
			return true
		}
	}
	return false
}

// Conversation tracks one in-progress multi-turn SMS intake dialogue.
type Conversation struct {
	ID          string      `json:"id"`
	PhoneNumber string      `json:"phone_number"`
	CurrentStep Step        `json:"current_step"`
	PartialData PartialData `json:"partial_data"`
	Finalized   bool        `json:"finalized"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// PartialData holds the answers collected so far. A nil field was never
// collected (or was skipped).
type PartialData struct {
	SubmitterName  *string       `json:"submitterName,omitempty"`
	Subject        *string       `json:"subject,omitempty"`
	FeedbackType   *FeedbackType `json:"feedbackType,omitempty"`
	GoalOfShare    *string       `json:"goalOfShare,omitempty"`
	WhatsWorking   *string       `json:"whatsWorking,omitempty"`
	QuestionsRisks *string       `json:"questionsRisks,omitempty"`
	Suggestions    *string       `json:"suggestions,omitempty"`
	DecisionNeeded *string       `json:"decisionNeeded,omitempty"`
}

// Clone returns a deep copy so callers can mutate the result freely.
func (p PartialData) Clone() PartialData {
	return PartialData{
		SubmitterName:  cloneString(p.SubmitterName),
		Subject:        cloneString(p.Subject),
		FeedbackType:   cloneFeedbackType(p.FeedbackType),
		GoalOfShare:    cloneString(p.GoalOfShare),
		WhatsWorking:   cloneString(p.WhatsWorking),
		QuestionsRisks: cloneString(p.QuestionsRisks),
		Suggestions:    cloneString(p.Suggestions),
		DecisionNeeded: cloneString(p.DecisionNeeded),
	}
}

// IsEmpty reports whether no field has been collected.
func (p PartialData) IsEmpty() bool {
	return p.SubmitterName == nil && p.Subject == nil && p.FeedbackType == nil &&
		p.GoalOfShare == nil && p.WhatsWorking == nil && p.QuestionsRisks == nil &&
		p.Suggestions == nil && p.DecisionNeeded == nil
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// StringValue returns the pointed-to string or "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFeedbackType(t *FeedbackType) *FeedbackType {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
