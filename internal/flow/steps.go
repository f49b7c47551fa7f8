// Package flow implements the SMS intake conversation: a step transition
// table, the finalizer that turns a completed dialogue into an intake
// submission, and the engine that ties both to a conversation store.
package flow

import (
	"strings"

	"github.com/vantaloop/VantaLoop/internal/models"
)

// Reply texts sent back over SMS.
const (
	WelcomeReply  = "Welcome to VantaLoop feedback. Reply with your name to start."
	SubjectPrompt = "Thanks! What is the subject of your feedback?"
	TypeMenu      = "Got it. What type? Reply with a number:\n" +
		"1. Concept Direction\n" +
		"2. Information Architecture\n" +
		"3. Interaction Pattern\n" +
		"4. Visual Design\n" +
		"5. Copy/Content\n" +
		"6. General"
	GoalPrompt        = "What is the goal of this share? (What decision do you need?)"
	WorkingPrompt     = "What is working well? (Or reply SKIP)"
	RisksPrompt       = "Any questions or risks? (Or reply SKIP)"
	SuggestionsPrompt = "Any suggestions? (Or reply SKIP)"
	DecisionPrompt    = "What decision is needed today? (Or reply SKIP)"
	CompletedReply    = "Feedback submitted. Thank you! Text again anytime to start a new submission."
)

// SkipKeyword lets the sender leave an optional field empty. Compared case-insensitively.
const SkipKeyword = "SKIP"

// Result is the outcome of applying one inbound message to a step.
type Result struct {
	Next  models.Step
	Data  models.PartialData
	Reply string
}

// Terminal reports whether the conversation is ready to be finalized.
func (r Result) Terminal() bool {
	return r.Next == models.StepComplete
}

type stepRule struct {
	next     models.Step
	reply    string
	skipable bool
	store    func(d *models.PartialData, text string)
}

// rules is the single transition table shared by every entry point.
var rules = map[models.Step]stepRule{
	models.StepAwaitingName: {
		next:  models.StepAwaitingSubject,
		reply: SubjectPrompt,
		store: func(d *models.PartialData, text string) { d.SubmitterName = models.StringPtr(text) },
	},
	models.StepAwaitingSubject: {
		next:  models.StepAwaitingType,
		reply: TypeMenu,
		store: func(d *models.PartialData, text string) { d.Subject = models.StringPtr(text) },
	},
	models.StepAwaitingType: {
		next:  models.StepAwaitingGoal,
		reply: GoalPrompt,
		store: func(d *models.PartialData, text string) {
			ft := MapTypeChoice(text)
			d.FeedbackType = &ft
		},
	},
	models.StepAwaitingGoal: {
		next:  models.StepAwaitingWorking,
		reply: WorkingPrompt,
		store: func(d *models.PartialData, text string) { d.GoalOfShare = models.StringPtr(text) },
	},
	models.StepAwaitingWorking: {
		next:     models.StepAwaitingRisks,
		reply:    RisksPrompt,
		skipable: true,
		store:    func(d *models.PartialData, text string) { d.WhatsWorking = models.StringPtr(text) },
	},
	models.StepAwaitingRisks: {
		next:     models.StepAwaitingSuggestions,
		reply:    SuggestionsPrompt,
		skipable: true,
		store:    func(d *models.PartialData, text string) { d.QuestionsRisks = models.StringPtr(text) },
	},
	models.StepAwaitingSuggestions: {
		next:     models.StepAwaitingDecision,
		reply:    DecisionPrompt,
		skipable: true,
		store:    func(d *models.PartialData, text string) { d.Suggestions = models.StringPtr(text) },
	},
	models.StepAwaitingDecision: {
		next:     models.StepComplete,
		reply:    CompletedReply,
		skipable: true,
		store:    func(d *models.PartialData, text string) { d.DecisionNeeded = models.StringPtr(text) },
	},
}

// typeChoices maps the numbered SMS menu to feedback types.
var typeChoices = map[string]models.FeedbackType{
	"1": models.FeedbackTypeConceptDirection,
	"2": models.FeedbackTypeInformationArchitecture,
	"3": models.FeedbackTypeInteractionPattern,
	"4": models.FeedbackTypeVisualDesign,
	"5": models.FeedbackTypeCopyContent,
	"6": models.FeedbackTypeGeneral,
}

// MapTypeChoice converts a menu reply into a feedback type. Anything that is
// not a listed number maps to general.
func MapTypeChoice(text string) models.FeedbackType {
	if ft, ok := typeChoices[strings.TrimSpace(text)]; ok {
		return ft
	}
	return models.FeedbackTypeGeneral
}

// IsSkip reports whether text is the skip keyword.
func IsSkip(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), SkipKeyword)
}

// Transition applies one inbound message to the current step. It never
// mutates data; the returned Result carries a fresh copy. Unknown, empty or
// complete steps restart the dialogue at awaiting-name with data unchanged.
func Transition(step models.Step, input string, data models.PartialData) Result {
	text := strings.TrimSpace(input)
	next := data.Clone()

	rule, ok := rules[step]
	if !ok {
		return Result{Next: models.StepAwaitingName, Data: next, Reply: WelcomeReply}
	}
	if !(rule.skipable && IsSkip(text)) {
		rule.store(&next, text)
	}
	return Result{Next: rule.next, Data: next, Reply: rule.reply}
}

// Restart is the result used when a new conversation is opened: the
// triggering message is not consumed as an answer.
func Restart(data models.PartialData) Result {
	return Result{Next: models.StepAwaitingName, Data: data.Clone(), Reply: WelcomeReply}
}
