package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vantaloop/VantaLoop/internal/models"
)

// fakeStore implements ConversationStore and SubmissionSink in memory, with
// injectable failures.
type fakeStore struct {
	mu            sync.Mutex
	convs         []*models.Conversation
	subs          map[string]models.IntakeSubmission // by conversation id
	nextID        int
	lookups       int
	failGet       error
	failUpdate    error
	failFinalize  error
	failSubmitErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{subs: make(map[string]models.IntakeSubmission)}
}

func (f *fakeStore) GetActiveConversation(ctx context.Context, phone string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.failGet != nil {
		return nil, f.failGet
	}
	for i := len(f.convs) - 1; i >= 0; i-- {
		c := f.convs[i]
		if c.PhoneNumber == phone && !c.Finalized {
			cp := *c
			cp.PartialData = c.PartialData.Clone()
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateConversation(ctx context.Context, phone string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("conv-%d", f.nextID)
	f.convs = append(f.convs, &models.Conversation{ID: id, PhoneNumber: phone, CurrentStep: models.StepAwaitingName})
	return id, nil
}

func (f *fakeStore) find(id string) *models.Conversation {
	for _, c := range f.convs {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (f *fakeStore) UpdateConversation(ctx context.Context, id string, step models.Step, data models.PartialData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		return f.failUpdate
	}
	c := f.find(id)
	if c == nil || c.Finalized {
		return nil
	}
	c.CurrentStep = step
	c.PartialData = data.Clone()
	return nil
}

func (f *fakeStore) FinalizeConversation(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFinalize != nil {
		return f.failFinalize
	}
	if c := f.find(id); c != nil {
		c.Finalized = true
		c.CurrentStep = models.StepComplete
	}
	return nil
}

func (f *fakeStore) CreateSubmission(ctx context.Context, sub models.IntakeSubmission) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubmitErr != nil {
		return "", f.failSubmitErr
	}
	if existing, ok := f.subs[sub.ConversationID]; ok {
		return existing.ID, nil
	}
	sub.ID = "sub-" + sub.ConversationID
	f.subs[sub.ConversationID] = sub
	return sub.ID, nil
}

func (f *fakeStore) activeCount(phone string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.convs {
		if c.PhoneNumber == phone && !c.Finalized {
			n++
		}
	}
	return n
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
}

func TestEngine_EndToEndScenario(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	eng := NewEngine(st, st, WithClock(fixedClock))
	phone := "+15551234567"

	steps := []struct {
		body  string
		reply string
	}{
		{"FEEDBACK", WelcomeReply},
		{"Jane", SubjectPrompt},
		{"Nav redesign", TypeMenu},
		{"4", GoalPrompt},
		{"Pick a direction", WorkingPrompt},
		{"SKIP", RisksPrompt},
		{"Is it accessible?", SuggestionsPrompt},
		{"skip", DecisionPrompt},
		{"Approve layout A", CompletedReply},
	}
	for i, s := range steps {
		reply, err := eng.Handle(ctx, phone, s.body)
		if err != nil {
			t.Fatalf("message %d (%q): unexpected error: %v", i, s.body, err)
		}
		if reply != s.reply {
			t.Fatalf("message %d (%q): reply = %q, want %q", i, s.body, reply, s.reply)
		}
	}

	if len(st.subs) != 1 {
		t.Fatalf("expected exactly one submission, got %d", len(st.subs))
	}
	sub := st.subs["conv-1"]
	if sub.SubmitterName != "Jane" || sub.Subject != "Nav redesign" {
		t.Errorf("unexpected name/subject: %q/%q", sub.SubmitterName, sub.Subject)
	}
	if sub.FeedbackType != models.FeedbackTypeVisualDesign {
		t.Errorf("feedbackType = %q, want visual-design", sub.FeedbackType)
	}
	if sub.Channel != models.ChannelSMS || sub.PhoneNumber != phone {
		t.Errorf("unexpected channel/phone: %q/%q", sub.Channel, sub.PhoneNumber)
	}
	if models.StringValue(sub.GoalOfShare) != "Pick a direction" ||
		models.StringValue(sub.QuestionsRisks) != "Is it accessible?" ||
		models.StringValue(sub.DecisionNeeded) != "Approve layout A" {
		t.Errorf("narratives not carried: %+v", sub)
	}
	if sub.WhatsWorking != nil || sub.Suggestions != nil {
		t.Errorf("skipped fields should be absent: %+v", sub)
	}
	if sub.WeekID != "2026-W10" {
		t.Errorf("WeekID = %q", sub.WeekID)
	}
	if st.activeCount(phone) != 0 {
		t.Error("conversation should be finalized")
	}

	// A new message after completion opens a fresh conversation.
	reply, err := eng.Handle(ctx, phone, "hi again")
	if err != nil || reply != WelcomeReply {
		t.Fatalf("restart: reply=%q err=%v", reply, err)
	}
	if st.activeCount(phone) != 1 {
		t.Errorf("expected one active conversation, got %d", st.activeCount(phone))
	}
}

func TestEngine_DefaultsForBlankAnswers(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	eng := NewEngine(st, st)
	phone := "+15550000000"

	for _, body := range []string{"start", "", "", "banana", "", "", "", "", ""} {
		if _, err := eng.Handle(ctx, phone, body); err != nil {
			t.Fatalf("Handle(%q): %v", body, err)
		}
	}
	sub, ok := st.subs["conv-1"]
	if !ok {
		t.Fatal("expected submission")
	}
	if sub.SubmitterName != DefaultSubmitterName || sub.Subject != DefaultSubject {
		t.Errorf("defaults not applied: %q/%q", sub.SubmitterName, sub.Subject)
	}
	if sub.FeedbackType != models.FeedbackTypeGeneral {
		t.Errorf("feedbackType = %q, want general", sub.FeedbackType)
	}
	if sub.GoalOfShare != nil || sub.DecisionNeeded != nil {
		t.Errorf("empty narratives should be absent: %+v", sub)
	}
}

func TestEngine_FinalizationExclusivity(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	eng := NewEngine(st, st)
	phone := "+15551112222"

	bodies := []string{"hi", "Jane", "Nav", "1", "goal", "SKIP", "SKIP", "SKIP"}
	for _, b := range bodies {
		if _, err := eng.Handle(ctx, phone, b); err != nil {
			t.Fatalf("Handle(%q): %v", b, err)
		}
	}

	st.failFinalize = errors.New("db down")
	if _, err := eng.Handle(ctx, phone, "decide"); err == nil {
		t.Fatal("expected finalize error")
	}
	if len(st.subs) != 1 {
		t.Fatalf("submission should be written before finalize, got %d", len(st.subs))
	}
	if st.activeCount(phone) != 1 {
		t.Fatal("conversation should remain active after failed finalize")
	}

	st.failFinalize = nil
	reply, err := eng.Handle(ctx, phone, "decide again")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if reply != CompletedReply {
		t.Errorf("retry reply = %q", reply)
	}
	if len(st.subs) != 1 {
		t.Errorf("retry created a duplicate submission: %d", len(st.subs))
	}
	if st.activeCount(phone) != 0 {
		t.Error("conversation should be finalized after retry")
	}
}

func TestEngine_SubmissionFailureKeepsConversationOpen(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	eng := NewEngine(st, st)
	phone := "+15553334444"
	for _, b := range []string{"hi", "Jane", "Nav", "2", "goal", "SKIP", "SKIP", "SKIP"} {
		if _, err := eng.Handle(ctx, phone, b); err != nil {
			t.Fatalf("Handle(%q): %v", b, err)
		}
	}
	st.failSubmitErr = errors.New("insert failed")
	if _, err := eng.Handle(ctx, phone, "decide"); err == nil {
		t.Fatal("expected error")
	}
	if st.activeCount(phone) != 1 || len(st.subs) != 0 {
		t.Error("conversation must not finalize without a submission")
	}
}

func TestEngine_StoreErrors(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.failGet = errors.New("timeout")
	eng := NewEngine(st, st)
	if _, err := eng.Handle(ctx, "+1555", "hi"); err == nil {
		t.Fatal("expected lookup error")
	}

	st.failGet = nil
	if _, err := eng.Handle(ctx, "+1555", "hi"); err != nil {
		t.Fatalf("create: %v", err)
	}
	st.failUpdate = errors.New("write failed")
	if _, err := eng.Handle(ctx, "+1555", "Jane"); err == nil {
		t.Fatal("expected update error")
	}
}

func TestEngine_UnrecognizedStoredStepRestarts(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.convs = append(st.convs, &models.Conversation{
		ID:          "legacy",
		PhoneNumber: "+1777",
		CurrentStep: "awaiting-mood",
		PartialData: models.PartialData{SubmitterName: models.StringPtr("Old")},
	})
	eng := NewEngine(st, st)
	reply, err := eng.Handle(ctx, "+1777", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != WelcomeReply {
		t.Errorf("reply = %q, want welcome", reply)
	}
	c := st.find("legacy")
	if c.CurrentStep != models.StepAwaitingName {
		t.Errorf("step = %q, want awaiting-name", c.CurrentStep)
	}
	if models.StringValue(c.PartialData.SubmitterName) != "Old" {
		t.Error("restart should leave partial data unchanged")
	}
}

func TestFinalizer_RejectsFinalizedConversation(t *testing.T) {
	st := newFakeStore()
	f := NewFinalizer(st, st)
	_, err := f.Finalize(context.Background(), &models.Conversation{ID: "c", PhoneNumber: "+1", Finalized: true}, models.PartialData{})
	if !errors.Is(err, models.ErrConversationFinished) {
		t.Errorf("expected ErrConversationFinished, got %v", err)
	}
}

func TestFinalizer_TruncatesOverlongAnswers(t *testing.T) {
	st := newFakeStore()
	f := NewFinalizer(st, st)
	long := make([]byte, models.MaxSubjectLength+10)
	for i := range long {
		long[i] = 'a'
	}
	sub := f.BuildSubmission(&models.Conversation{ID: "c", PhoneNumber: "+1"}, models.PartialData{Subject: models.StringPtr(string(long))})
	if len(sub.Subject) != models.MaxSubjectLength {
		t.Errorf("subject length = %d", len(sub.Subject))
	}
	if err := sub.Validate(); err != nil {
		t.Errorf("built submission invalid: %v", err)
	}
	if got := truncate("héllo", 2); got != "h" {
		t.Errorf("truncate split a rune: %q", got)
	}
}
