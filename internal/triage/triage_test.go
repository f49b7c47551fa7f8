package triage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vantaloop/VantaLoop/internal/models"
	"github.com/vantaloop/VantaLoop/internal/store"
)

var fixedNow = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *store.InMemoryStore) {
	t.Helper()
	s := store.NewInMemoryStore()
	return NewService(s, WithClock(func() time.Time { return fixedNow })), s
}

func submitSample(t *testing.T, svc *Service) *models.IntakeSubmission {
	t.Helper()
	sub, err := svc.SubmitWeb(context.Background(), models.IntakeSubmitRequest{
		SubmitterName:  " Jane ",
		Subject:        "Nav redesign",
		FeedbackType:   models.FeedbackTypeVisualDesign,
		DecisionNeeded: models.StringPtr("Pick a layout"),
	})
	if err != nil {
		t.Fatalf("SubmitWeb: %v", err)
	}
	return sub
}

func TestSubmitWeb(t *testing.T) {
	svc, s := newTestService(t)
	sub := submitSample(t, svc)
	if sub.ID == "" || sub.SubmitterName != "Jane" || sub.Channel != models.ChannelWeb || sub.WeekID != "2026-W10" {
		t.Errorf("unexpected submission %+v", sub)
	}
	stored, err := s.GetSubmission(context.Background(), sub.ID)
	if err != nil || stored.Status != models.IntakeStatusNew {
		t.Errorf("stored submission %+v, %v", stored, err)
	}

	if _, err := svc.SubmitWeb(context.Background(), models.IntakeSubmitRequest{Subject: "x"}); !errors.Is(err, models.ErrEmptySubmitterName) {
		t.Errorf("expected ErrEmptySubmitterName, got %v", err)
	}
}

func TestTriage_Dismiss(t *testing.T) {
	svc, s := newTestService(t)
	sub := submitSample(t, svc)
	res, err := svc.Triage(context.Background(), sub.ID, models.TriageRequest{Status: models.IntakeStatusDismissed, TriagedBy: "Ana", TriageNotes: "dup"})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if res.RegisterItem != nil {
		t.Error("dismissal should not create a register item")
	}
	if res.Submission.Status != models.IntakeStatusDismissed || res.Submission.TriagedAt == nil || !res.Submission.TriagedAt.Equal(fixedNow) {
		t.Errorf("unexpected submission %+v", res.Submission)
	}
	items, _ := s.ListRegisterItems(context.Background(), "")
	if len(items) != 0 {
		t.Errorf("register has %d items", len(items))
	}
}

func TestTriage_PromoteIsIdempotent(t *testing.T) {
	svc, s := newTestService(t)
	sub := submitSample(t, svc)
	req := models.TriageRequest{Status: models.IntakeStatusPromoted, TriagedBy: "Ana"}

	first, err := svc.Triage(context.Background(), sub.ID, req)
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	item := first.RegisterItem
	if item == nil || item.Title != "Nav redesign" || item.Priority != models.PriorityP2 || item.ColumnStatus != models.ColumnBacklog {
		t.Fatalf("unexpected register item %+v", item)
	}
	if item.PromotedBy != "Ana" || models.StringValue(item.DecisionNeeded) != "Pick a layout" || item.IntakeItemID != sub.ID {
		t.Errorf("promotion did not copy submission fields: %+v", item)
	}

	second, err := svc.Triage(context.Background(), sub.ID, req)
	if err != nil {
		t.Fatalf("second Triage: %v", err)
	}
	if second.RegisterItem.ID != item.ID {
		t.Errorf("second promotion created a new item %s (first %s)", second.RegisterItem.ID, item.ID)
	}
	items, _ := s.ListRegisterItems(context.Background(), "")
	if len(items) != 1 {
		t.Errorf("register has %d items, want 1", len(items))
	}
}

func TestTriage_Errors(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Triage(context.Background(), "missing", models.TriageRequest{Status: models.IntakeStatusDismissed, TriagedBy: "Ana"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Triage(context.Background(), "x", models.TriageRequest{Status: models.IntakeStatusNew, TriagedBy: "Ana"}); !errors.Is(err, models.ErrInvalidIntakeStatus) {
		t.Errorf("expected ErrInvalidIntakeStatus, got %v", err)
	}
}

func promoted(t *testing.T, svc *Service) *models.RegisterItem {
	t.Helper()
	sub := submitSample(t, svc)
	res, err := svc.Triage(context.Background(), sub.ID, models.TriageRequest{Status: models.IntakeStatusPromoted, TriagedBy: "Ana"})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	return res.RegisterItem
}

func TestUpdateRegisterItem(t *testing.T) {
	svc, _ := newTestService(t)
	item := promoted(t, svc)

	col := models.ColumnInProgress
	prio := models.PriorityP0
	updated, err := svc.UpdateRegisterItem(context.Background(), item.ID, models.RegisterItemUpdate{
		ColumnStatus: &col,
		Priority:     &prio,
		Assignee:     models.StringPtr("Ben"),
	})
	if err != nil {
		t.Fatalf("UpdateRegisterItem: %v", err)
	}
	if updated.ColumnStatus != col || updated.Priority != prio || updated.Assignee != "Ben" || updated.Title != "Nav redesign" {
		t.Errorf("unexpected item %+v", updated)
	}

	bad := models.ColumnStatus("done")
	if _, err := svc.UpdateRegisterItem(context.Background(), item.ID, models.RegisterItemUpdate{ColumnStatus: &bad}); !errors.Is(err, models.ErrInvalidColumnStatus) {
		t.Errorf("expected ErrInvalidColumnStatus, got %v", err)
	}
	if _, err := svc.UpdateRegisterItem(context.Background(), "missing", models.RegisterItemUpdate{}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCommentsAndDetail(t *testing.T) {
	svc, _ := newTestService(t)
	item := promoted(t, svc)

	c, err := svc.AddComment(context.Background(), item.ID, models.CommentRequest{AuthorName: "Ben", AuthorTeam: models.AuthorTeamMetalab, Text: " Looks good "})
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if c.ID == "" || c.Text != "Looks good" {
		t.Errorf("unexpected comment %+v", c)
	}
	if _, err := svc.AddComment(context.Background(), item.ID, models.CommentRequest{AuthorTeam: "Other", Text: "x"}); !errors.Is(err, models.ErrInvalidAuthorTeam) {
		t.Errorf("expected ErrInvalidAuthorTeam, got %v", err)
	}
	if _, err := svc.AddComment(context.Background(), "missing", models.CommentRequest{AuthorTeam: models.AuthorTeamVanta, Text: "x"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	detail, err := svc.GetItemDetail(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetItemDetail: %v", err)
	}
	if detail.Item.ID != item.ID || len(detail.Comments) != 1 {
		t.Errorf("unexpected detail %+v", detail)
	}
}
