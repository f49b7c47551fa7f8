// Package triage implements reviewer operations on intake submissions and the
// feedback register.
package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vantaloop/VantaLoop/internal/models"
	"github.com/vantaloop/VantaLoop/internal/store"
)

// Repo is the persistence the triage service needs.
type Repo interface {
	store.SubmissionRepo
	store.RegisterRepo
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service applies triage decisions and register edits.
type Service struct {
	repo Repo
	now  func() time.Time
}

// NewService creates a Service.
func NewService(repo Repo, opts ...Option) *Service {
	s := &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is the outcome of a triage decision. RegisterItem is set only when
// the submission was promoted.
type Result struct {
	Submission   models.IntakeSubmission `json:"submission"`
	RegisterItem *models.RegisterItem    `json:"registerItem,omitempty"`
}

// SubmitWeb validates a web form payload and stores it as a new submission.
func (s *Service) SubmitWeb(ctx context.Context, req models.IntakeSubmitRequest) (*models.IntakeSubmission, error) {
	sub, err := req.ToSubmission(s.now())
	if err != nil {
		return nil, err
	}
	id, err := s.repo.CreateSubmission(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("triage: create submission: %w", err)
	}
	sub.ID = id
	slog.Info("Service.SubmitWeb: submission created", "id", id, "type", sub.FeedbackType)
	return &sub, nil
}

// Triage records a reviewer decision on submission id. Promoting creates the
// register item; promoting twice returns the item created the first time.
func (s *Service) Triage(ctx context.Context, id string, req models.TriageRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	sub, err := s.repo.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	triagedBy := strings.TrimSpace(req.TriagedBy)
	if err := s.repo.UpdateTriage(ctx, id, req.Status, triagedBy, req.TriageNotes, now); err != nil {
		return nil, fmt.Errorf("triage: update submission: %w", err)
	}
	sub.Status = req.Status
	sub.TriagedBy = triagedBy
	sub.TriageNotes = req.TriageNotes
	sub.TriagedAt = &now
	sub.UpdatedAt = now

	res := &Result{Submission: *sub}
	if req.Status != models.IntakeStatusPromoted {
		slog.Info("Service.Triage: submission triaged", "id", id, "status", req.Status)
		return res, nil
	}

	item := models.RegisterItemFromSubmission(*sub, triagedBy, now)
	itemID, err := s.repo.CreateRegisterItem(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("triage: promote submission: %w", err)
	}
	stored, err := s.repo.GetRegisterItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("triage: load promoted item: %w", err)
	}
	res.RegisterItem = stored
	slog.Info("Service.Triage: submission promoted", "id", id, "registerItemID", itemID)
	return res, nil
}

// UpdateRegisterItem applies a partial update to a register item.
func (s *Service) UpdateRegisterItem(ctx context.Context, id string, upd models.RegisterItemUpdate) (*models.RegisterItem, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}
	item, err := s.repo.GetRegisterItem(ctx, id)
	if err != nil {
		return nil, err
	}
	upd.Apply(item, s.now())
	if err := s.repo.SaveRegisterItem(ctx, *item); err != nil {
		return nil, fmt.Errorf("triage: save register item: %w", err)
	}
	slog.Debug("Service.UpdateRegisterItem: item updated", "id", id, "column", item.ColumnStatus)
	return item, nil
}

// AddComment appends a comment to a register item's thread.
func (s *Service) AddComment(ctx context.Context, registerItemID string, req models.CommentRequest) (*models.Comment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetRegisterItem(ctx, registerItemID); err != nil {
		return nil, err
	}
	c := models.Comment{
		RegisterItemID: registerItemID,
		AuthorName:     strings.TrimSpace(req.AuthorName),
		AuthorTeam:     req.AuthorTeam,
		Text:           strings.TrimSpace(req.Text),
		CreatedAt:      s.now(),
	}
	id, err := s.repo.AddComment(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("triage: add comment: %w", err)
	}
	c.ID = id
	return &c, nil
}

// ItemDetail is a register item with its discussion thread.
type ItemDetail struct {
	Item     models.RegisterItem `json:"item"`
	Comments []models.Comment    `json:"comments"`
}

// GetItemDetail loads a register item and its comments.
func (s *Service) GetItemDetail(ctx context.Context, id string) (*ItemDetail, error) {
	item, err := s.repo.GetRegisterItem(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := s.repo.ListComments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("triage: list comments: %w", err)
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	return &ItemDetail{Item: *item, Comments: comments}, nil
}
