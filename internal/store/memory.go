package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vantaloop/VantaLoop/internal/models"
)

// InMemoryStore is a Store kept entirely in process memory. Used by tests and
// when no database is configured.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	submissions   map[string]models.IntakeSubmission
	byConv        map[string]string
	register      map[string]models.RegisterItem
	byIntake      map[string]string
	comments      map[string][]models.Comment
	outbox        map[string]*OutboxMessage
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]*models.Conversation),
		submissions:   make(map[string]models.IntakeSubmission),
		byConv:        make(map[string]string),
		register:      make(map[string]models.RegisterItem),
		byIntake:      make(map[string]string),
		comments:      make(map[string][]models.Comment),
		outbox:        make(map[string]*OutboxMessage),
	}
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) GetActiveConversation(ctx context.Context, phoneNumber string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Conversation
	for _, c := range s.conversations {
		if c.PhoneNumber != phoneNumber || c.Finalized {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	cp.PartialData = latest.PartialData.Clone()
	return &cp, nil
}

func (s *InMemoryStore) CreateConversation(ctx context.Context, phoneNumber string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	id := newID()
	s.conversations[id] = &models.Conversation{
		ID:          id,
		PhoneNumber: phoneNumber,
		CurrentStep: models.StepAwaitingName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return id, nil
}

func (s *InMemoryStore) UpdateConversation(ctx context.Context, id string, step models.Step, data models.PartialData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok || c.Finalized {
		return nil
	}
	c.CurrentStep = step
	c.PartialData = data.Clone()
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) FinalizeConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil
	}
	c.Finalized = true
	c.CurrentStep = models.StepComplete
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) CreateSubmission(ctx context.Context, sub models.IntakeSubmission) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ConversationID != "" {
		if existing, ok := s.byConv[sub.ConversationID]; ok {
			return existing, nil
		}
	}
	if sub.ID == "" {
		sub.ID = newID()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
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
	s.submissions[sub.ID] = sub
	if sub.ConversationID != "" {
		s.byConv[sub.ConversationID] = sub.ID
	}
	return sub.ID, nil
}

func (s *InMemoryStore) GetSubmission(ctx context.Context, id string) (*models.IntakeSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (s *InMemoryStore) ListSubmissions(ctx context.Context, status models.IntakeStatus) ([]models.IntakeSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := []models.IntakeSubmission{}
	for _, sub := range s.submissions {
		if status == "" || sub.Status == status {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.After(subs[j].CreatedAt) })
	return subs, nil
}

func (s *InMemoryStore) UpdateTriage(ctx context.Context, id string, status models.IntakeStatus, triagedBy, notes string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return ErrNotFound
	}
	sub.Status = status
	sub.TriagedBy = triagedBy
	sub.TriageNotes = notes
	sub.TriagedAt = &at
	sub.UpdatedAt = at
	s.submissions[id] = sub
	return nil
}

func (s *InMemoryStore) CreateRegisterItem(ctx context.Context, item models.RegisterItem) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.IntakeItemID != "" {
		if existing, ok := s.byIntake[item.IntakeItemID]; ok {
			return existing, nil
		}
	}
	if item.ID == "" {
		item.ID = newID()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
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
	s.register[item.ID] = item
	if item.IntakeItemID != "" {
		s.byIntake[item.IntakeItemID] = item.ID
	}
	return item.ID, nil
}

func (s *InMemoryStore) GetRegisterItem(ctx context.Context, id string) (*models.RegisterItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.register[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &item, nil
}

func (s *InMemoryStore) ListRegisterItems(ctx context.Context, column models.ColumnStatus) ([]models.RegisterItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := []models.RegisterItem{}
	for _, it := range s.register {
		if column == "" || it.ColumnStatus == column {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (s *InMemoryStore) SaveRegisterItem(ctx context.Context, item models.RegisterItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.register[item.ID]; !ok {
		return ErrNotFound
	}
	s.register[item.ID] = item
	return nil
}

func (s *InMemoryStore) AddComment(ctx context.Context, c models.Comment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.register[c.RegisterItemID]; !ok {
		return "", ErrNotFound
	}
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.comments[c.RegisterItemID] = append(s.comments[c.RegisterItemID], c)
	return c.ID, nil
}

func (s *InMemoryStore) ListComments(ctx context.Context, registerItemID string) ([]models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Comment, len(s.comments[registerItemID]))
	copy(out, s.comments[registerItemID])
	return out, nil
}

func (s *InMemoryStore) EnqueueOutboxMessage(ctx context.Context, recipient, kind, body, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupeKey != "" {
		for _, m := range s.outbox {
			if m.DedupeKey == dedupeKey && m.Status != OutboxStatusFailed && m.Status != OutboxStatusCanceled {
				return m.ID, nil
			}
		}
	}
	now := time.Now().UTC()
	m := &OutboxMessage{
		ID:        outboxIDPrefix + newID(),
		Recipient: recipient,
		Kind:      kind,
		Body:      body,
		Status:    OutboxStatusQueued,
		DedupeKey: dedupeKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.outbox[m.ID] = m
	return m.ID, nil
}

func (s *InMemoryStore) ClaimDueOutboxMessages(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*OutboxMessage
	for _, m := range s.outbox {
		if m.Status == OutboxStatusQueued && (m.NextAttemptAt == nil || !m.NextAttemptAt.After(now)) {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]OutboxMessage, 0, len(due))
	for _, m := range due {
		locked := now
		m.Status = OutboxStatusSending
		m.LockedAt = &locked
		m.UpdatedAt = now
		out = append(out, *m)
	}
	return out, nil
}

func (s *InMemoryStore) MarkOutboxMessageSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.outbox[id]; ok {
		m.Status = OutboxStatusSent
		m.LockedAt = nil
		m.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *InMemoryStore) FailOutboxMessage(ctx context.Context, id string, errMsg string, nextAttemptAt time.Time, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.outbox[id]
	if !ok {
		return nil
	}
	m.Attempts++
	m.LastError = errMsg
	m.NextAttemptAt = &nextAttemptAt
	m.LockedAt = nil
	m.UpdatedAt = time.Now().UTC()
	if m.Attempts >= maxAttempts {
		m.Status = OutboxStatusFailed
	} else {
		m.Status = OutboxStatusQueued
	}
	return nil
}

func (s *InMemoryStore) RequeueStaleSendingMessages(ctx context.Context, staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.outbox {
		if m.Status == OutboxStatusSending && m.LockedAt != nil && m.LockedAt.Before(staleBefore) {
			m.Status = OutboxStatusQueued
			m.LockedAt = nil
			n++
		}
	}
	return n, nil
}

// Outbox returns a snapshot of every outbox message. Intended for tests.
func (s *InMemoryStore) Outbox() []OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]OutboxMessage, 0, len(s.outbox))
	for _, m := range s.outbox {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
