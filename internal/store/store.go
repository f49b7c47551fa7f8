// Package store provides storage backends for VantaLoop.
//
// It includes SQLite and PostgreSQL stores for the HTTP server, a DynamoDB
// store for the Lambda webhook, and an in-memory store for tests.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vantaloop/VantaLoop/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// DSN types returned by DetectDSNType.
const (
	DSNTypeSQLite   = "sqlite3"
	DSNTypePostgres = "postgres"
)

// Opts holds configuration options for SQL stores.
type Opts struct {
	DSN string
}

// Option defines a functional option for configuring stores.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports whether dsn points at PostgreSQL or a SQLite file.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DSNTypePostgres
	}
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") || strings.Contains(lower, "user=") {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}

// ConversationRepo persists SMS intake conversations.
type ConversationRepo interface {
	GetActiveConversation(ctx context.Context, phoneNumber string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, phoneNumber string) (string, error)
	UpdateConversation(ctx context.Context, id string, step models.Step, data models.PartialData) error
	FinalizeConversation(ctx context.Context, id string) error
}

// SubmissionRepo persists intake submissions and their triage state.
type SubmissionRepo interface {
	// CreateSubmission stores sub and returns its id. A submission whose
	// ConversationID already has a stored submission returns that id instead.
	CreateSubmission(ctx context.Context, sub models.IntakeSubmission) (string, error)
	GetSubmission(ctx context.Context, id string) (*models.IntakeSubmission, error)
	// ListSubmissions returns submissions newest first, optionally filtered by status.
	ListSubmissions(ctx context.Context, status models.IntakeStatus) ([]models.IntakeSubmission, error)
	UpdateTriage(ctx context.Context, id string, status models.IntakeStatus, triagedBy, notes string, at time.Time) error
}

// RegisterRepo persists register items and their comment threads.
type RegisterRepo interface {
	// CreateRegisterItem stores item. An item for an intake submission that was
	// already promoted returns the existing item id.
	CreateRegisterItem(ctx context.Context, item models.RegisterItem) (string, error)
	GetRegisterItem(ctx context.Context, id string) (*models.RegisterItem, error)
	// ListRegisterItems returns items newest first, optionally filtered by column.
	ListRegisterItems(ctx context.Context, column models.ColumnStatus) ([]models.RegisterItem, error)
	SaveRegisterItem(ctx context.Context, item models.RegisterItem) error
	AddComment(ctx context.Context, c models.Comment) (string, error)
	ListComments(ctx context.Context, registerItemID string) ([]models.Comment, error)
}

// Store is the full persistence surface used by the HTTP server.
type Store interface {
	ConversationRepo
	SubmissionRepo
	RegisterRepo
	OutboxRepo
	Close() error
}

// newID returns a fresh opaque record id.
func newID() string {
	return uuid.NewString()
}
