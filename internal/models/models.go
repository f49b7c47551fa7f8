// Package models defines the core data structures for VantaLoop.
//
// It includes the SMS conversation state, intake submissions, register items and
// the JSON envelope shared by every API response.
package models

import (
	"errors"
)

// Validation constants for input validation
const (
	// MaxSubjectLength defines the maximum allowed length for a submission subject
	MaxSubjectLength = 500
	// MaxNameLength defines the maximum allowed length for submitter and author names
	MaxNameLength = 255
	// MaxNarrativeLength defines the maximum allowed length for a single narrative field
	MaxNarrativeLength = 4096
)

// Error variables for better error handling and testability
var (
	ErrEmptySubmitterName   = errors.New("submitter name is required")
	ErrEmptySubject         = errors.New("subject is required")
	ErrSubjectTooLong       = errors.New("subject exceeds maximum length")
	ErrNameTooLong          = errors.New("name exceeds maximum length")
	ErrNarrativeTooLong     = errors.New("narrative field exceeds maximum length")
	ErrInvalidFeedbackType  = errors.New("invalid feedback type")
	ErrInvalidChannel       = errors.New("invalid channel")
	ErrInvalidIntakeStatus  = errors.New("invalid triage status")
	ErrInvalidPriority      = errors.New("invalid priority")
	ErrInvalidColumnStatus  = errors.New("invalid column status")
	ErrInvalidAuthorTeam    = errors.New("invalid author team")
	ErrEmptyCommentText     = errors.New("comment text is required")
	ErrEmptyTriagedBy       = errors.New("triagedBy is required")
	ErrMissingPhoneNumber   = errors.New("phone number is required for sms submissions")
	ErrConversationFinished = errors.New("conversation already finalized")
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
