// Package services provides the business operations on workflow definitions:
// lifecycle management, graph mutations, batch application, validation, and
// transition evaluation.
package services

import (
	"errors"
	"fmt"

	"github.com/stageflow/stageflow/pkg/catalog"
	"github.com/stageflow/stageflow/pkg/models"
	"github.com/stageflow/stageflow/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidSortOrder = errors.New("invalid sort order")
	ErrInvalidStatus    = errors.New("invalid workflow status")
	ErrEmptyOwnerID     = errors.New("owner ID cannot be empty")

	// Publishing Validation Errors (400 Bad Request).
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrGraphInvalid         = errors.New("workflow graph failed validation")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")

	// Business Logic Conflicts (409 Conflict).
	ErrWorkflowNotEditable    = errors.New("workflow is not editable")
	ErrWorkflowNotDraft       = errors.New("only draft workflows can be published")
	ErrWorkflowNotPublished   = errors.New("only published workflows can be archived")
	ErrCatalogEntryConflict   = errors.New("catalog entry already registered")
	ErrConcurrentModification = persistence.ErrConcurrentModification

	// Not Found (404).
	ErrWorkflowNotFound     = persistence.ErrWorkflowNotFound
	ErrNodeNotFound         = persistence.ErrNodeNotFound
	ErrConnectionNotFound   = persistence.ErrConnectionNotFound
	ErrRuleNotFound         = persistence.ErrRuleNotFound
	ErrCatalogEntryNotFound = persistence.ErrCatalogEntryNotFound
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrEmptyOwnerID) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrGraphInvalid) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, models.ErrInvalidCategory) ||
		errors.Is(err, models.ErrSelfLoop) ||
		errors.Is(err, models.ErrCrossWorkflow) ||
		errors.Is(err, models.ErrTerminalSource) ||
		errors.Is(err, models.ErrProtectedTarget) ||
		errors.Is(err, models.ErrInvalidConnectionType) ||
		errors.Is(err, models.ErrInvalidTriggerEvent) ||
		errors.Is(err, models.ErrInvalidConditionConfig) ||
		errors.Is(err, models.ErrInvalidLoopConfig) ||
		errors.Is(err, models.ErrSubtypeMismatch) ||
		errors.Is(err, models.ErrInvalidConfiguration) ||
		errors.Is(err, catalog.ErrSchemaNotObject)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowNotEditable) ||
		errors.Is(err, ErrWorkflowNotDraft) ||
		errors.Is(err, ErrWorkflowNotPublished) ||
		errors.Is(err, ErrCatalogEntryConflict) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrConnectionNotFound) ||
		errors.Is(err, ErrRuleNotFound) ||
		errors.Is(err, ErrCatalogEntryNotFound)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
