// Package events defines event types and structures for workflow lifecycle notifications.
package events

import (
	"time"

	"github.com/stageflow/stageflow/pkg/models"
	"github.com/stageflow/stageflow/pkg/validation"
)

type EventType string

// Kafka topic for all workflow definition events.
const Topic = "stageflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Workflow lifecycle events.
	WorkflowCreatedEvent   EventType = "workflow.created"
	WorkflowUpdatedEvent   EventType = "workflow.updated"
	WorkflowDeletedEvent   EventType = "workflow.deleted"
	WorkflowPublishedEvent EventType = "workflow.published"
	WorkflowArchivedEvent  EventType = "workflow.archived"

	// Graph events.
	GraphValidatedEvent    EventType = "graph.validated"
	GraphBatchAppliedEvent EventType = "graph.batch.applied"

	// Transition events.
	TransitionEvaluatedEvent EventType = "transition.evaluated"

	// Catalog events.
	CatalogEntryRegisteredEvent EventType = "catalog.entry.registered"
	CatalogEntryDeletedEvent    EventType = "catalog.entry.deleted"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type WorkflowCreated struct {
	BaseEvent

	Name  string `json:"name"`
	Owner string `json:"owner"`
}

func (w WorkflowCreated) GetType() EventType {
	return WorkflowCreatedEvent
}

type WorkflowUpdated struct {
	BaseEvent

	Name string `json:"name"`
}

func (w WorkflowUpdated) GetType() EventType {
	return WorkflowUpdatedEvent
}

type WorkflowDeleted struct {
	BaseEvent
}

func (w WorkflowDeleted) GetType() EventType {
	return WorkflowDeletedEvent
}

type WorkflowPublished struct {
	BaseEvent

	Version     int64     `json:"version"`
	PublishedAt time.Time `json:"published_at"`
}

func (w WorkflowPublished) GetType() EventType {
	return WorkflowPublishedEvent
}

type WorkflowArchived struct {
	BaseEvent
}

func (w WorkflowArchived) GetType() EventType {
	return WorkflowArchivedEvent
}

// GraphValidated carries the outcome of a validation run.
type GraphValidated struct {
	BaseEvent

	Valid    bool               `json:"valid"`
	Errors   []validation.Issue `json:"errors,omitempty"`
	Warnings []validation.Issue `json:"warnings,omitempty"`
}

func (g GraphValidated) GetType() EventType {
	return GraphValidatedEvent
}

// GraphBatchApplied signals that a batch of graph mutations was committed
// as a whole.
type GraphBatchApplied struct {
	BaseEvent

	NodesCreated       int `json:"nodes_created"`
	NodesUpdated       int `json:"nodes_updated"`
	NodesDeleted       int `json:"nodes_deleted"`
	ConnectionsCreated int `json:"connections_created"`
	ConnectionsUpdated int `json:"connections_updated"`
	ConnectionsDeleted int `json:"connections_deleted"`
}

func (g GraphBatchApplied) GetType() EventType {
	return GraphBatchAppliedEvent
}

// TransitionEvaluated records the decision produced for a transition attempt.
type TransitionEvaluated struct {
	BaseEvent

	ConnectionID      string   `json:"connection_id"`
	Allowed           bool     `json:"allowed"`
	RestrictionReason string   `json:"restriction_reason,omitempty"`
	ValidationErrors  []string `json:"validation_errors,omitempty"`
	ActionCount       int      `json:"action_count"`
}

func (t TransitionEvaluated) GetType() EventType {
	return TransitionEvaluatedEvent
}

type CatalogEntryRegistered struct {
	BaseEvent

	Key      string                 `json:"entry_key"`
	Category models.CatalogCategory `json:"category"`
}

func (c CatalogEntryRegistered) GetType() EventType {
	return CatalogEntryRegisteredEvent
}

type CatalogEntryDeleted struct {
	BaseEvent

	Key           string `json:"entry_key"`
	DetachedNodes int    `json:"detached_nodes"`
}

func (c CatalogEntryDeleted) GetType() EventType {
	return CatalogEntryDeletedEvent
}
