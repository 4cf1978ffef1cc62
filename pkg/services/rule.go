package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/stageflow/stageflow/pkg/eventbus"
	"github.com/stageflow/stageflow/pkg/events"
	"github.com/stageflow/stageflow/pkg/models"
	"github.com/stageflow/stageflow/pkg/persistence"
	"github.com/stageflow/stageflow/pkg/rules"
)

// AttachRuleRequest represents the request to attach a rule to a connection.
type AttachRuleRequest struct {
	Type        string
	Subtype     string
	Name        string
	Description string
	Config      map[string]any
	Order       int
}

// UpdateRuleRequest represents the request to update an existing rule.
// Type and subtype are immutable after creation.
type UpdateRuleRequest struct {
	Name        string
	Description string
	Config      map[string]any
	Order       int
	Active      bool
}

// Rule handles rule management and transition evaluation.
type Rule struct {
	persistence persistence.Persistence
	engine      *rules.Engine
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewRule creates a new rule service.
func NewRule(
	persistence persistence.Persistence,
	engine *rules.Engine,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Rule {
	return &Rule{
		persistence: persistence,
		engine:      engine,
		publisher:   publisher,
		logger:      logger,
	}
}

func (r *Rule) editableConnection(ctx context.Context, workflowID, connectionID string) (*models.Workflow, *models.Connection, error) {
	workflow, err := r.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	if workflow == nil {
		return nil, nil, ErrWorkflowNotFound
	}

	if !workflow.IsEditable() {
		return nil, nil, ErrWorkflowNotEditable
	}

	connection := workflow.ConnectionByID(connectionID)
	if connection == nil {
		return nil, nil, ErrConnectionNotFound
	}

	return workflow, connection, nil
}

// AttachRule attaches a new rule to a connection.
func (r *Rule) AttachRule(ctx context.Context, workflowID, connectionID string, req *AttachRuleRequest) (*models.Rule, error) {
	workflow, connection, err := r.editableConnection(ctx, workflowID, connectionID)
	if err != nil {
		return nil, err
	}

	rule, err := models.NewRule(
		connection.ID,
		models.RuleType(req.Type),
		models.RuleSubtype(req.Subtype),
		req.Config,
		req.Order,
	)
	if err != nil {
		return nil, err
	}

	rule.ID = uuid.New().String()
	rule.Name = req.Name
	rule.Description = req.Description

	connection.Rules = append(connection.Rules, rule)

	err = r.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}

	return rule, nil
}

// UpdateRule updates the mutable fields of an existing rule.
func (r *Rule) UpdateRule(ctx context.Context, workflowID, connectionID, ruleID string, req *UpdateRuleRequest) (*models.Rule, error) {
	workflow, connection, err := r.editableConnection(ctx, workflowID, connectionID)
	if err != nil {
		return nil, err
	}

	var rule *models.Rule

	for _, candidate := range connection.Rules {
		if candidate.ID == ruleID {
			rule = candidate

			break
		}
	}

	if rule == nil {
		return nil, ErrRuleNotFound
	}

	if req.Config == nil {
		return nil, models.ErrInvalidConfiguration
	}

	rule.Name = req.Name
	rule.Description = req.Description
	rule.Config = req.Config
	rule.Order = req.Order
	rule.Active = req.Active
	rule.UpdatedAt = nowUTC()

	err = r.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}

	return rule, nil
}

// DetachRule removes a rule from a connection.
func (r *Rule) DetachRule(ctx context.Context, workflowID, connectionID, ruleID string) error {
	workflow, connection, err := r.editableConnection(ctx, workflowID, connectionID)
	if err != nil {
		return err
	}

	index := slices.IndexFunc(connection.Rules, func(rule *models.Rule) bool {
		return rule.ID == ruleID
	})
	if index < 0 {
		return ErrRuleNotFound
	}

	connection.Rules = slices.Delete(connection.Rules, index, index+1)

	err = r.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return fmt.Errorf("failed to detach rule: %w", err)
	}

	return nil
}

// EvaluateTransition runs the rule engine against a connection of a published
// workflow and reports whether the transition may proceed, which detail
// validations failed, and which actions a runtime should execute.
func (r *Rule) EvaluateTransition(ctx context.Context, workflowID, connectionID string, tc *rules.TransitionContext) (*rules.Result, error) {
	workflow, err := r.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	connection := workflow.ConnectionByID(connectionID)
	if connection == nil {
		return nil, ErrConnectionNotFound
	}

	if tc == nil {
		tc = &rules.TransitionContext{}
	}

	result, err := r.engine.Evaluate(ctx, connection, *tc)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate transition: %w", err)
	}

	if r.publisher != nil {
		event := events.TransitionEvaluated{
			BaseEvent: events.BaseEvent{
				ID:         uuid.New().String(),
				Type:       events.TransitionEvaluatedEvent,
				Timestamp:  nowUTC(),
				WorkflowID: workflowID,
			},
			ConnectionID:      connectionID,
			Allowed:           result.Allowed,
			RestrictionReason: result.RestrictionReason,
			ValidationErrors:  result.ValidationErrors,
			ActionCount:       len(result.Actions),
		}

		if err := r.publisher.Publish(ctx, workflowID, event); err != nil {
			r.logger.WarnContext(ctx, "Failed to publish event",
				"event_type", events.TransitionEvaluatedEvent,
				"workflow_id", workflowID,
				"error", err,
			)
		}
	}

	return result, nil
}
