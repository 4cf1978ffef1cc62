// Package rules evaluates the ordered rule set attached to a connection
// against a transition attempt. The engine is a pure decision function: it
// never performs side effects itself, it emits the ordered action intents the
// caller must execute.
package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/stageflow/stageflow/pkg/models"
)

// ErrUnsupportedRule indicates a rule whose (type, subtype) pair has no
// registered evaluator. Unknown subtypes fail closed instead of being skipped.
var ErrUnsupportedRule = errors.New("unsupported rule subtype")

// Principal is the acting user, supplied by the authorization collaborator.
type Principal struct {
	ID             string   `json:"id"`
	Roles          []string `json:"roles,omitempty"`
	OrganizationID string   `json:"organization_id,omitempty"`
	ProjectID      string   `json:"project_id,omitempty"`
}

// TransitionContext carries everything a rule may inspect: the acting
// principal, the current field values of the item being transitioned, any
// supplied form payload, and the approvals already granted on the item.
type TransitionContext struct {
	Principal   Principal      `json:"principal"`
	FieldValues map[string]any `json:"field_values,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Approvals   []string       `json:"approvals,omitempty"`
}

// ActionIntent describes a side effect the caller must execute after a
// permitted transition.
type ActionIntent struct {
	RuleID     string             `json:"rule_id"`
	Subtype    models.RuleSubtype `json:"subtype"`
	Parameters map[string]any     `json:"parameters"`
	Order      int                `json:"order"`
}

// Result is the outcome of evaluating a connection's rules against one
// transition attempt. Allowed is false whenever RestrictionReason is set or
// ValidationErrors is non-empty; "transition denied" is an expected outcome,
// not an error.
type Result struct {
	Allowed           bool           `json:"allowed"`
	RestrictionReason string         `json:"restriction_reason,omitempty"`
	ValidationErrors  []string       `json:"validation_errors"`
	Actions           []ActionIntent `json:"actions"`
}

type (
	restrictFunc func(rule *models.Rule, tc TransitionContext) (string, error)
	validateFunc func(rule *models.Rule, tc TransitionContext) ([]string, error)
	actionFunc   func(rule *models.Rule, tc TransitionContext) (ActionIntent, error)
)

// Engine dispatches rule evaluation through a registry keyed by
// (rule type, rule subtype).
type Engine struct {
	logger     *slog.Logger
	restricts  map[models.RuleSubtype]restrictFunc
	validators map[models.RuleSubtype]validateFunc
	actions    map[models.RuleSubtype]actionFunc
}

// NewEngine creates an engine with the built-in evaluators registered.
func NewEngine(logger *slog.Logger) *Engine {
	engine := &Engine{
		logger:     logger,
		restricts:  make(map[models.RuleSubtype]restrictFunc),
		validators: make(map[models.RuleSubtype]validateFunc),
		actions:    make(map[models.RuleSubtype]actionFunc),
	}

	registerBuiltins(engine)

	return engine
}

// Evaluate runs the connection's active rules in phase order: restrictions
// first (short-circuiting on the first failure so the audit reason stays
// deterministic and minimal), then detail validations (collecting every
// failure), then, only when both phases pass, the ordered action intents.
func (e *Engine) Evaluate(ctx context.Context, connection *models.Connection, tc TransitionContext) (*Result, error) {
	result := &Result{
		ValidationErrors: []string{},
		Actions:          []ActionIntent{},
	}

	rules := activeRulesInOrder(connection)

	for _, rule := range rules {
		if rule.Type != models.RuleTypeRestrictTransition {
			continue
		}

		evaluate, ok := e.restricts[rule.Subtype]
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedRule, rule.Type, rule.Subtype)
		}

		reason, err := evaluate(rule, tc)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate rule %s: %w", rule.ID, err)
		}

		if reason != "" {
			result.RestrictionReason = reason

			e.logger.DebugContext(ctx, "Transition restricted",
				"connection_id", connection.ID, "rule_id", rule.ID, "reason", reason)

			return result, nil
		}
	}

	for _, rule := range rules {
		if rule.Type != models.RuleTypeValidateDetails {
			continue
		}

		evaluate, ok := e.validators[rule.Subtype]
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedRule, rule.Type, rule.Subtype)
		}

		failures, err := evaluate(rule, tc)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate rule %s: %w", rule.ID, err)
		}

		result.ValidationErrors = append(result.ValidationErrors, failures...)
	}

	if len(result.ValidationErrors) > 0 {
		return result, nil
	}

	for _, rule := range rules {
		if rule.Type != models.RuleTypePerformActions {
			continue
		}

		build, ok := e.actions[rule.Subtype]
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedRule, rule.Type, rule.Subtype)
		}

		intent, err := build(rule, tc)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate rule %s: %w", rule.ID, err)
		}

		result.Actions = append(result.Actions, intent)
	}

	result.Allowed = true

	return result, nil
}

// activeRulesInOrder returns the connection's active rules ordered by Order
// ascending, then creation time.
func activeRulesInOrder(connection *models.Connection) []*models.Rule {
	rules := make([]*models.Rule, 0, len(connection.Rules))

	for _, rule := range connection.Rules {
		if rule.Active {
			rules = append(rules, rule)
		}
	}

	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Order != rules[j].Order {
			return rules[i].Order < rules[j].Order
		}

		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})

	return rules
}

// reasonFor prefers the rule's own description for audit messages, falling
// back to its name and then a generic default.
func reasonFor(rule *models.Rule, fallback string) string {
	if rule.Description != "" {
		return rule.Description
	}

	if rule.Name != "" {
		return rule.Name
	}

	return fallback
}
