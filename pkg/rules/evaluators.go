package rules

import (
	"fmt"
	"reflect"
	"regexp"
	"slices"

	"github.com/stageflow/stageflow/pkg/models"
)

func registerBuiltins(engine *Engine) {
	engine.restricts[models.RuleSubtypeBlockUntilApproval] = evaluateBlockUntilApproval
	engine.restricts[models.RuleSubtypeRestrictByFieldValue] = evaluateRestrictByFieldValue
	engine.restricts[models.RuleSubtypeRestrictByUserRole] = evaluateRestrictByUserRole
	engine.restricts[models.RuleSubtypeRestrictFromAllUsers] = evaluateRestrictFromAllUsers

	engine.validators[models.RuleSubtypeValidateField] = evaluateValidateField
	engine.validators[models.RuleSubtypeRequireFormSubmission] = evaluateRequireFormSubmission

	engine.actions[models.RuleSubtypeAssignIssue] = buildActionIntent
	engine.actions[models.RuleSubtypeTriggerWebhook] = buildActionIntent
	engine.actions[models.RuleSubtypeUpdateField] = buildActionIntent
}

// evaluateBlockUntilApproval blocks until the approval named in the rule
// config has been granted on the item.
func evaluateBlockUntilApproval(rule *models.Rule, tc TransitionContext) (string, error) {
	required, _ := rule.Config["approval"].(string)
	if required == "" {
		required = "approval"
	}

	if slices.Contains(tc.Approvals, required) {
		return "", nil
	}

	return reasonFor(rule, fmt.Sprintf("transition blocked until %q is granted", required)), nil
}

// evaluateRestrictByFieldValue permits the transition only when the configured
// field comparison holds on the item's current field values.
func evaluateRestrictByFieldValue(rule *models.Rule, tc TransitionContext) (string, error) {
	field, _ := rule.Config["field"].(string)
	if field == "" {
		return "", fmt.Errorf("restrict_by_field_value requires a field")
	}

	operator, _ := rule.Config["operator"].(string)
	if operator == "" {
		operator = "equals"
	}

	matched, err := compareField(tc.FieldValues[field], operator, rule.Config["value"])
	if err != nil {
		return "", err
	}

	if matched {
		return "", nil
	}

	return reasonFor(rule, fmt.Sprintf("field %q does not permit this transition", field)), nil
}

// evaluateRestrictByUserRole permits the transition only when the acting
// principal carries one of the allowed roles.
func evaluateRestrictByUserRole(rule *models.Rule, tc TransitionContext) (string, error) {
	allowed := stringSlice(rule.Config["allowed_roles"])

	for _, role := range tc.Principal.Roles {
		if slices.Contains(allowed, role) {
			return "", nil
		}
	}

	return reasonFor(rule, "transition is not permitted for your role"), nil
}

func evaluateRestrictFromAllUsers(rule *models.Rule, _ TransitionContext) (string, error) {
	return reasonFor(rule, "transition is disabled for all users"), nil
}

// evaluateValidateField checks presence, pattern, and length constraints on a
// single field of the item being transitioned.
func evaluateValidateField(rule *models.Rule, tc TransitionContext) ([]string, error) {
	field, _ := rule.Config["field"].(string)
	if field == "" {
		return nil, fmt.Errorf("validate_field requires a field")
	}

	var failures []string

	value, present := tc.FieldValues[field]

	if required, _ := rule.Config["required"].(bool); required {
		if !present || value == nil || value == "" {
			failures = append(failures, fmt.Sprintf("field %q is required", field))

			return failures, nil
		}
	}

	text, isString := value.(string)

	if pattern, _ := rule.Config["pattern"].(string); pattern != "" && isString {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}

		if !re.MatchString(text) {
			failures = append(failures, fmt.Sprintf("field %q does not match pattern %s", field, pattern))
		}
	}

	if minLength, ok := intConfig(rule.Config["min_length"]); ok && isString && len(text) < minLength {
		failures = append(failures, fmt.Sprintf("field %q must be at least %d characters", field, minLength))
	}

	if maxLength, ok := intConfig(rule.Config["max_length"]); ok && isString && len(text) > maxLength {
		failures = append(failures, fmt.Sprintf("field %q must be at most %d characters", field, maxLength))
	}

	return failures, nil
}

// evaluateRequireFormSubmission requires every configured form field to be
// present and non-empty in the transition payload.
func evaluateRequireFormSubmission(rule *models.Rule, tc TransitionContext) ([]string, error) {
	fields := stringSlice(rule.Config["form_fields"])
	if len(fields) == 0 {
		return nil, fmt.Errorf("require_form_submission requires form_fields")
	}

	var failures []string

	for _, field := range fields {
		value, present := tc.Payload[field]
		if !present || value == nil || value == "" {
			failures = append(failures, fmt.Sprintf("form field %q must be submitted", field))
		}
	}

	return failures, nil
}

// buildActionIntent turns a perform_actions rule into the intent the caller
// executes. All perform subtypes share this shape; the subtype tells the
// caller what to do with the parameters.
func buildActionIntent(rule *models.Rule, _ TransitionContext) (ActionIntent, error) {
	return ActionIntent{
		RuleID:     rule.ID,
		Subtype:    rule.Subtype,
		Parameters: rule.Config,
		Order:      rule.Order,
	}, nil
}

func compareField(actual any, operator string, expected any) (bool, error) {
	switch operator {
	case "equals":
		return looseEqual(actual, expected), nil
	case "not_equals":
		return !looseEqual(actual, expected), nil
	case "in":
		for _, candidate := range anySlice(expected) {
			if looseEqual(actual, candidate) {
				return true, nil
			}
		}

		return false, nil
	case "not_in":
		for _, candidate := range anySlice(expected) {
			if looseEqual(actual, candidate) {
				return false, nil
			}
		}

		return true, nil
	case "greater_than":
		a, aok := floatValue(actual)
		b, bok := floatValue(expected)

		return aok && bok && a > b, nil
	case "less_than":
		a, aok := floatValue(actual)
		b, bok := floatValue(expected)

		return aok && bok && a < b, nil
	default:
		return false, fmt.Errorf("unknown operator %q", operator)
	}
}

// looseEqual compares values with numeric tolerance so that a JSON-decoded
// float64(3) equals a configured int(3).
func looseEqual(a, b any) bool {
	if af, aok := floatValue(a); aok {
		if bf, bok := floatValue(b); bok {
			return af == bf
		}
	}

	return reflect.DeepEqual(a, b)
}

func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func intConfig(v any) (int, bool) {
	f, ok := floatValue(v)
	if !ok || f != float64(int(f)) {
		return 0, false
	}

	return int(f), true
}

func stringSlice(v any) []string {
	switch values := v.(type) {
	case []string:
		return values
	case []any:
		out := make([]string, 0, len(values))

		for _, value := range values {
			if s, ok := value.(string); ok {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}

func anySlice(v any) []any {
	switch values := v.(type) {
	case []any:
		return values
	case []string:
		out := make([]any, len(values))
		for i, value := range values {
			out[i] = value
		}

		return out
	default:
		if v == nil {
			return nil
		}

		return []any{v}
	}
}
