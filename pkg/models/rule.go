package models

import "time"

// RuleType partitions rules into the three evaluation phases.
type RuleType string

const (
	RuleTypeRestrictTransition RuleType = "restrict_transition"
	RuleTypeValidateDetails    RuleType = "validate_details"
	RuleTypePerformActions     RuleType = "perform_actions"
)

// RuleSubtype identifies the concrete behavior of a rule within its type.
type RuleSubtype string

const (
	// restrict_transition subtypes.
	RuleSubtypeBlockUntilApproval   RuleSubtype = "block_until_approval"
	RuleSubtypeRestrictByFieldValue RuleSubtype = "restrict_by_field_value"
	RuleSubtypeRestrictByUserRole   RuleSubtype = "restrict_by_user_role"
	RuleSubtypeRestrictFromAllUsers RuleSubtype = "restrict_from_all_users"

	// validate_details subtypes.
	RuleSubtypeValidateField         RuleSubtype = "validate_field"
	RuleSubtypeRequireFormSubmission RuleSubtype = "require_form_submission"

	// perform_actions subtypes.
	RuleSubtypeAssignIssue    RuleSubtype = "assign_issue"
	RuleSubtypeTriggerWebhook RuleSubtype = "trigger_webhook"
	RuleSubtypeUpdateField    RuleSubtype = "update_field"
)

// ruleSubtypes maps each rule type to its closed subtype set. A subtype
// outside its declared type's set is a validation error, never a coercion.
var ruleSubtypes = map[RuleType]map[RuleSubtype]bool{
	RuleTypeRestrictTransition: {
		RuleSubtypeBlockUntilApproval:   true,
		RuleSubtypeRestrictByFieldValue: true,
		RuleSubtypeRestrictByUserRole:   true,
		RuleSubtypeRestrictFromAllUsers: true,
	},
	RuleTypeValidateDetails: {
		RuleSubtypeValidateField:         true,
		RuleSubtypeRequireFormSubmission: true,
	},
	RuleTypePerformActions: {
		RuleSubtypeAssignIssue:    true,
		RuleSubtypeTriggerWebhook: true,
		RuleSubtypeUpdateField:    true,
	},
}

// IsValid reports whether the rule type is recognized.
func (t RuleType) IsValid() bool {
	_, ok := ruleSubtypes[t]

	return ok
}

// Allows reports whether the subtype belongs to the rule type's set.
func (t RuleType) Allows(subtype RuleSubtype) bool {
	return ruleSubtypes[t][subtype]
}

// Rule is an ordered, typed guard/validator/action attached to one connection.
type Rule struct {
	ID           string         `json:"id"`
	ConnectionID string         `json:"connection_id" validate:"required"`
	Type         RuleType       `json:"type"          validate:"required"`
	Subtype      RuleSubtype    `json:"subtype"       validate:"required"`
	Name         string         `json:"name,omitempty"`
	Description  string         `json:"description,omitempty"`
	Config       map[string]any `json:"config"`
	Order        int            `json:"order"`
	Active       bool           `json:"active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewRule constructs a rule for a connection after checking that the subtype
// belongs to the rule type and the configuration is a structured object.
func NewRule(connectionID string, ruleType RuleType, subtype RuleSubtype, config map[string]any, order int) (*Rule, error) {
	if !ruleType.IsValid() || !ruleType.Allows(subtype) {
		return nil, ErrSubtypeMismatch
	}

	if config == nil {
		return nil, ErrInvalidConfiguration
	}

	return &Rule{
		ConnectionID: connectionID,
		Type:         ruleType,
		Subtype:      subtype,
		Config:       config,
		Order:        order,
		Active:       true,
	}, nil
}
