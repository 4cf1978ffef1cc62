package models

import "errors"

// Entity invariant errors. These are surfaced synchronously to the caller of
// the offending operation and are never retried.
var (
	// ErrInvalidCategory indicates an unrecognized node category.
	ErrInvalidCategory = errors.New("invalid node category")

	// ErrSelfLoop indicates a connection whose source and target are the same node.
	ErrSelfLoop = errors.New("connection source and target must differ")

	// ErrCrossWorkflow indicates a connection whose endpoints belong to different workflows.
	ErrCrossWorkflow = errors.New("connection endpoints must belong to the same workflow")

	// ErrTerminalSource indicates a connection leaving a terminal (done/end) node.
	ErrTerminalSource = errors.New("terminal nodes accept no outgoing connections")

	// ErrProtectedTarget indicates a connection entering a start node.
	ErrProtectedTarget = errors.New("start nodes accept no incoming connections")

	// ErrInvalidConnectionType indicates an unrecognized connection type.
	ErrInvalidConnectionType = errors.New("invalid connection type")

	// ErrInvalidTriggerEvent indicates an unrecognized triggering event type.
	ErrInvalidTriggerEvent = errors.New("invalid trigger event")

	// ErrInvalidConditionConfig indicates a conditional connection without a structured
	// condition configuration object.
	ErrInvalidConditionConfig = errors.New("conditional connections require a condition configuration object")

	// ErrInvalidLoopConfig indicates a loop connection without an integer
	// max_iterations in [1, 1000].
	ErrInvalidLoopConfig = errors.New("loop connections require max_iterations between 1 and 1000")

	// ErrSubtypeMismatch indicates a rule subtype that does not belong to its rule type.
	ErrSubtypeMismatch = errors.New("rule subtype does not belong to rule type")

	// ErrInvalidConfiguration indicates a rule configuration that is not a structured object.
	ErrInvalidConfiguration = errors.New("rule configuration must be a structured object")
)
