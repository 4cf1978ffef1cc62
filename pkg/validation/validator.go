// Package validation performs whole-graph structural validation of a workflow:
// start-node cardinality, terminal integrity, reachability, cycle policy,
// conditional completeness, and loop bound sanity.
package validation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/stageflow/stageflow/pkg/models"
)

// Code identifies a structural error or warning.
type Code string

const (
	CodeNoStartNode                Code = "NoStartNode"
	CodeMultipleStartNodes         Code = "MultipleStartNodes"
	CodeTerminalNodeOutgoing       Code = "TerminalNodeOutgoing"
	CodeUnreachableNode            Code = "UnreachableNode"
	CodeUnintendedCycle            Code = "UnintendedCycle"
	CodeDeadEnd                    Code = "DeadEnd"
	CodeAmbiguousConditionalBranch Code = "AmbiguousConditionalBranch"
	CodeInvalidLoopBound           Code = "InvalidLoopBound"
	CodeUnreachableLoopTarget      Code = "UnreachableLoopTarget"
)

// Issue is a single validation finding, pointing at the offending entity.
type Issue struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	EntityRef string `json:"entity_ref,omitempty"`
}

// Result is the outcome of a full-graph validation pass. Errors block
// publication; warnings are informational and never block anything.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Validator recomputes its result from the current graph on every call. It
// holds no state between calls, so validating an unchanged graph twice yields
// identical results.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a graph validator.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{logger: logger}
}

// graph is the in-memory snapshot a single validation pass works over.
// Deleted entities are excluded up front.
type graph struct {
	nodes    map[string]*models.Node
	forward  map[string][]*models.Connection // sequential/conditional/parallel, by source
	loops    []*models.Connection
	outgoing map[string][]*models.Connection // every type, by source
}

func buildGraph(workflow *models.Workflow) *graph {
	g := &graph{
		nodes:    make(map[string]*models.Node),
		forward:  make(map[string][]*models.Connection),
		outgoing: make(map[string][]*models.Connection),
	}

	for _, node := range workflow.ActiveNodes() {
		g.nodes[node.ID] = node
	}

	for _, connection := range workflow.ActiveConnections() {
		g.outgoing[connection.SourceNodeID] = append(g.outgoing[connection.SourceNodeID], connection)

		if connection.IsForwardEdge() {
			g.forward[connection.SourceNodeID] = append(g.forward[connection.SourceNodeID], connection)
		} else {
			g.loops = append(g.loops, connection)
		}
	}

	return g
}

// Validate runs the full structural pass over the workflow's non-deleted
// nodes and connections.
func (v *Validator) Validate(workflow *models.Workflow) *Result {
	result := &Result{
		Errors:   []Issue{},
		Warnings: []Issue{},
	}

	g := buildGraph(workflow)

	startID := v.checkStartCardinality(g, result)
	v.checkTerminalIntegrity(g, result)

	if startID != "" {
		v.checkReachability(g, startID, result)
	}

	v.checkCycles(g, result)
	v.checkDeadEnds(g, result)
	v.checkConditionalCompleteness(g, result)
	v.checkLoops(g, result)

	result.Valid = len(result.Errors) == 0

	v.logger.Debug("Validated workflow graph",
		"workflow_id", workflow.ID,
		"valid", result.Valid,
		"errors", len(result.Errors),
		"warnings", len(result.Warnings))

	return result
}

// checkStartCardinality enforces exactly one non-deleted start node and
// returns its ID when unique.
func (v *Validator) checkStartCardinality(g *graph, result *Result) string {
	var starts []string

	for id, node := range g.nodes {
		if node.Category.IsStart() {
			starts = append(starts, id)
		}
	}

	switch len(starts) {
	case 0:
		result.Errors = append(result.Errors, Issue{
			Code:    CodeNoStartNode,
			Message: "workflow has no start node",
		})

		return ""
	case 1:
		return starts[0]
	default:
		sort.Strings(starts)

		for _, id := range starts {
			result.Errors = append(result.Errors, Issue{
				Code:      CodeMultipleStartNodes,
				Message:   fmt.Sprintf("workflow has multiple start nodes; %q is one of %d", g.nodes[id].Label, len(starts)),
				EntityRef: id,
			})
		}

		return ""
	}
}

// checkTerminalIntegrity re-checks that terminal nodes have zero outgoing
// connections. Entity-level creation already enforces this, but bulk imports
// may bypass single-entity paths.
func (v *Validator) checkTerminalIntegrity(g *graph, result *Result) {
	for id, node := range g.nodes {
		if !node.IsTerminal() {
			continue
		}

		for _, connection := range g.outgoing[id] {
			result.Errors = append(result.Errors, Issue{
				Code:      CodeTerminalNodeOutgoing,
				Message:   fmt.Sprintf("terminal node %q has an outgoing connection", node.Label),
				EntityRef: connection.ID,
			})
		}
	}
}

// checkReachability walks breadth-first from the start node over forward
// edges only; loop edges intentionally revisit earlier nodes and are not
// forward progress. Unreached nodes are warnings, not errors, since a node
// may be intentionally staged before wiring.
func (v *Validator) checkReachability(g *graph, startID string, result *Result) {
	reached := v.reachableFrom(g, startID)

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	for _, id := range ids {
		if !reached[id] {
			result.Warnings = append(result.Warnings, Issue{
				Code:      CodeUnreachableNode,
				Message:   fmt.Sprintf("node %q is not reachable from the start node", g.nodes[id].Label),
				EntityRef: id,
			})
		}
	}
}

func (v *Validator) reachableFrom(g *graph, startID string) map[string]bool {
	reached := map[string]bool{startID: true}
	queue := []string{startID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, connection := range g.forward[current] {
			target := connection.TargetNodeID
			if _, exists := g.nodes[target]; !exists || reached[target] {
				continue
			}

			reached[target] = true
			queue = append(queue, target)
		}
	}

	return reached
}

// checkCycles runs a depth-first search over forward edges only; any
// back-edge is an unintended cycle. Loop connections are the only sanctioned
// way to revisit a node and are excluded by construction.
func (v *Validator) checkCycles(g *graph, result *Result) {
	const (
		white = iota // unvisited
		gray         // on the current DFS stack
		black        // fully explored
	)

	colors := make(map[string]int, len(g.nodes))

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	var visit func(id string)
	visit = func(id string) {
		colors[id] = gray

		for _, connection := range g.forward[id] {
			target := connection.TargetNodeID
			if _, exists := g.nodes[target]; !exists {
				continue
			}

			switch colors[target] {
			case gray:
				result.Errors = append(result.Errors, Issue{
					Code: CodeUnintendedCycle,
					Message: fmt.Sprintf("connection %q → %q closes a cycle; use a loop connection to revisit a node",
						g.nodes[id].Label, g.nodes[target].Label),
					EntityRef: connection.ID,
				})
			case white:
				visit(target)
			}
		}

		colors[id] = black
	}

	for _, id := range ids {
		if colors[id] == white {
			visit(id)
		}
	}
}

// checkDeadEnds warns about non-terminal nodes with no outgoing connections.
func (v *Validator) checkDeadEnds(g *graph, result *Result) {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	for _, id := range ids {
		node := g.nodes[id]
		if node.IsTerminal() || len(g.outgoing[id]) > 0 {
			continue
		}

		result.Warnings = append(result.Warnings, Issue{
			Code:      CodeDeadEnd,
			Message:   fmt.Sprintf("non-terminal node %q has no outgoing connections", node.Label),
			EntityRef: id,
		})
	}
}

// checkConditionalCompleteness flags nodes whose conditional branches carry
// pairwise identical condition configurations. Tie-break by priority alone
// indicates a design gap worth surfacing, not silently resolving.
func (v *Validator) checkConditionalCompleteness(g *graph, result *Result) {
	ids := make([]string, 0, len(g.forward))
	for id := range g.forward {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	for _, id := range ids {
		var conditionals []*models.Connection

		for _, connection := range g.forward[id] {
			if connection.Type == models.ConnectionTypeConditional {
				conditionals = append(conditionals, connection)
			}
		}

		if len(conditionals) < 2 {
			continue
		}

		seen := make(map[string]*models.Connection, len(conditionals))

		for _, connection := range conditionals {
			key := canonicalConfig(connection.ConditionConfig)

			if prior, duplicate := seen[key]; duplicate {
				result.Errors = append(result.Errors, Issue{
					Code: CodeAmbiguousConditionalBranch,
					Message: fmt.Sprintf("conditional connections %q and %q from node %q carry identical conditions",
						prior.Name, connection.Name, g.nodes[id].Label),
					EntityRef: connection.ID,
				})

				continue
			}

			seen[key] = connection
		}
	}
}

// checkLoops re-asserts the entity-level loop bound and requires a forward
// path from the loop's target back to its source, so that iterating the loop
// is actually possible.
func (v *Validator) checkLoops(g *graph, result *Result) {
	for _, connection := range g.loops {
		if _, err := connection.MaxIterations(); err != nil {
			result.Errors = append(result.Errors, Issue{
				Code:      CodeInvalidLoopBound,
				Message:   fmt.Sprintf("loop connection %q requires max_iterations between %d and %d", connection.Name, models.LoopMinIterations, models.LoopMaxIterations),
				EntityRef: connection.ID,
			})

			continue
		}

		target := connection.TargetNodeID
		if _, exists := g.nodes[target]; !exists {
			continue
		}

		reached := v.reachableFrom(g, target)
		if !reached[connection.SourceNodeID] {
			result.Errors = append(result.Errors, Issue{
				Code:      CodeUnreachableLoopTarget,
				Message:   fmt.Sprintf("loop connection %q has no forward path from its target back to its source", connection.Name),
				EntityRef: connection.ID,
			})
		}
	}
}

// canonicalConfig renders a condition configuration as canonical JSON so map
// ordering never affects duplicate detection. encoding/json sorts map keys.
func canonicalConfig(config map[string]any) string {
	if len(config) == 0 {
		return "{}"
	}

	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Sprintf("%v", config)
	}

	return string(raw)
}
