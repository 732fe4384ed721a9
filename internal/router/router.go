// Package router selects which configured outputs receive a detected task,
// based on the task's domain tag and each output's domain filter.
package router

import (
	"discubot/backend/internal/pipeline"
	"discubot/backend/pkg/models"
)

// Logger is the logging interface the router needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// Router applies the deterministic multi-output routing policy.
type Router struct {
	logger Logger
}

// New creates a Router.
func New(logger Logger) *Router {
	return &Router{logger: logger}
}

// RouteTask selects the outputs a task is delivered to. A task without a
// domain tag goes to the default output only. A tagged task fans out to every
// output whose filter contains the tag; when nothing matches, it falls back
// to the default. A missing default is a flow-configuration invariant
// violation and fails hard.
func (r *Router) RouteTask(task *models.DetectedTask, outputs []*models.FlowOutput) ([]*models.FlowOutput, error) {
	def := r.defaultOutput(outputs)
	if def == nil {
		return nil, pipeline.New(pipeline.KindPermanent, "route", "flow has no default output")
	}

	if task.Domain == "" {
		return []*models.FlowOutput{def}, nil
	}

	var matched []*models.FlowOutput
	for _, o := range outputs {
		if len(o.DomainFilter) > 0 && o.MatchesDomain(task.Domain) {
			matched = append(matched, o)
		}
	}
	if len(matched) > 0 {
		return matched, nil
	}
	return []*models.FlowOutput{def}, nil
}

// defaultOutput returns the first default-flagged output, warning when the
// configuration carries more than one.
func (r *Router) defaultOutput(outputs []*models.FlowOutput) *models.FlowOutput {
	var def *models.FlowOutput
	for _, o := range outputs {
		if !o.IsDefault {
			continue
		}
		if def == nil {
			def = o
			continue
		}
		r.logger.Warn("flow has multiple default outputs, using the first",
			"flow_id", o.FlowID, "kept", def.ID, "ignored", o.ID)
	}
	return def
}

// ValidateOutputs enforces the flow-output invariant at configuration time:
// at least one output and exactly one default. Multiple defaults are a
// recoverable misconfiguration (warn, first one wins); zero is an error.
func (r *Router) ValidateOutputs(outputs []*models.FlowOutput) error {
	if len(outputs) == 0 {
		return pipeline.New(pipeline.KindPermanent, "route", "flow must have at least one output")
	}
	if r.defaultOutput(outputs) == nil {
		return pipeline.New(pipeline.KindPermanent, "route", "flow must have a default output")
	}
	return nil
}
