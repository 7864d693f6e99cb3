package domain

import (
	"fmt"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// ParseWorkflowDefinition decodes a declarative workflow document.
// YAML is the primary format; JSON documents parse as well since YAML
// is a superset.
func ParseWorkflowDefinition(data []byte) (*WorkflowDefinition, error) {
	var def WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, NewValidationError("definition", "unparseable document: "+err.Error())
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

func (d *WorkflowDefinition) MarshalJSONDocument() ([]byte, error) {
	return json.Marshal(d)
}

// Validate checks the structural invariants of a definition: step ids
// unique, dependencies resolvable, and every enum field drawn from its
// closed set. Cycle detection happens at plan time.
func (d *WorkflowDefinition) Validate() error {
	if d.ID == "" {
		return NewValidationError("id", "workflow id cannot be empty")
	}
	if !d.Pattern.Valid() {
		return NewValidationError("pattern", fmt.Sprintf("unknown coordination pattern %q", d.Pattern))
	}
	if len(d.Steps) == 0 {
		return NewValidationError("steps", "workflow has no steps")
	}

	seen := make(map[string]bool, len(d.Steps))
	for _, step := range d.Steps {
		if step.ID == "" {
			return NewValidationError("steps", "step id cannot be empty")
		}
		if seen[step.ID] {
			return NewValidationError("steps", fmt.Sprintf("duplicate step id %q", step.ID))
		}
		seen[step.ID] = true
	}

	for _, step := range d.Steps {
		if err := d.validateStep(step, seen); err != nil {
			return err
		}
	}
	return nil
}

func (d *WorkflowDefinition) validateStep(step WorkflowStep, ids map[string]bool) error {
	field := "steps." + step.ID

	if step.WorkerID == "" {
		return NewValidationError(field, "worker id cannot be empty")
	}
	for _, dep := range step.DependsOn {
		if dep == step.ID {
			return NewValidationError(field, "step cannot depend on itself")
		}
		if !ids[dep] {
			return NewValidationError(field, fmt.Sprintf("unknown dependency %q", dep))
		}
	}
	for _, in := range step.Inputs {
		if in.Field == "" {
			return NewValidationError(field, "input mapping field cannot be empty")
		}
		if !in.Source.Valid() {
			return NewValidationError(field, fmt.Sprintf("unknown mapping source %q for field %q", in.Source, in.Field))
		}
		if !in.Transform.Valid() {
			return NewValidationError(field, fmt.Sprintf("unknown transform %q for field %q", in.Transform, in.Field))
		}
	}
	for _, out := range step.Outputs {
		if out.Path == "" {
			return NewValidationError(field, "output mapping path cannot be empty")
		}
		if !out.Transform.Valid() {
			return NewValidationError(field, fmt.Sprintf("unknown transform %q for output %q", out.Transform, out.Path))
		}
	}
	for _, cond := range step.Conditions {
		if cond.Variable == "" {
			return NewValidationError(field, "condition variable cannot be empty")
		}
		if !cond.Operator.Valid() {
			return NewValidationError(field, fmt.Sprintf("unknown condition operator %q", cond.Operator))
		}
	}
	if step.OnError.Action != "" && !step.OnError.Action.Valid() {
		return NewValidationError(field, fmt.Sprintf("unknown error action %q", step.OnError.Action))
	}
	if step.Retry.MaxAttempts < 0 {
		return NewValidationError(field, "retry max attempts cannot be negative")
	}
	return nil
}
