package domain

import (
	"strings"
	"testing"
)

const sampleDefinition = `
id: support-triage
name: Support Triage
pattern: sequential
steps:
  - id: classify
    worker_id: classifier
    inputs:
      - field: payload
        source: context
        path: page_context
        required: true
    outputs:
      - field: text
        path: classification
  - id: respond
    worker_id: responder
    depends_on: [classify]
    inputs:
      - field: payload
        source: sharedState
        path: classification
        required: true
    on_error:
      action: retry
      fallback: continue
    retry:
      max_attempts: 2
`

func TestParseWorkflowDefinition(t *testing.T) {
	def, err := ParseWorkflowDefinition([]byte(sampleDefinition))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if def.ID != "support-triage" {
		t.Errorf("expected id support-triage, got %s", def.ID)
	}
	if def.Pattern != PatternSequential {
		t.Errorf("expected sequential pattern, got %s", def.Pattern)
	}
	if len(def.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(def.Steps))
	}

	respond := def.Step("respond")
	if respond == nil {
		t.Fatal("expected respond step")
	}
	if respond.OnError.Action != ErrorActionRetry || respond.OnError.Fallback != "continue" {
		t.Errorf("unexpected error policy: %+v", respond.OnError)
	}
	if respond.Retry.MaxAttempts != 2 {
		t.Errorf("expected 2 max attempts, got %d", respond.Retry.MaxAttempts)
	}
	if len(respond.DependsOn) != 1 || respond.DependsOn[0] != "classify" {
		t.Errorf("unexpected dependencies: %v", respond.DependsOn)
	}
}

func TestParseWorkflowDefinitionJSON(t *testing.T) {
	doc := `{"id":"wf","pattern":"parallel","steps":[{"id":"a","worker_id":"w1"}]}`
	def, err := ParseWorkflowDefinition([]byte(doc))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if def.Pattern != PatternParallel {
		t.Errorf("expected parallel, got %s", def.Pattern)
	}
}

func TestWorkflowDefinitionValidate(t *testing.T) {
	base := func() *WorkflowDefinition {
		return &WorkflowDefinition{
			ID:      "wf",
			Pattern: PatternSequential,
			Steps: []WorkflowStep{
				{ID: "a", WorkerID: "w1"},
				{ID: "b", WorkerID: "w2", DependsOn: []string{"a"}},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*WorkflowDefinition)
		wantErr string
	}{
		{"valid", func(d *WorkflowDefinition) {}, ""},
		{"empty id", func(d *WorkflowDefinition) { d.ID = "" }, "workflow id"},
		{"bad pattern", func(d *WorkflowDefinition) { d.Pattern = "round_robin" }, "coordination pattern"},
		{"no steps", func(d *WorkflowDefinition) { d.Steps = nil }, "no steps"},
		{"duplicate step", func(d *WorkflowDefinition) { d.Steps[1].ID = "a" }, "duplicate step id"},
		{"empty worker", func(d *WorkflowDefinition) { d.Steps[0].WorkerID = "" }, "worker id"},
		{"self dependency", func(d *WorkflowDefinition) { d.Steps[0].DependsOn = []string{"a"} }, "depend on itself"},
		{"unknown dependency", func(d *WorkflowDefinition) { d.Steps[1].DependsOn = []string{"ghost"} }, "unknown dependency"},
		{"bad source", func(d *WorkflowDefinition) {
			d.Steps[0].Inputs = []InputMapping{{Field: "x", Source: "env"}}
		}, "unknown mapping source"},
		{"bad transform", func(d *WorkflowDefinition) {
			d.Steps[0].Inputs = []InputMapping{{Field: "x", Source: SourceStatic, Transform: "reverse"}}
		}, "unknown transform"},
		{"bad operator", func(d *WorkflowDefinition) {
			d.Steps[0].Conditions = []Condition{{Variable: "v", Operator: "matches"}}
		}, "unknown condition operator"},
		{"bad error action", func(d *WorkflowDefinition) { d.Steps[0].OnError.Action = "abort" }, "unknown error action"},
		{"negative attempts", func(d *WorkflowDefinition) { d.Steps[0].Retry.MaxAttempts = -1 }, "cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := base()
			tt.mutate(def)
			err := def.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !IsValidationError(err) {
				t.Errorf("expected a validation error, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected %q in %q", tt.wantErr, err.Error())
			}
		})
	}
}
