package engine

import (
	"fmt"
	"strings"

	"github.com/threadline-io/threadline/internal/domain"
	"github.com/threadline-io/threadline/internal/xjson"
)

// mapInputs resolves a step's declared input mappings against the
// execution context and shared state. A required field missing from its
// source with no default is a fatal mapping error raised before the
// worker is ever invoked; an optional missing field falls back to its
// default.
func mapInputs(step *domain.WorkflowStep, execCtx *domain.ExecutionContext) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(step.Inputs))

	for _, mapping := range step.Inputs {
		value, found, err := resolveInput(mapping, execCtx)
		if err != nil {
			return nil, err
		}
		if !found {
			if mapping.Required && mapping.Default == nil {
				return nil, &domain.MappingError{
					StepID: step.ID,
					Field:  mapping.Field,
					Source: string(mapping.Source),
					Reason: "required field missing and no default declared",
				}
			}
			if mapping.Default == nil {
				continue
			}
			value = mapping.Default
		}

		transformed, err := applyTransform(mapping.Transform, value)
		if err != nil {
			return nil, &domain.MappingError{
				StepID: step.ID,
				Field:  mapping.Field,
				Source: string(mapping.Source),
				Reason: err.Error(),
			}
		}
		fields[mapping.Field] = transformed
	}
	return fields, nil
}

func resolveInput(mapping domain.InputMapping, execCtx *domain.ExecutionContext) (interface{}, bool, error) {
	switch mapping.Source {
	case domain.SourceStatic:
		if mapping.Value == nil {
			return nil, false, nil
		}
		return mapping.Value, true, nil

	case domain.SourceShared:
		value, ok := execCtx.Shared.Get(mapping.Path)
		return value, ok, nil

	case domain.SourceContext:
		return resolveContextPath(execCtx, mapping.Path)

	default:
		return nil, false, &domain.MappingError{
			Field:  mapping.Field,
			Source: string(mapping.Source),
			Reason: "unknown mapping source",
		}
	}
}

func resolveContextPath(execCtx *domain.ExecutionContext, path string) (interface{}, bool, error) {
	switch path {
	case "session_id":
		return execCtx.SessionID, execCtx.SessionID != "", nil
	case "user_id":
		return execCtx.UserID, execCtx.UserID != "", nil
	case "org_id":
		return execCtx.OrgID, execCtx.OrgID != "", nil
	case "page_context":
		return execCtx.PageContext, execCtx.PageContext != "", nil
	case "prior_output":
		return execCtx.PriorOutput, len(execCtx.PriorOutput) > 0, nil
	case "request_id":
		return execCtx.Metadata.RequestID, execCtx.Metadata.RequestID != "", nil
	case "trace_id":
		return execCtx.Metadata.TraceID, execCtx.Metadata.TraceID != "", nil
	default:
		return nil, false, nil
	}
}

// mapOutputs writes a step's declared output fields into shared state,
// tagged with the producing worker id. Transforms apply at write time.
func mapOutputs(step *domain.WorkflowStep, resp *domain.WorkerResponse, execCtx *domain.ExecutionContext) (map[string]interface{}, error) {
	written := make(map[string]interface{}, len(step.Outputs))

	for _, mapping := range step.Outputs {
		value, found := resolveOutputField(resp, mapping.Field)
		if !found {
			return nil, &domain.MappingError{
				StepID: step.ID,
				Field:  mapping.Field,
				Source: "response",
				Reason: "unknown response field",
			}
		}

		transformed, err := applyTransform(mapping.Transform, value)
		if err != nil {
			return nil, &domain.MappingError{
				StepID: step.ID,
				Field:  mapping.Field,
				Source: "response",
				Reason: err.Error(),
			}
		}

		execCtx.Shared.SetWithTTL(mapping.Path, transformed, step.WorkerID, mapping.TTL)
		written[mapping.Path] = transformed
	}
	return written, nil
}

func resolveOutputField(resp *domain.WorkerResponse, field string) (interface{}, bool) {
	switch field {
	case "", "text":
		return resp.Text, true
	case "confidence":
		return resp.Confidence, true
	case "conclusion":
		return resp.Reasoning.Conclusion, true
	case "recommendations":
		return resp.Recommendations, true
	case "next_actions":
		return resp.NextActions, true
	case "sources":
		return resp.Sources, true
	case "tokens":
		return resp.Metadata.TotalTokens, true
	case "cost":
		return resp.Cost.Total, true
	default:
		return nil, false
	}
}

// applyTransform resolves a named transform from the closed operation
// set. Definitions cannot carry executable transforms.
func applyTransform(op domain.TransformOp, value interface{}) (interface{}, error) {
	switch op {
	case domain.TransformNone:
		return value, nil

	case domain.TransformTrim:
		s, err := asString(op, value)
		if err != nil {
			return nil, err
		}
		return strings.TrimSpace(s), nil

	case domain.TransformUppercase:
		s, err := asString(op, value)
		if err != nil {
			return nil, err
		}
		return strings.ToUpper(s), nil

	case domain.TransformLowercase:
		s, err := asString(op, value)
		if err != nil {
			return nil, err
		}
		return strings.ToLower(s), nil

	case domain.TransformStringify:
		data, err := xjson.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("stringify transform failed: %w", err)
		}
		return string(data), nil

	case domain.TransformLength:
		switch v := value.(type) {
		case string:
			return len(v), nil
		case []interface{}:
			return len(v), nil
		case []string:
			return len(v), nil
		case map[string]interface{}:
			return len(v), nil
		default:
			return nil, fmt.Errorf("length transform does not apply to %T", value)
		}

	case domain.TransformFirst:
		switch v := value.(type) {
		case string:
			if idx := strings.IndexByte(v, '\n'); idx >= 0 {
				return v[:idx], nil
			}
			return v, nil
		case []interface{}:
			if len(v) == 0 {
				return nil, fmt.Errorf("first transform on empty list")
			}
			return v[0], nil
		case []string:
			if len(v) == 0 {
				return nil, fmt.Errorf("first transform on empty list")
			}
			return v[0], nil
		default:
			return nil, fmt.Errorf("first transform does not apply to %T", value)
		}

	default:
		return nil, fmt.Errorf("unknown transform %q", op)
	}
}

func asString(op domain.TransformOp, value interface{}) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%s transform requires a string, got %T", op, value)
	}
	return s, nil
}
