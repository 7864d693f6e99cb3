package engine

import (
	"fmt"
	"strings"

	"github.com/threadline-io/threadline/internal/domain"
)

// evaluateConditions ANDs a step's condition list against shared state.
// An empty list always passes.
func evaluateConditions(conditions []domain.Condition, state *domain.SharedState) (bool, error) {
	for _, cond := range conditions {
		ok, err := evaluateCondition(cond, state)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evaluateCondition(cond domain.Condition, state *domain.SharedState) (bool, error) {
	value, exists := state.Get(cond.Variable)

	switch cond.Operator {
	case domain.OpExists:
		return exists, nil
	case domain.OpAbsent:
		return !exists, nil
	}

	if !exists {
		return false, nil
	}

	switch cond.Operator {
	case domain.OpEquals:
		return looseEqual(value, cond.Value), nil

	case domain.OpNotEquals:
		return !looseEqual(value, cond.Value), nil

	case domain.OpGreater:
		left, right, ok := numericPair(value, cond.Value)
		if !ok {
			return false, nil
		}
		return left > right, nil

	case domain.OpLess:
		left, right, ok := numericPair(value, cond.Value)
		if !ok {
			return false, nil
		}
		return left < right, nil

	case domain.OpContains:
		return containsValue(value, cond.Value), nil

	default:
		return false, fmt.Errorf("unknown condition operator %q", cond.Operator)
	}
}

// looseEqual compares across the numeric types a decoded definition can
// produce, so 3 matches 3.0.
func looseEqual(a, b interface{}) bool {
	if la, lb, ok := numericPair(a, b); ok {
		return la == lb
	}
	return a == b
}

func numericPair(a, b interface{}) (float64, float64, bool) {
	fa, okA := asFloat(a)
	fb, okB := asFloat(b)
	return fa, fb, okA && okB
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func containsValue(haystack, needle interface{}) bool {
	switch h := haystack.(type) {
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(h, s)
	case []interface{}:
		for _, item := range h {
			if looseEqual(item, needle) {
				return true
			}
		}
		return false
	case []string:
		s, ok := needle.(string)
		if !ok {
			return false
		}
		for _, item := range h {
			if item == s {
				return true
			}
		}
		return false
	case map[string]interface{}:
		key, ok := needle.(string)
		if !ok {
			return false
		}
		_, present := h[key]
		return present
	default:
		return false
	}
}
