package engine

import (
	"context"
	"sync"

	"github.com/threadline-io/threadline/internal/domain"
)

// runPattern dispatches a planned run to its coordination strategy.
// Sequential, conditional, and event_driven all walk the declared step
// order; they differ only in gating and event emission, which runStep
// handles. Parallel walks the dependency-closure groups instead.
func (e *Engine) runPattern(ctx context.Context, st *runState, def *domain.WorkflowDefinition, plan *Plan, execCtx *domain.ExecutionContext) error {
	switch def.Pattern {
	case domain.PatternParallel:
		return e.runGroups(ctx, st, def, plan, execCtx)
	default:
		return e.runSequence(ctx, st, def, plan, execCtx)
	}
}

func (e *Engine) runSequence(ctx context.Context, st *runState, def *domain.WorkflowDefinition, plan *Plan, execCtx *domain.ExecutionContext) error {
	for i, stepID := range plan.Order {
		if st.cancelled.Load() {
			return domain.ErrCancelled
		}
		st.exec.SetCurrentStep(i)

		step := def.Step(stepID)
		if err := e.runStep(ctx, st, def, step, execCtx); err != nil {
			return err
		}
	}
	return nil
}

// runGroups executes one dependency-closure group at a time. Members
// of a group run concurrently; the next group starts only after every
// member of the current one reaches a terminal status. Failures
// surface after the whole group finishes, first failure in declared
// step order wins.
func (e *Engine) runGroups(ctx context.Context, st *runState, def *domain.WorkflowDefinition, plan *Plan, execCtx *domain.ExecutionContext) error {
	completed := 0
	for _, group := range plan.Groups {
		if st.cancelled.Load() {
			return domain.ErrCancelled
		}
		st.exec.SetCurrentStep(completed)

		errs := make([]error, len(group))
		var wg sync.WaitGroup
		for i, stepID := range group {
			wg.Add(1)
			go func(i int, step *domain.WorkflowStep) {
				defer wg.Done()
				errs[i] = e.runStep(ctx, st, def, step, execCtx)
			}(i, def.Step(stepID))
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				return err
			}
		}
		completed += len(group)
	}
	return nil
}
