package engine

import (
	"github.com/threadline-io/threadline/internal/domain"
)

// Plan is the validated execution order for one workflow: the declared
// step order plus the dependency-closure grouping used by the parallel
// strategy. A step lands in group k once all of its dependencies sit in
// groups before k.
type Plan struct {
	Order  []string
	Groups [][]string
}

// BuildPlan validates the dependency graph and computes the group
// layering. A cycle fails the whole run before any worker is invoked.
func BuildPlan(def *domain.WorkflowDefinition) (*Plan, error) {
	if cycle := findCycle(def); len(cycle) > 0 {
		return nil, &domain.CircularDependencyError{
			WorkflowID: def.ID,
			Cycle:      cycle,
		}
	}

	plan := &Plan{
		Order: make([]string, 0, len(def.Steps)),
	}
	for _, step := range def.Steps {
		plan.Order = append(plan.Order, step.ID)
	}
	plan.Groups = layerSteps(def)
	return plan, nil
}

// findCycle runs a DFS over the step dependency graph and returns the
// first cycle found, closed back on its starting step.
func findCycle(def *domain.WorkflowDefinition) []string {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)

	state := make(map[string]int, len(def.Steps))
	deps := make(map[string][]string, len(def.Steps))
	for _, step := range def.Steps {
		deps[step.ID] = step.DependsOn
	}

	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = visiting
		stack = append(stack, id)

		for _, dep := range deps[id] {
			switch state[dep] {
			case visiting:
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string(nil), stack[start:]...), dep)
				return true
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = visited
		return false
	}

	for _, step := range def.Steps {
		if state[step.ID] == unvisited && visit(step.ID) {
			return cycle
		}
	}
	return nil
}

// layerSteps partitions steps into ordered groups by dependency
// closure. Assumes the graph is already known to be acyclic.
func layerSteps(def *domain.WorkflowDefinition) [][]string {
	level := make(map[string]int, len(def.Steps))
	assigned := 0

	for assigned < len(def.Steps) {
		progressed := false
		for _, step := range def.Steps {
			if _, done := level[step.ID]; done {
				continue
			}
			ready := true
			maxDep := -1
			for _, dep := range step.DependsOn {
				depLevel, done := level[dep]
				if !done {
					ready = false
					break
				}
				if depLevel > maxDep {
					maxDep = depLevel
				}
			}
			if ready {
				level[step.ID] = maxDep + 1
				assigned++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	maxLevel := -1
	for _, l := range level {
		if l > maxLevel {
			maxLevel = l
		}
	}

	groups := make([][]string, maxLevel+1)
	for _, step := range def.Steps {
		l := level[step.ID]
		groups[l] = append(groups[l], step.ID)
	}
	return groups
}
