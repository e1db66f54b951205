package mission

// ReadySteps returns the IDs of pending steps whose dependencies are all
// completed — the next wavefront. Dependencies on unknown step IDs can
// never be satisfied, so such steps stay unready until the deadlock pass
// skips them.
func ReadySteps(steps []Step) []string {
	completed := make(map[string]bool, len(steps))
	for i := range steps {
		if steps[i].Status == StepCompleted {
			completed[steps[i].ID] = true
		}
	}

	var ready []string
	for i := range steps {
		if steps[i].Status != StepPending {
			continue
		}
		ok := true
		for _, dep := range steps[i].DependsOn {
			if !completed[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, steps[i].ID)
		}
	}
	return ready
}

// PendingCount returns the number of steps not yet terminal or in progress.
func PendingCount(steps []Step) int {
	n := 0
	for i := range steps {
		if steps[i].Status == StepPending {
			n++
		}
	}
	return n
}

// CompletedCount returns the number of completed steps.
func CompletedCount(results []StepResult) int {
	n := 0
	for i := range results {
		if results[i].Status == StepCompleted {
			n++
		}
	}
	return n
}

// ResolveStatus derives the mission terminal status from its step results:
// completed iff all completed, failed iff none, partial otherwise.
func ResolveStatus(results []StepResult) Status {
	done := CompletedCount(results)
	switch {
	case done == len(results) && len(results) > 0:
		return StatusCompleted
	case done > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}
