package domain

import "math"

// NextSequentialID returns the next per-user display number.
// max is the highest number assigned so far for the user, 0 if none.
func NextSequentialID(max int) int {
	return max + 1
}

// CompletionPercentage returns the share of completed tasks as a whole
// percentage, 0 for a todo without tasks. Uses math.Round (half away from
// zero): 1 of 3 -> 33, 2 of 3 -> 67.
func CompletionPercentage(tasks []Task) int {
	if len(tasks) == 0 {
		return 0
	}
	done := 0
	for _, t := range tasks {
		if t.Completed {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(tasks))))
}

// AllTasksCompleted reports whether the todo should be marked completed:
// at least one task and every task completed.
func AllTasksCompleted(tasks []Task) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if !t.Completed {
			return false
		}
	}
	return true
}
