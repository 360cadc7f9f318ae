package scheduler

import "github.com/absmach/cohort/task"

type leastLoaded struct{}

// NewLeastLoaded selects the candidate with the smallest load. Ties go to
// the local node, then to the lowest node ID.
func NewLeastLoaded() Scheduler {
	return leastLoaded{}
}

func (leastLoaded) Select(_ task.Envelope, candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrNoCandidate
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if less(c, best) {
			best = c
		}
	}

	return best, nil
}

func less(a, b Candidate) bool {
	if a.Load != b.Load {
		return a.Load < b.Load
	}
	if a.Local != b.Local {
		return a.Local
	}

	return a.Node.ID < b.Node.ID
}
