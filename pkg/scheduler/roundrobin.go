package scheduler

import (
	"sort"
	"sync"

	"github.com/absmach/cohort/task"
)

type roundRobin struct {
	mu   sync.Mutex
	last string
}

// NewRoundRobin cycles through candidates in node ID order, ignoring load.
func NewRoundRobin() Scheduler {
	return &roundRobin{}
}

func (r *roundRobin) Select(_ task.Envelope, candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrNoCandidate
	}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Node.ID < sorted[j].Node.ID })

	r.mu.Lock()
	defer r.mu.Unlock()

	next := sorted[0]
	for _, c := range sorted {
		if c.Node.ID > r.last {
			next = c

			break
		}
	}
	r.last = next.Node.ID

	return next, nil
}
