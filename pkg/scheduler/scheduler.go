// Package scheduler picks the node a task should run on.
package scheduler

import (
	"errors"
	"fmt"

	"github.com/absmach/cohort/node"
	"github.com/absmach/cohort/task"
)

var (
	ErrNoCandidate      = errors.New("no candidate node was provided")
	ErrUnknownScheduler = errors.New("unknown scheduler")
)

const (
	LeastLoadedName = "least_loaded"
	RoundRobinName  = "round_robin"
)

// Candidate is a node eligible to run a task together with its current
// load as seen by the dispatcher.
type Candidate struct {
	Node  node.Node
	Local bool
	Load  uint64
}

type Scheduler interface {
	Select(t task.Envelope, candidates []Candidate) (Candidate, error)
}

func New(name string) (Scheduler, error) {
	switch name {
	case "", LeastLoadedName:
		return NewLeastLoaded(), nil
	case RoundRobinName:
		return NewRoundRobin(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheduler, name)
	}
}
