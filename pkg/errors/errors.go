package errors

import (
	"errors"
	"strings"
)

var (
	ErrInvalidData = errors.New("invalid data type")

	// Transport failures. A timed-out call wraps both ErrTimeout and
	// ErrUnreachablePeer so callers that only care about reachability
	// treat them the same.
	ErrUnreachablePeer = errors.New("peer unreachable")
	ErrTimeout         = errors.New("call timed out")
	ErrRemote          = errors.New("remote node returned an error")

	ErrSelfDiscovery = errors.New("discovery record carries the local node id")

	ErrInsufficientParticipants = errors.New("insufficient participants for round")
	ErrInsufficientUpdates      = errors.New("insufficient updates for aggregation")
	ErrStaleOrFutureRound       = errors.New("update targets a stale or future round")
	ErrDimensionMismatch        = errors.New("participant vectors differ in length")
	ErrRoundInProgress          = errors.New("a round is already in progress")
	ErrNoActiveRound            = errors.New("no active round")
	ErrUnknownMethod            = errors.New("unknown aggregation method")

	ErrNotCoordinator = errors.New("operation requires the coordinator role")
	ErrAlreadyRunning = errors.New("already running")
	ErrNotRunning     = errors.New("not running")
)

var wire = []error{
	ErrInvalidData,
	ErrSelfDiscovery,
	ErrInsufficientParticipants,
	ErrInsufficientUpdates,
	ErrStaleOrFutureRound,
	ErrDimensionMismatch,
	ErrRoundInProgress,
	ErrNoActiveRound,
	ErrUnknownMethod,
	ErrNotCoordinator,
	ErrNotRunning,
}

// FromMessage recovers the sentinel named in an error message received
// from a remote node. It returns nil when none matches.
func FromMessage(msg string) error {
	for _, err := range wire {
		if strings.Contains(msg, err.Error()) {
			return err
		}
	}

	return nil
}
