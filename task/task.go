package task

import (
	"time"

	"github.com/absmach/cohort/pkg/payload"
	"github.com/google/uuid"
)

type State uint8

const (
	Pending State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Envelope is a unit of dispatchable work. It is immutable once created
// and is executed by exactly one node.
type Envelope struct {
	ID          string          `json:"id"`
	Payload     payload.Payload `json:"payload"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

func New(p payload.Payload) Envelope {
	return Envelope{
		ID:          uuid.NewString(),
		Payload:     p,
		SubmittedAt: time.Now(),
	}
}

// Result reports where an envelope ran and how it ended.
type Result struct {
	TaskID string `json:"task_id"`
	NodeID string `json:"node_id"`
	Local  bool   `json:"local"`
	State  State  `json:"state"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}
