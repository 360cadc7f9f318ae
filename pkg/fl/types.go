package fl

import (
	"fmt"
	"math"
	"time"

	"github.com/absmach/cohort/node"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
)

type Method string

const (
	// FederatedAveraging gives every participant an equal voice.
	FederatedAveraging Method = "federated_averaging"
	// WeightedAveraging weighs participants by their sample counts.
	WeightedAveraging Method = "weighted_averaging"
)

type Status string

const (
	Idle        Status = "idle"
	Collecting  Status = "collecting"
	Aggregating Status = "aggregating"
	Complete    Status = "complete"
)

type Metrics struct {
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
}

type ModelUpdate struct {
	NodeID      string    `json:"node_id"`
	Round       uint64    `json:"round"`
	Weights     []float64 `json:"weights"`
	Biases      []float64 `json:"biases"`
	SampleCount uint64    `json:"sample_count"`
	Metrics     Metrics   `json:"metrics"`
	ReceivedAt  time.Time `json:"received_at,omitempty"`
}

// Validate rejects NaN and infinite values. JSON cannot encode them, so a
// model averaged from one could never be served or snapshotted.
func (u ModelUpdate) Validate() error {
	if i, ok := nonFinite(u.Weights); ok {
		return fmt.Errorf("%w: weight %d is not finite", pkgerrors.ErrInvalidData, i)
	}
	if i, ok := nonFinite(u.Biases); ok {
		return fmt.Errorf("%w: bias %d is not finite", pkgerrors.ErrInvalidData, i)
	}
	if !finite(u.Metrics.Loss) || !finite(u.Metrics.Accuracy) {
		return fmt.Errorf("%w: metrics are not finite", pkgerrors.ErrInvalidData)
	}

	return nil
}

type GlobalModel struct {
	Round            uint64    `json:"round"`
	Weights          []float64 `json:"weights"`
	Biases           []float64 `json:"biases"`
	ParticipantCount int       `json:"participant_count"`
	TotalSamples     uint64    `json:"total_samples"`
	Method           Method    `json:"method"`
	Loss             float64   `json:"loss"`
	Accuracy         float64   `json:"accuracy"`
	CreatedAt        time.Time `json:"created_at"`
}

type Round struct {
	Number               uint64                 `json:"number"`
	Status               Status                 `json:"status"`
	RequiredParticipants int                    `json:"required_participants"`
	Participants         []string               `json:"participants"`
	Updates              map[string]ModelUpdate `json:"updates"`
	Config               map[string]any         `json:"config,omitempty"`
	StartedAt            time.Time              `json:"started_at"`
}

// Ready reports whether enough updates arrived to aggregate.
func (r Round) Ready() bool {
	return r.RequiredParticipants > 0 && len(r.Updates) >= r.RequiredParticipants
}

type RoundRecord struct {
	Round            uint64    `json:"round"`
	ParticipantCount int       `json:"participant_count"`
	Method           Method    `json:"method"`
	Loss             float64   `json:"loss"`
	Accuracy         float64   `json:"accuracy"`
	CompletedAt      time.Time `json:"completed_at"`
}

// TrainRequest is what a coordinator sends a worker to start local training.
type TrainRequest struct {
	Round       uint64         `json:"round"`
	Config      map[string]any `json:"config"`
	Coordinator node.Node      `json:"coordinator"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nonFinite(vec []float64) (int, bool) {
	for i, v := range vec {
		if !finite(v) {
			return i, true
		}
	}

	return 0, false
}
