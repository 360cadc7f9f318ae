package fl

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"time"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
)

var ErrOverflow = errors.New("sample count overflow during aggregation")

type Aggregator interface {
	Method() Method
	Aggregate(round uint64, updates []ModelUpdate) (GlobalModel, error)
}

type averager struct {
	method Method
}

func NewAggregator(method Method) (Aggregator, error) {
	switch method {
	case FederatedAveraging, WeightedAveraging:
		return &averager{method: method}, nil
	default:
		return nil, fmt.Errorf("%w: %q", pkgerrors.ErrUnknownMethod, method)
	}
}

func (a *averager) Method() Method {
	return a.method
}

// Aggregate averages every vector index across updates. All weight vectors
// must share one length and all bias vectors another; any mismatch fails
// the whole aggregation.
func (a *averager) Aggregate(round uint64, updates []ModelUpdate) (GlobalModel, error) {
	if len(updates) == 0 {
		return GlobalModel{}, pkgerrors.ErrInsufficientUpdates
	}

	sorted := make([]ModelUpdate, len(updates))
	copy(sorted, updates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].NodeID < sorted[j].NodeID
	})

	if err := checkDimensions(sorted); err != nil {
		return GlobalModel{}, err
	}
	for _, u := range sorted {
		if err := u.Validate(); err != nil {
			return GlobalModel{}, fmt.Errorf("node %s: %w", u.NodeID, err)
		}
	}

	var total uint64
	for _, u := range sorted {
		var carry uint64
		total, carry = bits.Add64(total, u.SampleCount, 0)
		if carry != 0 {
			return GlobalModel{}, ErrOverflow
		}
	}

	weight := a.weights(sorted, total)
	loss, accuracy := 0.0, 0.0
	for i, u := range sorted {
		loss += u.Metrics.Loss * weight[i]
		accuracy += u.Metrics.Accuracy * weight[i]
	}

	weights := average(sorted, weight, func(u ModelUpdate) []float64 { return u.Weights })
	biases := average(sorted, weight, func(u ModelUpdate) []float64 { return u.Biases })
	if _, bad := nonFinite(weights); bad {
		return GlobalModel{}, fmt.Errorf("%w: averaged weights overflow", pkgerrors.ErrInvalidData)
	}
	if _, bad := nonFinite(biases); bad {
		return GlobalModel{}, fmt.Errorf("%w: averaged biases overflow", pkgerrors.ErrInvalidData)
	}

	return GlobalModel{
		Round:            round,
		Weights:          weights,
		Biases:           biases,
		ParticipantCount: len(sorted),
		TotalSamples:     total,
		Method:           a.method,
		Loss:             loss,
		Accuracy:         accuracy,
		CreatedAt:        time.Now(),
	}, nil
}

// weights returns each update's share. Weighted averaging with no samples
// at all falls back to equal shares.
func (a *averager) weights(updates []ModelUpdate, total uint64) []float64 {
	w := make([]float64, len(updates))
	if a.method == WeightedAveraging && total > 0 {
		for i, u := range updates {
			w[i] = float64(u.SampleCount) / float64(total)
		}

		return w
	}
	for i := range updates {
		w[i] = 1 / float64(len(updates))
	}

	return w
}

func average(updates []ModelUpdate, weight []float64, vec func(ModelUpdate) []float64) []float64 {
	out := make([]float64, len(vec(updates[0])))
	for i, u := range updates {
		for j, v := range vec(u) {
			out[j] += v * weight[i]
		}
	}

	return out
}

func checkDimensions(updates []ModelUpdate) error {
	nw, nb := len(updates[0].Weights), len(updates[0].Biases)
	for _, u := range updates[1:] {
		if len(u.Weights) != nw {
			return fmt.Errorf("%w: node %s sent %d weights, expected %d", pkgerrors.ErrDimensionMismatch, u.NodeID, len(u.Weights), nw)
		}
		if len(u.Biases) != nb {
			return fmt.Errorf("%w: node %s sent %d biases, expected %d", pkgerrors.ErrDimensionMismatch, u.NodeID, len(u.Biases), nb)
		}
	}

	return nil
}
