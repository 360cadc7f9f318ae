package federation

import (
	"context"
	"time"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/transport"
)

// ModelTrainer is a trainer with no local data: it fetches the current
// global model from the coordinator and offers it back unchanged with a
// zero sample count. A coordinator without a model yields zero vectors of
// the length given by the round's "dimensions" config, if any.
func ModelTrainer(t transport.Transport, timeout time.Duration) Trainer {
	return TrainerFunc(func(ctx context.Context, req fl.TrainRequest) (fl.ModelUpdate, error) {
		var resp coordinator.ModelResponse
		if err := t.Call(ctx, req.Coordinator.Address.String(), transport.RouteModel, nil, &resp, timeout); err != nil {
			return fl.ModelUpdate{}, err
		}

		update := fl.ModelUpdate{Round: req.Round}
		if resp.Model != nil {
			update.Weights = resp.Model.Weights
			update.Biases = resp.Model.Biases
			update.Metrics = fl.Metrics{Loss: resp.Model.Loss, Accuracy: resp.Model.Accuracy}

			return update, nil
		}
		if n := dimensions(req.Config["dimensions"]); n > 0 {
			update.Weights = make([]float64, n)
		}

		return update, nil
	})
}

// dimensions accepts the number types JSON and CBOR decode into.
func dimensions(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case uint64:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
