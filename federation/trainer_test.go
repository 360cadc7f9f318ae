package federation_test

import (
	"context"
	"testing"
	"time"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/federation"
	"github.com/absmach/cohort/node"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/transport"
	"github.com/absmach/cohort/pkg/transport/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestModelTrainer(t *testing.T) {
	coord := node.Node{ID: "coordinator", Address: node.Address{Host: "10.0.0.1", Port: 7000}}
	model := &fl.GlobalModel{Round: 4, Weights: []float64{0.5, 0.25}, Biases: []float64{0.1}, Loss: 0.3, Accuracy: 0.9}

	cases := []struct {
		desc   string
		config map[string]any
		reply  coordinator.ModelResponse
		err    error
		want   fl.ModelUpdate
	}{
		{
			desc:  "returns the published model",
			reply: coordinator.ModelResponse{Round: 4, Model: model},
			want: fl.ModelUpdate{
				Round:   5,
				Weights: model.Weights,
				Biases:  model.Biases,
				Metrics: fl.Metrics{Loss: 0.3, Accuracy: 0.9},
			},
		},
		{
			desc:   "zero weights from json config",
			config: map[string]any{"dimensions": float64(3)},
			want:   fl.ModelUpdate{Round: 5, Weights: []float64{0, 0, 0}},
		},
		{
			desc:   "zero weights from cbor config",
			config: map[string]any{"dimensions": uint64(2)},
			want:   fl.ModelUpdate{Round: 5, Weights: []float64{0, 0}},
		},
		{
			desc: "no model and no dimensions",
			want: fl.ModelUpdate{Round: 5},
		},
		{
			desc: "coordinator unreachable",
			err:  pkgerrors.ErrUnreachablePeer,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			tr := mocks.NewTransport(t)
			tr.On("Call", mock.Anything, "10.0.0.1:7000", transport.RouteModel, nil, mock.Anything, time.Second).
				Run(func(args mock.Arguments) {
					*args.Get(4).(*coordinator.ModelResponse) = tc.reply
				}).
				Return(tc.err)

			trainer := federation.ModelTrainer(tr, time.Second)
			got, err := trainer.Train(context.Background(), fl.TrainRequest{Round: 5, Config: tc.config, Coordinator: coord})
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
