package federation_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/dispatcher"
	"github.com/absmach/cohort/federation"
	"github.com/absmach/cohort/node"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/events"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/payload"
	"github.com/absmach/cohort/pkg/transport"
	"github.com/absmach/cohort/pkg/transport/transporttest"
	"github.com/absmach/cohort/registry"
	"github.com/absmach/cohort/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var echo = dispatcher.ExecutorFunc(func(_ context.Context, t task.Envelope) (any, error) {
	if string(t.Payload.Data) == "fail" {
		return nil, errors.New("task failed")
	}

	return string(t.Payload.Data), nil
})

func decode[T any](body []byte) (T, error) {
	var v T
	err := json.Unmarshal(body, &v)

	return v, err
}

// link serves svc's node routes on the fake network.
func link(f *transporttest.Fake, svc federation.Service) {
	self, _ := svc.NodeInfo(context.Background())
	addr := self.Address.String()

	f.Handle(addr, transport.RouteDiscover, func(ctx context.Context, body []byte) (any, error) {
		req, err := decode[registry.DiscoverRequest](body)
		if err != nil {
			return nil, err
		}
		n, err := svc.HandleDiscovery(ctx, req.NodeInfo)

		return registry.DiscoverResponse{NodeInfo: n}, err
	})
	f.Handle(addr, transport.RouteNodeInfo, func(ctx context.Context, _ []byte) (any, error) {
		return svc.NodeInfo(ctx)
	})
	f.Handle(addr, transport.RouteExecute, func(ctx context.Context, body []byte) (any, error) {
		req, err := decode[dispatcher.ExecuteRequest](body)
		if err != nil {
			return nil, err
		}
		res, err := svc.ExecuteTask(ctx, req.Task)
		if err != nil {
			return dispatcher.ExecuteResponse{Error: err.Error(), NodeID: res.NodeID}, nil
		}

		return dispatcher.ExecuteResponse{Success: true, Result: res.Output, NodeID: res.NodeID}, nil
	})
	f.Handle(addr, transport.RouteTrain, func(ctx context.Context, body []byte) (any, error) {
		req, err := decode[fl.TrainRequest](body)
		if err != nil {
			return nil, err
		}

		return svc.HandleTrainRequest(ctx, req)
	})
	f.Handle(addr, transport.RouteSubmit, func(ctx context.Context, body []byte) (any, error) {
		req, err := decode[coordinator.SubmitRequest](body)
		if err != nil {
			return nil, err
		}

		return svc.SubmitUpdate(ctx, req.ModelUpdate)
	})
	f.Handle(addr, transport.RouteModel, func(ctx context.Context, _ []byte) (any, error) {
		return svc.GlobalModel(ctx)
	})
}

type cluster struct {
	net         *transporttest.Fake
	coordinator federation.Service
	workers     []federation.Service
	sink        *events.Channel
}

func newNode(t *testing.T, f *transporttest.Fake, id string, role node.Role, port int, seeds []string, sink events.Sink) federation.Service {
	t.Helper()

	self := node.Node{ID: id, Name: id, Role: role, Address: node.Address{Host: "127.0.0.1", Port: port}}
	cfg := federation.Config{
		Self:          self,
		Seeds:         seeds,
		Registry:      registry.Config{HeartbeatInterval: time.Hour, CallTimeout: time.Second},
		Dispatcher:    dispatcher.Config{TaskTimeout: time.Second},
		Coordinator:   coordinator.Config{TrainTimeout: time.Second},
		SubmitTimeout: time.Second,
	}
	svc, err := federation.New(cfg, f, echo, federation.ModelTrainer(f, time.Second), sink, nil, slog.Default())
	require.NoError(t, err)
	link(f, svc)

	return svc
}

func newCluster(t *testing.T, workers int) *cluster {
	t.Helper()

	f := transporttest.New()
	c := &cluster{net: f, sink: events.NewChannel(64)}
	c.coordinator = newNode(t, f, "coordinator", node.CoordinatorRole, 7000, nil, c.sink)
	require.NoError(t, c.coordinator.Start(context.Background()))

	for i := range workers {
		w := newNode(t, f, fmt.Sprintf("worker-%d", i+1), node.WorkerRole, 7001+i, []string{"127.0.0.1:7000"}, nil)
		require.NoError(t, w.Start(context.Background()))
		c.workers = append(c.workers, w)
	}

	t.Cleanup(func() {
		for _, w := range c.workers {
			assert.NoError(t, w.Stop(context.Background()))
		}
		assert.NoError(t, c.coordinator.Stop(context.Background()))
	})

	return c
}

func TestStartDiscoversSeeds(t *testing.T) {
	c := newCluster(t, 2)

	page, err := c.coordinator.ListPeers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), page.Total)

	page, err = c.workers[0].ListPeers(context.Background())
	require.NoError(t, err)
	require.Len(t, page.Nodes, 1)
	assert.Equal(t, "coordinator", page.Nodes[0].ID)

	st := c.coordinator.Status(context.Background())
	assert.True(t, st.Running)
	assert.Equal(t, 2, st.PeerCount)
	assert.False(t, st.HasModel)

	cs := c.workers[0].ClusterStatus(context.Background())
	assert.Equal(t, 2, cs.Size)
	assert.Equal(t, "coordinator", cs.Coordinator)

	h := c.workers[1].Health(context.Background())
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "worker-2", h.NodeID)
}

func TestLifecycle(t *testing.T) {
	f := transporttest.New()
	svc := newNode(t, f, "solo", node.WorkerRole, 7100, nil, nil)

	require.NoError(t, svc.Start(context.Background()))
	assert.ErrorIs(t, svc.Start(context.Background()), pkgerrors.ErrAlreadyRunning)

	require.NoError(t, svc.Stop(context.Background()))
	require.NoError(t, svc.Stop(context.Background()))
	assert.False(t, svc.Status(context.Background()).Running)
	assert.Equal(t, "stopped", svc.Health(context.Background()).Status)
	assert.ErrorIs(t, svc.Start(context.Background()), pkgerrors.ErrNotRunning)

	_, err := svc.HandleTrainRequest(context.Background(), fl.TrainRequest{Round: 1, Coordinator: node.Node{ID: "c", Address: node.Address{Host: "x", Port: 1}}})
	assert.ErrorIs(t, err, pkgerrors.ErrNotRunning)
}

func TestNewRejectsBadConfig(t *testing.T) {
	f := transporttest.New()

	_, err := federation.New(federation.Config{Self: node.Node{ID: "a", Role: "leader"}}, f, echo, nil, nil, nil, slog.Default())
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidData)

	_, err = federation.New(federation.Config{Self: node.Node{ID: "a", Role: node.WorkerRole}, Scheduler: "random"}, f, echo, nil, nil, nil, slog.Default())
	assert.Error(t, err)
}

func TestWorkerRejectsCoordinatorOperations(t *testing.T) {
	c := newCluster(t, 1)
	w := c.workers[0]
	ctx := context.Background()

	_, err := w.InitiateRound(ctx, coordinator.RoundConfig{RequiredParticipants: 1})
	assert.ErrorIs(t, err, pkgerrors.ErrNotCoordinator)
	_, err = w.SubmitUpdate(ctx, fl.ModelUpdate{NodeID: "x", Round: 1})
	assert.ErrorIs(t, err, pkgerrors.ErrNotCoordinator)
	_, err = w.Aggregate(ctx, fl.FederatedAveraging)
	assert.ErrorIs(t, err, pkgerrors.ErrNotCoordinator)
	_, err = w.AbandonRound(ctx)
	assert.ErrorIs(t, err, pkgerrors.ErrNotCoordinator)
	_, err = w.GlobalModel(ctx)
	assert.ErrorIs(t, err, pkgerrors.ErrNotCoordinator)
	_, err = w.RoundHistory(ctx)
	assert.ErrorIs(t, err, pkgerrors.ErrNotCoordinator)
	_, err = w.CurrentRound(ctx)
	assert.ErrorIs(t, err, pkgerrors.ErrNotCoordinator)
}

func TestDispatchAcrossCluster(t *testing.T) {
	c := newCluster(t, 2)
	ctx := context.Background()

	res, err := c.coordinator.Dispatch(ctx, payload.Opaque([]byte("job")))
	require.NoError(t, err)
	assert.True(t, res.Local)
	assert.Equal(t, "job", res.Output)

	// A failed task stays outstanding, so the coordinator is now busier
	// than the idle workers.
	_, err = c.coordinator.ExecuteTask(ctx, task.Envelope{ID: "t-1", Payload: payload.Opaque([]byte("fail"))})
	require.Error(t, err)

	res, err = c.coordinator.Dispatch(ctx, payload.Opaque([]byte("job")))
	require.NoError(t, err)
	assert.False(t, res.Local)
	assert.Equal(t, "worker-1", res.NodeID)
	assert.Equal(t, "job", res.Output)

	cs := c.coordinator.ClusterStatus(ctx)
	assert.Equal(t, uint64(2), cs.Totals.Received)
	assert.Equal(t, uint64(1), cs.Totals.Failed)
	require.Len(t, cs.Dispatched, 1)
	assert.Equal(t, uint64(1), cs.Dispatched[0].Completed)

	self, err := c.workers[0].NodeInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), self.Metrics.TasksCompleted)

	_, err = c.coordinator.ExecuteTask(ctx, task.Envelope{ID: "t-2", Payload: payload.Payload{Kind: payload.KindJSON}})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidData)
	_, err = c.coordinator.ExecuteTask(ctx, task.Envelope{Payload: payload.Opaque(nil)})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidData)
}

func TestFederatedRoundEndToEnd(t *testing.T) {
	c := newCluster(t, 3)
	ctx := context.Background()

	init, err := c.coordinator.InitiateRound(ctx, coordinator.RoundConfig{
		RequiredParticipants: 2,
		Config:               map[string]any{"dimensions": 2},
	})
	require.NoError(t, err)
	require.Len(t, init.Outcomes, 3)
	for _, out := range init.Outcomes {
		assert.True(t, out.Acked, out.Error)
	}

	require.Eventually(t, func() bool {
		round, err := c.coordinator.CurrentRound(ctx)

		return err == nil && len(round.Updates) == 3
	}, 2*time.Second, 10*time.Millisecond)

	model, err := c.coordinator.Aggregate(ctx, fl.FederatedAveraging)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), model.Round)
	assert.Equal(t, []float64{0, 0}, model.Weights)
	assert.Equal(t, 3, model.ParticipantCount)

	resp, err := c.coordinator.GlobalModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), resp.Round)

	history, err := c.coordinator.RoundHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	st := c.coordinator.Status(ctx)
	assert.True(t, st.HasModel)
	assert.Equal(t, fl.Idle, st.RoundStatus)

	ready := 0
	drain := true
	for drain {
		select {
		case e := <-c.sink.C():
			if e.Kind == events.RoundReady {
				ready++
			}
		default:
			drain = false
		}
	}
	assert.Equal(t, 1, ready)
}
