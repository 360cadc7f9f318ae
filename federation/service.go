package federation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/dispatcher"
	"github.com/absmach/cohort/node"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/events"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/payload"
	"github.com/absmach/cohort/pkg/scheduler"
	"github.com/absmach/cohort/pkg/transport"
	"github.com/absmach/cohort/registry"
	"github.com/absmach/cohort/task"
)

const (
	DefaultSubmitTimeout  = 10 * time.Second
	DefaultExpiryInterval = 30 * time.Second
)

type Config struct {
	Self        node.Node
	Seeds       []string
	Scheduler   string
	Registry    registry.Config
	Dispatcher  dispatcher.Config
	Coordinator coordinator.Config
	// RoundTimeout abandons rounds stuck collecting. Zero disables expiry.
	RoundTimeout   time.Duration
	ExpiryInterval time.Duration
	SubmitTimeout  time.Duration
}

type lifecycle uint8

const (
	created lifecycle = iota
	running
	stopped
)

type service struct {
	mu      sync.Mutex
	state   lifecycle
	cancel  context.CancelFunc
	loops   sync.WaitGroup
	ctx     context.Context
	trainWG sync.WaitGroup

	cfg         Config
	registry    *registry.Registry
	dispatcher  *dispatcher.Dispatcher
	coordinator *coordinator.Coordinator
	trainer     Trainer
	transport   transport.Transport
	sink        events.Sink
	logger      *slog.Logger
}

var _ Service = (*service)(nil)

// New builds the components of one node. The coordinator is only created
// when cfg.Self has the coordinator role; store may be nil.
func New(cfg Config, t transport.Transport, exec dispatcher.Executor, trainer Trainer, sink events.Sink, store fl.Snapshotter, logger *slog.Logger) (Service, error) {
	if !cfg.Self.Role.Valid() {
		return nil, fmt.Errorf("%w: role %q", pkgerrors.ErrInvalidData, cfg.Self.Role)
	}
	if cfg.Self.ID == "" {
		return nil, fmt.Errorf("%w: node id is required", pkgerrors.ErrInvalidData)
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	if cfg.ExpiryInterval <= 0 {
		cfg.ExpiryInterval = DefaultExpiryInterval
	}
	if sink == nil {
		sink = events.Nop()
	}

	sched, err := scheduler.New(cfg.Scheduler)
	if err != nil {
		return nil, err
	}

	reg := registry.New(cfg.Registry, t, sink, logger)
	reg.RegisterSelf(cfg.Self)

	svc := &service{
		cfg:        cfg,
		registry:   reg,
		dispatcher: dispatcher.New(cfg.Dispatcher, reg, exec, t, logger, dispatcher.WithScheduler(sched)),
		trainer:    trainer,
		transport:  t,
		sink:       sink,
		logger:     logger,
	}
	if cfg.Self.IsCoordinator() {
		var opts []coordinator.Option
		if store != nil {
			opts = append(opts, coordinator.WithSnapshots(store))
		}
		svc.coordinator = coordinator.New(cfg.Coordinator, reg, t, sink, logger, opts...)
	}

	return svc, nil
}

func (svc *service) Start(ctx context.Context) error {
	svc.mu.Lock()
	switch svc.state {
	case running:
		svc.mu.Unlock()

		return pkgerrors.ErrAlreadyRunning
	case stopped:
		svc.mu.Unlock()

		return fmt.Errorf("%w: service was stopped", pkgerrors.ErrNotRunning)
	}
	svc.registry.RegisterSelf(svc.registry.Self())
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	svc.ctx = bg
	svc.cancel = cancel
	svc.state = running
	svc.mu.Unlock()

	if len(svc.cfg.Seeds) > 0 {
		joined := 0
		for _, out := range svc.registry.Discover(ctx, svc.cfg.Seeds) {
			if out.Err == nil {
				joined++
			}
		}
		svc.logger.Info("Initial discovery finished", slog.Int("seeds", len(svc.cfg.Seeds)), slog.Int("joined", joined))
	}

	svc.loops.Add(1)
	go func() {
		defer svc.loops.Done()
		svc.registry.Run(bg)
	}()

	if svc.coordinator != nil && svc.cfg.RoundTimeout > 0 {
		svc.loops.Add(1)
		go func() {
			defer svc.loops.Done()
			svc.coordinator.RunExpiry(bg, svc.cfg.ExpiryInterval, svc.cfg.RoundTimeout)
		}()
	}

	return nil
}

func (svc *service) Stop(ctx context.Context) error {
	svc.mu.Lock()
	prev := svc.state
	svc.state = stopped
	cancel := svc.cancel
	svc.mu.Unlock()

	switch prev {
	case stopped:
		return nil
	case created:
		return errors.Join(svc.sink.Close(), svc.transport.Close())
	}

	cancel()
	svc.loops.Wait()

	done := make(chan struct{})
	go func() {
		svc.trainWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		svc.logger.Warn("Stopped before background training finished", slog.Any("error", ctx.Err()))
	}

	return errors.Join(svc.sink.Close(), svc.transport.Close())
}

func (svc *service) NodeInfo(_ context.Context) (node.Node, error) {
	return svc.registry.Self(), nil
}

func (svc *service) ListPeers(_ context.Context) (node.NodePage, error) {
	peers := svc.registry.ListPeers()

	return node.NodePage{Total: uint64(len(peers)), Nodes: peers}, nil
}

func (svc *service) Discover(ctx context.Context, seeds []string) ([]registry.Outcome, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: no seeds", pkgerrors.ErrInvalidData)
	}

	return svc.registry.Discover(ctx, seeds), nil
}

func (svc *service) HandleDiscovery(ctx context.Context, peer node.Node) (node.Node, error) {
	return svc.registry.HandleDiscovery(ctx, peer)
}

func (svc *service) Dispatch(ctx context.Context, p payload.Payload) (task.Result, error) {
	return svc.dispatcher.Dispatch(ctx, task.New(p), svc.registry.ListPeers())
}

func (svc *service) ExecuteTask(ctx context.Context, t task.Envelope) (task.Result, error) {
	if t.ID == "" {
		return task.Result{}, fmt.Errorf("%w: task id is required", pkgerrors.ErrInvalidData)
	}

	return svc.dispatcher.ExecuteLocal(ctx, t)
}

func (svc *service) InitiateRound(ctx context.Context, cfg coordinator.RoundConfig) (coordinator.Initiation, error) {
	if svc.coordinator == nil {
		return coordinator.Initiation{}, pkgerrors.ErrNotCoordinator
	}

	return svc.coordinator.InitiateRound(ctx, cfg)
}

func (svc *service) AbandonRound(ctx context.Context) (fl.Round, error) {
	if svc.coordinator == nil {
		return fl.Round{}, pkgerrors.ErrNotCoordinator
	}

	return svc.coordinator.AbandonRound(ctx)
}

func (svc *service) SubmitUpdate(ctx context.Context, update fl.ModelUpdate) (coordinator.Receipt, error) {
	if svc.coordinator == nil {
		return coordinator.Receipt{}, pkgerrors.ErrNotCoordinator
	}

	return svc.coordinator.ReceiveUpdate(ctx, update)
}

func (svc *service) Aggregate(ctx context.Context, method fl.Method) (fl.GlobalModel, error) {
	if svc.coordinator == nil {
		return fl.GlobalModel{}, pkgerrors.ErrNotCoordinator
	}

	return svc.coordinator.Aggregate(ctx, method)
}

func (svc *service) GlobalModel(_ context.Context) (coordinator.ModelResponse, error) {
	if svc.coordinator == nil {
		return coordinator.ModelResponse{}, pkgerrors.ErrNotCoordinator
	}

	model := svc.coordinator.GlobalModel()
	resp := coordinator.ModelResponse{Model: model}
	if model != nil {
		resp.Round = model.Round
	}

	return resp, nil
}

func (svc *service) CurrentRound(_ context.Context) (fl.Round, error) {
	if svc.coordinator == nil {
		return fl.Round{}, pkgerrors.ErrNotCoordinator
	}

	return svc.coordinator.CurrentRound(), nil
}

func (svc *service) RoundHistory(_ context.Context) ([]fl.RoundRecord, error) {
	if svc.coordinator == nil {
		return nil, pkgerrors.ErrNotCoordinator
	}

	return svc.coordinator.History(), nil
}

func (svc *service) HandleTrainRequest(_ context.Context, req fl.TrainRequest) (coordinator.TrainAck, error) {
	if svc.trainer == nil {
		return coordinator.TrainAck{}, fmt.Errorf("%w: node has no trainer", pkgerrors.ErrInvalidData)
	}
	if req.Coordinator.ID == "" || req.Coordinator.Address.Host == "" {
		return coordinator.TrainAck{}, fmt.Errorf("%w: training request without coordinator", pkgerrors.ErrInvalidData)
	}

	svc.mu.Lock()
	if svc.state != running {
		svc.mu.Unlock()

		return coordinator.TrainAck{}, pkgerrors.ErrNotRunning
	}
	ctx := svc.ctx
	svc.trainWG.Add(1)
	svc.mu.Unlock()

	self := svc.registry.Self()
	go func() {
		defer svc.trainWG.Done()
		svc.train(ctx, self, req)
	}()

	return coordinator.TrainAck{Ack: true, Round: req.Round, NodeID: self.ID}, nil
}

func (svc *service) train(ctx context.Context, self node.Node, req fl.TrainRequest) {
	update, err := svc.trainer.Train(ctx, req)
	if err != nil {
		svc.logger.Warn("Local training failed", slog.Uint64("round", req.Round), slog.Any("error", err))

		return
	}
	update.NodeID = self.ID
	update.Round = req.Round

	addr := req.Coordinator.Address.String()
	sub := coordinator.SubmitRequest{NodeID: self.ID, Round: req.Round, ModelUpdate: update}
	var receipt coordinator.Receipt
	if err := svc.transport.Call(ctx, addr, transport.RouteSubmit, sub, &receipt, svc.cfg.SubmitTimeout); err != nil {
		svc.logger.Warn("Failed to submit model update",
			slog.Uint64("round", req.Round),
			slog.String("coordinator", req.Coordinator.ID),
			slog.Any("error", err),
		)

		return
	}
	svc.logger.Info("Submitted model update",
		slog.Uint64("round", receipt.Round),
		slog.Int("received", receipt.ReceivedUpdates),
		slog.Int("required", receipt.RequiredUpdates),
	)
}

func (svc *service) Status(_ context.Context) Status {
	self := svc.registry.Self()

	svc.mu.Lock()
	st := Status{
		NodeID:    self.ID,
		Role:      self.Role,
		Running:   svc.state == running,
		PeerCount: len(svc.registry.ListPeers()),
	}
	svc.mu.Unlock()

	if svc.coordinator == nil {
		st.RoundStatus = fl.Idle

		return st
	}
	round := svc.coordinator.CurrentRound()
	st.CurrentRound = round.Number
	st.RoundStatus = round.Status
	if model := svc.coordinator.GlobalModel(); model != nil {
		st.HasModel = true
		st.ModelRound = model.Round
	}

	return st
}

func (svc *service) ClusterStatus(_ context.Context) ClusterStatus {
	nodes := append([]node.Node{svc.registry.Self()}, svc.registry.ListPeers()...)

	cs := ClusterStatus{
		Size:       len(nodes),
		Nodes:      make([]NodeSummary, 0, len(nodes)),
		Dispatched: svc.dispatcher.Stats(),
	}
	if c, ok := svc.registry.Coordinator(); ok {
		cs.Coordinator = c.ID
	}
	for _, n := range nodes {
		cs.Nodes = append(cs.Nodes, NodeSummary{
			ID:        n.ID,
			Role:      n.Role,
			Received:  n.Metrics.TasksReceived,
			Completed: n.Metrics.TasksCompleted,
			Failed:    n.Metrics.TasksFailed,
			Load:      n.Metrics.Load(),
		})
		cs.Totals.Received += n.Metrics.TasksReceived
		cs.Totals.Completed += n.Metrics.TasksCompleted
		cs.Totals.Failed += n.Metrics.TasksFailed
	}

	return cs
}

func (svc *service) Health(_ context.Context) Health {
	self := svc.registry.Self()

	svc.mu.Lock()
	status := "starting"
	switch svc.state {
	case running:
		status = "healthy"
	case stopped:
		status = "stopped"
	}
	svc.mu.Unlock()

	return Health{
		Status: status,
		NodeID: self.ID,
		Uptime: self.Uptime(time.Now()).Seconds(),
	}
}
