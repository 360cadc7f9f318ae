// Package coordinator runs federated learning rounds: it invites workers
// to train, collects their updates and aggregates them into a global model.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/cohort/node"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/events"
	"github.com/absmach/cohort/pkg/fanout"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/transport"
)

const (
	DefaultTrainTimeout = 10 * time.Second
	DefaultRoundTimeout = 10 * time.Minute
)

// Members is the view of the cluster the coordinator invites workers from.
type Members interface {
	Self() node.Node
	Workers() []node.Node
}

type Config struct {
	Method         fl.Method
	TrainTimeout   time.Duration
	MaxConcurrency int
}

type RoundConfig struct {
	// Zero means every worker known when the round starts.
	RequiredParticipants int            `json:"required_participants"`
	Config               map[string]any `json:"config,omitempty"`
}

// TrainOutcome is the result of inviting one worker to a round.
type TrainOutcome struct {
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
	Acked   bool   `json:"acked"`
	Error   string `json:"error,omitempty"`
}

type Initiation struct {
	Round    fl.Round       `json:"round"`
	Outcomes []TrainOutcome `json:"outcomes"`
}

type TrainAck struct {
	Ack    bool   `json:"ack"`
	Round  uint64 `json:"round"`
	NodeID string `json:"nodeId"`
}

type SubmitRequest struct {
	NodeID      string         `json:"nodeId"`
	Round       uint64         `json:"round"`
	ModelUpdate fl.ModelUpdate `json:"modelUpdate"`
}

type Receipt struct {
	Success         bool   `json:"success"`
	Round           uint64 `json:"round"`
	ReceivedUpdates int    `json:"receivedUpdates"`
	RequiredUpdates int    `json:"requiredUpdates"`
}

type ModelResponse struct {
	Round uint64          `json:"round"`
	Model *fl.GlobalModel `json:"model"`
}

type Coordinator struct {
	mu      sync.Mutex
	round   fl.Round
	number  uint64
	ready   bool
	history []fl.RoundRecord

	model atomic.Pointer[fl.GlobalModel]

	cfg       Config
	members   Members
	transport transport.Transport
	sink      events.Sink
	store     fl.Snapshotter
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Coordinator)

// WithSnapshots persists models and round records to s and restores the
// latest of them on construction.
func WithSnapshots(s fl.Snapshotter) Option {
	return func(c *Coordinator) {
		c.store = s
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func New(cfg Config, members Members, t transport.Transport, sink events.Sink, logger *slog.Logger, opts ...Option) *Coordinator {
	if cfg.Method == "" {
		cfg.Method = fl.FederatedAveraging
	}
	if cfg.TrainTimeout <= 0 {
		cfg.TrainTimeout = DefaultTrainTimeout
	}
	if sink == nil {
		sink = events.Nop()
	}

	c := &Coordinator{
		round:     fl.Round{Status: fl.Idle},
		cfg:       cfg,
		members:   members,
		transport: t,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.restore()

	return c
}

// InitiateRound opens the next round and asks every worker to train. A
// worker that cannot be reached is reported in the outcomes and does not
// fail the round.
func (c *Coordinator) InitiateRound(ctx context.Context, cfg RoundConfig) (Initiation, error) {
	if cfg.RequiredParticipants < 0 {
		return Initiation{}, fmt.Errorf("%w: negative participant threshold", pkgerrors.ErrInvalidData)
	}

	workers := c.members.Workers()
	required := cfg.RequiredParticipants
	if required == 0 {
		required = len(workers)
	}

	c.mu.Lock()
	if c.round.Status != fl.Idle {
		c.mu.Unlock()

		return Initiation{}, fmt.Errorf("%w: round %d is %s", pkgerrors.ErrRoundInProgress, c.round.Number, c.round.Status)
	}
	if required == 0 || len(workers) < required {
		c.mu.Unlock()

		return Initiation{}, fmt.Errorf("%w: need %d workers, have %d", pkgerrors.ErrInsufficientParticipants, required, len(workers))
	}

	c.number++
	participants := make([]string, 0, len(workers))
	for _, w := range workers {
		participants = append(participants, w.ID)
	}
	c.round = fl.Round{
		Number:               c.number,
		Status:               fl.Collecting,
		RequiredParticipants: required,
		Participants:         participants,
		Updates:              make(map[string]fl.ModelUpdate),
		Config:               cfg.Config,
		StartedAt:            c.now(),
	}
	c.ready = false
	round := cloneRound(c.round)
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Started federated round", "round", round.Number, "required", required, "workers", len(workers))
	c.emit(ctx, events.New(events.RoundStarted, c.members.Self().ID, round.Number, map[string]any{
		"required_participants": required,
		"participants":          participants,
	}))

	req := fl.TrainRequest{Round: round.Number, Config: cfg.Config, Coordinator: c.members.Self()}
	outcomes := fanout.Run(ctx, c.cfg.MaxConcurrency, workers, func(ctx context.Context, w node.Node) TrainOutcome {
		out := TrainOutcome{NodeID: w.ID, Address: w.Address.String()}

		var ack TrainAck
		if err := c.transport.Call(ctx, out.Address, transport.RouteTrain, req, &ack, c.cfg.TrainTimeout); err != nil {
			c.logger.WarnContext(ctx, "Failed to send training request", "round", round.Number, "node_id", w.ID, "error", err)
			out.Error = err.Error()

			return out
		}
		out.Acked = ack.Ack

		return out
	})

	return Initiation{Round: round, Outcomes: outcomes}, nil
}

// ReceiveUpdate stores a worker's update for the current round, replacing
// any earlier update from the same node.
func (c *Coordinator) ReceiveUpdate(ctx context.Context, update fl.ModelUpdate) (Receipt, error) {
	if update.NodeID == "" {
		return Receipt{}, fmt.Errorf("%w: update without node id", pkgerrors.ErrInvalidData)
	}
	if err := update.Validate(); err != nil {
		return Receipt{}, err
	}

	c.mu.Lock()
	switch {
	case c.round.Status == fl.Idle:
		c.mu.Unlock()

		return Receipt{}, pkgerrors.ErrNoActiveRound
	case update.Round != c.round.Number:
		current := c.round.Number
		c.mu.Unlock()

		return Receipt{}, fmt.Errorf("%w: got round %d, current is %d", pkgerrors.ErrStaleOrFutureRound, update.Round, current)
	}

	update.ReceivedAt = c.now()
	c.round.Updates[update.NodeID] = update
	crossed := !c.ready && c.round.Ready()
	if crossed {
		c.ready = true
		c.round.Status = fl.Aggregating
	}
	receipt := Receipt{
		Success:         true,
		Round:           c.round.Number,
		ReceivedUpdates: len(c.round.Updates),
		RequiredUpdates: c.round.RequiredParticipants,
	}
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "Received model update", "round", receipt.Round, "node_id", update.NodeID, "received", receipt.ReceivedUpdates)
	if crossed {
		c.logger.InfoContext(ctx, "Round ready to aggregate", "round", receipt.Round, "received", receipt.ReceivedUpdates)
		c.emit(ctx, events.New(events.RoundReady, c.members.Self().ID, receipt.Round, map[string]any{
			"received_updates": receipt.ReceivedUpdates,
			"required_updates": receipt.RequiredUpdates,
		}))
	}

	return receipt, nil
}

// Aggregate combines the collected updates with method, or the configured
// default when method is empty. On failure the round stays open and the
// published model is unchanged.
func (c *Coordinator) Aggregate(ctx context.Context, method fl.Method) (fl.GlobalModel, error) {
	if method == "" {
		method = c.cfg.Method
	}
	agg, err := fl.NewAggregator(method)
	if err != nil {
		return fl.GlobalModel{}, err
	}

	model, err := c.aggregate(agg)
	if err != nil {
		return fl.GlobalModel{}, err
	}

	c.snapshot(ctx, model)
	c.logger.InfoContext(ctx, "Aggregated federated round", "round", model.Round, "participants", model.ParticipantCount, "method", model.Method)
	c.emit(ctx, events.New(events.AggregationComplete, c.members.Self().ID, model.Round, map[string]any{
		"participants": model.ParticipantCount,
		"method":       string(model.Method),
		"loss":         model.Loss,
		"accuracy":     model.Accuracy,
	}))

	return model, nil
}

// aggregate publishes the model, appends its record and closes the round
// under a single lock.
func (c *Coordinator) aggregate(agg fl.Aggregator) (fl.GlobalModel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.round.Status == fl.Idle {
		return fl.GlobalModel{}, pkgerrors.ErrNoActiveRound
	}
	if !c.round.Ready() {
		return fl.GlobalModel{}, fmt.Errorf("%w: have %d of %d", pkgerrors.ErrInsufficientUpdates, len(c.round.Updates), c.round.RequiredParticipants)
	}

	updates := make([]fl.ModelUpdate, 0, len(c.round.Updates))
	for _, u := range c.round.Updates {
		updates = append(updates, u)
	}
	model, err := agg.Aggregate(c.round.Number, updates)
	if err != nil {
		c.logger.Warn("Aggregation failed", slog.Uint64("round", c.round.Number), slog.String("method", string(agg.Method())), slog.Any("error", err))

		return fl.GlobalModel{}, err
	}
	model.CreatedAt = c.now()

	c.model.Store(&model)
	c.history = append(c.history, recordOf(model))
	c.round = fl.Round{Number: c.round.Number, Status: fl.Idle}
	c.ready = false

	return model, nil
}

// AbandonRound discards the open round. Its number is not reused.
func (c *Coordinator) AbandonRound(ctx context.Context) (fl.Round, error) {
	c.mu.Lock()
	if c.round.Status == fl.Idle {
		c.mu.Unlock()

		return fl.Round{}, pkgerrors.ErrNoActiveRound
	}
	abandoned := cloneRound(c.round)
	c.round = fl.Round{Number: c.round.Number, Status: fl.Idle}
	c.ready = false
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Abandoned federated round", "round", abandoned.Number, "received", len(abandoned.Updates))
	c.emit(ctx, events.New(events.RoundAbandoned, c.members.Self().ID, abandoned.Number, map[string]any{
		"received_updates": len(abandoned.Updates),
	}))

	return abandoned, nil
}

// ExpireRound abandons a round that has been collecting for longer than
// timeout without reaching its threshold. It reports whether it did.
func (c *Coordinator) ExpireRound(ctx context.Context, timeout time.Duration) bool {
	c.mu.Lock()
	expired := c.round.Status == fl.Collecting && c.now().Sub(c.round.StartedAt) > timeout
	c.mu.Unlock()

	if !expired {
		return false
	}
	if _, err := c.AbandonRound(ctx); err != nil {
		return false
	}

	return true
}

// RunExpiry checks for expired rounds every interval until ctx is done.
func (c *Coordinator) RunExpiry(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.ExpireRound(ctx, timeout) {
				c.logger.WarnContext(ctx, "Federated round expired", "timeout", timeout)
			}
		}
	}
}

// GlobalModel returns the latest published model, or nil before the first
// aggregation. The returned model must not be modified.
func (c *Coordinator) GlobalModel() *fl.GlobalModel {
	return c.model.Load()
}

func (c *Coordinator) CurrentRound() fl.Round {
	c.mu.Lock()
	defer c.mu.Unlock()

	return cloneRound(c.round)
}

func (c *Coordinator) History() []fl.RoundRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]fl.RoundRecord(nil), c.history...)
}

func (c *Coordinator) restore() {
	if c.store == nil {
		return
	}

	model, err := c.store.LatestModel()
	if err != nil {
		c.logger.Warn("Failed to load model snapshot", slog.Any("error", err))
	}
	if model != nil {
		c.model.Store(model)
		c.number = model.Round
		c.round.Number = model.Round
	}

	records, err := c.store.Records()
	if err != nil {
		c.logger.Warn("Failed to load round history", slog.Any("error", err))

		return
	}
	c.history = records
	for _, r := range records {
		if r.Round > c.number {
			c.number = r.Round
			c.round.Number = r.Round
		}
	}
}

func (c *Coordinator) snapshot(ctx context.Context, model fl.GlobalModel) {
	if c.store == nil {
		return
	}
	err := errors.Join(c.store.SaveModel(model), c.store.SaveRecord(recordOf(model)))
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to snapshot round", "round", model.Round, "error", err)
	}
}

func (c *Coordinator) emit(ctx context.Context, e events.Event) {
	if err := c.sink.Publish(ctx, e); err != nil {
		c.logger.WarnContext(ctx, "Failed to publish event", "kind", e.Kind, "error", err)
	}
}

func recordOf(model fl.GlobalModel) fl.RoundRecord {
	return fl.RoundRecord{
		Round:            model.Round,
		ParticipantCount: model.ParticipantCount,
		Method:           model.Method,
		Loss:             model.Loss,
		Accuracy:         model.Accuracy,
		CompletedAt:      model.CreatedAt,
	}
}

func cloneRound(r fl.Round) fl.Round {
	out := r
	out.Participants = append([]string(nil), r.Participants...)
	if r.Updates != nil {
		out.Updates = make(map[string]fl.ModelUpdate, len(r.Updates))
		for k, v := range r.Updates {
			out.Updates[k] = v
		}
	}

	return out
}
