// Package dispatcher places tasks on the least loaded node of the cluster
// and runs tasks sent to this node.
//
// A remote task that times out is counted as failed locally but is not
// cancelled on the remote node, which may still complete it.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/absmach/cohort/node"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/scheduler"
	"github.com/absmach/cohort/pkg/transport"
	"github.com/absmach/cohort/task"
)

const DefaultTaskTimeout = 60 * time.Second

// Executor runs a task on the local node.
type Executor interface {
	Execute(ctx context.Context, t task.Envelope) (any, error)
}

type ExecutorFunc func(ctx context.Context, t task.Envelope) (any, error)

func (f ExecutorFunc) Execute(ctx context.Context, t task.Envelope) (any, error) {
	return f(ctx, t)
}

// Self is the part of the membership registry the dispatcher needs.
type Self interface {
	Self() node.Node
	UpdateSelfMetrics(fn func(*node.Metrics)) node.Node
}

type ExecuteRequest struct {
	TaskID string        `json:"taskId"`
	Task   task.Envelope `json:"task"`
}

type ExecuteResponse struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	NodeID  string `json:"nodeId"`
}

// Ledger counts what this dispatcher sent to one node.
type Ledger struct {
	NodeID     string `json:"node_id"`
	Dispatched uint64 `json:"dispatched"`
	Completed  uint64 `json:"completed"`
	Failed     uint64 `json:"failed"`
	InFlight   uint64 `json:"in_flight"`
}

type Config struct {
	TaskTimeout time.Duration
}

type Dispatcher struct {
	mu     sync.Mutex
	ledger map[string]*Ledger

	cfg       Config
	self      Self
	executor  Executor
	scheduler scheduler.Scheduler
	transport transport.Transport
	logger    *slog.Logger
}

type Option func(*Dispatcher)

func WithScheduler(s scheduler.Scheduler) Option {
	return func(d *Dispatcher) {
		d.scheduler = s
	}
}

func New(cfg Config, self Self, exec Executor, t transport.Transport, logger *slog.Logger, opts ...Option) *Dispatcher {
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}

	d := &Dispatcher{
		ledger:    make(map[string]*Ledger),
		cfg:       cfg,
		self:      self,
		executor:  exec,
		scheduler: scheduler.NewLeastLoaded(),
		transport: t,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Dispatch runs t on the least loaded of the local node and peers. The
// chosen node's failure is returned as is; the task is never retried on
// another node.
func (d *Dispatcher) Dispatch(ctx context.Context, t task.Envelope, peers []node.Node) (task.Result, error) {
	if err := t.Payload.Validate(); err != nil {
		return task.Result{}, err
	}

	self := d.self.Self()
	candidates := []scheduler.Candidate{{Node: self, Local: true, Load: d.load(self)}}
	for _, p := range peers {
		if p.ID == self.ID {
			continue
		}
		candidates = append(candidates, scheduler.Candidate{Node: p, Load: d.load(p)})
	}

	chosen, err := d.scheduler.Select(t, candidates)
	if err != nil {
		return task.Result{}, err
	}

	d.logger.Debug("Dispatching task",
		slog.String("task_id", t.ID),
		slog.String("node_id", chosen.Node.ID),
		slog.Bool("local", chosen.Local),
		slog.Uint64("load", chosen.Load),
	)

	if chosen.Local {
		return d.ExecuteLocal(ctx, t)
	}

	return d.executeRemote(ctx, t, chosen.Node)
}

// ExecuteLocal runs t with the host executor and records it on the local
// node's counters.
func (d *Dispatcher) ExecuteLocal(ctx context.Context, t task.Envelope) (task.Result, error) {
	if err := t.Payload.Validate(); err != nil {
		return task.Result{}, err
	}

	self := d.self.UpdateSelfMetrics(func(m *node.Metrics) {
		m.TasksReceived++
	})
	res := task.Result{TaskID: t.ID, NodeID: self.ID, Local: true, State: task.Running}

	out, err := d.executor.Execute(ctx, t)
	if err != nil {
		d.self.UpdateSelfMetrics(func(m *node.Metrics) {
			m.TasksFailed++
		})
		res.State = task.Failed
		res.Error = err.Error()

		return res, err
	}

	d.self.UpdateSelfMetrics(func(m *node.Metrics) {
		m.TasksCompleted++
	})
	res.State = task.Completed
	res.Output = out

	return res, nil
}

func (d *Dispatcher) executeRemote(ctx context.Context, t task.Envelope, target node.Node) (task.Result, error) {
	d.track(target.ID, func(l *Ledger) {
		l.Dispatched++
		l.InFlight++
	})

	res := task.Result{TaskID: t.ID, NodeID: target.ID, State: task.Running}
	var resp ExecuteResponse
	err := d.transport.Call(ctx, target.Address.String(), transport.RouteExecute, ExecuteRequest{TaskID: t.ID, Task: t}, &resp, d.cfg.TaskTimeout)
	if err == nil && !resp.Success {
		err = remoteFailure(resp.Error)
	}

	if err != nil {
		d.track(target.ID, func(l *Ledger) {
			l.InFlight--
			l.Failed++
		})
		d.logger.Warn("Remote task failed",
			slog.String("task_id", t.ID),
			slog.String("node_id", target.ID),
			slog.Any("error", err),
		)
		res.State = task.Failed
		res.Error = err.Error()

		return res, err
	}

	d.track(target.ID, func(l *Ledger) {
		l.InFlight--
		l.Completed++
	})
	res.State = task.Completed
	res.Output = resp.Result

	return res, nil
}

// Stats returns the per node ledger sorted by node ID.
func (d *Dispatcher) Stats() []Ledger {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := make([]Ledger, 0, len(d.ledger))
	for _, l := range d.ledger {
		stats = append(stats, *l)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].NodeID < stats[j].NodeID })

	return stats
}

func (d *Dispatcher) load(n node.Node) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	l := n.Metrics.Load()
	if entry, ok := d.ledger[n.ID]; ok {
		l += entry.InFlight
	}

	return l
}

func (d *Dispatcher) track(id string, fn func(*Ledger)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.ledger[id]
	if !ok {
		l = &Ledger{NodeID: id}
		d.ledger[id] = l
	}
	fn(l)
}

func remoteFailure(msg string) error {
	if msg == "" {
		msg = "task failed without a reason"
	}
	err := fmt.Errorf("%w: %s", pkgerrors.ErrRemote, msg)
	if known := pkgerrors.FromMessage(msg); known != nil {
		return errors.Join(known, err)
	}

	return err
}
