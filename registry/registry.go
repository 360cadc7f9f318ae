// Package registry keeps the local node's identity and its table of known
// peers, refreshed by discovery and heartbeats and pruned on staleness.
package registry

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
	"github.com/absmach/cohort/pkg/events"
	"github.com/absmach/cohort/pkg/fanout"
	"github.com/absmach/cohort/pkg/transport"
)

const (
	DefaultHeartbeatInterval = 10 * time.Second
	// A peer is stale after this many heartbeat intervals without a reply.
	StaleMultiple = 3
)

type Config struct {
	HeartbeatInterval time.Duration
	CallTimeout       time.Duration
	MaxConcurrency    int
}

// DiscoverRequest and DiscoverResponse are the /node/discover bodies.
type DiscoverRequest struct {
	NodeInfo node.Node `json:"nodeInfo"`
}

type DiscoverResponse struct {
	NodeInfo node.Node `json:"nodeInfo"`
}

// Outcome is the result of one discovery or heartbeat leg.
type Outcome struct {
	Address string `json:"address"`
	NodeID  string `json:"node_id,omitempty"`
	Err     error  `json:"-"`
}

type Registry struct {
	mu    sync.RWMutex
	self  node.Node
	peers map[string]node.Node

	cfg       Config
	transport transport.Transport
	sink      events.Sink
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Registry)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func New(cfg Config, t transport.Transport, sink events.Sink, logger *slog.Logger, opts ...Option) *Registry {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = transport.DefaultTimeout
	}
	if sink == nil {
		sink = events.Nop()
	}

	r := &Registry{
		peers:     make(map[string]node.Node),
		cfg:       cfg,
		transport: t,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// RegisterSelf sets the local identity. Calling it again overwrites it.
func (r *Registry) RegisterSelf(self node.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	self.LastSeen = r.now()
	if self.StartedAt.IsZero() {
		self.StartedAt = self.LastSeen
	}
	r.self = self
	delete(r.peers, self.ID)
}

func (r *Registry) Self() node.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.self
}

// UpdateSelfMetrics applies fn to the local counters and returns the
// updated record.
func (r *Registry) UpdateSelfMetrics(fn func(*node.Metrics)) node.Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn(&r.self.Metrics)

	return r.self
}

func (r *Registry) ListPeers() []node.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]node.Node, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })

	return peers
}

func (r *Registry) Workers() []node.Node {
	var workers []node.Node
	for _, p := range r.ListPeers() {
		if p.Role == node.WorkerRole {
			workers = append(workers, p)
		}
	}

	return workers
}

func (r *Registry) Peer(id string) (node.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.peers[id]

	return p, ok
}

// Coordinator returns the coordinator of the cluster as this node sees it.
func (r *Registry) Coordinator() (node.Node, bool) {
	if self := r.Self(); self.IsCoordinator() {
		return self, true
	}
	for _, p := range r.ListPeers() {
		if p.IsCoordinator() {
			return p, true
		}
	}

	return node.Node{}, false
}

func (r *Registry) StaleThreshold() time.Duration {
	return StaleMultiple * r.cfg.HeartbeatInterval
}

func (r *Registry) HeartbeatInterval() time.Duration {
	return r.cfg.HeartbeatInterval
}

// HandleDiscovery records a peer that announced itself and returns the
// local record as the reply.
func (r *Registry) HandleDiscovery(ctx context.Context, peer node.Node) (node.Node, error) {
	if peer.ID == "" {
		return node.Node{}, errors.Join(pkgerrors.ErrInvalidData, errors.New("missing node id"))
	}
	if peer.ID == r.Self().ID {
		return node.Node{}, pkgerrors.ErrSelfDiscovery
	}

	r.refresh(ctx, peer)

	return r.Self(), nil
}

// Discover announces the local node to every seed concurrently. Each seed
// gets its own bounded call; an unreachable seed is logged and skipped.
func (r *Registry) Discover(ctx context.Context, seeds []string) []Outcome {
	self := r.Self()
	req := DiscoverRequest{NodeInfo: self}

	return fanout.Run(ctx, r.cfg.MaxConcurrency, seeds, func(ctx context.Context, seed string) Outcome {
		out := Outcome{Address: seed}
		if seed == self.Address.String() {
			out.Err = pkgerrors.ErrSelfDiscovery

			return out
		}

		var resp DiscoverResponse
		if err := r.transport.Call(ctx, seed, transport.RouteDiscover, req, &resp, r.cfg.CallTimeout); err != nil {
			r.logger.Warn("Discovery seed unreachable", slog.String("seed", seed), slog.Any("error", err))
			out.Err = err

			return out
		}

		peer := resp.NodeInfo
		out.NodeID = peer.ID
		switch {
		case peer.ID == "":
			out.Err = errors.Join(pkgerrors.ErrInvalidData, fmt.Errorf("seed %s replied without a node id", seed))
		case peer.ID == self.ID:
			out.Err = pkgerrors.ErrSelfDiscovery
		default:
			r.refresh(ctx, peer)
		}

		return out
	})
}

// HeartbeatTick calls every known peer concurrently. Replies refresh the
// peer; failures only leave LastSeen where it was.
func (r *Registry) HeartbeatTick(ctx context.Context) []Outcome {
	return fanout.Run(ctx, r.cfg.MaxConcurrency, r.ListPeers(), func(ctx context.Context, peer node.Node) Outcome {
		addr := peer.Address.String()
		out := Outcome{Address: addr, NodeID: peer.ID}

		var info node.Node
		if err := r.transport.Call(ctx, addr, transport.RouteNodeInfo, nil, &info, r.cfg.CallTimeout); err != nil {
			r.logger.Debug("Heartbeat failed", slog.String("node_id", peer.ID), slog.String("address", addr), slog.Any("error", err))
			out.Err = err

			return out
		}
		if info.ID != peer.ID {
			out.Err = fmt.Errorf("%w: %s now answers as %q", pkgerrors.ErrUnreachablePeer, addr, info.ID)

			return out
		}
		r.refresh(ctx, info)

		return out
	})
}

// PruneStale drops peers not heard from within threshold and returns them.
// The local record is never a candidate.
func (r *Registry) PruneStale(ctx context.Context, threshold time.Duration) []node.Node {
	r.mu.Lock()
	now := r.now()
	var pruned []node.Node
	for id, p := range r.peers {
		if now.Sub(p.LastSeen) > threshold {
			pruned = append(pruned, p)
			delete(r.peers, id)
		}
	}
	r.mu.Unlock()

	for _, p := range pruned {
		r.logger.Info("Pruned stale peer", slog.String("node_id", p.ID), slog.Time("last_seen", p.LastSeen))
		r.emit(ctx, events.New(events.NodePruned, p.ID, 0, map[string]any{"address": p.Address.String()}))
	}

	return pruned
}

// Run drives heartbeats and pruning until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping heartbeats")

			return
		case <-ticker.C:
			r.HeartbeatTick(ctx)
			r.PruneStale(ctx, r.StaleThreshold())
		}
	}
}

// refresh inserts or updates a peer. LastSeen never moves backwards even
// when replies complete out of order.
func (r *Registry) refresh(ctx context.Context, peer node.Node) {
	r.mu.Lock()
	now := r.now()
	existing, known := r.peers[peer.ID]
	peer.LastSeen = now
	if known && existing.LastSeen.After(now) {
		peer.LastSeen = existing.LastSeen
	}
	r.peers[peer.ID] = peer
	r.mu.Unlock()

	if !known {
		r.logger.Info("Discovered peer",
			slog.String("node_id", peer.ID),
			slog.String("role", string(peer.Role)),
			slog.String("address", peer.Address.String()),
		)
		r.emit(ctx, events.New(events.NodeDiscovered, peer.ID, 0, map[string]any{
			"address": peer.Address.String(),
			"role":    string(peer.Role),
		}))
	}
}

func (r *Registry) emit(ctx context.Context, e events.Event) {
	if err := r.sink.Publish(ctx, e); err != nil {
		r.logger.Warn("Failed to publish event", slog.String("kind", string(e.Kind)), slog.Any("error", err))
	}
}
