// Package events is the outbound notification channel of a node. Sinks are
// registered when the node is built; delivery order is the order of
// Publish calls and a full sink reports ErrSinkFull instead of blocking.
package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

type Kind string

const (
	NodeDiscovered      Kind = "node.discovered"
	NodePruned          Kind = "node.pruned"
	RoundStarted        Kind = "round.started"
	RoundReady          Kind = "round.ready"
	RoundAbandoned      Kind = "round.abandoned"
	AggregationComplete Kind = "aggregation.complete"
)

var (
	ErrSinkFull   = errors.New("event sink is full")
	ErrSinkClosed = errors.New("event sink is closed")
)

type Event struct {
	Kind       Kind           `json:"kind"`
	NodeID     string         `json:"node_id,omitempty"`
	Round      uint64         `json:"round,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func New(kind Kind, nodeID string, round uint64, data map[string]any) Event {
	return Event{
		Kind:       kind,
		NodeID:     nodeID,
		Round:      round,
		Data:       data,
		OccurredAt: time.Now(),
	}
}

type Sink interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type nop struct{}

func Nop() Sink { return nop{} }

func (nop) Publish(context.Context, Event) error { return nil }

func (nop) Close() error { return nil }

// Channel buffers events for an in-process consumer.
type Channel struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

func NewChannel(size int) *Channel {
	return &Channel{ch: make(chan Event, size)}
}

func (c *Channel) C() <-chan Event {
	return c.ch
}

func (c *Channel) Publish(_ context.Context, e Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrSinkClosed
	}
	select {
	case c.ch <- e:
		return nil
	default:
		return ErrSinkFull
	}
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.ch)
	}

	return nil
}

type multi []Sink

// Multi delivers every event to each sink in order. A failing sink does
// not prevent delivery to the rest.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
