// Package transporttest provides an in-memory Transport for tests.
package transporttest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/transport"
)

// Handler answers one route on one fake peer. req is the JSON encoded
// request body, nil for GET.
type Handler func(ctx context.Context, req []byte) (any, error)

type Call struct {
	Address string
	Route   string
	Body    []byte
}

// Fake routes calls to registered handlers, round-tripping bodies through
// JSON the way a real peer would see them.
type Fake struct {
	mu       sync.Mutex
	handlers map[string]map[string]Handler
	calls    []Call
}

var _ transport.Transport = (*Fake)(nil)

func New() *Fake {
	return &Fake{handlers: make(map[string]map[string]Handler)}
}

func (f *Fake) Handle(address, route string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.handlers[address] == nil {
		f.handlers[address] = make(map[string]Handler)
	}
	f.handlers[address][route] = h
}

// Drop makes every route on address unreachable.
func (f *Fake) Drop(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.handlers, address)
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]Call(nil), f.calls...)
}

func (f *Fake) Call(ctx context.Context, address, route string, req, resp any, timeout time.Duration) error {
	var body []byte
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return err
		}
		body = data
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Address: address, Route: route, Body: body})
	h, ok := f.handlers[address][route]
	f.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: no peer at %s%s", pkgerrors.ErrUnreachablePeer, address, route)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := h(ctx, body)
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", pkgerrors.ErrTimeout, pkgerrors.ErrUnreachablePeer)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", pkgerrors.ErrRemote, err)
	}
	if resp == nil || out == nil {
		return nil
	}

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, resp)
}

func (f *Fake) Close() error {
	return nil
}
