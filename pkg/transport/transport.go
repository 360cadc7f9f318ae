// Package transport is the request/response RPC layer every cross-node call
// goes through. It never retries; callers own retry policy.
package transport

import (
	"context"
	"time"
)

const DefaultTimeout = 10 * time.Second

type Transport interface {
	// Call sends req to route on the node at address and decodes the reply
	// into resp. A nil req issues a read-only call. resp may be nil when the
	// reply body is not needed.
	Call(ctx context.Context, address, route string, req, resp any, timeout time.Duration) error

	Close() error
}

const (
	RouteDiscover      = "/node/discover"
	RouteNodeInfo      = "/node/info"
	RouteHealth        = "/health"
	RouteExecute       = "/task/execute"
	RouteClusterStatus = "/cluster/status"
	RouteTrain         = "/federated/train"
	RouteSubmit        = "/federated/submit"
	RouteModel         = "/federated/model"
)
