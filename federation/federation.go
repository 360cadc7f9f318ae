// Package federation wires the membership registry, task dispatcher and
// federated learning coordinator of one node behind a single service.
package federation

import (
	"context"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/dispatcher"
	"github.com/absmach/cohort/node"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/payload"
	"github.com/absmach/cohort/registry"
	"github.com/absmach/cohort/task"
)

type Service interface {
	// Start registers the local node, runs discovery against the seeds and
	// starts the heartbeat loop.
	Start(ctx context.Context) error
	// Stop halts the heartbeat loop, then waits for background training and
	// releases the event sink and transport. Calling it again is a no-op.
	Stop(ctx context.Context) error

	NodeInfo(ctx context.Context) (node.Node, error)
	ListPeers(ctx context.Context) (node.NodePage, error)
	Discover(ctx context.Context, seeds []string) ([]registry.Outcome, error)
	HandleDiscovery(ctx context.Context, peer node.Node) (node.Node, error)

	// Dispatch runs the payload on the least loaded node. A remote task that
	// times out is reported failed here but may still complete remotely.
	Dispatch(ctx context.Context, p payload.Payload) (task.Result, error)
	ExecuteTask(ctx context.Context, t task.Envelope) (task.Result, error)

	InitiateRound(ctx context.Context, cfg coordinator.RoundConfig) (coordinator.Initiation, error)
	AbandonRound(ctx context.Context) (fl.Round, error)
	SubmitUpdate(ctx context.Context, update fl.ModelUpdate) (coordinator.Receipt, error)
	Aggregate(ctx context.Context, method fl.Method) (fl.GlobalModel, error)
	GlobalModel(ctx context.Context) (coordinator.ModelResponse, error)
	CurrentRound(ctx context.Context) (fl.Round, error)
	RoundHistory(ctx context.Context) ([]fl.RoundRecord, error)
	// HandleTrainRequest acknowledges a round invitation and trains in the
	// background, submitting the result to the inviting coordinator.
	HandleTrainRequest(ctx context.Context, req fl.TrainRequest) (coordinator.TrainAck, error)

	Status(ctx context.Context) Status
	ClusterStatus(ctx context.Context) ClusterStatus
	Health(ctx context.Context) Health
}

// Trainer turns a round invitation into this node's model update.
type Trainer interface {
	Train(ctx context.Context, req fl.TrainRequest) (fl.ModelUpdate, error)
}

type TrainerFunc func(ctx context.Context, req fl.TrainRequest) (fl.ModelUpdate, error)

func (f TrainerFunc) Train(ctx context.Context, req fl.TrainRequest) (fl.ModelUpdate, error) {
	return f(ctx, req)
}

type Status struct {
	NodeID       string    `json:"node_id"`
	Role         node.Role `json:"role"`
	Running      bool      `json:"running"`
	PeerCount    int       `json:"peer_count"`
	CurrentRound uint64    `json:"current_round"`
	RoundStatus  fl.Status `json:"round_status"`
	HasModel     bool      `json:"has_model"`
	ModelRound   uint64    `json:"model_round,omitempty"`
}

type NodeSummary struct {
	ID        string    `json:"id"`
	Role      node.Role `json:"role"`
	Received  uint64    `json:"received"`
	Completed uint64    `json:"completed"`
	Failed    uint64    `json:"failed"`
	Load      uint64    `json:"load"`
}

type Totals struct {
	Received  uint64 `json:"received"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
}

type ClusterStatus struct {
	Size        int                 `json:"size"`
	Coordinator string              `json:"coordinator,omitempty"`
	Nodes       []NodeSummary       `json:"nodes"`
	Totals      Totals              `json:"totals"`
	Dispatched  []dispatcher.Ledger `json:"dispatched,omitempty"`
}

type Health struct {
	Status string `json:"status"`
	NodeID string `json:"nodeId"`
	// Uptime in seconds.
	Uptime float64 `json:"uptime"`
}
