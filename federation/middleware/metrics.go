package middleware

import (
	"context"
	"time"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/federation"
	"github.com/absmach/cohort/node"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/payload"
	"github.com/absmach/cohort/registry"
	"github.com/absmach/cohort/task"
	"github.com/go-kit/kit/metrics"
)

var _ federation.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     federation.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc federation.Service) federation.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) observe(method string, begin time.Time) {
	mm.counter.With("method", method).Add(1)
	mm.latency.With("method", method).Observe(time.Since(begin).Seconds())
}

func (mm *metricsMiddleware) Start(ctx context.Context) error {
	defer mm.observe("start", time.Now())

	return mm.svc.Start(ctx)
}

func (mm *metricsMiddleware) Stop(ctx context.Context) error {
	defer mm.observe("stop", time.Now())

	return mm.svc.Stop(ctx)
}

func (mm *metricsMiddleware) NodeInfo(ctx context.Context) (node.Node, error) {
	defer mm.observe("node-info", time.Now())

	return mm.svc.NodeInfo(ctx)
}

func (mm *metricsMiddleware) ListPeers(ctx context.Context) (node.NodePage, error) {
	defer mm.observe("list-peers", time.Now())

	return mm.svc.ListPeers(ctx)
}

func (mm *metricsMiddleware) Discover(ctx context.Context, seeds []string) ([]registry.Outcome, error) {
	defer mm.observe("discover", time.Now())

	return mm.svc.Discover(ctx, seeds)
}

func (mm *metricsMiddleware) HandleDiscovery(ctx context.Context, peer node.Node) (node.Node, error) {
	defer mm.observe("handle-discovery", time.Now())

	return mm.svc.HandleDiscovery(ctx, peer)
}

func (mm *metricsMiddleware) Dispatch(ctx context.Context, p payload.Payload) (task.Result, error) {
	defer mm.observe("dispatch", time.Now())

	return mm.svc.Dispatch(ctx, p)
}

func (mm *metricsMiddleware) ExecuteTask(ctx context.Context, t task.Envelope) (task.Result, error) {
	defer mm.observe("execute-task", time.Now())

	return mm.svc.ExecuteTask(ctx, t)
}

func (mm *metricsMiddleware) InitiateRound(ctx context.Context, cfg coordinator.RoundConfig) (coordinator.Initiation, error) {
	defer mm.observe("initiate-round", time.Now())

	return mm.svc.InitiateRound(ctx, cfg)
}

func (mm *metricsMiddleware) AbandonRound(ctx context.Context) (fl.Round, error) {
	defer mm.observe("abandon-round", time.Now())

	return mm.svc.AbandonRound(ctx)
}

func (mm *metricsMiddleware) SubmitUpdate(ctx context.Context, update fl.ModelUpdate) (coordinator.Receipt, error) {
	defer mm.observe("submit-update", time.Now())

	return mm.svc.SubmitUpdate(ctx, update)
}

func (mm *metricsMiddleware) Aggregate(ctx context.Context, method fl.Method) (fl.GlobalModel, error) {
	defer mm.observe("aggregate", time.Now())

	return mm.svc.Aggregate(ctx, method)
}

func (mm *metricsMiddleware) GlobalModel(ctx context.Context) (coordinator.ModelResponse, error) {
	defer mm.observe("global-model", time.Now())

	return mm.svc.GlobalModel(ctx)
}

func (mm *metricsMiddleware) CurrentRound(ctx context.Context) (fl.Round, error) {
	defer mm.observe("current-round", time.Now())

	return mm.svc.CurrentRound(ctx)
}

func (mm *metricsMiddleware) RoundHistory(ctx context.Context) ([]fl.RoundRecord, error) {
	defer mm.observe("round-history", time.Now())

	return mm.svc.RoundHistory(ctx)
}

func (mm *metricsMiddleware) HandleTrainRequest(ctx context.Context, req fl.TrainRequest) (coordinator.TrainAck, error) {
	defer mm.observe("handle-train-request", time.Now())

	return mm.svc.HandleTrainRequest(ctx, req)
}

func (mm *metricsMiddleware) Status(ctx context.Context) federation.Status {
	defer mm.observe("status", time.Now())

	return mm.svc.Status(ctx)
}

func (mm *metricsMiddleware) ClusterStatus(ctx context.Context) federation.ClusterStatus {
	defer mm.observe("cluster-status", time.Now())

	return mm.svc.ClusterStatus(ctx)
}

func (mm *metricsMiddleware) Health(ctx context.Context) federation.Health {
	return mm.svc.Health(ctx)
}
