package middleware

import (
	"context"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/federation"
	"github.com/absmach/cohort/node"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/payload"
	"github.com/absmach/cohort/registry"
	"github.com/absmach/cohort/task"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ federation.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    federation.Service
}

func Tracing(tracer trace.Tracer, svc federation.Service) federation.Service {
	return &tracing{tracer, svc}
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (tm *tracing) Start(ctx context.Context) (err error) {
	ctx, span := tm.tracer.Start(ctx, "start")
	defer func() { end(span, err) }()

	return tm.svc.Start(ctx)
}

func (tm *tracing) Stop(ctx context.Context) (err error) {
	ctx, span := tm.tracer.Start(ctx, "stop")
	defer func() { end(span, err) }()

	return tm.svc.Stop(ctx)
}

func (tm *tracing) NodeInfo(ctx context.Context) (node.Node, error) {
	ctx, span := tm.tracer.Start(ctx, "node-info")
	defer span.End()

	return tm.svc.NodeInfo(ctx)
}

func (tm *tracing) ListPeers(ctx context.Context) (node.NodePage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-peers")
	defer span.End()

	return tm.svc.ListPeers(ctx)
}

func (tm *tracing) Discover(ctx context.Context, seeds []string) (outcomes []registry.Outcome, err error) {
	ctx, span := tm.tracer.Start(ctx, "discover", trace.WithAttributes(
		attribute.StringSlice("seeds", seeds),
	))
	defer func() { end(span, err) }()

	return tm.svc.Discover(ctx, seeds)
}

func (tm *tracing) HandleDiscovery(ctx context.Context, peer node.Node) (n node.Node, err error) {
	ctx, span := tm.tracer.Start(ctx, "handle-discovery", trace.WithAttributes(
		attribute.String("peer.id", peer.ID),
		attribute.String("peer.address", peer.Address.String()),
	))
	defer func() { end(span, err) }()

	return tm.svc.HandleDiscovery(ctx, peer)
}

func (tm *tracing) Dispatch(ctx context.Context, p payload.Payload) (res task.Result, err error) {
	ctx, span := tm.tracer.Start(ctx, "dispatch", trace.WithAttributes(
		attribute.String("payload.kind", string(p.Kind)),
	))
	defer func() {
		span.SetAttributes(
			attribute.String("task.id", res.TaskID),
			attribute.String("node.id", res.NodeID),
			attribute.Bool("local", res.Local),
		)
		end(span, err)
	}()

	return tm.svc.Dispatch(ctx, p)
}

func (tm *tracing) ExecuteTask(ctx context.Context, t task.Envelope) (res task.Result, err error) {
	ctx, span := tm.tracer.Start(ctx, "execute-task", trace.WithAttributes(
		attribute.String("task.id", t.ID),
		attribute.String("payload.kind", string(t.Payload.Kind)),
	))
	defer func() { end(span, err) }()

	return tm.svc.ExecuteTask(ctx, t)
}

func (tm *tracing) InitiateRound(ctx context.Context, cfg coordinator.RoundConfig) (init coordinator.Initiation, err error) {
	ctx, span := tm.tracer.Start(ctx, "initiate-round", trace.WithAttributes(
		attribute.Int("required_participants", cfg.RequiredParticipants),
	))
	defer func() {
		span.SetAttributes(attribute.Int64("round", int64(init.Round.Number)))
		end(span, err)
	}()

	return tm.svc.InitiateRound(ctx, cfg)
}

func (tm *tracing) AbandonRound(ctx context.Context) (round fl.Round, err error) {
	ctx, span := tm.tracer.Start(ctx, "abandon-round")
	defer func() { end(span, err) }()

	return tm.svc.AbandonRound(ctx)
}

func (tm *tracing) SubmitUpdate(ctx context.Context, update fl.ModelUpdate) (receipt coordinator.Receipt, err error) {
	ctx, span := tm.tracer.Start(ctx, "submit-update", trace.WithAttributes(
		attribute.String("node.id", update.NodeID),
		attribute.Int64("round", int64(update.Round)),
		attribute.Int("weights", len(update.Weights)),
	))
	defer func() { end(span, err) }()

	return tm.svc.SubmitUpdate(ctx, update)
}

func (tm *tracing) Aggregate(ctx context.Context, method fl.Method) (model fl.GlobalModel, err error) {
	ctx, span := tm.tracer.Start(ctx, "aggregate", trace.WithAttributes(
		attribute.String("method", string(method)),
	))
	defer func() { end(span, err) }()

	return tm.svc.Aggregate(ctx, method)
}

func (tm *tracing) GlobalModel(ctx context.Context) (coordinator.ModelResponse, error) {
	ctx, span := tm.tracer.Start(ctx, "global-model")
	defer span.End()

	return tm.svc.GlobalModel(ctx)
}

func (tm *tracing) CurrentRound(ctx context.Context) (fl.Round, error) {
	ctx, span := tm.tracer.Start(ctx, "current-round")
	defer span.End()

	return tm.svc.CurrentRound(ctx)
}

func (tm *tracing) RoundHistory(ctx context.Context) ([]fl.RoundRecord, error) {
	ctx, span := tm.tracer.Start(ctx, "round-history")
	defer span.End()

	return tm.svc.RoundHistory(ctx)
}

func (tm *tracing) HandleTrainRequest(ctx context.Context, req fl.TrainRequest) (ack coordinator.TrainAck, err error) {
	ctx, span := tm.tracer.Start(ctx, "handle-train-request", trace.WithAttributes(
		attribute.Int64("round", int64(req.Round)),
		attribute.String("coordinator.id", req.Coordinator.ID),
	))
	defer func() { end(span, err) }()

	return tm.svc.HandleTrainRequest(ctx, req)
}

func (tm *tracing) Status(ctx context.Context) federation.Status {
	ctx, span := tm.tracer.Start(ctx, "status")
	defer span.End()

	return tm.svc.Status(ctx)
}

func (tm *tracing) ClusterStatus(ctx context.Context) federation.ClusterStatus {
	ctx, span := tm.tracer.Start(ctx, "cluster-status")
	defer span.End()

	return tm.svc.ClusterStatus(ctx)
}

func (tm *tracing) Health(ctx context.Context) federation.Health {
	return tm.svc.Health(ctx)
}
