package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/federation"
	"github.com/absmach/cohort/node"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/payload"
	"github.com/absmach/cohort/registry"
	"github.com/absmach/cohort/task"
)

var _ federation.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    federation.Service
}

func Logging(logger *slog.Logger, svc federation.Service) federation.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) log(op string, begin time.Time, err error, args ...any) {
	args = append([]any{slog.String("duration", time.Since(begin).String())}, args...)
	if err != nil {
		args = append(args, slog.Any("error", err))
		lm.logger.Warn(op+" failed", args...)

		return
	}
	lm.logger.Info(op+" completed successfully", args...)
}

func (lm *loggingMiddleware) Start(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		lm.log("Start node", begin, err)
	}(time.Now())

	return lm.svc.Start(ctx)
}

func (lm *loggingMiddleware) Stop(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		lm.log("Stop node", begin, err)
	}(time.Now())

	return lm.svc.Stop(ctx)
}

func (lm *loggingMiddleware) NodeInfo(ctx context.Context) (n node.Node, err error) {
	return lm.svc.NodeInfo(ctx)
}

func (lm *loggingMiddleware) ListPeers(ctx context.Context) (page node.NodePage, err error) {
	defer func(begin time.Time) {
		lm.log("List peers", begin, err, slog.Uint64("total", page.Total))
	}(time.Now())

	return lm.svc.ListPeers(ctx)
}

func (lm *loggingMiddleware) Discover(ctx context.Context, seeds []string) (outcomes []registry.Outcome, err error) {
	defer func(begin time.Time) {
		reached := 0
		for _, o := range outcomes {
			if o.Err == nil {
				reached++
			}
		}
		lm.log("Discover peers", begin, err,
			slog.Int("seeds", len(seeds)),
			slog.Int("reached", reached),
		)
	}(time.Now())

	return lm.svc.Discover(ctx, seeds)
}

func (lm *loggingMiddleware) HandleDiscovery(ctx context.Context, peer node.Node) (n node.Node, err error) {
	defer func(begin time.Time) {
		lm.log("Handle discovery", begin, err,
			slog.Group("peer",
				slog.String("id", peer.ID),
				slog.String("role", string(peer.Role)),
				slog.String("address", peer.Address.String()),
			),
		)
	}(time.Now())

	return lm.svc.HandleDiscovery(ctx, peer)
}

func (lm *loggingMiddleware) Dispatch(ctx context.Context, p payload.Payload) (res task.Result, err error) {
	defer func(begin time.Time) {
		lm.log("Dispatch task", begin, err,
			slog.Group("task",
				slog.String("id", res.TaskID),
				slog.String("kind", string(p.Kind)),
			),
			slog.String("node_id", res.NodeID),
			slog.Bool("local", res.Local),
		)
	}(time.Now())

	return lm.svc.Dispatch(ctx, p)
}

func (lm *loggingMiddleware) ExecuteTask(ctx context.Context, t task.Envelope) (res task.Result, err error) {
	defer func(begin time.Time) {
		lm.log("Execute task", begin, err,
			slog.Group("task",
				slog.String("id", t.ID),
				slog.String("kind", string(t.Payload.Kind)),
			),
		)
	}(time.Now())

	return lm.svc.ExecuteTask(ctx, t)
}

func (lm *loggingMiddleware) InitiateRound(ctx context.Context, cfg coordinator.RoundConfig) (init coordinator.Initiation, err error) {
	defer func(begin time.Time) {
		lm.log("Initiate round", begin, err,
			slog.Uint64("round", init.Round.Number),
			slog.Int("required", cfg.RequiredParticipants),
			slog.Int("invited", len(init.Outcomes)),
		)
	}(time.Now())

	return lm.svc.InitiateRound(ctx, cfg)
}

func (lm *loggingMiddleware) AbandonRound(ctx context.Context) (round fl.Round, err error) {
	defer func(begin time.Time) {
		lm.log("Abandon round", begin, err, slog.Uint64("round", round.Number))
	}(time.Now())

	return lm.svc.AbandonRound(ctx)
}

func (lm *loggingMiddleware) SubmitUpdate(ctx context.Context, update fl.ModelUpdate) (receipt coordinator.Receipt, err error) {
	defer func(begin time.Time) {
		lm.log("Submit update", begin, err,
			slog.Group("update",
				slog.String("node_id", update.NodeID),
				slog.Uint64("round", update.Round),
				slog.Uint64("samples", update.SampleCount),
			),
			slog.Int("received", receipt.ReceivedUpdates),
		)
	}(time.Now())

	return lm.svc.SubmitUpdate(ctx, update)
}

func (lm *loggingMiddleware) Aggregate(ctx context.Context, method fl.Method) (model fl.GlobalModel, err error) {
	defer func(begin time.Time) {
		lm.log("Aggregate round", begin, err,
			slog.String("method", string(method)),
			slog.Uint64("round", model.Round),
			slog.Int("participants", model.ParticipantCount),
		)
	}(time.Now())

	return lm.svc.Aggregate(ctx, method)
}

func (lm *loggingMiddleware) GlobalModel(ctx context.Context) (resp coordinator.ModelResponse, err error) {
	return lm.svc.GlobalModel(ctx)
}

func (lm *loggingMiddleware) CurrentRound(ctx context.Context) (fl.Round, error) {
	return lm.svc.CurrentRound(ctx)
}

func (lm *loggingMiddleware) RoundHistory(ctx context.Context) (records []fl.RoundRecord, err error) {
	defer func(begin time.Time) {
		lm.log("Get round history", begin, err, slog.Int("rounds", len(records)))
	}(time.Now())

	return lm.svc.RoundHistory(ctx)
}

func (lm *loggingMiddleware) HandleTrainRequest(ctx context.Context, req fl.TrainRequest) (ack coordinator.TrainAck, err error) {
	defer func(begin time.Time) {
		lm.log("Handle training request", begin, err,
			slog.Uint64("round", req.Round),
			slog.String("coordinator", req.Coordinator.ID),
		)
	}(time.Now())

	return lm.svc.HandleTrainRequest(ctx, req)
}

func (lm *loggingMiddleware) Status(ctx context.Context) federation.Status {
	return lm.svc.Status(ctx)
}

func (lm *loggingMiddleware) ClusterStatus(ctx context.Context) federation.ClusterStatus {
	return lm.svc.ClusterStatus(ctx)
}

func (lm *loggingMiddleware) Health(ctx context.Context) federation.Health {
	return lm.svc.Health(ctx)
}
