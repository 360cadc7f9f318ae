package api

import (
	"context"
	"errors"

	"github.com/absmach/cohort/dispatcher"
	"github.com/absmach/cohort/federation"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"
)

type validator interface {
	validate() error
}

// decoded asserts the request type produced by the decoder and validates it.
func decoded[T validator](request any) (T, error) {
	req, ok := request.(T)
	if !ok {
		var zero T

		return zero, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
	}
	if err := req.validate(); err != nil {
		return req, errors.Join(apiutil.ErrValidation, err)
	}

	return req, nil
}

func nodeInfoEndpoint(svc federation.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		n, err := svc.NodeInfo(ctx)
		if err != nil {
			return nodeResponse{}, err
		}

		return nodeResponse{Node: n}, nil
	}
}

func handleDiscoveryEndpoint(svc federation.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, err := decoded[discoverReq](request)
		if err != nil {
			return discoverResponse{}, err
		}

		self, err := svc.HandleDiscovery(ctx, req.NodeInfo)
		if err != nil {
			return discoverResponse{}, err
		}

		return discoverResponse{NodeInfo: self}, nil
	}
}

func listNodesEndpoint(svc federation.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		page, err := svc.ListPeers(ctx)
		if err != nil {
			return listNodesResponse{}, err
		}

		return listNodesResponse{NodePage: page}, nil
	}
}

func discoverEndpoint(svc federation.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, err := decoded[seedsReq](request)
		if err != nil {
			return outcomesResponse{}, err
		}

		outcomes, err := svc.Discover(ctx, req.Seeds)
		if err != nil {
			return outcomesResponse{}, err
		}

		res := outcomesResponse{Outcomes: make([]outcome, 0, len(outcomes))}
		for _, o := range outcomes {
			out := outcome{Address: o.Address, NodeID: o.NodeID}
			if o.Err != nil {
				out.Error = o.Err.Error()
			}
			res.Outcomes = append(res.Outcomes, out)
		}

		return res, nil
	}
}

// executeTaskEndpoint reports executor failures in the body so the caller
// can tell a failed task from a failed call.
func executeTaskEndpoint(svc federation.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, err := decoded[*executeReq](request)
		if err != nil {
			return executeResponse{}, err
		}

		res, err := svc.ExecuteTask(ctx, req.Task)
		switch {
		case errors.Is(err, pkgerrors.ErrInvalidData):
			return executeResponse{}, err
		case err != nil:
			return executeResponse{ExecuteResponse: dispatcher.ExecuteResponse{Error: err.Error(), NodeID: res.NodeID}}, nil
		}

		return executeResponse{ExecuteResponse: dispatcher.ExecuteResponse{Success: true, Result: res.Output, NodeID: res.NodeID}}, nil
	}
}

func dispatchEndpoint(svc federation.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, err := decoded[dispatchReq](request)
		if err != nil {
			return resultResponse{}, err
		}

		res, err := svc.Dispatch(ctx, req.Payload)
		if err != nil {
			return resultResponse{}, err
		}

		return resultResponse{Result: res}, nil
	}
}

func healthEndpoint(svc federation.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		return healthResponse{Health: svc.Health(ctx)}, nil
	}
}

func statusEndpoint(svc federation.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		return statusResponse{Status: svc.Status(ctx)}, nil
	}
}

func clusterStatusEndpoint(svc federation.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		return clusterStatusResponse{ClusterStatus: svc.ClusterStatus(ctx)}, nil
	}
}

func trainEndpoint(svc federation.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, err := decoded[trainReq](request)
		if err != nil {
			return trainResponse{}, err
		}

		ack, err := svc.HandleTrainRequest(ctx, req.TrainRequest)
		if err != nil {
			return trainResponse{}, err
		}

		return trainResponse{TrainAck: ack}, nil
	}
}

func submitEndpoint(svc federation.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, err := decoded[*submitReq](request)
		if err != nil {
			return receiptResponse{}, err
		}

		receipt, err := svc.SubmitUpdate(ctx, req.ModelUpdate)
		if err != nil {
			return receiptResponse{}, err
		}

		return receiptResponse{Receipt: receipt}, nil
	}
}

func modelEndpoint(svc federation.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		model, err := svc.GlobalModel(ctx)
		if err != nil {
			return modelResponse{}, err
		}

		return modelResponse{ModelResponse: model}, nil
	}
}

func initiateRoundEndpoint(svc federation.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, err := decoded[roundReq](request)
		if err != nil {
			return initiationResponse{}, err
		}

		init, err := svc.InitiateRound(ctx, req.RoundConfig)
		if err != nil {
			return initiationResponse{}, err
		}

		return initiationResponse{Initiation: init}, nil
	}
}

func currentRoundEndpoint(svc federation.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		round, err := svc.CurrentRound(ctx)
		if err != nil {
			return roundResponse{}, err
		}

		return roundResponse{Round: round}, nil
	}
}

func abandonRoundEndpoint(svc federation.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		round, err := svc.AbandonRound(ctx)
		if err != nil {
			return roundResponse{}, err
		}

		return roundResponse{Round: round}, nil
	}
}

func roundHistoryEndpoint(svc federation.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		records, err := svc.RoundHistory(ctx)
		if err != nil {
			return historyResponse{}, err
		}

		return historyResponse{Total: len(records), Rounds: records}, nil
	}
}

func aggregateEndpoint(svc federation.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, err := decoded[aggregateReq](request)
		if err != nil {
			return globalModelResponse{}, err
		}

		model, err := svc.Aggregate(ctx, req.Method)
		if err != nil {
			return globalModelResponse{}, err
		}

		return globalModelResponse{GlobalModel: model}, nil
	}
}
