package sdk

import (
	"net/http"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/payload"
	"github.com/absmach/cohort/task"
)

const (
	tasksEndpoint     = "/tasks"
	roundsEndpoint    = "/federated/rounds"
	aggregateEndpoint = "/federated/aggregate"
	modelEndpoint     = "/federated/model"
	submitEndpoint    = "/federated/submit"
)

func (sdk *cohortSDK) Dispatch(p payload.Payload) (task.Result, error) {
	return call[task.Result](sdk, http.MethodPost, tasksEndpoint, p, http.StatusOK)
}

func (sdk *cohortSDK) StartRound(cfg coordinator.RoundConfig) (coordinator.Initiation, error) {
	return call[coordinator.Initiation](sdk, http.MethodPost, roundsEndpoint, cfg, http.StatusCreated)
}

func (sdk *cohortSDK) CurrentRound() (fl.Round, error) {
	return call[fl.Round](sdk, http.MethodGet, roundsEndpoint+"/current", nil, http.StatusOK)
}

func (sdk *cohortSDK) AbandonRound() (fl.Round, error) {
	return call[fl.Round](sdk, http.MethodDelete, roundsEndpoint+"/current", nil, http.StatusOK)
}

func (sdk *cohortSDK) RoundHistory() (RoundHistory, error) {
	return call[RoundHistory](sdk, http.MethodGet, roundsEndpoint, nil, http.StatusOK)
}

func (sdk *cohortSDK) Aggregate(method fl.Method) (fl.GlobalModel, error) {
	req := struct {
		Method fl.Method `json:"method,omitempty"`
	}{Method: method}

	return call[fl.GlobalModel](sdk, http.MethodPost, aggregateEndpoint, req, http.StatusOK)
}

func (sdk *cohortSDK) GlobalModel() (coordinator.ModelResponse, error) {
	return call[coordinator.ModelResponse](sdk, http.MethodGet, modelEndpoint, nil, http.StatusOK)
}

func (sdk *cohortSDK) SubmitUpdate(update fl.ModelUpdate) (coordinator.Receipt, error) {
	req := coordinator.SubmitRequest{NodeID: update.NodeID, Round: update.Round, ModelUpdate: update}

	return call[coordinator.Receipt](sdk, http.MethodPost, submitEndpoint, req, http.StatusOK)
}
