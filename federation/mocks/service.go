package mocks

import (
	"context"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/federation"
	"github.com/absmach/cohort/node"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/payload"
	"github.com/absmach/cohort/registry"
	"github.com/absmach/cohort/task"
	"github.com/stretchr/testify/mock"
)

var _ federation.Service = (*Service)(nil)

// Service is a mock implementation of federation.Service.
type Service struct {
	mock.Mock
}

func (m *Service) Start(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *Service) Stop(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *Service) NodeInfo(ctx context.Context) (node.Node, error) {
	args := m.Called(ctx)
	return args.Get(0).(node.Node), args.Error(1)
}

func (m *Service) ListPeers(ctx context.Context) (node.NodePage, error) {
	args := m.Called(ctx)
	return args.Get(0).(node.NodePage), args.Error(1)
}

func (m *Service) Discover(ctx context.Context, seeds []string) ([]registry.Outcome, error) {
	args := m.Called(ctx, seeds)
	outcomes, _ := args.Get(0).([]registry.Outcome)
	return outcomes, args.Error(1)
}

func (m *Service) HandleDiscovery(ctx context.Context, peer node.Node) (node.Node, error) {
	args := m.Called(ctx, peer)
	return args.Get(0).(node.Node), args.Error(1)
}

func (m *Service) Dispatch(ctx context.Context, p payload.Payload) (task.Result, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(task.Result), args.Error(1)
}

func (m *Service) ExecuteTask(ctx context.Context, t task.Envelope) (task.Result, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(task.Result), args.Error(1)
}

func (m *Service) InitiateRound(ctx context.Context, cfg coordinator.RoundConfig) (coordinator.Initiation, error) {
	args := m.Called(ctx, cfg)
	return args.Get(0).(coordinator.Initiation), args.Error(1)
}

func (m *Service) AbandonRound(ctx context.Context) (fl.Round, error) {
	args := m.Called(ctx)
	return args.Get(0).(fl.Round), args.Error(1)
}

func (m *Service) SubmitUpdate(ctx context.Context, update fl.ModelUpdate) (coordinator.Receipt, error) {
	args := m.Called(ctx, update)
	return args.Get(0).(coordinator.Receipt), args.Error(1)
}

func (m *Service) Aggregate(ctx context.Context, method fl.Method) (fl.GlobalModel, error) {
	args := m.Called(ctx, method)
	return args.Get(0).(fl.GlobalModel), args.Error(1)
}

func (m *Service) GlobalModel(ctx context.Context) (coordinator.ModelResponse, error) {
	args := m.Called(ctx)
	return args.Get(0).(coordinator.ModelResponse), args.Error(1)
}

func (m *Service) CurrentRound(ctx context.Context) (fl.Round, error) {
	args := m.Called(ctx)
	return args.Get(0).(fl.Round), args.Error(1)
}

func (m *Service) RoundHistory(ctx context.Context) ([]fl.RoundRecord, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]fl.RoundRecord)
	return records, args.Error(1)
}

func (m *Service) HandleTrainRequest(ctx context.Context, req fl.TrainRequest) (coordinator.TrainAck, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(coordinator.TrainAck), args.Error(1)
}

func (m *Service) Status(ctx context.Context) federation.Status {
	return m.Called(ctx).Get(0).(federation.Status)
}

func (m *Service) ClusterStatus(ctx context.Context) federation.ClusterStatus {
	return m.Called(ctx).Get(0).(federation.ClusterStatus)
}

func (m *Service) Health(ctx context.Context) federation.Health {
	return m.Called(ctx).Get(0).(federation.Health)
}
