package mocks

import (
	"context"
	"time"

	"github.com/absmach/cohort/pkg/transport"
	"github.com/stretchr/testify/mock"
)

var _ transport.Transport = (*Transport)(nil)

type Transport struct {
	mock.Mock
}

// NewTransport creates a mock that asserts its expectations on cleanup.
func NewTransport(t interface {
	mock.TestingT
	Cleanup(func())
},
) *Transport {
	m := &Transport{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *Transport) Call(ctx context.Context, address, route string, req, resp any, timeout time.Duration) error {
	args := m.Called(ctx, address, route, req, resp, timeout)

	return args.Error(0)
}

func (m *Transport) Close() error {
	args := m.Called()

	return args.Error(0)
}
