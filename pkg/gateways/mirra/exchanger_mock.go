package mirra

import (
	"context"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/stretchr/testify/mock"
)

type exchangerMock struct {
	mock.Mock
}

func (e *exchangerMock) listenHello(ctx context.Context) (entities.Address, error) {
	args := e.Called(ctx)
	return args.Get(0).(entities.Address), args.Error(1)
}

func (e *exchangerMock) sendConfig(ctx context.Context, node entities.Address, config entities.TimeConfig) error {
	args := e.Called(ctx, node, config)
	return args.Error(0)
}

func (e *exchangerMock) receiveData(ctx context.Context, node entities.Address, maxMessages uint32) ([]entities.Record, error) {
	args := e.Called(ctx, node, maxMessages)
	records, _ := args.Get(0).([]entities.Record)
	return records, args.Error(1)
}
