package mocks

import (
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/gateways/mirra/network"
	"github.com/stretchr/testify/mock"
)

type SubscriberMock struct {
	mock.Mock
}

func (s *SubscriberMock) SubscribeToNodeUpdates(msgChan chan network.InMsg) error {
	args := s.Called(msgChan)
	return args.Error(0)
}
