package mocks

import (
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/stretchr/testify/mock"
)

type PublisherMock struct {
	mock.Mock
}

func (p *PublisherMock) PublishMeasurement(gateway entities.Address, record entities.Record) error {
	args := p.Called(gateway, record)
	return args.Error(0)
}
