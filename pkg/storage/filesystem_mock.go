package storage

import "github.com/stretchr/testify/mock"

type fileManagementMock struct {
	mock.Mock
}

func (fm *fileManagementMock) readStateFile(path string) ([]byte, error) {
	args := fm.Called(path)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (fm *fileManagementMock) writeStateFile(path string, data []byte) error {
	args := fm.Called(path, data)
	return args.Error(0)
}
