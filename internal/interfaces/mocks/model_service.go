package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chatline/internal/llm"
	"chatline/internal/service"
)

// MockModelService is a testify mock of interfaces.ModelService.
type MockModelService struct {
	mock.Mock
}

func NewMockModelService(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockModelService {
	m := &MockModelService{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (_m *MockModelService) Catalog() *llm.Catalog {
	ret := _m.Called()
	r0, _ := ret.Get(0).(*llm.Catalog)
	return r0
}

func (_m *MockModelService) Refresh(ctx context.Context) (*llm.Catalog, error) {
	ret := _m.Called(ctx)
	r0, _ := ret.Get(0).(*llm.Catalog)
	return r0, ret.Error(1)
}

func (_m *MockModelService) Select(id string) error {
	ret := _m.Called(id)
	return ret.Error(0)
}

// MockLocalModelService is a testify mock of interfaces.LocalModelService.
// LoadModel and SelectModel report every Progress value configured with
// WithProgress before returning.
type MockLocalModelService struct {
	mock.Mock
	Progress []llm.Progress
}

func NewMockLocalModelService(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockLocalModelService {
	m := &MockLocalModelService{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// WithProgress sets the progress reports replayed by LoadModel and SelectModel.
func (_m *MockLocalModelService) WithProgress(p ...llm.Progress) *MockLocalModelService {
	_m.Progress = p
	return _m
}

func (_m *MockLocalModelService) List() []service.LocalModelStatus {
	ret := _m.Called()
	r0, _ := ret.Get(0).([]service.LocalModelStatus)
	return r0
}

func (_m *MockLocalModelService) LoadModel(ctx context.Context, id string, progress func(llm.Progress)) error {
	ret := _m.Called(ctx, id)
	if progress != nil {
		for _, p := range _m.Progress {
			progress(p)
		}
	}
	return ret.Error(0)
}

func (_m *MockLocalModelService) RemoveModel(ctx context.Context, id string) error {
	ret := _m.Called(ctx, id)
	return ret.Error(0)
}

func (_m *MockLocalModelService) SetMode(ctx context.Context, local bool) error {
	ret := _m.Called(ctx, local)
	return ret.Error(0)
}

func (_m *MockLocalModelService) SelectModel(ctx context.Context, id string, progress func(llm.Progress)) error {
	ret := _m.Called(ctx, id)
	if progress != nil {
		for _, p := range _m.Progress {
			progress(p)
		}
	}
	return ret.Error(0)
}
