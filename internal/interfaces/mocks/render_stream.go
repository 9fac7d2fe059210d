package mocks

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/mock"

	"chatline/internal/render"
)

// MockRenderStream is a testify mock of interfaces.RenderStream.
type MockRenderStream struct {
	mock.Mock
}

func NewMockRenderStream(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRenderStream {
	m := &MockRenderStream{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (_m *MockRenderStream) Snapshot() render.Snapshot {
	ret := _m.Called()
	r0, _ := ret.Get(0).(render.Snapshot)
	return r0
}

func (_m *MockRenderStream) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	ret := _m.Called(ctx)
	r0, _ := ret.Get(0).(<-chan *message.Message)
	return r0, ret.Error(1)
}
