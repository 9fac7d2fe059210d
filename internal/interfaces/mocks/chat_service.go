package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chatline/internal/model"
	"chatline/internal/service"
)

// MockChatService is a testify mock of interfaces.ChatService.
type MockChatService struct {
	mock.Mock
}

func NewMockChatService(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockChatService {
	m := &MockChatService{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (_m *MockChatService) Send(ctx context.Context, prompt string) (*service.Result, error) {
	ret := _m.Called(ctx, prompt)
	r0, _ := ret.Get(0).(*service.Result)
	return r0, ret.Error(1)
}

func (_m *MockChatService) Retry(ctx context.Context) (*service.Result, error) {
	ret := _m.Called(ctx)
	r0, _ := ret.Get(0).(*service.Result)
	return r0, ret.Error(1)
}

func (_m *MockChatService) Stop() bool {
	ret := _m.Called()
	return ret.Bool(0)
}

func (_m *MockChatService) Toggle(ctx context.Context) (bool, error) {
	ret := _m.Called(ctx)
	return ret.Bool(0), ret.Error(1)
}

func (_m *MockChatService) State() service.SessionState {
	ret := _m.Called()
	r0, _ := ret.Get(0).(service.SessionState)
	return r0
}

func (_m *MockChatService) StageImages(images ...string) {
	_m.Called(images)
}

func (_m *MockChatService) RemoveImage(i int) error {
	ret := _m.Called(i)
	return ret.Error(0)
}

func (_m *MockChatService) List(ctx context.Context) ([]model.ConversationMeta, error) {
	ret := _m.Called(ctx)
	r0, _ := ret.Get(0).([]model.ConversationMeta)
	return r0, ret.Error(1)
}

func (_m *MockChatService) Get(ctx context.Context, id string) (*model.Conversation, error) {
	ret := _m.Called(ctx, id)
	r0, _ := ret.Get(0).(*model.Conversation)
	return r0, ret.Error(1)
}

func (_m *MockChatService) Load(ctx context.Context, id string) error {
	ret := _m.Called(ctx, id)
	return ret.Error(0)
}

func (_m *MockChatService) StartNew(ctx context.Context) error {
	ret := _m.Called(ctx)
	return ret.Error(0)
}

func (_m *MockChatService) Delete(ctx context.Context, id string) error {
	ret := _m.Called(ctx, id)
	return ret.Error(0)
}
