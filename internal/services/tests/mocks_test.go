package services_test

import (
	"context"
	"harthio_ai_gateway/internal/llm"
	"harthio_ai_gateway/internal/services"

	"github.com/stretchr/testify/mock"
)

type MockProvider struct {
	mock.Mock
	name string
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*llm.ChatResponse)
	return resp, args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, msg interface{}) {
	m.Called(topic, msg)
}

type MockEntitlementResolver struct {
	mock.Mock
}

func (m *MockEntitlementResolver) Resolve(ctx context.Context, callerID string) services.EntitlementDecision {
	args := m.Called(ctx, callerID)
	return args.Get(0).(services.EntitlementDecision)
}

func (m *MockEntitlementResolver) Admit(ctx context.Context, callerID, exchangeID string) services.EntitlementDecision {
	args := m.Called(ctx, callerID, exchangeID)
	return args.Get(0).(services.EntitlementDecision)
}

func (m *MockEntitlementResolver) Charge(ctx context.Context, callerID, exchangeID string) error {
	args := m.Called(ctx, callerID, exchangeID)
	return args.Error(0)
}

func (m *MockEntitlementResolver) Refund(ctx context.Context, callerID, exchangeID string) error {
	args := m.Called(ctx, callerID, exchangeID)
	return args.Error(0)
}

type MockLedgerRecorder struct {
	mock.Mock
}

func (m *MockLedgerRecorder) Record(ctx context.Context, entry services.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}
