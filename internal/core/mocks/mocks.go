package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/ports"
)

// MockTransport is a mock implementation of ports.Transport.
// OnOpen and OnClose are not mocked; registered hooks can be fired with
// FireOpen and FireClose.
type MockTransport struct {
	mock.Mock

	openHooks  []func()
	closeHooks []func(error)
}

var _ ports.Transport = (*MockTransport)(nil)

func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

func (m *MockTransport) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTransport) Subscribe(ctx context.Context, channel domain.Channel, handler ports.EventHandler) error {
	args := m.Called(ctx, channel, handler)
	return args.Error(0)
}

func (m *MockTransport) Unsubscribe(ctx context.Context, channel domain.Channel) error {
	args := m.Called(ctx, channel)
	return args.Error(0)
}

func (m *MockTransport) Publish(ctx context.Context, channel domain.Channel, env domain.Envelope) error {
	args := m.Called(ctx, channel, env)
	return args.Error(0)
}

func (m *MockTransport) OnOpen(fn func()) func() {
	m.openHooks = append(m.openHooks, fn)
	return func() {}
}

func (m *MockTransport) OnClose(fn func(error)) func() {
	m.closeHooks = append(m.closeHooks, fn)
	return func() {}
}

// FireOpen runs every registered open hook.
func (m *MockTransport) FireOpen() {
	for _, fn := range m.openHooks {
		fn()
	}
}

// FireClose runs every registered close hook.
func (m *MockTransport) FireClose(err error) {
	for _, fn := range m.closeHooks {
		fn(err)
	}
}

func (m *MockTransport) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockPushNotifier is a mock implementation of ports.PushNotifier
type MockPushNotifier struct {
	mock.Mock
}

var _ ports.PushNotifier = (*MockPushNotifier)(nil)

func NewMockPushNotifier() *MockPushNotifier {
	return &MockPushNotifier{}
}

func (m *MockPushNotifier) PushToUsers(ctx context.Context, userIDs []string, title, body, link string) error {
	args := m.Called(ctx, userIDs, title, body, link)
	return args.Error(0)
}

// MockCounterStore is a mock implementation of ports.CounterStore
type MockCounterStore struct {
	mock.Mock
}

var _ ports.CounterStore = (*MockCounterStore)(nil)

func NewMockCounterStore() *MockCounterStore {
	return &MockCounterStore{}
}

func (m *MockCounterStore) Increment(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCounterStore) Decrement(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCounterStore) Total(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCounterStore) Reset(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockPublisher is a mock implementation of ports.Publisher
type MockPublisher struct {
	mock.Mock
}

var _ ports.Publisher = (*MockPublisher)(nil)

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, channel domain.Channel, env domain.Envelope) bool {
	args := m.Called(ctx, channel, env)
	return args.Bool(0)
}

func (m *MockPublisher) Emit(ctx context.Context, env domain.Envelope, mc ports.MutationContext) (ports.EmitResult, error) {
	args := m.Called(ctx, env, mc)
	return args.Get(0).(ports.EmitResult), args.Error(1)
}
