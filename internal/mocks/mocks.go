// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
)

// -- Browser Mocks --

// MockDriver mocks the schemas.Driver interface.
type MockDriver struct {
	mock.Mock
}

var _ schemas.Driver = (*MockDriver)(nil)

func (m *MockDriver) Launch(ctx context.Context, opts schemas.LaunchOptions) (schemas.Session, error) {
	args := m.Called(ctx, opts)
	sess, _ := args.Get(0).(schemas.Session)
	return sess, args.Error(1)
}

// MockSession mocks the schemas.Session interface.
type MockSession struct {
	mock.Mock
}

var _ schemas.Session = (*MockSession)(nil)

func (m *MockSession) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockSession) WaitVisible(ctx context.Context, loc schemas.Locator, timeout time.Duration) bool {
	return m.Called(ctx, loc, timeout).Bool(0)
}

func (m *MockSession) IsVisible(ctx context.Context, loc schemas.Locator) bool {
	return m.Called(ctx, loc).Bool(0)
}

func (m *MockSession) Count(ctx context.Context, loc schemas.Locator) (int, error) {
	args := m.Called(ctx, loc)
	return args.Int(0), args.Error(1)
}

func (m *MockSession) Fill(ctx context.Context, loc schemas.Locator, text string) error {
	return m.Called(ctx, loc, text).Error(0)
}

func (m *MockSession) Click(ctx context.Context, loc schemas.Locator) error {
	return m.Called(ctx, loc).Error(0)
}

func (m *MockSession) PressEnter(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSession) ReadText(ctx context.Context, loc schemas.Locator) (string, error) {
	args := m.Called(ctx, loc)
	return args.String(0), args.Error(1)
}

func (m *MockSession) Attribute(ctx context.Context, loc schemas.Locator, name string) (string, error) {
	args := m.Called(ctx, loc, name)
	return args.String(0), args.Error(1)
}

func (m *MockSession) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockSession) DumpMarkup(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSession) Close() error {
	return m.Called().Error(0)
}

// -- Collaborator Mocks --

// MockRemoteClient mocks the schemas.RemoteClient interface.
type MockRemoteClient struct {
	mock.Mock
}

var _ schemas.RemoteClient = (*MockRemoteClient)(nil)

func (m *MockRemoteClient) FetchTask(ctx context.Context, id string) (*schemas.RecoveryTask, error) {
	args := m.Called(ctx, id)
	task, _ := args.Get(0).(*schemas.RecoveryTask)
	return task, args.Error(1)
}

func (m *MockRemoteClient) ReportStatus(ctx context.Context, account, password string, success bool, message string) bool {
	return m.Called(ctx, account, password, success, message).Bool(0)
}

func (m *MockRemoteClient) ReportProxyFault(ctx context.Context, proxyID int) bool {
	return m.Called(ctx, proxyID).Bool(0)
}

func (m *MockRemoteClient) Disable(ctx context.Context, account string) bool {
	return m.Called(ctx, account).Bool(0)
}

func (m *MockRemoteClient) FetchPassword(ctx context.Context, account string) (string, error) {
	args := m.Called(ctx, account)
	return args.String(0), args.Error(1)
}

func (m *MockRemoteClient) FetchProxy(ctx context.Context, endpoint string) (string, error) {
	args := m.Called(ctx, endpoint)
	return args.String(0), args.Error(1)
}

// MockCaptchaSolver mocks the schemas.CaptchaSolver interface.
type MockCaptchaSolver struct {
	mock.Mock
}

var _ schemas.CaptchaSolver = (*MockCaptchaSolver)(nil)

func (m *MockCaptchaSolver) Resolve(ctx context.Context, image string) string {
	return m.Called(ctx, image).String(0)
}

func (m *MockCaptchaSolver) ResolveWithRetry(ctx context.Context, image string, maxAttempts int) string {
	return m.Called(ctx, image, maxAttempts).String(0)
}

// MockNotifier mocks the schemas.Notifier interface and keeps the delivered
// messages for ordering assertions.
type MockNotifier struct {
	mock.Mock
	mu       sync.Mutex
	messages []string
}

var _ schemas.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) Notify(ctx context.Context, targets schemas.NotificationTargets, message string) {
	m.mu.Lock()
	m.messages = append(m.messages, message)
	m.mu.Unlock()
	m.Called(ctx, targets, message)
}

// Messages returns a copy of every message passed to Notify, in call order.
func (m *MockNotifier) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

// MockRunObserver mocks the schemas.RunObserver interface.
type MockRunObserver struct {
	mock.Mock
}

var _ schemas.RunObserver = (*MockRunObserver)(nil)

func (m *MockRunObserver) RunCompleted(ctx context.Context, report schemas.RunReport) {
	m.Called(ctx, report)
}
