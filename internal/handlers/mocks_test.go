package handlers

import (
	"context"
	"net/http"

	"github.com/cvperfect/SessionService/internal/models"
	"github.com/cvperfect/SessionService/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
)

// Mock implementations for testing

type MockSessionManager struct {
	mock.Mock
}

func (m *MockSessionManager) Save(ctx context.Context, session *models.Session) (int, error) {
	args := m.Called(ctx, session)
	return args.Int(0), args.Error(1)
}

func (m *MockSessionManager) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *MockSessionManager) Delete(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *MockSessionManager) List(ctx context.Context) ([]*models.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Session), args.Error(1)
}

type MockRecoverer struct {
	mock.Mock
}

func (m *MockRecoverer) RecoverByEmail(ctx context.Context, email string, includeSession bool) (*services.RecoveryResult, error) {
	args := m.Called(ctx, email, includeSession)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.RecoveryResult), args.Error(1)
}

type MockCleaner struct {
	mock.Mock
}

func (m *MockCleaner) Cleanup(ctx context.Context, opts services.CleanupOptions) (*models.CleanupReport, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CleanupReport), args.Error(1)
}

type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) Snapshot(ctx context.Context) (*models.MetricsSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MetricsSnapshot), args.Error(1)
}

func (m *MockReporter) Invalidate(ctx context.Context) {
	m.Called(ctx)
}

type MockTokenRevoker struct {
	mock.Mock
}

func (m *MockTokenRevoker) RevokeToken(ctx context.Context, tokenString string) error {
	args := m.Called(ctx, tokenString)
	return args.Error(0)
}

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// withURLParam attaches a chi route parameter to the request.
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
