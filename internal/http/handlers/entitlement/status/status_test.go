package status

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	entitlementsvc "github.com/iqstocker/entitlement-service/internal/services/entitlement"
	"github.com/iqstocker/entitlement-service/internal/storage/repository"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) GetEntitlement(ctx context.Context, telegramID int64) (*entitlementsvc.Entitlement, error) {
	args := m.Called(ctx, telegramID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entitlementsvc.Entitlement), args.Error(1)
}

func (m *MockService) IsEntitled(ctx context.Context, telegramID int64, feature entitlementsvc.Feature) (bool, error) {
	args := m.Called(ctx, telegramID, feature)
	return args.Bool(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newTestRouter(service Service) *chi.Mux {
	router := chi.NewRouter()
	router.Get("/users/{telegram_id}/entitlement", New(newNoopLogger(), service))
	return router
}

func TestStatusHandler(t *testing.T) {
	expires := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		url        string
		setupMocks func(*MockService)
		wantStatus int
		checkBody  func(t *testing.T, body map[string]any)
	}{
		{
			name: "active pro user",
			url:  "/users/42/entitlement",
			setupMocks: func(s *MockService) {
				s.On("GetEntitlement", mock.Anything, int64(42)).
					Return(&entitlementsvc.Entitlement{
						TelegramID: 42, Tier: "PRO", Active: true, ExpiresAt: &expires,
					}, nil).Once()
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]any) {
				data := body["data"].(map[string]any)
				assert.Equal(t, "PRO", data["tier"])
				assert.Equal(t, true, data["active"])
			},
		},
		{
			name: "feature query adds entitled flag",
			url:  "/users/42/entitlement?feature=vip_group",
			setupMocks: func(s *MockService) {
				s.On("GetEntitlement", mock.Anything, int64(42)).
					Return(&entitlementsvc.Entitlement{TelegramID: 42, Tier: "FREE"}, nil).Once()
				s.On("IsEntitled", mock.Anything, int64(42), entitlementsvc.FeatureVIPGroup).
					Return(false, nil).Once()
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]any) {
				data := body["data"].(map[string]any)
				assert.Equal(t, "vip_group", data["feature"])
				assert.Equal(t, false, data["entitled"])
			},
		},
		{
			name: "unknown user",
			url:  "/users/42/entitlement",
			setupMocks: func(s *MockService) {
				s.On("GetEntitlement", mock.Anything, int64(42)).
					Return(nil, repository.ErrUserNotFound).Once()
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "bad telegram id",
			url:        "/users/abc/entitlement",
			setupMocks: func(_ *MockService) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown feature fails validation",
			url:        "/users/42/entitlement?feature=teleportation",
			setupMocks: func(_ *MockService) {},
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			tt.setupMocks(service)

			router := newTestRouter(service)

			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.checkBody != nil {
				var body map[string]any
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				tt.checkBody(t, body)
			}
			service.AssertExpectations(t)
		})
	}
}
