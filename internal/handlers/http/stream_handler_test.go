package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"framerelay/internal/core/domain"
	"framerelay/internal/core/services"
	"framerelay/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) Announce(ctx context.Context, id domain.StreamID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockDirectory) Withdraw(ctx context.Context, id domain.StreamID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockDirectory) ListActive(ctx context.Context) ([]domain.StreamID, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]domain.StreamID)
	return ids, args.Error(1)
}

func (m *mockDirectory) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func setupRouter(t *testing.T, directory *mockDirectory) (*gin.Engine, *services.SessionRegistry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := services.NewSessionRegistry(services.RegistryConfig{
		Limits: domain.Limits{MaxStreams: 10, MaxViewersPerStream: 10},
	}, nil, nil)

	var handler *StreamHandler
	if directory != nil {
		handler = NewStreamHandler(registry, directory)
	} else {
		handler = NewStreamHandler(registry, nil)
	}

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	handler.SetupRoutes(router)
	return router, registry
}

func get(t *testing.T, router *gin.Engine, path string) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w.Code, body
}

func TestListStreams_Empty(t *testing.T) {
	router, _ := setupRouter(t, nil)

	code, body := get(t, router, "/api/v1/streams")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []interface{}{}, body["streams"])
	assert.Equal(t, float64(0), body["count"])
}

func TestListStreams_WithViewers(t *testing.T) {
	router, registry := setupRouter(t, nil)

	_, err := registry.Register("zeta")
	require.NoError(t, err)
	alpha, err := registry.Register("alpha")
	require.NoError(t, err)
	release, err := alpha.AdmitViewer()
	require.NoError(t, err)
	defer release()

	code, body := get(t, router, "/api/v1/streams")
	require.Equal(t, http.StatusOK, code)

	streams := body["streams"].([]interface{})
	require.Len(t, streams, 2)
	first := streams[0].(map[string]interface{})
	assert.Equal(t, "alpha", first["stream_id"])
	assert.Equal(t, float64(1), first["viewers"])
	assert.NotEmpty(t, first["created_at"])
	assert.Equal(t, "zeta", streams[1].(map[string]interface{})["stream_id"])
}

func TestGetStream(t *testing.T) {
	router, registry := setupRouter(t, nil)
	_, err := registry.Register("cam")
	require.NoError(t, err)

	code, body := get(t, router, "/api/v1/streams/cam")
	require.Equal(t, http.StatusOK, code)
	stream := body["stream"].(map[string]interface{})
	assert.Equal(t, "cam", stream["stream_id"])
	assert.Equal(t, float64(0), stream["viewers"])
}

func TestGetStream_NotFound(t *testing.T) {
	router, _ := setupRouter(t, nil)

	code, body := get(t, router, "/api/v1/streams/missing")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", body["error"])
	assert.Equal(t, "stream not found", body["message"])
}

func TestListDirectory(t *testing.T) {
	dir := new(mockDirectory)
	dir.On("ListActive", mock.Anything).Return([]domain.StreamID{"a", "remote"}, nil).Once()
	router, _ := setupRouter(t, dir)

	code, body := get(t, router, "/api/v1/directory")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []interface{}{"a", "remote"}, body["stream_ids"])
	dir.AssertExpectations(t)
}

func TestListDirectory_BackendDown(t *testing.T) {
	dir := new(mockDirectory)
	dir.On("ListActive", mock.Anything).Return(nil, errors.New("connection refused"))
	router, _ := setupRouter(t, dir)

	code, body := get(t, router, "/api/v1/directory")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", body["error"])
}

func TestListDirectory_Disabled(t *testing.T) {
	router, _ := setupRouter(t, nil)

	code, _ := get(t, router, "/api/v1/directory")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestToAppError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domain.ErrStreamNotFound, http.StatusNotFound},
		{domain.ErrStreamIDTaken, http.StatusConflict},
		{domain.ErrMaxStreamsReached, http.StatusServiceUnavailable},
		{domain.ErrMaxViewersReached, http.StatusServiceUnavailable},
		{domain.ErrRegistryUnavailable, http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, toAppError(tc.err).HTTPStatus, tc.err.Error())
	}
}
