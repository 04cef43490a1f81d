package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applogger "SignalForge/pkg/logger"
)

type routes struct{}

func (routes) RegisterRoutes(e *echo.Echo) {
	e.GET("/ok", func(c echo.Context) error { return SuccessResponse(c, "fine") })
	e.GET("/bad", func(c echo.Context) error { return AppErrorResponse(c, BadRequestError("no")) })
	e.GET("/boom", func(echo.Context) error { panic("kaboom") })
	e.GET("/err", func(echo.Context) error { return errors.New("plain") })
}

func do(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_MiddlewareChain(t *testing.T) {
	s := NewServer(routes{}, applogger.Nop(), WithMetrics("/metrics", nil))

	rec := do(t, s, "/ok")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":200,"message":"OK","data":"fine"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = do(t, s, "/bad")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "status code follows the envelope")
	assert.Contains(t, rec.Body.String(), `"code":"ERR_BAD_REQUEST"`)

	rec = do(t, s, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(t, s, "/err")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `signalforge_http_requests_total{method="GET",route="/ok",status="200"} 1`), body)
	assert.Contains(t, body, `route="/bad",status="400"`)
}

func TestAppErrorResponse_NonAppError(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, AppErrorResponse(c, errors.New("hidden detail")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hidden detail")
	assert.Contains(t, rec.Body.String(), `"code":"ERR_INTERNAL"`)
}
