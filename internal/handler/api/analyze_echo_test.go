package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/usecase"
)

type stubAnalyzer struct {
	res   *models.AnalysisResult
	err   error
	got   models.AnalysisInput
	opts  usecase.Options
	calls int
}

func (s *stubAnalyzer) Analyze(_ context.Context, in models.AnalysisInput, opts usecase.Options) (*models.AnalysisResult, error) {
	s.calls++
	s.got = in
	s.opts = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

type stubInstruments []models.Instrument

func (s stubInstruments) Instruments() []models.Instrument { return s }

type stubLimiter struct{ allow bool }

func (s stubLimiter) Allow(string) bool { return s.allow }

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

const newsBody = `{"id":"n-1","item_type":"news","news":{"headline":"Fed holds rates","body":"Powell signals patience."}}`

func serve(t *testing.T, h *AnalyzeEchoHandler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if rec.Code != http.StatusNotFound {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestAnalyze_OK(t *testing.T) {
	an := &stubAnalyzer{res: &models.AnalysisResult{
		Stage3:         models.Stage3Decision{TradeDecision: models.NoTrade, Summary: "priced in"},
		SynthesisState: models.SynthAttempt,
	}}
	h := NewAnalyzeEchoHandler(nil, an, nil, stubLimiter{allow: true})

	rec, env := serve(t, h, http.MethodPost, "/api/analyze", newsBody)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, env.Status)
	assert.Equal(t, "n-1", an.got.ID)
	assert.Equal(t, "Fed holds rates", an.got.News.Headline)
	assert.True(t, an.opts.AsOf.IsZero())

	var res models.AnalysisResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, models.NoTrade, res.Stage3.TradeDecision)
	assert.Equal(t, models.SynthAttempt, res.SynthesisState)
}

func TestAnalyze_AsOfPassedThrough(t *testing.T) {
	an := &stubAnalyzer{res: &models.AnalysisResult{}}
	h := NewAnalyzeEchoHandler(nil, an, nil, nil)

	body := `{"item_type":"news","as_of":"2025-02-01T15:04:05+02:00","news":{"headline":"x"}}`
	rec, _ := serve(t, h, http.MethodPost, "/api/analyze", body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2025, 2, 1, 13, 4, 5, 0, time.UTC), an.opts.AsOf)
	assert.Len(t, an.got.ID, 36, "missing id gets a uuid")
}

func TestAnalyze_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantErr  string
		called   bool
	}{
		{
			name:     "missing item type",
			body:     `{"news":{"headline":"x"}}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "ERR_REQUIRED",
		},
		{
			name:     "malformed json",
			body:     `{"item_type":`,
			wantCode: http.StatusBadRequest,
			wantErr:  "ERR_UNKNOWN",
		},
		{
			name:     "unknown item type",
			body:     `{"item_type":"podcast"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  `"field":"item_type","message":"item_type must be one of: news, macro, earnings, ipo, crypto"`,
		},
		{
			name:     "nested field",
			body:     `{"item_type":"news","news":{"headline":"x","url":"not a url"}}`,
			wantCode: http.StatusBadRequest,
			wantErr:  `"field":"news.url"`,
		},
		{
			name:     "quarter out of range",
			body:     `{"item_type":"earnings","earnings":{"symbol":"SBUX","date":"2026-04-28","quarter":5}}`,
			wantCode: http.StatusBadRequest,
			wantErr:  `"code":"ERR_LTE","field":"earnings.quarter","message":"earnings.quarter must be at most 4"`,
		},
		{
			name:     "wrong json type",
			body:     `{"item_type":7}`,
			wantCode: http.StatusBadRequest,
			wantErr:  `"code":"ERR_TYPE","field":"item_type"`,
		},
		{
			name:     "invalid input from pipeline",
			body:     `{"item_type":"news"}`,
			err:      fmt.Errorf("%w: unknown item_type", models.ErrInvalidInput),
			wantCode: http.StatusBadRequest,
			wantErr:  "ERR_BAD_REQUEST",
			called:   true,
		},
		{
			name:     "classifier unavailable",
			body:     newsBody,
			err:      fmt.Errorf("analyze n-1: %w", models.ErrLLMUnavailable),
			wantCode: http.StatusBadGateway,
			wantErr:  "ERR_LLM_UNAVAILABLE",
			called:   true,
		},
		{
			name:     "unexpected",
			body:     newsBody,
			err:      fmt.Errorf("boom"),
			wantCode: http.StatusInternalServerError,
			wantErr:  "ERR_INTERNAL",
			called:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			an := &stubAnalyzer{err: tt.err}
			h := NewAnalyzeEchoHandler(nil, an, nil, nil)

			rec, env := serve(t, h, http.MethodPost, "/api/analyze", tt.body)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantCode, env.Status)
			assert.Equal(t, tt.called, an.calls == 1)
			if tt.wantErr != "" {
				assert.Contains(t, string(env.Data), tt.wantErr)
			}
		})
	}
}

func TestAnalyze_RateLimited(t *testing.T) {
	an := &stubAnalyzer{res: &models.AnalysisResult{}}
	h := NewAnalyzeEchoHandler(nil, an, nil, stubLimiter{allow: false})

	rec, env := serve(t, h, http.MethodPost, "/api/analyze", newsBody)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_RATE_LIMITED")
	assert.Zero(t, an.calls)
}

func TestAllowList(t *testing.T) {
	inst := stubInstruments{
		{Symbol: "AAPL", ChartSymbol: "NASDAQ:AAPL", Name: "Apple", Type: "stock"},
		{Symbol: "SPY", ChartSymbol: "AMEX:SPY", Name: "SPDR S&P 500", Type: "etf"},
	}
	h := NewAnalyzeEchoHandler(nil, &stubAnalyzer{}, inst, nil)

	rec, env := serve(t, h, http.MethodGet, "/api/allowlist", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []models.Instrument `json:"rows"`
		Total int64               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(2), list.Total)
	assert.Equal(t, "NASDAQ:AAPL", list.Rows[0].ChartSymbol)
}

func TestHealth(t *testing.T) {
	h := NewAnalyzeEchoHandler(nil, &stubAnalyzer{}, nil, nil)
	e := echo.New()
	h.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
