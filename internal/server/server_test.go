package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/biovalue-ai/fairvalue/internal/activity"
	"github.com/biovalue-ai/fairvalue/internal/repository"
	"github.com/biovalue-ai/fairvalue/internal/valuation"
	"github.com/biovalue-ai/fairvalue/internal/workflow"
	"github.com/biovalue-ai/fairvalue/pkg/config"
	apperrors "github.com/biovalue-ai/fairvalue/pkg/errors"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Save(ctx context.Context, rec *repository.SavedValuation) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

func (m *mockRepository) Get(ctx context.Context, id string) (*repository.SavedValuation, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*repository.SavedValuation)
	return rec, args.Error(1)
}

func (m *mockRepository) List(ctx context.Context) ([]repository.SavedValuation, error) {
	args := m.Called(ctx)
	recs, _ := args.Get(0).([]repository.SavedValuation)
	return recs, args.Error(1)
}

func (m *mockRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// fakeRunner 记录启动请求的 Runner
type fakeRunner struct {
	started  []workflow.WorkflowInput
	progress map[string]workflow.ProgressInfo
	startErr error
}

func (f *fakeRunner) Start(_ context.Context, input workflow.WorkflowInput) (RunRef, error) {
	if f.startErr != nil {
		return RunRef{}, f.startErr
	}
	f.started = append(f.started, input)
	return RunRef{WorkflowID: fmt.Sprintf("fairvalue-%s-%d", input.Fundamentals.Ticker, len(f.started)), RunID: "run-1"}, nil
}

func (f *fakeRunner) Progress(_ context.Context, workflowID string) (*workflow.ProgressInfo, error) {
	p, ok := f.progress[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, apperrors.ErrNotFound)
	}
	return &p, nil
}

type fixture struct {
	handler http.Handler
	repo    *mockRepository
	runs    *fakeRunner
	ready   error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		repo: &mockRepository{},
		runs: &fakeRunner{progress: map[string]workflow.ProgressInfo{}},
	}
	srv := New(Options{
		Config:   config.ServerConfig{HTTPAddr: ":0"},
		Logger:   zap.NewNop(),
		Defaults: activity.NewEngineDefaults(config.EngineConfig{}),
		Repo:     fx.repo,
		Runs:     fx.runs,
		Ready:    func(context.Context) error { return fx.ready },
	})
	fx.handler = srv.Handler()
	t.Cleanup(func() { fx.repo.AssertExpectations(t) })
	return fx
}

func (fx *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func msftFundamentals() valuation.Fundamentals {
	return valuation.Fundamentals{
		Ticker:             "MSFT",
		Sector:             "Technology",
		FCF:                68821,
		EPS:                11.11,
		BookValue:          27.75,
		EBITDA:             124650,
		TotalDebt:          79970,
		Cash:               143951,
		AnnualDividend:     3.00,
		SharesOutstanding:  7430,
		MarketPrice:        415.50,
		Beta:               1.15,
		Revenue:            227583,
		GrossProfit:        157334,
		TotalAssets:        411976,
		TotalLiabilities:   205753,
		CurrentAssets:      184257,
		CurrentLiabilities: 104149,
		RetainedEarnings:   90000,
		OperatingIncome:    104539,
		InterestExpense:    2063,
		OperatingCashFlow:  102647,
		NetIncome:          82536,
	}
}

func TestEvaluate(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/v1/valuations/evaluate", map[string]interface{}{
		"fundamentals": msftFundamentals(),
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var v valuation.Valuation
	decodeBody(t, rec, &v)
	iv, ok := v.Consensus.IntrinsicValue.Get()
	require.True(t, ok)
	assert.InDelta(t, 218.93, iv, 0.01)
	assert.Len(t, v.Models, 7)
}

func TestEvaluate_PartialAssumptionsOverlayDefaults(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/v1/valuations/evaluate",
		fmt.Sprintf(`{"fundamentals": %s, "assumptions": {"dcf": {"wacc": 2.5}}}`, mustJSON(t, msftFundamentals())))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var v valuation.Valuation
	decodeBody(t, rec, &v)
	// WACC 等于默认永续增长率，DCF 不可用但其余模型照常
	dcf, _ := v.Model(valuation.ModelDCF)
	assert.False(t, dcf.Value.Valid())
	assert.Nil(t, v.DCF)
	assert.Equal(t, 6, v.Consensus.ActiveModelCount)
}

func TestEvaluate_EmptyFundamentals(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/v1/valuations/evaluate", `{"fundamentals": {}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var v valuation.Valuation
	decodeBody(t, rec, &v)
	assert.False(t, v.Consensus.IntrinsicValue.Valid())
	assert.Equal(t, valuation.ConfidenceInsufficient, v.Consensus.Confidence.Label)
}

func TestEvaluate_ContractViolations(t *testing.T) {
	shares := msftFundamentals()
	shares.SharesOutstanding = -1

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"malformed json", `{"fundamentals": `, ""},
		{"unknown field", `{"fundamentals": {}, "leverage": 3}`, ""},
		{"negative shares", fmt.Sprintf(`{"fundamentals": %s}`, mustJSON(t, shares)), "shares_outstanding"},
		{"unknown model weight", `{"fundamentals": {}, "weights": {"lbo": 10}}`, "weights.lbo"},
		{"weight above range", `{"fundamentals": {}, "weights": {"dcf": 150}}`, "weights.dcf"},
		{"assumptions wrong type", `{"fundamentals": {}, "assumptions": {"dcf": "high"}}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)

			rec := fx.do(t, http.MethodPost, "/v1/valuations/evaluate", tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			var resp ErrorResponse
			decodeBody(t, rec, &resp)
			assert.Equal(t, "INVALID_INPUT", resp.Code)
			assert.Equal(t, tt.wantField, resp.Field)
		})
	}
}

func TestSensitivity(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/v1/valuations/sensitivity", map[string]interface{}{
		"fundamentals": msftFundamentals(),
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var grid valuation.SensitivityGrid
	decodeBody(t, rec, &grid)
	require.Len(t, grid.Cells, 7)
	for _, row := range grid.Cells {
		require.Len(t, row, 7)
		for _, cell := range row {
			assert.Equal(t, cell.Growth < cell.WACC, cell.Available)
		}
	}
}

func TestSensitivity_TooManyPoints(t *testing.T) {
	fx := newFixture(t)
	wide := make([]float64, valuation.MaxAxisPoints+1)

	rec := fx.do(t, http.MethodPost, "/v1/valuations/sensitivity", map[string]interface{}{
		"fundamentals": msftFundamentals(),
		"axes":         valuation.SensitivityAxes{WACC: wide, Growth: []float64{2}},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "axes.wacc", resp.Field)
}

func TestScenarios(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/v1/valuations/scenarios", map[string]interface{}{
		"fundamentals": msftFundamentals(),
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var results []valuation.ScenarioResult
	decodeBody(t, rec, &results)
	require.Len(t, results, 3)
	bear, _ := results[0].Consensus.IntrinsicValue.Get()
	base, _ := results[1].Consensus.IntrinsicValue.Get()
	bull, _ := results[2].Consensus.IntrinsicValue.Get()
	assert.InDelta(t, 147.48, bear, 0.01)
	assert.InDelta(t, 218.93, base, 0.01)
	assert.InDelta(t, 346.59, bull, 0.01)
}

func TestScenarios_Unnamed(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/v1/valuations/scenarios", map[string]interface{}{
		"fundamentals": msftFundamentals(),
		"scenarios":    []valuation.ScenarioParams{{GrowthMultiplier: 2}},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "scenarios[0].name", resp.Field)
}

func TestMonteCarlo(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/v1/valuations/montecarlo", map[string]interface{}{
		"fundamentals": msftFundamentals(),
		"iterations":   500,
		"seed":         4,
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res valuation.MonteCarloResult
	decodeBody(t, rec, &res)
	assert.Equal(t, 500, res.Trials)
	assert.Empty(t, res.RawSamples)
	assert.LessOrEqual(t, res.Percentiles.P10, res.Percentiles.P50)
	assert.LessOrEqual(t, res.Percentiles.P50, res.Percentiles.P90)
}

func TestMonteCarlo_NotApplicable(t *testing.T) {
	fx := newFixture(t)
	f := msftFundamentals()
	f.FCF = 0

	rec := fx.do(t, http.MethodPost, "/v1/valuations/montecarlo", map[string]interface{}{"fundamentals": f})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

func TestMonteCarlo_TooManyIterations(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/v1/valuations/montecarlo", map[string]interface{}{
		"fundamentals": msftFundamentals(),
		"iterations":   valuation.MaxIterations + 1,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartRun(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/v1/valuations/runs", map[string]interface{}{
		"fundamentals":  msftFundamentals(),
		"assumptions":   map[string]interface{}{"target_pe": 25},
		"weights":       map[string]float64{"ddm": 0},
		"label":         "fy24",
		"save":          true,
		"risk_analysis": true,
	})

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var ref RunRef
	decodeBody(t, rec, &ref)
	assert.Equal(t, "fairvalue-MSFT-1", ref.WorkflowID)

	require.Len(t, fx.runs.started, 1)
	input := fx.runs.started[0]
	assert.True(t, input.Save)
	assert.True(t, input.RiskAnalysis)
	assert.Equal(t, "fy24", input.Label)
	require.NotNil(t, input.Assumptions)
	assert.Equal(t, 25.0, input.Assumptions.TargetPE)
	assert.Equal(t, 8.5, input.Assumptions.DCF.WACC)
	assert.Equal(t, 0.0, input.Weights[valuation.ModelDDM])
}

func TestStartRun_InvalidInputNotStarted(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/v1/valuations/runs", `{"fundamentals": {"total_debt": -5}}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, fx.runs.started)
}

func TestStartRun_RiskParametersCheckedBeforeStart(t *testing.T) {
	cases := map[string]struct {
		body  map[string]interface{}
		field string
	}{
		"too many iterations": {
			body:  map[string]interface{}{"iterations": valuation.MaxIterations + 1},
			field: "iterations",
		},
		"unnamed scenario": {
			body:  map[string]interface{}{"scenarios": []map[string]interface{}{{"name": "ok"}, {"growth_multiplier": 0.5}}},
			field: "scenarios[1].name",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			fx := newFixture(t)
			body := map[string]interface{}{
				"fundamentals":  msftFundamentals(),
				"save":          true,
				"risk_analysis": true,
			}
			for k, v := range tc.body {
				body[k] = v
			}

			rec := fx.do(t, http.MethodPost, "/v1/valuations/runs", body)

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			var resp ErrorResponse
			decodeBody(t, rec, &resp)
			assert.Equal(t, tc.field, resp.Field)
			assert.Empty(t, fx.runs.started)
		})
	}
}

func TestStartRun_TemporalUnavailable(t *testing.T) {
	fx := newFixture(t)
	fx.runs.startErr = fmt.Errorf("failed to start workflow: %w", apperrors.ErrWorkflowFailed)

	rec := fx.do(t, http.MethodPost, "/v1/valuations/runs", map[string]interface{}{"fundamentals": msftFundamentals()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRunProgress(t *testing.T) {
	fx := newFixture(t)
	fx.runs.progress["wf-1"] = workflow.ProgressInfo{
		CurrentStep:    "RiskAnalysis",
		CompletedSteps: []string{"Valuation"},
		TotalSteps:     2,
		Progress:       50,
	}

	rec := fx.do(t, http.MethodGet, "/v1/valuations/runs/wf-1/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p workflow.ProgressInfo
	decodeBody(t, rec, &p)
	assert.Equal(t, "RiskAnalysis", p.CurrentStep)
	assert.Equal(t, 50.0, p.Progress)

	rec = fx.do(t, http.MethodGet, "/v1/valuations/runs/missing/progress", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSavedValuations(t *testing.T) {
	fx := newFixture(t)
	saved := repository.SavedValuation{ID: "abc", Ticker: "MSFT", Label: "fy24"}
	fx.repo.On("List", mock.Anything).Return([]repository.SavedValuation{saved}, nil).Once()
	fx.repo.On("Get", mock.Anything, "abc").Return(&saved, nil).Once()
	fx.repo.On("Get", mock.Anything, "nope").Return(nil, fmt.Errorf("saved valuation nope: %w", repository.ErrNotFound)).Once()
	fx.repo.On("Delete", mock.Anything, "abc").Return(nil).Once()
	fx.repo.On("Delete", mock.Anything, "nope").Return(repository.ErrNotFound).Once()

	rec := fx.do(t, http.MethodGet, "/v1/saved", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []repository.SavedValuation
	decodeBody(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "fy24", list[0].Label)

	rec = fx.do(t, http.MethodGet, "/v1/saved/abc", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(t, http.MethodGet, "/v1/saved/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = fx.do(t, http.MethodDelete, "/v1/saved/abc", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = fx.do(t, http.MethodDelete, "/v1/saved/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSavedValuation_CorruptRecord(t *testing.T) {
	fx := newFixture(t)
	fx.repo.On("Get", mock.Anything, "bad").
		Return(nil, fmt.Errorf("%w: failed to decode valuation bad", apperrors.ErrValidationFailed)).Once()

	rec := fx.do(t, http.MethodGet, "/v1/saved/bad", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body ErrorResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, "VALIDATION_FAILED", body.Code)
}

func TestSaveValuation(t *testing.T) {
	fx := newFixture(t)
	fx.repo.On("Save", mock.Anything, mock.MatchedBy(func(rec *repository.SavedValuation) bool {
		return rec.Ticker == "MSFT" && rec.Label == "watch" && rec.Result != nil && rec.Result.Consensus.IntrinsicValue.Valid()
	})).Return("new-id", nil).Once()

	rec := fx.do(t, http.MethodPost, "/v1/saved", map[string]interface{}{
		"fundamentals": msftFundamentals(),
		"label":        "watch",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp map[string]string
	decodeBody(t, rec, &resp)
	assert.Equal(t, "new-id", resp["id"])
}

func TestHealthAndReady(t *testing.T) {
	fx := newFixture(t)

	assert.Equal(t, http.StatusOK, fx.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, fx.do(t, http.MethodGet, "/readyz", nil).Code)

	fx.ready = fmt.Errorf("%w: dial tcp: connection refused", apperrors.ErrCacheUnavailable)
	rec := fx.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "CACHE_UNAVAILABLE", resp.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	fx := newFixture(t)
	fx.do(t, http.MethodGet, "/healthz", nil)

	rec := fx.do(t, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fairvalue_http_request_duration_seconds")
	assert.Contains(t, rec.Body.String(), `route="/healthz"`)
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
