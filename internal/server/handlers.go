package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/biovalue-ai/fairvalue/internal/activity"
	"github.com/biovalue-ai/fairvalue/internal/repository"
	"github.com/biovalue-ai/fairvalue/internal/valuation"
	"github.com/biovalue-ai/fairvalue/internal/workflow"
	apperrors "github.com/biovalue-ai/fairvalue/pkg/errors"
)

// engineRequest 请求公共部分
// assumptions 叠加在默认假设之上，只需给出要覆盖的字段
type engineRequest struct {
	Fundamentals valuation.Fundamentals `json:"fundamentals"`
	Assumptions  json.RawMessage        `json:"assumptions,omitempty"`
	Weights      valuation.WeightSet    `json:"weights,omitempty"`
}

type sensitivityRequest struct {
	engineRequest
	Axes *valuation.SensitivityAxes `json:"axes,omitempty"`
}

type scenarioRequest struct {
	engineRequest
	Scenarios []valuation.ScenarioParams `json:"scenarios,omitempty"`
}

type monteCarloRequest struct {
	engineRequest
	Iterations     int   `json:"iterations,omitempty"`
	Seed           int64 `json:"seed,omitempty"`
	IncludeSamples bool  `json:"include_samples,omitempty"`
}

type runRequest struct {
	engineRequest
	Label        string                     `json:"label,omitempty"`
	Save         bool                       `json:"save,omitempty"`
	RiskAnalysis bool                       `json:"risk_analysis,omitempty"`
	Iterations   int                        `json:"iterations,omitempty"`
	Seed         int64                      `json:"seed,omitempty"`
	Axes         *valuation.SensitivityAxes `json:"axes,omitempty"`
	Scenarios    []valuation.ScenarioParams `json:"scenarios,omitempty"`
}

type saveRequest struct {
	engineRequest
	Label string `json:"label,omitempty"`
}

// engine 合并默认值并校验
func (s *Server) engine(req engineRequest) (activity.EngineRequest, error) {
	out := activity.EngineRequest{Fundamentals: req.Fundamentals, Weights: req.Weights}
	if len(req.Assumptions) > 0 && string(req.Assumptions) != "null" {
		a := s.defaults.Assumptions
		a.DCF.Stages = append([]valuation.Stage(nil), a.DCF.Stages...)
		if err := json.Unmarshal(req.Assumptions, &a); err != nil {
			return out, fmt.Errorf("%w: assumptions: %v", apperrors.ErrInvalidInput, err)
		}
		out.Assumptions = &a
	}

	f, a, w := s.defaults.Resolve(out)
	if err := valuation.ValidateRequest(f, a, w); err != nil {
		return out, err
	}
	return out, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleEvaluate 同步完整估值
// POST /v1/valuations/evaluate
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req engineRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	er, err := s.engine(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	v, err := valuation.Evaluate(s.defaults.Resolve(er))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleSensitivity WACC × 增长率 矩阵
// POST /v1/valuations/sensitivity
func (s *Server) handleSensitivity(w http.ResponseWriter, r *http.Request) {
	var req sensitivityRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	er, err := s.engine(req.engineRequest)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	axes := s.defaults.Axes
	if req.Axes != nil {
		axes = *req.Axes
	}
	if err := axes.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	f, a, _ := s.defaults.Resolve(er)
	writeJSON(w, http.StatusOK, valuation.Sensitivity(valuation.SensitivityInputFor(f, a, axes)))
}

// handleScenarios 情景重算
// POST /v1/valuations/scenarios
func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	var req scenarioRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	er, err := s.engine(req.engineRequest)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	scenarios := req.Scenarios
	if len(scenarios) == 0 {
		scenarios = s.defaults.Scenarios
	}

	f, a, wt := s.defaults.Resolve(er)
	results, err := valuation.Scenarios(f, a, wt, scenarios)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleMonteCarlo 蒙特卡洛模拟，不可模拟时返回 null
// POST /v1/valuations/montecarlo
func (s *Server) handleMonteCarlo(w http.ResponseWriter, r *http.Request) {
	var req monteCarloRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	er, err := s.engine(req.engineRequest)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	params := s.defaults.MonteCarlo
	if req.Iterations > 0 {
		params.Iterations = req.Iterations
	}
	if req.Seed != 0 {
		params.Seed = req.Seed
	}
	if params.Iterations > valuation.MaxIterations {
		s.writeError(w, r, &valuation.InputError{
			Field:  "iterations",
			Reason: fmt.Sprintf("must not exceed %d", valuation.MaxIterations),
		})
		return
	}

	f, a, _ := s.defaults.Resolve(er)
	res, err := valuation.MonteCarlo(r.Context(), valuation.MonteCarloInputFor(f, a, params))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res != nil && !req.IncludeSamples {
		res.RawSamples = nil
	}
	writeJSON(w, http.StatusOK, res)
}

// handleStartRun 启动估值工作流
// POST /v1/valuations/runs
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	er, err := s.engine(req.engineRequest)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Axes != nil {
		if err := req.Axes.Validate(); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if req.Iterations > valuation.MaxIterations {
		s.writeError(w, r, &valuation.InputError{
			Field:  "iterations",
			Reason: fmt.Sprintf("must not exceed %d", valuation.MaxIterations),
		})
		return
	}
	if err := valuation.ValidateScenarios(req.Scenarios); err != nil {
		s.writeError(w, r, err)
		return
	}

	ref, err := s.runs.Start(r.Context(), workflow.WorkflowInput{
		EngineRequest: er,
		Label:         req.Label,
		Save:          req.Save,
		RiskAnalysis:  req.RiskAnalysis,
		Iterations:    req.Iterations,
		Seed:          req.Seed,
		Axes:          req.Axes,
		Scenarios:     req.Scenarios,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("Valuation run started",
		zap.String("ticker", er.Fundamentals.Ticker),
		zap.String("workflow_id", ref.WorkflowID),
		zap.String("run_id", ref.RunID),
	)
	writeJSON(w, http.StatusAccepted, ref)
}

// handleRunProgress 查询工作流进度
// GET /v1/valuations/runs/{id}/progress
func (s *Server) handleRunProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.runs.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// handleListSaved 已保存估值，按时间倒序
// GET /v1/saved
func (s *Server) handleListSaved(w http.ResponseWriter, r *http.Request) {
	records, err := s.repo.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleSave 估值并保存
// POST /v1/saved
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	er, err := s.engine(req.engineRequest)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	f, a, wt := s.defaults.Resolve(er)
	v, err := valuation.Evaluate(f, a, wt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec := &repository.SavedValuation{
		Ticker:       f.Ticker,
		Label:        req.Label,
		Fundamentals: f,
		Assumptions:  a,
		Weights:      wt,
		Result:       v,
	}
	id, err := s.repo.Save(r.Context(), rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// handleGetSaved 获取已保存估值
// GET /v1/saved/{id}
func (s *Server) handleGetSaved(w http.ResponseWriter, r *http.Request) {
	rec, err := s.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteSaved 删除已保存估值
// DELETE /v1/saved/{id}
func (s *Server) handleDeleteSaved(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
