// Activity 实现
// 估值核心是纯函数，活动负责缓存、校验归类、指标与持久化
package activity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/biovalue-ai/fairvalue/internal/repository"
	"github.com/biovalue-ai/fairvalue/internal/valuation"
	"github.com/biovalue-ai/fairvalue/pkg/cache"
	"github.com/biovalue-ai/fairvalue/pkg/config"
	apperrors "github.com/biovalue-ai/fairvalue/pkg/errors"
	"github.com/biovalue-ai/fairvalue/pkg/logging"
	"github.com/biovalue-ai/fairvalue/pkg/metrics"
	"github.com/biovalue-ai/fairvalue/pkg/tracing"
)

const (
	// ValidationErrorType 不可重试的调用方契约错误
	ValidationErrorType = "ValidationError"
	// FatalErrorType 不可重试的致命错误
	FatalErrorType = "FatalError"
)

// Activities 包含所有 Activity 的依赖
type Activities struct {
	logger   *zap.Logger
	cache    cache.Cache
	repo     repository.Repository
	defaults EngineDefaults
}

// New 创建 Activities 实例
func New(cfg *config.Config, logger *zap.Logger, c cache.Cache, repo repository.Repository) *Activities {
	return &Activities{
		logger:   logger,
		cache:    c,
		repo:     repo,
		defaults: NewEngineDefaults(cfg.Engine),
	}
}

// validationError 契约错误包装为不可重试的 ValidationError
func validationError(err error) error {
	metrics.RecordError(err)
	return temporal.NewNonRetryableApplicationError(err.Error(), ValidationErrorType, err)
}

// applicationError 按错误级别决定重试: L2 为 ValidationError，L3 为 FatalError，其余原样返回交由重试策略
func applicationError(err error) error {
	switch apperrors.ClassifyError(err).Level {
	case apperrors.L2Intervention:
		return validationError(err)
	case apperrors.L3Fatal:
		metrics.RecordError(err)
		return temporal.NewNonRetryableApplicationError(err.Error(), FatalErrorType, err)
	}
	metrics.RecordError(err)
	return err
}

// ValuationCacheKey 估值缓存键: valuation:<ticker>:<sha256(输入)>
func ValuationCacheKey(f valuation.Fundamentals, a valuation.Assumptions, w valuation.WeightSet) string {
	payload, _ := json.Marshal(struct {
		Fundamentals valuation.Fundamentals `json:"f"`
		Assumptions  valuation.Assumptions  `json:"a"`
		Weights      valuation.WeightSet    `json:"w"`
	}{f, a, w})
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("valuation:%s:%s", f.Ticker, hex.EncodeToString(sum[:]))
}

// ValuationActivity 完整多模型估值，相同输入命中缓存
func (a *Activities) ValuationActivity(ctx context.Context, input ValuationInput) (result *valuation.Valuation, err error) {
	f, assumptions, weights := a.defaults.Resolve(input.EngineRequest)
	logger := a.logger.With(zap.String("activity", "Valuation"), zap.String("ticker", f.Ticker))

	ctx, span := tracing.StartSpan(ctx, "activity.ValuationActivity")
	defer span.End()
	tracing.SetAttributes(ctx, attribute.String("ticker", f.Ticker))

	startTime := time.Now()
	defer func() {
		metrics.ActivityDuration.WithLabelValues("Valuation", metrics.Status(err)).Observe(time.Since(startTime).Seconds())
	}()

	// 1. 检查缓存
	cacheKey := ValuationCacheKey(f, assumptions, weights)
	cached, cacheErr := a.cache.Get(ctx, cacheKey)
	switch {
	case cacheErr != nil:
		logger.Warn("Cache lookup failed", logging.ErrorFields(cacheErr)...)
		metrics.CacheHitRate.WithLabelValues("get", "error").Inc()
	case cached != "":
		var hit valuation.Valuation
		if err := json.Unmarshal([]byte(cached), &hit); err == nil {
			logger.Info("Cache hit for valuation")
			metrics.CacheHitRate.WithLabelValues("get", "hit").Inc()
			tracing.AddEvent(ctx, "cache.hit")
			return &hit, nil
		}
		metrics.CacheHitRate.WithLabelValues("get", "miss").Inc()
	default:
		metrics.CacheHitRate.WithLabelValues("get", "miss").Inc()
	}

	// 2. 心跳
	activity.RecordHeartbeat(ctx, "Running valuation models...")

	// 3. 估值
	v, err := valuation.Evaluate(f, assumptions, weights)
	if err != nil {
		logger.Warn("Valuation input rejected", logging.ErrorFields(err)...)
		tracing.RecordError(ctx, err)
		return nil, validationError(err)
	}

	for _, m := range v.Models {
		metrics.ModelAvailability.WithLabelValues(string(m.Model), fmt.Sprint(m.Value.Valid())).Inc()
	}
	if v.Consensus.Confidence.Label != valuation.ConfidenceInsufficient {
		metrics.ConfidenceScore.Observe(float64(v.Consensus.Confidence.Score))
	}

	// 4. 存入缓存
	resultJSON, _ := json.Marshal(v)
	if err := a.cache.Set(ctx, cacheKey, string(resultJSON), a.defaults.CacheTTL); err != nil {
		logger.Warn("Failed to cache result", logging.ErrorFields(err)...)
		metrics.CacheHitRate.WithLabelValues("set", "error").Inc()
	}

	logger.Info("Valuation completed",
		zap.Stringer("intrinsic_value", v.Consensus.IntrinsicValue),
		zap.Stringer("margin_of_safety", v.Consensus.MarginOfSafetyPct),
		zap.Int("active_models", v.Consensus.ActiveModelCount),
		zap.String("confidence", string(v.Consensus.Confidence.Label)),
	)
	return v, nil
}

// MonteCarloActivity 蒙特卡洛风险模拟
// 模拟不可行 (缺少 FCF 或股本) 时返回 nil 结果
func (a *Activities) MonteCarloActivity(ctx context.Context, input MonteCarloInput) (result *valuation.MonteCarloResult, err error) {
	f, assumptions, weights := a.defaults.Resolve(input.EngineRequest)
	logger := a.logger.With(zap.String("activity", "MonteCarlo"), zap.String("ticker", f.Ticker))

	ctx, span := tracing.StartSpan(ctx, "activity.MonteCarloActivity")
	defer span.End()

	startTime := time.Now()
	defer func() {
		metrics.ActivityDuration.WithLabelValues("MonteCarlo", metrics.Status(err)).Observe(time.Since(startTime).Seconds())
	}()

	if err := valuation.ValidateRequest(f, assumptions, weights); err != nil {
		return nil, validationError(err)
	}
	params := a.defaults.MonteCarlo
	if input.Iterations > 0 {
		params.Iterations = input.Iterations
	}
	if input.Seed != 0 {
		params.Seed = input.Seed
	}
	if params.Iterations > valuation.MaxIterations {
		return nil, validationError(&valuation.InputError{
			Field:  "iterations",
			Reason: fmt.Sprintf("must not exceed %d", valuation.MaxIterations),
		})
	}

	activity.RecordHeartbeat(ctx, fmt.Sprintf("Simulating %d trials...", params.Iterations))

	res, err := valuation.MonteCarlo(ctx, valuation.MonteCarloInputFor(f, assumptions, params))
	if err != nil {
		logger.Warn("Monte Carlo simulation interrupted", logging.ErrorFields(err)...)
		tracing.RecordError(ctx, err)
		return nil, err
	}
	if res == nil {
		logger.Info("Monte Carlo simulation not applicable")
		return nil, nil
	}

	metrics.MonteCarloTrials.WithLabelValues("accepted").Add(float64(res.Accepted))
	metrics.MonteCarloTrials.WithLabelValues("discarded").Add(float64(res.Trials - res.Accepted))
	if !input.IncludeSamples {
		res.RawSamples = nil
	}

	logger.Info("Monte Carlo simulation completed",
		zap.Int("trials", res.Trials),
		zap.Int("accepted", res.Accepted),
		zap.Float64("p50", res.Percentiles.P50),
	)
	return res, nil
}

// SensitivityActivity WACC × 增长率 敏感性矩阵
func (a *Activities) SensitivityActivity(ctx context.Context, input SensitivityInput) (result *valuation.SensitivityGrid, err error) {
	f, assumptions, weights := a.defaults.Resolve(input.EngineRequest)
	logger := a.logger.With(zap.String("activity", "Sensitivity"), zap.String("ticker", f.Ticker))

	startTime := time.Now()
	defer func() {
		metrics.ActivityDuration.WithLabelValues("Sensitivity", metrics.Status(err)).Observe(time.Since(startTime).Seconds())
	}()

	axes := a.defaults.Axes
	if input.Axes != nil {
		axes = *input.Axes
	}
	if err := valuation.ValidateRequest(f, assumptions, weights); err != nil {
		return nil, validationError(err)
	}
	if err := axes.Validate(); err != nil {
		return nil, validationError(err)
	}

	grid := valuation.Sensitivity(valuation.SensitivityInputFor(f, assumptions, axes))

	available := 0
	for _, row := range grid.Cells {
		for _, cell := range row {
			if cell.Available {
				available++
			}
		}
	}
	logger.Info("Sensitivity grid completed",
		zap.Int("rows", len(grid.WACC)),
		zap.Int("columns", len(grid.Growth)),
		zap.Int("available_cells", available),
	)
	return &grid, nil
}

// ScenarioActivity 悲观 / 基准 / 乐观情景重算
func (a *Activities) ScenarioActivity(ctx context.Context, input ScenarioInput) (result []valuation.ScenarioResult, err error) {
	f, assumptions, weights := a.defaults.Resolve(input.EngineRequest)
	logger := a.logger.With(zap.String("activity", "Scenario"), zap.String("ticker", f.Ticker))

	startTime := time.Now()
	defer func() {
		metrics.ActivityDuration.WithLabelValues("Scenario", metrics.Status(err)).Observe(time.Since(startTime).Seconds())
	}()

	scenarios := input.Scenarios
	if len(scenarios) == 0 {
		scenarios = a.defaults.Scenarios
	}

	results, err := valuation.Scenarios(f, assumptions, weights, scenarios)
	if err != nil {
		return nil, validationError(err)
	}

	for _, r := range results {
		logger.Info("Scenario evaluated",
			zap.String("scenario", r.Name),
			zap.Stringer("intrinsic_value", r.Consensus.IntrinsicValue),
		)
	}
	return results, nil
}

// SaveValuationActivity 保存估值，返回记录 ID
func (a *Activities) SaveValuationActivity(ctx context.Context, input SaveValuationInput) (id string, err error) {
	f, assumptions, weights := a.defaults.Resolve(input.EngineRequest)
	logger := a.logger.With(zap.String("activity", "SaveValuation"), zap.String("ticker", f.Ticker))

	startTime := time.Now()
	defer func() {
		metrics.ActivityDuration.WithLabelValues("SaveValuation", metrics.Status(err)).Observe(time.Since(startTime).Seconds())
	}()

	id, err = a.repo.Save(ctx, &repository.SavedValuation{
		Ticker:       f.Ticker,
		Label:        input.Label,
		Fundamentals: f,
		Assumptions:  assumptions,
		Weights:      weights,
		Result:       input.Result,
	})
	if err != nil {
		logger.Error("Failed to save valuation", logging.ErrorFields(err)...)
		return "", applicationError(err)
	}

	logger.Info("Valuation saved", zap.String("id", id))
	return id, nil
}

// DeleteValuationActivity 删除已保存估值 (补偿步骤)，记录已不存在视为成功
func (a *Activities) DeleteValuationActivity(ctx context.Context, id string) error {
	logger := a.logger.With(zap.String("activity", "DeleteValuation"), zap.String("id", id))

	err := a.repo.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Info("Saved valuation already absent")
		return nil
	}
	if err != nil {
		logger.Error("Failed to delete valuation", logging.ErrorFields(err)...)
		return err
	}
	logger.Info("Saved valuation deleted")
	return nil
}

// CleanupCacheActivity 清除某次估值的缓存结果 (补偿步骤)
func (a *Activities) CleanupCacheActivity(ctx context.Context, input ValuationInput) error {
	f, assumptions, weights := a.defaults.Resolve(input.EngineRequest)
	key := ValuationCacheKey(f, assumptions, weights)

	if err := a.cache.Delete(ctx, key); err != nil {
		a.logger.Warn("Failed to clean up cache", append(logging.ErrorFields(err), zap.String("key", key))...)
		metrics.CacheHitRate.WithLabelValues("delete", "error").Inc()
		return err
	}
	metrics.CacheHitRate.WithLabelValues("delete", "ok").Inc()
	return nil
}

// NotifyCompensationFailure 通知补偿失败
func (a *Activities) NotifyCompensationFailure(ctx context.Context, stepName string, errorMsg string) error {
	a.logger.Error("Compensation failed, manual intervention required",
		zap.String("step", stepName),
		zap.String("error", errorMsg),
	)
	metrics.RecordError(apperrors.NewClassifiedError(apperrors.L3Fatal, "COMPENSATION_FAILED", "compensation failed for "+stepName, errors.New(errorMsg)))
	return nil
}
