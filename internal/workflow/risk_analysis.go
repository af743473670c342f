// 风险分析子工作流
// 并行执行蒙特卡洛、敏感性矩阵与情景分析
package workflow

import (
	"fmt"

	"go.temporal.io/sdk/workflow"

	"github.com/biovalue-ai/fairvalue/internal/activity"
	"github.com/biovalue-ai/fairvalue/internal/valuation"
	apperrors "github.com/biovalue-ai/fairvalue/pkg/errors"
)

// RiskAnalysisInput 风险分析输入
type RiskAnalysisInput struct {
	activity.EngineRequest
	Iterations int                        `json:"iterations,omitempty"`
	Seed       int64                      `json:"seed,omitempty"`
	Axes       *valuation.SensitivityAxes `json:"axes,omitempty"`
	Scenarios  []valuation.ScenarioParams `json:"scenarios,omitempty"`
}

// RiskAnalysisOutput 风险分析输出，单项失败时对应字段为空并记入 Failures
type RiskAnalysisOutput struct {
	MonteCarlo  *valuation.MonteCarloResult `json:"monte_carlo,omitempty"`
	Sensitivity *valuation.SensitivityGrid  `json:"sensitivity,omitempty"`
	Scenarios   []valuation.ScenarioResult  `json:"scenarios,omitempty"`
	Failures    []string                    `json:"failures,omitempty"`
}

// RiskAnalysisWorkflow 风险分析子工作流
// 输入契约错误使整个子工作流失败，其余单项失败仅记录
func RiskAnalysisWorkflow(ctx workflow.Context, input RiskAnalysisInput) (*RiskAnalysisOutput, error) {
	logger := workflow.GetLogger(ctx)
	ticker := input.Fundamentals.Ticker
	logger.Info("Starting Risk Analysis Workflow", "ticker", ticker)

	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	output := &RiskAnalysisOutput{}
	var contractErr error

	record := func(step string, err error) {
		logger.Error("Risk analysis step failed", "step", step, "error", err)
		output.Failures = append(output.Failures, step)
		if contractErr == nil && failureLevel(err) >= apperrors.L2Intervention {
			contractErr = fmt.Errorf("%s: %w", step, err)
		}
	}

	monteCarloFuture := workflow.ExecuteActivity(ctx, "MonteCarloActivity", activity.MonteCarloInput{
		EngineRequest: input.EngineRequest,
		Iterations:    input.Iterations,
		Seed:          input.Seed,
	})
	sensitivityFuture := workflow.ExecuteActivity(ctx, "SensitivityActivity", activity.SensitivityInput{
		EngineRequest: input.EngineRequest,
		Axes:          input.Axes,
	})
	scenarioFuture := workflow.ExecuteActivity(ctx, "ScenarioActivity", activity.ScenarioInput{
		EngineRequest: input.EngineRequest,
		Scenarios:     input.Scenarios,
	})

	// 使用 Selector 收集结果
	selector := workflow.NewSelector(ctx)

	selector.AddFuture(monteCarloFuture, func(f workflow.Future) {
		var result *valuation.MonteCarloResult
		if err := f.Get(ctx, &result); err != nil {
			record("MonteCarlo", err)
			return
		}
		output.MonteCarlo = result
	})

	selector.AddFuture(sensitivityFuture, func(f workflow.Future) {
		var grid valuation.SensitivityGrid
		if err := f.Get(ctx, &grid); err != nil {
			record("Sensitivity", err)
			return
		}
		output.Sensitivity = &grid
	})

	selector.AddFuture(scenarioFuture, func(f workflow.Future) {
		var results []valuation.ScenarioResult
		if err := f.Get(ctx, &results); err != nil {
			record("Scenarios", err)
			return
		}
		output.Scenarios = results
	})

	for i := 0; i < 3; i++ {
		selector.Select(ctx)
	}

	if contractErr != nil {
		return nil, contractErr
	}
	if len(output.Failures) == 3 {
		return nil, fmt.Errorf("all risk analysis steps failed: %w", apperrors.ErrWorkflowFailed)
	}

	logger.Info("Risk Analysis Workflow completed",
		"ticker", ticker,
		"monte_carlo", output.MonteCarlo != nil,
		"failures", output.Failures,
	)
	return output, nil
}
