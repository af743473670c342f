// FairValue 主工作流
// 协调估值、保存与风险分析，失败时按 Saga 补偿
package workflow

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/biovalue-ai/fairvalue/internal/activity"
	"github.com/biovalue-ai/fairvalue/internal/valuation"
	apperrors "github.com/biovalue-ai/fairvalue/pkg/errors"
)

const (
	// ProgressQuery 进度查询名
	ProgressQuery = "progress"
	// InterventionSignalName 人工干预信号名
	InterventionSignalName = "human-intervention"
)

// WorkflowInput 工作流输入
type WorkflowInput struct {
	activity.EngineRequest
	Label        string                     `json:"label,omitempty"`
	Save         bool                       `json:"save,omitempty"`          // 保存估值
	RiskAnalysis bool                       `json:"risk_analysis,omitempty"` // 蒙特卡洛 + 敏感性 + 情景
	Iterations   int                        `json:"iterations,omitempty"`
	Seed         int64                      `json:"seed,omitempty"`
	Axes         *valuation.SensitivityAxes `json:"axes,omitempty"`
	Scenarios    []valuation.ScenarioParams `json:"scenarios,omitempty"`
}

// WorkflowOutput 工作流输出
type WorkflowOutput struct {
	Ticker      string               `json:"ticker"`
	Valuation   *valuation.Valuation `json:"valuation"`
	Risk        *RiskAnalysisOutput  `json:"risk,omitempty"`
	SavedID     string               `json:"saved_id,omitempty"`
	RunID       string               `json:"run_id"`
	CompletedAt time.Time            `json:"completed_at"`
}

// ProgressInfo 进度信息 (用于 Query)
type ProgressInfo struct {
	CurrentStep    string   `json:"current_step"`
	CompletedSteps []string `json:"completed_steps"`
	TotalSteps     int      `json:"total_steps"`
	Progress       float64  `json:"progress"`
	Paused         bool     `json:"paused"`
}

// InterventionSignal 人工干预信号
type InterventionSignal struct {
	Type string `json:"type"` // pause, resume
}

// defaultActivityOptions 活动默认选项，契约错误不重试
func defaultActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{activity.FatalErrorType, activity.ValidationErrorType},
		},
	}
}

// failureLevel 工作流侧的错误分级
// 错误链上的 ApplicationError 按类型分级，其余交给 ClassifyError
func failureLevel(err error) apperrors.ErrorLevel {
	for e := err; e != nil; e = errors.Unwrap(e) {
		appErr, ok := e.(*temporal.ApplicationError)
		if !ok {
			continue
		}
		switch appErr.Type() {
		case activity.ValidationErrorType:
			return apperrors.L2Intervention
		case activity.FatalErrorType:
			return apperrors.L3Fatal
		}
	}
	return apperrors.ClassifyError(err).Level
}

// FairValueWorkflow 多模型公允价值评估主工作流
func FairValueWorkflow(ctx workflow.Context, input WorkflowInput) (*WorkflowOutput, error) {
	logger := workflow.GetLogger(ctx)
	ticker := input.Fundamentals.Ticker
	logger.Info("Starting FairValue Workflow", "ticker", ticker)

	// 初始化 Saga 补偿
	saga := NewSagaCompensation()

	// 进度跟踪
	var currentStep string
	completedSteps := make([]string, 0)
	totalSteps := 1
	if input.Save {
		totalSteps++
	}
	if input.RiskAnalysis {
		totalSteps++
	}
	isPaused := false

	err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (ProgressInfo, error) {
		return ProgressInfo{
			CurrentStep:    currentStep,
			CompletedSteps: completedSteps,
			TotalSteps:     totalSteps,
			Progress:       float64(len(completedSteps)) / float64(totalSteps) * 100,
			Paused:         isPaused,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set query handler: %w", err)
	}

	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	// 信号通道 - 人工干预
	signalChan := workflow.GetSignalChannel(ctx, InterventionSignalName)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		for {
			var signal InterventionSignal
			signalChan.Receive(gCtx, &signal)

			switch signal.Type {
			case "pause":
				isPaused = true
				logger.Info("Workflow paused by signal")
			case "resume":
				isPaused = false
				logger.Info("Workflow resumed by signal")
			}
		}
	})

	waitForResume := func() {
		_ = workflow.Await(ctx, func() bool { return !isPaused })
	}

	runID := workflow.GetInfo(ctx).WorkflowExecution.RunID
	output := &WorkflowOutput{
		Ticker: ticker,
		RunID:  runID,
	}

	// ============== Step 1: 多模型估值 ==============
	currentStep = "Valuation"

	valuationInput := activity.ValuationInput{EngineRequest: input.EngineRequest}
	var result valuation.Valuation
	if err := workflow.ExecuteActivity(ctx, "ValuationActivity", valuationInput).Get(ctx, &result); err != nil {
		logger.Error("Valuation failed", "ticker", ticker, "error", err)
		return nil, fmt.Errorf("valuation failed: %w", err)
	}
	output.Valuation = &result
	completedSteps = append(completedSteps, "Valuation")
	saga.AddCompensation("valuation-cache", func(ctx workflow.Context) error {
		return workflow.ExecuteActivity(ctx, "CleanupCacheActivity", valuationInput).Get(ctx, nil)
	})

	if isPaused {
		waitForResume()
	}

	// ============== Step 2: 保存估值 ==============
	if input.Save {
		currentStep = "SaveValuation"

		var savedID string
		if err := workflow.ExecuteActivity(ctx, "SaveValuationActivity", activity.SaveValuationInput{
			EngineRequest: input.EngineRequest,
			Label:         input.Label,
			Result:        &result,
		}).Get(ctx, &savedID); err != nil {
			logger.Error("SaveValuation failed", "ticker", ticker, "error", err)
			_ = saga.Execute(ctx)
			return nil, fmt.Errorf("save valuation failed: %w", err)
		}
		output.SavedID = savedID
		completedSteps = append(completedSteps, "SaveValuation")
		saga.AddCompensation("saved-valuation", func(ctx workflow.Context) error {
			return workflow.ExecuteActivity(ctx, "DeleteValuationActivity", savedID).Get(ctx, nil)
		})
	}

	if isPaused {
		waitForResume()
	}

	// ============== Step 3: 风险分析 (Child Workflow) ==============
	if input.RiskAnalysis {
		currentStep = "RiskAnalysis"

		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID: fmt.Sprintf("risk-analysis-%s-%s", ticker, runID),
		})

		var risk RiskAnalysisOutput
		if err := workflow.ExecuteChildWorkflow(childCtx, RiskAnalysisWorkflow, RiskAnalysisInput{
			EngineRequest: input.EngineRequest,
			Iterations:    input.Iterations,
			Seed:          input.Seed,
			Axes:          input.Axes,
			Scenarios:     input.Scenarios,
		}).Get(ctx, &risk); err != nil {
			if failureLevel(err) >= apperrors.L2Intervention {
				logger.Error("Risk analysis failed, compensating", "ticker", ticker, "compensations", saga.Len(), "error", err)
				_ = saga.Execute(ctx)
				return nil, fmt.Errorf("risk analysis failed: %w", err)
			}
			logger.Warn("Risk analysis unavailable", "ticker", ticker, "error", err)
		} else {
			output.Risk = &risk
			completedSteps = append(completedSteps, "RiskAnalysis")
		}
	}

	currentStep = ""
	output.CompletedAt = workflow.Now(ctx)

	logger.Info("FairValue Workflow completed",
		"ticker", ticker,
		"completed_steps", completedSteps,
		"intrinsic_value", result.Consensus.IntrinsicValue.String(),
	)

	return output, nil
}
