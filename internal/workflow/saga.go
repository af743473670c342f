// Saga 补偿模式实现
// 估值流程失败时按相反顺序撤销缓存写入与已保存记录
package workflow

import (
	"fmt"
	"strings"

	"go.temporal.io/sdk/workflow"
)

// CompensationStep 补偿步骤
type CompensationStep struct {
	Name string
	Fn   func(ctx workflow.Context) error
}

// SagaCompensation Saga 补偿管理器
type SagaCompensation struct {
	steps []CompensationStep
}

// NewSagaCompensation 创建新的 Saga 补偿管理器
func NewSagaCompensation() *SagaCompensation {
	return &SagaCompensation{
		steps: make([]CompensationStep, 0),
	}
}

// AddCompensation 添加补偿步骤 (LIFO 顺序)
func (s *SagaCompensation) AddCompensation(name string, fn func(ctx workflow.Context) error) {
	// 在头部插入，确保 LIFO 顺序执行
	s.steps = append([]CompensationStep{{Name: name, Fn: fn}}, s.steps...)
}

// Execute 执行所有补偿操作
// 单步失败不影响后续步骤，返回值汇总失败的步骤名
func (s *SagaCompensation) Execute(ctx workflow.Context) error {
	logger := workflow.GetLogger(ctx)

	// 工作流被取消时补偿仍需执行
	ctx, _ = workflow.NewDisconnectedContext(ctx)

	var failed []string
	for _, step := range s.steps {
		logger.Info("Executing compensation", "step", step.Name)

		if err := step.Fn(ctx); err != nil {
			logger.Error("Compensation failed",
				"step", step.Name,
				"error", err,
			)
			failed = append(failed, step.Name)
			// 记录补偿失败，通知人工介入
			_ = workflow.ExecuteActivity(ctx, "NotifyCompensationFailure", step.Name, err.Error()).Get(ctx, nil)
		} else {
			logger.Info("Compensation completed", "step", step.Name)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("compensation failed for steps: %s", strings.Join(failed, ", "))
	}
	return nil
}

// Len 返回补偿步骤数量
func (s *SagaCompensation) Len() int {
	return len(s.steps)
}

// Names 按执行顺序返回步骤名
func (s *SagaCompensation) Names() []string {
	names := make([]string, len(s.steps))
	for i, step := range s.steps {
		names[i] = step.Name
	}
	return names
}
