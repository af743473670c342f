// Activity 类型定义
package activity

import (
	"github.com/biovalue-ai/fairvalue/internal/valuation"
)

// EngineRequest 估值请求的公共部分
type EngineRequest struct {
	Fundamentals valuation.Fundamentals `json:"fundamentals"`
	// Assumptions 为空时使用配置的默认假设
	Assumptions *valuation.Assumptions `json:"assumptions,omitempty"`
	// Weights 按模型覆盖默认权重
	Weights valuation.WeightSet `json:"weights,omitempty"`
}

// ============== Valuation ==============

// ValuationInput 完整估值输入
type ValuationInput struct {
	EngineRequest
}

// ============== Monte Carlo ==============

// MonteCarloInput 蒙特卡洛输入，零值沿用默认参数
type MonteCarloInput struct {
	EngineRequest
	Iterations     int   `json:"iterations,omitempty"`
	Seed           int64 `json:"seed,omitempty"`
	IncludeSamples bool  `json:"include_samples,omitempty"`
}

// ============== Sensitivity ==============

// SensitivityInput 敏感性矩阵输入
type SensitivityInput struct {
	EngineRequest
	Axes *valuation.SensitivityAxes `json:"axes,omitempty"`
}

// ============== Scenarios ==============

// ScenarioInput 情景分析输入
type ScenarioInput struct {
	EngineRequest
	Scenarios []valuation.ScenarioParams `json:"scenarios,omitempty"`
}

// ============== Saved valuations ==============

// SaveValuationInput 保存估值输入
type SaveValuationInput struct {
	EngineRequest
	Label  string               `json:"label,omitempty"`
	Result *valuation.Valuation `json:"result,omitempty"`
}
