// 情景分析: 悲观 / 基准 / 乐观
package valuation

import "fmt"

// ScenarioParams 情景乘数
type ScenarioParams struct {
	Name string `json:"name" mapstructure:"name"`
	// GrowthMultiplier 作用于各阶段增长率与股息增长率
	GrowthMultiplier float64 `json:"growth_multiplier" mapstructure:"growth_multiplier"`
	// DiscountRateOffset 加到 WACC、股权成本与 DDM 折现率上的百分点
	DiscountRateOffset float64 `json:"discount_rate_offset" mapstructure:"discount_rate_offset"`
	// TerminalGrowthMultiplier 作用于永续增长率
	TerminalGrowthMultiplier float64 `json:"terminal_growth_multiplier" mapstructure:"terminal_growth_multiplier"`
	// MultipleMultiplier 作用于 P/E、EV/EBITDA、P/FCF 目标倍数
	MultipleMultiplier float64 `json:"multiple_multiplier" mapstructure:"multiple_multiplier"`
}

// DefaultScenarios 默认三种情景
func DefaultScenarios() []ScenarioParams {
	return []ScenarioParams{
		{Name: "bear", GrowthMultiplier: 0.5, DiscountRateOffset: 1.5, TerminalGrowthMultiplier: 0.8, MultipleMultiplier: 0.8},
		{Name: "base", GrowthMultiplier: 1, DiscountRateOffset: 0, TerminalGrowthMultiplier: 1, MultipleMultiplier: 1},
		{Name: "bull", GrowthMultiplier: 1.5, DiscountRateOffset: -1, TerminalGrowthMultiplier: 1.2, MultipleMultiplier: 1.2},
	}
}

// ScenarioResult 情景结果
type ScenarioResult struct {
	Name      string          `json:"name"`
	Consensus ConsensusResult `json:"consensus"`
}

// Apply 将情景乘数作用于假设
func (s ScenarioParams) Apply(f Fundamentals, a Assumptions) Assumptions {
	out := a
	out.DCF.Stages = make([]Stage, len(a.DCF.Stages))
	for i, st := range a.DCF.Stages {
		out.DCF.Stages[i] = Stage{Years: st.Years, Growth: st.Growth * s.GrowthMultiplier}
	}
	out.DCF.WACC = a.DCF.WACC + s.DiscountRateOffset
	out.DCF.TerminalGrowth = a.DCF.TerminalGrowth * s.TerminalGrowthMultiplier
	out.DividendGrowth = a.DividendGrowth * s.GrowthMultiplier

	// 股权成本与行业市盈率先固化，再施加偏移/乘数
	if ke := a.CostOfEquityFor(f); ke > 0 {
		out.CostOfEquity = ke + s.DiscountRateOffset
	}
	if r := a.DDMDiscountRate(f); r > 0 {
		out.DiscountRate = r + s.DiscountRateOffset
	}
	out.TargetPE = a.TargetPEFor(f) * s.MultipleMultiplier
	out.EVEBITDAMultiple = a.EVEBITDAMultiple * s.MultipleMultiplier
	out.PriceFCFMultiple = a.PriceFCFMultiple * s.MultipleMultiplier
	return out
}

// Scenarios 在每组情景下用相同权重重算完整共识
func Scenarios(f Fundamentals, a Assumptions, w WeightSet, scenarios []ScenarioParams) ([]ScenarioResult, error) {
	if err := ValidateRequest(f, a, w); err != nil {
		return nil, err
	}
	if len(scenarios) == 0 {
		scenarios = DefaultScenarios()
	}

	if err := ValidateScenarios(scenarios); err != nil {
		return nil, err
	}

	results := make([]ScenarioResult, 0, len(scenarios))
	for _, s := range scenarios {
		results = append(results, ScenarioResult{
			Name:      s.Name,
			Consensus: ConsensusOnly(f, s.Apply(f, a), w),
		})
	}
	return results, nil
}

// ValidateScenarios 情景必须命名
func ValidateScenarios(scenarios []ScenarioParams) error {
	for i, s := range scenarios {
		if s.Name == "" {
			return &InputError{Field: fmt.Sprintf("scenarios[%d].name", i), Reason: "must not be empty"}
		}
	}
	return nil
}
