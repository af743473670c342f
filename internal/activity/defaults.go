package activity

import (
	"time"

	"github.com/biovalue-ai/fairvalue/internal/valuation"
	"github.com/biovalue-ai/fairvalue/pkg/config"
)

// EngineDefaults 配置覆盖后的引擎默认值
type EngineDefaults struct {
	Assumptions valuation.Assumptions
	Weights     valuation.WeightSet
	MonteCarlo  valuation.MonteCarloParams
	Axes        valuation.SensitivityAxes
	Scenarios   []valuation.ScenarioParams
	CacheTTL    time.Duration
}

// NewEngineDefaults 以引擎内置默认值为底，叠加配置中的非零项
func NewEngineDefaults(cfg config.EngineConfig) EngineDefaults {
	d := EngineDefaults{
		Assumptions: valuation.DefaultAssumptions(),
		Weights:     valuation.DefaultWeights(),
		MonteCarlo:  valuation.DefaultMonteCarloParams(),
		Axes:        valuation.DefaultSensitivityAxes(),
		Scenarios:   valuation.DefaultScenarios(),
		CacheTTL:    cfg.CacheTTL,
	}

	ac := cfg.Assumptions
	a := &d.Assumptions
	setIfPositive(&a.DCF.WACC, ac.WACC)
	setIfPositive(&a.DCF.TerminalGrowth, ac.TerminalGrowth)
	setIfPositive(&a.EVEBITDAMultiple, ac.EVEBITDAMultiple)
	setIfPositive(&a.PriceFCFMultiple, ac.PriceFCFMultiple)
	setIfPositive(&a.DividendGrowth, ac.DividendGrowth)
	setIfPositive(&a.RiskFreeRate, ac.RiskFreeRate)
	setIfPositive(&a.EquityRiskPremium, ac.EquityRiskPremium)
	setIfPositive(&a.TaxRate, ac.TaxRate)
	if len(ac.Stages) > 0 {
		a.DCF.Stages = make([]valuation.Stage, len(ac.Stages))
		for i, s := range ac.Stages {
			a.DCF.Stages[i] = valuation.Stage{Years: s.Years, Growth: s.Growth}
		}
	}

	for name, w := range cfg.Weights {
		d.Weights[valuation.ModelName(name)] = w
	}

	if cfg.MonteCarlo.Iterations > 0 {
		d.MonteCarlo.Iterations = cfg.MonteCarlo.Iterations
	}
	if cfg.MonteCarlo.Seed != 0 {
		d.MonteCarlo.Seed = cfg.MonteCarlo.Seed
	}
	if cfg.MonteCarlo.Bins > 0 {
		d.MonteCarlo.Bins = cfg.MonteCarlo.Bins
	}

	if len(cfg.Sensitivity.WACC) > 0 && len(cfg.Sensitivity.Growth) > 0 {
		d.Axes = valuation.SensitivityAxes{WACC: cfg.Sensitivity.WACC, Growth: cfg.Sensitivity.Growth}
	}

	if len(cfg.Scenarios) > 0 {
		d.Scenarios = make([]valuation.ScenarioParams, len(cfg.Scenarios))
		for i, s := range cfg.Scenarios {
			d.Scenarios[i] = valuation.ScenarioParams{
				Name:                     s.Name,
				GrowthMultiplier:         s.GrowthMultiplier,
				DiscountRateOffset:       s.DiscountRateOffset,
				TerminalGrowthMultiplier: s.TerminalGrowthMultiplier,
				MultipleMultiplier:       s.MultipleMultiplier,
			}
		}
	}
	return d
}

func setIfPositive(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

// Resolve 合并请求与默认值
// 未给出假设时使用默认假设；权重按模型逐项覆盖默认权重，设为 0 即停用该模型
func (d EngineDefaults) Resolve(req EngineRequest) (valuation.Fundamentals, valuation.Assumptions, valuation.WeightSet) {
	a := d.Assumptions
	if req.Assumptions != nil {
		a = *req.Assumptions
	}
	stages := make([]valuation.Stage, len(a.DCF.Stages))
	copy(stages, a.DCF.Stages)
	a.DCF.Stages = stages

	w := make(valuation.WeightSet, len(d.Weights)+len(req.Weights))
	for name, weight := range d.Weights {
		w[name] = weight
	}
	for name, weight := range req.Weights {
		w[name] = weight
	}
	return req.Fundamentals, a, w
}
