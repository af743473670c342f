// 估值假设与模型权重
package valuation

import (
	"fmt"
	"math"
	"sort"
)

// ModelName 估值模型名称
type ModelName string

const (
	ModelDCF      ModelName = "dcf"
	ModelGraham   ModelName = "graham"
	ModelPE       ModelName = "pe"
	ModelEVEBITDA ModelName = "ev_ebitda"
	ModelDDM      ModelName = "ddm"
	ModelRIM      ModelName = "rim"
	ModelPFCF     ModelName = "pfcf"
)

// Models 固定的模型顺序
var Models = []ModelName{ModelDCF, ModelGraham, ModelPE, ModelEVEBITDA, ModelDDM, ModelRIM, ModelPFCF}

// Known 是否为已知模型
func (m ModelName) Known() bool {
	for _, known := range Models {
		if m == known {
			return true
		}
	}
	return false
}

// WeightSet 模型权重 (0-100，不要求总和为 100，聚合时归一化)
type WeightSet map[ModelName]float64

// DefaultWeights 默认权重
func DefaultWeights() WeightSet {
	return WeightSet{
		ModelDCF:      30,
		ModelGraham:   10,
		ModelPE:       15,
		ModelEVEBITDA: 15,
		ModelDDM:      10,
		ModelRIM:      10,
		ModelPFCF:     10,
	}
}

// Validate 校验权重
func (w WeightSet) Validate() error {
	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, string(name))
	}
	sort.Strings(names)

	for _, name := range names {
		model := ModelName(name)
		weight := w[model]
		if !model.Known() {
			return &InputError{Field: "weights." + name, Reason: "unknown model"}
		}
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			return &InputError{Field: "weights." + name, Reason: "must be a finite number"}
		}
		if weight < 0 || weight > 100 {
			return &InputError{Field: "weights." + name, Reason: fmt.Sprintf("must be within [0, 100], got %g", weight)}
		}
	}
	return nil
}

// Stage 现金流预测阶段
type Stage struct {
	Years  int     `json:"years" mapstructure:"years"`
	Growth float64 `json:"growth" mapstructure:"growth"`
}

// DCFAssumptions DCF 假设 (百分比)
type DCFAssumptions struct {
	WACC           float64 `json:"wacc" mapstructure:"wacc"`
	TerminalGrowth float64 `json:"terminal_growth" mapstructure:"terminal_growth"`
	Stages         []Stage `json:"stages" mapstructure:"stages"`
}

// ResidualIncomeAssumptions 剩余收益模型假设
type ResidualIncomeAssumptions struct {
	Years       int     `json:"years" mapstructure:"years"`
	PayoutRatio float64 `json:"payout_ratio" mapstructure:"payout_ratio"`
	// ROE 为 0 时按 EPS / BookValue 推算
	ROE float64 `json:"roe" mapstructure:"roe"`
}

// Assumptions 用户估值假设，比率均为百分数 (10 = 10%)
type Assumptions struct {
	DCF              DCFAssumptions `json:"dcf" mapstructure:"dcf"`
	TargetPE         float64        `json:"target_pe" mapstructure:"target_pe"`
	EVEBITDAMultiple float64        `json:"ev_ebitda_multiple" mapstructure:"ev_ebitda_multiple"`
	PriceFCFMultiple float64        `json:"price_fcf_multiple" mapstructure:"price_fcf_multiple"`
	DividendGrowth   float64        `json:"dividend_growth" mapstructure:"dividend_growth"`
	// DiscountRate DDM 折现率，为 0 时使用股权成本
	DiscountRate float64 `json:"discount_rate" mapstructure:"discount_rate"`
	// CostOfEquity 为 0 时按 CAPM 推算
	CostOfEquity      float64                   `json:"cost_of_equity" mapstructure:"cost_of_equity"`
	RiskFreeRate      float64                   `json:"risk_free_rate" mapstructure:"risk_free_rate"`
	EquityRiskPremium float64                   `json:"equity_risk_premium" mapstructure:"equity_risk_premium"`
	ResidualIncome    ResidualIncomeAssumptions `json:"residual_income" mapstructure:"residual_income"`
	TaxRate           float64                   `json:"tax_rate" mapstructure:"tax_rate"`
}

// DefaultAssumptions 默认假设
func DefaultAssumptions() Assumptions {
	return Assumptions{
		DCF: DCFAssumptions{
			WACC:           8.5,
			TerminalGrowth: 2.5,
			Stages: []Stage{
				{Years: 5, Growth: 15},
				{Years: 5, Growth: 8},
			},
		},
		EVEBITDAMultiple:  12,
		PriceFCFMultiple:  20,
		DividendGrowth:    4,
		RiskFreeRate:      4.5,
		EquityRiskPremium: 5.5,
		ResidualIncome: ResidualIncomeAssumptions{
			Years:       5,
			PayoutRatio: 30,
		},
		TaxRate: 20,
	}
}

// Validate 校验假设中的契约错误
func (a Assumptions) Validate() error {
	values := map[string]float64{
		"dcf.wacc":            a.DCF.WACC,
		"dcf.terminal_growth": a.DCF.TerminalGrowth,
		"target_pe":           a.TargetPE,
		"ev_ebitda_multiple":  a.EVEBITDAMultiple,
		"price_fcf_multiple":  a.PriceFCFMultiple,
		"dividend_growth":     a.DividendGrowth,
		"discount_rate":       a.DiscountRate,
		"cost_of_equity":      a.CostOfEquity,
		"risk_free_rate":      a.RiskFreeRate,
		"equity_risk_premium": a.EquityRiskPremium,
		"residual_income.roe": a.ResidualIncome.ROE,
		"tax_rate":            a.TaxRate,
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if v := values[name]; math.IsNaN(v) || math.IsInf(v, 0) {
			return &InputError{Field: name, Reason: "must be a finite number"}
		}
	}

	for i, s := range a.DCF.Stages {
		if s.Years < 0 {
			return &InputError{Field: fmt.Sprintf("dcf.stages[%d].years", i), Reason: "must not be negative"}
		}
		if math.IsNaN(s.Growth) || math.IsInf(s.Growth, 0) {
			return &InputError{Field: fmt.Sprintf("dcf.stages[%d].growth", i), Reason: "must be a finite number"}
		}
	}
	if a.ResidualIncome.Years < 0 {
		return &InputError{Field: "residual_income.years", Reason: "must not be negative"}
	}
	if a.ResidualIncome.PayoutRatio < 0 || a.ResidualIncome.PayoutRatio > 100 {
		return &InputError{Field: "residual_income.payout_ratio", Reason: "must be within [0, 100]"}
	}
	return nil
}

// CostOfEquityFor 股权成本: 显式值优先，否则 CAPM (rf + beta × ERP)
func (a Assumptions) CostOfEquityFor(f Fundamentals) float64 {
	if a.CostOfEquity > 0 {
		return a.CostOfEquity
	}
	if f.Beta > 0 && a.RiskFreeRate+a.EquityRiskPremium > 0 {
		return a.RiskFreeRate + f.Beta*a.EquityRiskPremium
	}
	return 0
}

// DDMDiscountRate DDM 折现率
func (a Assumptions) DDMDiscountRate(f Fundamentals) float64 {
	if a.DiscountRate > 0 {
		return a.DiscountRate
	}
	return a.CostOfEquityFor(f)
}

// TargetPEFor 目标市盈率: 显式值优先，否则取行业默认
func (a Assumptions) TargetPEFor(f Fundamentals) float64 {
	if a.TargetPE > 0 {
		return a.TargetPE
	}
	return SectorPE(f.Sector)
}

// DCFInputFor 根据假设构建多阶段 DCF 输入
func (a Assumptions) DCFInputFor(f Fundamentals) DCFInput {
	stages := make([]Stage, len(a.DCF.Stages))
	copy(stages, a.DCF.Stages)
	return DCFInput{
		FCF:            f.FCF,
		Shares:         f.SharesOutstanding,
		NetDebt:        f.NetDebt(),
		Stages:         stages,
		WACC:           a.DCF.WACC,
		TerminalGrowth: a.DCF.TerminalGrowth,
	}
}

// SingleStageFor 将多阶段假设折算为单阶段: 期限为各阶段年数之和，增长率按年数加权
func (a Assumptions) SingleStageFor(f Fundamentals) DCFInput {
	years := 0
	weighted := 0.0
	for _, s := range a.DCF.Stages {
		years += s.Years
		weighted += s.Growth * float64(s.Years)
	}
	growth := 0.0
	if years > 0 {
		growth = weighted / float64(years)
	}
	in := a.DCFInputFor(f)
	in.Stages = []Stage{{Years: years, Growth: growth}}
	return in
}

var sectorPE = map[string]float64{
	"Technology":             22.0,
	"Healthcare":             18.0,
	"Financial Services":     10.0,
	"Consumer Cyclical":      16.0,
	"Consumer Defensive":     20.0,
	"Energy":                 12.0,
	"Industrials":            13.0,
	"Materials":              12.0,
	"Real Estate":            14.0,
	"Utilities":              16.0,
	"Communication Services": 18.0,
}

// SectorPE 行业默认市盈率
func SectorPE(sector string) float64 {
	if pe, ok := sectorPE[sector]; ok {
		return pe
	}
	return 18.0
}
