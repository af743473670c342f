// 估值引擎
// (Fundamentals, Assumptions, WeightSet) 的纯函数，无隐藏状态，输入变化即完整重算
package valuation

import "fmt"

// ModelResult 单模型结果
type ModelResult struct {
	Model       ModelName          `json:"model"`
	Value       Estimate           `json:"value"`
	Weight      float64            `json:"weight"`
	Diagnostics map[string]float64 `json:"diagnostics,omitempty"`
}

// Valuation 完整估值输出
type Valuation struct {
	Ticker        string              `json:"ticker"`
	MarketPrice   float64             `json:"market_price"`
	Models        []ModelResult       `json:"models"`
	Consensus     ConsensusResult     `json:"consensus"`
	DCF           *DCFResult          `json:"dcf,omitempty"`
	ImpliedGrowth ImpliedGrowthResult `json:"implied_growth"`
	Piotroski     PiotroskiResult     `json:"piotroski"`
	Altman        AltmanResult        `json:"altman"`
	Ratios        FinancialRatios     `json:"ratios"`
	Advisories    []Advisory          `json:"advisories"`
}

// Model 按名称取模型结果
func (v *Valuation) Model(name ModelName) (ModelResult, bool) {
	for _, m := range v.Models {
		if m.Model == name {
			return m, true
		}
	}
	return ModelResult{}, false
}

// ValidateRequest 校验一次估值请求的三部分输入
func ValidateRequest(f Fundamentals, a Assumptions, w WeightSet) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("fundamentals: %w", err)
	}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("assumptions: %w", err)
	}
	if err := w.Validate(); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	return nil
}

// RunModels 运行七个单模型估值器
func RunModels(f Fundamentals, a Assumptions, w WeightSet) ([]ModelResult, *DCFResult) {
	results := make([]ModelResult, 0, len(Models))
	add := func(name ModelName, value Estimate, diag map[string]float64) {
		results = append(results, ModelResult{Model: name, Value: value, Weight: w[name], Diagnostics: diag})
	}

	var dcfDetail *DCFResult
	if res, ok := DiscountedCashFlow(a.DCFInputFor(f)); ok {
		dcfDetail = &res
		add(ModelDCF, Some(res.PerShare), map[string]float64{
			"enterprise_value": res.EnterpriseValue,
			"equity_value":     res.EquityValue,
			"pv_terminal":      res.PVTerminal,
		})
	} else {
		add(ModelDCF, None(), nil)
	}

	add(ModelGraham, GrahamNumber(f.EPS, f.BookValue), nil)

	pe := a.TargetPEFor(f)
	add(ModelPE, PriceEarnings(f.EPS, pe), map[string]float64{"target_pe": pe})

	add(ModelEVEBITDA, EVToEBITDA(f.EBITDA, a.EVEBITDAMultiple, f.TotalDebt, f.Cash, f.SharesOutstanding),
		map[string]float64{"multiple": a.EVEBITDAMultiple})

	ddmRate := a.DDMDiscountRate(f)
	add(ModelDDM, DividendDiscount(f.AnnualDividend, a.DividendGrowth, ddmRate),
		map[string]float64{"discount_rate": ddmRate, "growth": a.DividendGrowth})

	ke := a.CostOfEquityFor(f)
	if res, ok := ResidualIncome(ResidualIncomeInput{
		BookValue:    f.BookValue,
		EPS:          f.EPS,
		ROE:          a.ResidualIncome.ROE,
		CostOfEquity: ke,
		Years:        a.ResidualIncome.Years,
		PayoutRatio:  a.ResidualIncome.PayoutRatio,
	}); ok {
		add(ModelRIM, Some(res.Value), map[string]float64{
			"cost_of_equity": ke,
			"roe":            res.ROE,
			"pv_residual":    res.PVResidual,
			"pv_terminal":    res.PVTerminal,
		})
	} else {
		add(ModelRIM, None(), map[string]float64{"cost_of_equity": ke})
	}

	add(ModelPFCF, PriceToFCF(f.FCF, a.PriceFCFMultiple, f.SharesOutstanding),
		map[string]float64{"multiple": a.PriceFCFMultiple})

	return results, dcfDetail
}

func weighted(models []ModelResult) []WeightedValue {
	entries := make([]WeightedValue, len(models))
	for i, m := range models {
		entries[i] = WeightedValue{Model: m.Model, Value: m.Value, Weight: m.Weight}
	}
	return entries
}

// Evaluate 完整估值: 单模型 → 共识 → 一致性 → 反向 DCF → 质量评分 → 比率 → 预警
// 仅在调用方契约错误时返回 error，业务上不可用的模型以 None 表示
func Evaluate(f Fundamentals, a Assumptions, w WeightSet) (*Valuation, error) {
	if err := ValidateRequest(f, a, w); err != nil {
		return nil, err
	}

	models, dcfDetail := RunModels(f, a, w)
	v := &Valuation{
		Ticker:        f.Ticker,
		MarketPrice:   f.MarketPrice,
		Models:        models,
		Consensus:     Consensus(weighted(models), f.MarketPrice),
		DCF:           dcfDetail,
		ImpliedGrowth: ImpliedGrowth(a.DCFInputFor(f), f.MarketPrice),
		Piotroski:     Piotroski(f),
		Altman:        Altman(f),
		Ratios:        Ratios(f, a),
	}
	v.Advisories = Advise(a, v)
	return v, nil
}

// ConsensusOnly 只计算共识 (情景重算使用)
func ConsensusOnly(f Fundamentals, a Assumptions, w WeightSet) ConsensusResult {
	models, _ := RunModels(f, a, w)
	return Consensus(weighted(models), f.MarketPrice)
}

// MonteCarloInputFor 以折算后的单阶段假设作为模拟基准
func MonteCarloInputFor(f Fundamentals, a Assumptions, p MonteCarloParams) MonteCarloInput {
	return MonteCarloInput{Base: a.SingleStageFor(f), Params: p}
}

// SensitivityInputFor 以折算后的单阶段假设作为矩阵基准
func SensitivityInputFor(f Fundamentals, a Assumptions, axes SensitivityAxes) SensitivityInput {
	return SensitivityInput{Base: a.SingleStageFor(f), Axes: axes, MarketPrice: f.MarketPrice}
}
