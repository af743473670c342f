// 多阶段现金流折现 (DCF)
package valuation

import "math"

// DCFInput DCF 输入，比率为百分数
type DCFInput struct {
	FCF            float64 `json:"fcf"`
	Shares         float64 `json:"shares"`
	NetDebt        float64 `json:"net_debt"`
	Stages         []Stage `json:"stages"`
	WACC           float64 `json:"wacc"`
	TerminalGrowth float64 `json:"terminal_growth"`
}

// ProjectionYear 单年预测
type ProjectionYear struct {
	Year           int     `json:"year"`
	Stage          int     `json:"stage"`
	CashFlow       float64 `json:"cash_flow"`
	DiscountFactor float64 `json:"discount_factor"`
	PresentValue   float64 `json:"present_value"`
}

// DCFResult DCF 结果
type DCFResult struct {
	PerShare        float64          `json:"per_share"`
	EnterpriseValue float64          `json:"enterprise_value"`
	EquityValue     float64          `json:"equity_value"`
	PVCashFlows     float64          `json:"pv_cash_flows"`
	TerminalValue   float64          `json:"terminal_value"`
	PVTerminal      float64          `json:"pv_terminal"`
	Projection      []ProjectionYear `json:"projection"`
}

// SingleStage 单阶段 DCF 输入
func SingleStage(fcf, shares, netDebt, growth, wacc, terminalGrowth float64, years int) DCFInput {
	return DCFInput{
		FCF:            fcf,
		Shares:         shares,
		NetDebt:        netDebt,
		Stages:         []Stage{{Years: years, Growth: growth}},
		WACC:           wacc,
		TerminalGrowth: terminalGrowth,
	}
}

// Years 预测总年数
func (in DCFInput) Years() int {
	total := 0
	for _, s := range in.Stages {
		total += s.Years
	}
	return total
}

// DiscountedCashFlow 多阶段 DCF
// 前置条件不满足 (fcf、shares 非正，wacc <= 永续增长率) 时返回 false
func DiscountedCashFlow(in DCFInput) (DCFResult, bool) {
	if in.FCF <= 0 || in.Shares <= 0 {
		return DCFResult{}, false
	}
	if in.WACC <= in.TerminalGrowth || in.WACC <= -100 {
		return DCFResult{}, false
	}

	wacc := in.WACC / 100
	terminalGrowth := in.TerminalGrowth / 100

	result := DCFResult{Projection: make([]ProjectionYear, 0, in.Years())}
	cashFlow := in.FCF
	discount := 1.0
	t := 0
	for i, stage := range in.Stages {
		if stage.Years < 0 {
			return DCFResult{}, false
		}
		growth := stage.Growth / 100
		for y := 0; y < stage.Years; y++ {
			t++
			cashFlow *= 1 + growth
			discount /= 1 + wacc
			pv := cashFlow * discount
			result.PVCashFlows += pv
			result.Projection = append(result.Projection, ProjectionYear{
				Year:           t,
				Stage:          i + 1,
				CashFlow:       cashFlow,
				DiscountFactor: discount,
				PresentValue:   pv,
			})
		}
	}

	result.TerminalValue = cashFlow * (1 + terminalGrowth) / (wacc - terminalGrowth)
	result.PVTerminal = result.TerminalValue * discount
	result.EnterpriseValue = result.PVCashFlows + result.PVTerminal
	result.EquityValue = result.EnterpriseValue - in.NetDebt
	result.PerShare = result.EquityValue / in.Shares

	if math.IsNaN(result.PerShare) || math.IsInf(result.PerShare, 0) {
		return DCFResult{}, false
	}
	return result, true
}

// DCFValue 仅返回每股价值
func DCFValue(in DCFInput) Estimate {
	res, ok := DiscountedCashFlow(in)
	if !ok {
		return None()
	}
	return Some(res.PerShare)
}
