// 剩余收益模型 (RIM)
package valuation

import "math"

// ResidualIncomeInput RIM 输入 (每股口径，比率为百分数)
type ResidualIncomeInput struct {
	BookValue    float64
	EPS          float64
	ROE          float64
	CostOfEquity float64
	Years        int
	PayoutRatio  float64
}

// ResidualIncomeResult RIM 结果
type ResidualIncomeResult struct {
	Value         float64
	PVResidual    float64
	TerminalValue float64
	PVTerminal    float64
	ROE           float64
}

// ResidualIncome 剩余收益估值
// RI_t = BV_{t-1} × (ROE - Ke)，账面价值按留存收益滚动，第 N 年 RI 按永续年金资本化
func ResidualIncome(in ResidualIncomeInput) (ResidualIncomeResult, bool) {
	if in.BookValue <= 0 || in.CostOfEquity <= 0 || in.Years <= 0 {
		return ResidualIncomeResult{}, false
	}
	roePct := in.ROE
	if roePct == 0 {
		if in.EPS == 0 {
			return ResidualIncomeResult{}, false
		}
		roePct = in.EPS / in.BookValue * 100
	}

	roe := roePct / 100
	ke := in.CostOfEquity / 100
	retention := 1 - in.PayoutRatio/100

	res := ResidualIncomeResult{ROE: roePct}
	book := in.BookValue
	lastRI := 0.0
	for t := 1; t <= in.Years; t++ {
		ri := book * (roe - ke)
		res.PVResidual += ri / math.Pow(1+ke, float64(t))
		book += book * roe * retention
		lastRI = ri
	}

	res.TerminalValue = lastRI / ke
	res.PVTerminal = res.TerminalValue / math.Pow(1+ke, float64(in.Years))
	res.Value = in.BookValue + res.PVResidual + res.PVTerminal

	if math.IsNaN(res.Value) || math.IsInf(res.Value, 0) {
		return ResidualIncomeResult{}, false
	}
	return res, true
}
