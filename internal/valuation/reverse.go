// 反向 DCF: 求市场价格隐含的增长率
package valuation

const (
	impliedGrowthLow        = -20.0
	impliedGrowthHigh       = 100.0
	impliedGrowthIterations = 20
)

// ImpliedGrowthResult 隐含增长率
type ImpliedGrowthResult struct {
	Growth Estimate `json:"growth"`
	// Bracketed 价格是否落在搜索区间对应的价值范围内，否则结果贴近边界
	Bracketed  bool `json:"bracketed"`
	Iterations int  `json:"iterations"`
}

// ImpliedGrowth 二分法求第一阶段增长率 g，使 DCF(g) == price，其余参数不变
// DCF 在 fcf > 0 时对 g 单调递增 (终值分母 wacc - 永续增长率 与 g 无关)
func ImpliedGrowth(in DCFInput, price float64) ImpliedGrowthResult {
	if price <= 0 || len(in.Stages) == 0 || in.Stages[0].Years <= 0 {
		return ImpliedGrowthResult{Growth: None()}
	}

	valueAt := func(g float64) (float64, bool) {
		probe := in
		probe.Stages = make([]Stage, len(in.Stages))
		copy(probe.Stages, in.Stages)
		probe.Stages[0].Growth = g
		res, ok := DiscountedCashFlow(probe)
		return res.PerShare, ok
	}

	lowValue, okLow := valueAt(impliedGrowthLow)
	highValue, okHigh := valueAt(impliedGrowthHigh)
	if !okLow || !okHigh {
		return ImpliedGrowthResult{Growth: None()}
	}

	low, high := impliedGrowthLow, impliedGrowthHigh
	for i := 0; i < impliedGrowthIterations; i++ {
		mid := (low + high) / 2
		value, _ := valueAt(mid)
		if value > price {
			high = mid
		} else {
			low = mid
		}
	}

	return ImpliedGrowthResult{
		Growth:     Some((low + high) / 2),
		Bracketed:  lowValue <= price && price <= highValue,
		Iterations: impliedGrowthIterations,
	}
}
