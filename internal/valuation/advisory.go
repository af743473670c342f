// 风险预警: 结构化诊断，呈现交给调用方
package valuation

import "fmt"

// Severity 预警级别
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// AdvisoryKind 预警类型
type AdvisoryKind string

const (
	KindTerminalGrowthAboveWACC AdvisoryKind = "terminal_growth_above_wacc"
	KindStageGrowthAboveWACC    AdvisoryKind = "stage_growth_above_wacc"
	KindAggressiveGrowth        AdvisoryKind = "aggressive_growth"
	KindWeakAccounting          AdvisoryKind = "weak_accounting_quality"
	KindStrongAccounting        AdvisoryKind = "strong_accounting_quality"
	KindDistress                AdvisoryKind = "bankruptcy_risk"
	KindValueDestruction        AdvisoryKind = "value_destruction"
	KindExcessLeverage          AdvisoryKind = "excess_leverage"
	KindEuphoricMarket          AdvisoryKind = "euphoric_market"
)

const (
	aggressiveGrowthPct    = 25.0
	weakFScore             = 4
	strongFScore           = 7
	distressZ              = 1.8
	maxNetDebtToEBITDA     = 4.0
	euphoricGrowthMultiple = 1.5
)

// Advisory 预警
type Advisory struct {
	Kind     AdvisoryKind `json:"kind"`
	Message  string       `json:"message"`
	Severity Severity     `json:"severity"`
}

// Advise 根据假设与估值结果生成预警
func Advise(a Assumptions, v *Valuation) []Advisory {
	var out []Advisory
	add := func(kind AdvisoryKind, sev Severity, format string, args ...interface{}) {
		out = append(out, Advisory{Kind: kind, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	wacc := a.DCF.WACC
	if a.DCF.TerminalGrowth >= wacc {
		add(KindTerminalGrowthAboveWACC, SeverityDanger,
			"terminal growth %.2f%% is at or above WACC %.2f%%; the terminal value is undefined", a.DCF.TerminalGrowth, wacc)
	}
	for i, s := range a.DCF.Stages {
		if s.Years > 0 && s.Growth >= wacc {
			add(KindStageGrowthAboveWACC, SeverityWarning,
				"stage %d growth %.2f%% is at or above WACC %.2f%%; assumptions are unsustainable", i+1, s.Growth, wacc)
		}
	}
	if len(a.DCF.Stages) > 0 && a.DCF.Stages[0].Growth > aggressiveGrowthPct {
		add(KindAggressiveGrowth, SeverityWarning,
			"stage 1 growth of %.2f%% exceeds %.0f%%; few companies sustain this for %d years",
			a.DCF.Stages[0].Growth, aggressiveGrowthPct, a.DCF.Stages[0].Years)
	}

	switch score := v.Piotroski.Score; {
	case score < weakFScore:
		add(KindWeakAccounting, SeverityDanger, "Piotroski F-Score %d/9 signals weak accounting quality", score)
	case score >= strongFScore:
		add(KindStrongAccounting, SeveritySuccess, "Piotroski F-Score %d/9 signals strong accounting quality", score)
	}

	if z, ok := v.Altman.Z.Get(); ok && z <= distressZ {
		add(KindDistress, SeverityDanger, "Altman Z-Score %.2f is in the distress zone", z)
	}
	if roic, ok := v.Ratios.ROIC.Get(); ok && roic < wacc {
		add(KindValueDestruction, SeverityWarning,
			"ROIC %.2f%% is below the cost of capital %.2f%%", roic, wacc)
	}
	if lev, ok := v.Ratios.NetDebtToEBITDA.Get(); ok && lev > maxNetDebtToEBITDA {
		add(KindExcessLeverage, SeverityDanger, "net debt / EBITDA of %.1fx exceeds %.0fx", lev, maxNetDebtToEBITDA)
	}
	if g, ok := v.ImpliedGrowth.Growth.Get(); ok && len(a.DCF.Stages) > 0 {
		if own := a.DCF.Stages[0].Growth; own > 0 && g > own*euphoricGrowthMultiple {
			add(KindEuphoricMarket, SeverityWarning,
				"the market price implies %.2f%% growth, well above the %.2f%% assumed", g, own)
		}
	}
	return out
}
