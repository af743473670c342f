// 质量与风险评分: Piotroski F-Score、Altman Z-Score、财务比率
package valuation

// 股本增幅不超过 2% 视为未稀释
const maxDilutionRatio = 1.02

// PiotroskiCheck 单项检查
type PiotroskiCheck struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Available bool   `json:"available"`
}

// PiotroskiResult F-Score 结果 (0-9)
type PiotroskiResult struct {
	Score  int              `json:"score"`
	Checks []PiotroskiCheck `json:"checks"`
}

func ratio(num, den float64) (float64, bool) {
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

// Piotroski 九项同比检查，缺少上期数据的检查记为未通过
func Piotroski(f Fundamentals) PiotroskiResult {
	prior := f.Prior
	hasPrior := prior != nil

	roaCurr, okRoaCurr := ratio(f.NetIncome, f.TotalAssets)
	var checks []PiotroskiCheck
	add := func(name string, available, passed bool) {
		checks = append(checks, PiotroskiCheck{Name: name, Available: available, Passed: available && passed})
	}

	add("roa_positive", okRoaCurr, roaCurr > 0)
	add("operating_cash_flow_positive", true, f.OperatingCashFlow > 0)

	if hasPrior {
		roaPrev, okRoaPrev := ratio(prior.NetIncome, prior.TotalAssets)
		add("roa_improved", okRoaCurr && okRoaPrev, roaCurr > roaPrev)
	} else {
		add("roa_improved", false, false)
	}

	add("accruals_quality", true, f.OperatingCashFlow > f.NetIncome)

	if hasPrior {
		levCurr, ok1 := ratio(f.TotalDebt, f.TotalAssets)
		levPrev, ok2 := ratio(prior.TotalDebt, prior.TotalAssets)
		add("leverage_decreased", ok1 && ok2, levCurr < levPrev)

		crCurr, ok1 := ratio(f.CurrentAssets, f.CurrentLiabilities)
		crPrev, ok2 := ratio(prior.CurrentAssets, prior.CurrentLiabilities)
		add("current_ratio_improved", ok1 && ok2, crCurr > crPrev)

		add("no_dilution", f.SharesOutstanding > 0 && prior.SharesOutstanding > 0,
			f.SharesOutstanding <= prior.SharesOutstanding*maxDilutionRatio)

		gmCurr, ok1 := ratio(f.GrossProfit, f.Revenue)
		gmPrev, ok2 := ratio(prior.GrossProfit, prior.Revenue)
		add("gross_margin_improved", ok1 && ok2 && f.GrossProfit != 0 && prior.GrossProfit != 0, gmCurr > gmPrev)

		atCurr, ok1 := ratio(f.Revenue, f.TotalAssets)
		atPrev, ok2 := ratio(prior.Revenue, prior.TotalAssets)
		add("asset_turnover_improved", ok1 && ok2, atCurr > atPrev)
	} else {
		for _, name := range []string{
			"leverage_decreased", "current_ratio_improved", "no_dilution",
			"gross_margin_improved", "asset_turnover_improved",
		} {
			add(name, false, false)
		}
	}

	res := PiotroskiResult{Checks: checks}
	for _, c := range checks {
		if c.Passed {
			res.Score++
		}
	}
	return res
}

// AltmanZone Z-Score 区间
type AltmanZone string

const (
	ZoneSafe     AltmanZone = "safe"
	ZoneGrey     AltmanZone = "grey"
	ZoneDistress AltmanZone = "distress"
)

// AltmanResult Z-Score 结果
type AltmanResult struct {
	Z    Estimate   `json:"z"`
	Zone AltmanZone `json:"zone,omitempty"`
}

// ClassifyZ Z > 2.99 安全，1.8 < Z <= 2.99 灰色，Z <= 1.8 困境
func ClassifyZ(z float64) AltmanZone {
	switch {
	case z > 2.99:
		return ZoneSafe
	case z > 1.8:
		return ZoneGrey
	default:
		return ZoneDistress
	}
}

// Altman Z = 1.2·WC/TA + 1.4·RE/TA + 3.3·EBIT/TA + 0.6·MarketCap/TL + 1.0·Revenue/TA
func Altman(f Fundamentals) AltmanResult {
	ta := f.TotalAssets
	if ta <= 0 {
		return AltmanResult{Z: None()}
	}
	wc := f.CurrentAssets - f.CurrentLiabilities
	d := 0.0
	if f.TotalLiabilities > 0 {
		d = f.MarketCap() / f.TotalLiabilities
	}
	z := 1.2*(wc/ta) + 1.4*(f.RetainedEarnings/ta) + 3.3*(f.OperatingIncome/ta) + 0.6*d + 1.0*(f.Revenue/ta)
	return AltmanResult{Z: Some(z), Zone: ClassifyZ(z)}
}

// FinancialRatios 资本回报与偿债比率
type FinancialRatios struct {
	ROIC             Estimate `json:"roic"`
	InterestCoverage Estimate `json:"interest_coverage"`
	NetDebtToEBITDA  Estimate `json:"net_debt_to_ebitda"`
}

// Ratios ROIC (百分数) = EBIT × (1 - 税率) / (负债 + 市值)
func Ratios(f Fundamentals, a Assumptions) FinancialRatios {
	r := FinancialRatios{ROIC: None(), InterestCoverage: None(), NetDebtToEBITDA: None()}

	if invested := f.TotalDebt + f.MarketCap(); invested > 0 && f.OperatingIncome != 0 {
		nopat := f.OperatingIncome * (1 - a.TaxRate/100)
		r.ROIC = Some(nopat / invested * 100)
	}
	if f.InterestExpense > 0 {
		r.InterestCoverage = Some(f.OperatingIncome / f.InterestExpense)
	}
	if ebitda := f.EBITDAOrProxy(); ebitda > 0 {
		r.NetDebtToEBITDA = Some(f.NetDebt() / ebitda)
	}
	return r
}
