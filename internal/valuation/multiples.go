// 倍数类与简单公式模型
package valuation

import "math"

// GrahamNumber sqrt(22.5 × EPS × 每股净资产)，EPS 与净资产须为正
func GrahamNumber(eps, bookValuePerShare float64) Estimate {
	if eps <= 0 || bookValuePerShare <= 0 {
		return None()
	}
	return Some(math.Sqrt(22.5 * eps * bookValuePerShare))
}

// PriceEarnings EPS × 目标市盈率
func PriceEarnings(eps, targetPE float64) Estimate {
	if eps <= 0 || targetPE <= 0 {
		return None()
	}
	return Some(eps * targetPE)
}

// EVToEBITDA (EBITDA × 倍数 - 负债 + 现金) / 股本
func EVToEBITDA(ebitda, multiple, totalDebt, cash, shares float64) Estimate {
	if ebitda <= 0 || multiple <= 0 || shares <= 0 {
		return None()
	}
	return Some((ebitda*multiple - totalDebt + cash) / shares)
}

// PriceToFCF (FCF × 目标倍数) / 股本
func PriceToFCF(fcf, multiple, shares float64) Estimate {
	if fcf <= 0 || multiple <= 0 || shares <= 0 {
		return None()
	}
	return Some(fcf * multiple / shares)
}

// DividendDiscount 戈登增长模型 D × (1 + g) / (r - g)
func DividendDiscount(annualDividend, growth, discountRate float64) Estimate {
	if annualDividend <= 0 || discountRate <= 0 || discountRate <= growth {
		return None()
	}
	g := growth / 100
	r := discountRate / 100
	return Some(annualDividend * (1 + g) / (r - g))
}
