// 基本面输入模型
package valuation

import (
	"fmt"
	"math"

	apperrors "github.com/biovalue-ai/fairvalue/pkg/errors"
)

// Fundamentals 基本面快照 (不可变)
// EPS、BookValue、AnnualDividend、MarketPrice 为每股数值，其余为公司总额
type Fundamentals struct {
	Ticker             string       `json:"ticker"`
	Sector             string       `json:"sector,omitempty"`
	FCF                float64      `json:"fcf"`
	EPS                float64      `json:"eps"`
	BookValue          float64      `json:"book_value"`
	EBITDA             float64      `json:"ebitda"`
	TotalDebt          float64      `json:"total_debt"`
	Cash               float64      `json:"cash"`
	AnnualDividend     float64      `json:"annual_dividend"`
	SharesOutstanding  float64      `json:"shares_outstanding"`
	MarketPrice        float64      `json:"market_price"`
	Beta               float64      `json:"beta"`
	Revenue            float64      `json:"revenue"`
	GrossProfit        float64      `json:"gross_profit"`
	TotalAssets        float64      `json:"total_assets"`
	TotalLiabilities   float64      `json:"total_liabilities"`
	CurrentAssets      float64      `json:"current_assets"`
	CurrentLiabilities float64      `json:"current_liabilities"`
	RetainedEarnings   float64      `json:"retained_earnings"`
	OperatingIncome    float64      `json:"operating_income"`
	InterestExpense    float64      `json:"interest_expense"`
	OperatingCashFlow  float64      `json:"operating_cash_flow"`
	NetIncome          float64      `json:"net_income"`
	Prior              *PriorPeriod `json:"prior,omitempty"`
}

// PriorPeriod 上一会计期间数据 (Piotroski 同比检查)
type PriorPeriod struct {
	EPS                float64 `json:"eps"`
	Revenue            float64 `json:"revenue"`
	GrossProfit        float64 `json:"gross_profit"`
	TotalAssets        float64 `json:"total_assets"`
	TotalDebt          float64 `json:"total_debt"`
	CurrentAssets      float64 `json:"current_assets"`
	CurrentLiabilities float64 `json:"current_liabilities"`
	NetIncome          float64 `json:"net_income"`
	SharesOutstanding  float64 `json:"shares_outstanding"`
}

// InputError 调用方契约错误
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// NetDebt 净负债 (负值表示净现金)
func (f Fundamentals) NetDebt() float64 {
	return f.TotalDebt - f.Cash
}

// MarketCap 市值
func (f Fundamentals) MarketCap() float64 {
	return f.MarketPrice * f.SharesOutstanding
}

// FCFPerShare 每股自由现金流
func (f Fundamentals) FCFPerShare() float64 {
	if f.SharesOutstanding <= 0 {
		return 0
	}
	return f.FCF / f.SharesOutstanding
}

// EBITDAOrProxy 缺失 EBITDA 时用 营业利润 + (经营现金流 - 净利润) 近似
func (f Fundamentals) EBITDAOrProxy() float64 {
	if f.EBITDA != 0 {
		return f.EBITDA
	}
	return f.OperatingIncome + (f.OperatingCashFlow - f.NetIncome)
}

// Validate 校验调用方契约，业务上缺失的数据不在此报错
func (f Fundamentals) Validate() error {
	fields := []struct {
		name        string
		value       float64
		nonNegative bool
	}{
		{"fcf", f.FCF, false},
		{"eps", f.EPS, false},
		{"book_value", f.BookValue, false},
		{"ebitda", f.EBITDA, false},
		{"total_debt", f.TotalDebt, true},
		{"cash", f.Cash, true},
		{"annual_dividend", f.AnnualDividend, true},
		{"shares_outstanding", f.SharesOutstanding, true},
		{"market_price", f.MarketPrice, true},
		{"beta", f.Beta, false},
		{"revenue", f.Revenue, false},
		{"gross_profit", f.GrossProfit, false},
		{"total_assets", f.TotalAssets, true},
		{"total_liabilities", f.TotalLiabilities, true},
		{"current_assets", f.CurrentAssets, true},
		{"current_liabilities", f.CurrentLiabilities, true},
		{"retained_earnings", f.RetainedEarnings, false},
		{"operating_income", f.OperatingIncome, false},
		{"interest_expense", f.InterestExpense, false},
		{"operating_cash_flow", f.OperatingCashFlow, false},
		{"net_income", f.NetIncome, false},
	}
	if f.Prior != nil {
		p := f.Prior
		fields = append(fields, []struct {
			name        string
			value       float64
			nonNegative bool
		}{
			{"prior.eps", p.EPS, false},
			{"prior.revenue", p.Revenue, false},
			{"prior.gross_profit", p.GrossProfit, false},
			{"prior.total_assets", p.TotalAssets, true},
			{"prior.total_debt", p.TotalDebt, true},
			{"prior.current_assets", p.CurrentAssets, true},
			{"prior.current_liabilities", p.CurrentLiabilities, true},
			{"prior.net_income", p.NetIncome, false},
			{"prior.shares_outstanding", p.SharesOutstanding, true},
		}...)
	}

	for _, fld := range fields {
		if math.IsNaN(fld.value) || math.IsInf(fld.value, 0) {
			return &InputError{Field: fld.name, Reason: "must be a finite number"}
		}
		if fld.nonNegative && fld.value < 0 {
			return &InputError{Field: fld.name, Reason: "must not be negative"}
		}
	}
	return nil
}
