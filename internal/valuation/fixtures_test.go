package valuation

// msftFundamentals 微软 FY 数据 (百万美元)
func msftFundamentals() Fundamentals {
	return Fundamentals{
		Ticker:             "MSFT",
		Sector:             "Technology",
		FCF:                68821,
		EPS:                11.11,
		BookValue:          27.75,
		EBITDA:             124650,
		TotalDebt:          79970,
		Cash:               143951,
		AnnualDividend:     3.00,
		SharesOutstanding:  7430,
		MarketPrice:        415.50,
		Beta:               1.15,
		Revenue:            227583,
		GrossProfit:        157334,
		TotalAssets:        411976,
		TotalLiabilities:   205753,
		CurrentAssets:      184257,
		CurrentLiabilities: 104149,
		RetainedEarnings:   90000,
		OperatingIncome:    104539,
		InterestExpense:    2063,
		OperatingCashFlow:  102647,
		NetIncome:          82536,
		Prior: &PriorPeriod{
			EPS:                9.68,
			Revenue:            211915,
			GrossProfit:        146052,
			TotalAssets:        364840,
			TotalDebt:          61270,
			CurrentAssets:      169684,
			CurrentLiabilities: 95082,
			NetIncome:          72738,
			SharesOutstanding:  7450,
		},
	}
}

func msftDCFInput() DCFInput {
	return DCFInput{
		FCF:     68821,
		Shares:  7430,
		NetDebt: -63981,
		Stages: []Stage{
			{Years: 5, Growth: 15},
			{Years: 5, Growth: 8},
		},
		WACC:           8.5,
		TerminalGrowth: 2.5,
	}
}
