// 模型一致性评分
package valuation

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ConfidenceLabel 一致性等级
type ConfidenceLabel string

const (
	ConfidenceInsufficient ConfidenceLabel = "insufficient"
	ConfidenceLow          ConfidenceLabel = "low"
	ConfidenceMedium       ConfidenceLabel = "medium"
	ConfidenceHigh         ConfidenceLabel = "high"
)

// ConfidenceResult 一致性结果
type ConfidenceResult struct {
	Score                     int             `json:"score"`
	CoefficientOfVariationPct Estimate        `json:"coefficient_of_variation_pct"`
	Label                     ConfidenceLabel `json:"label"`
}

// Confidence 基于变异系数的模型一致性评分
// 这是离散度启发式指标，不是统计意义上的置信区间:
// CV% = 总体标准差 / 均值 × 100，score = round((1 - CV/100) × 10)，截断到 [0, 10]
func Confidence(values []Estimate) ConfidenceResult {
	active := make([]float64, 0, len(values))
	for _, v := range values {
		if v.Positive() {
			x, _ := v.Get()
			active = append(active, x)
		}
	}
	if len(active) < 2 {
		return ConfidenceResult{
			Score:                     0,
			CoefficientOfVariationPct: None(),
			Label:                     ConfidenceInsufficient,
		}
	}

	mean, std := stat.PopMeanStdDev(active, nil)
	cv := std / mean * 100

	score := int(math.Round((1 - cv/100) * 10))
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}

	return ConfidenceResult{
		Score:                     score,
		CoefficientOfVariationPct: Some(cv),
		Label:                     labelFor(score),
	}
}

func labelFor(score int) ConfidenceLabel {
	switch {
	case score >= 7:
		return ConfidenceHigh
	case score >= 4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
