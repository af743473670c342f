// WACC × 增长率 敏感性矩阵
package valuation

import (
	"fmt"
	"math"
)

// 安全边际在 ±10% 以内视为合理
const fairBandPct = 10.0

// MaxAxisPoints 单个坐标轴的最大点数
const MaxAxisPoints = 25

// CellClass 单元格分类
type CellClass string

const (
	CellUnavailable CellClass = "unavailable"
	CellUndervalued CellClass = "undervalued"
	CellFair        CellClass = "fair"
	CellOvervalued  CellClass = "overvalued"
	// CellUnpriced 有估值但缺少市价，无法分类
	CellUnpriced CellClass = "unpriced"
)

// SensitivityAxes 矩阵坐标 (百分数)
type SensitivityAxes struct {
	WACC   []float64 `json:"wacc" mapstructure:"wacc"`
	Growth []float64 `json:"growth" mapstructure:"growth"`
}

// Validate 坐标轴点数受限且必须为有限数
func (ax SensitivityAxes) Validate() error {
	for _, axis := range []struct {
		name   string
		values []float64
	}{{"axes.wacc", ax.WACC}, {"axes.growth", ax.Growth}} {
		if len(axis.values) > MaxAxisPoints {
			return &InputError{Field: axis.name, Reason: fmt.Sprintf("at most %d points", MaxAxisPoints)}
		}
		for _, v := range axis.values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &InputError{Field: axis.name, Reason: "must be finite numbers"}
			}
		}
	}
	return nil
}

// DefaultSensitivityAxes 默认 7×7: WACC 6-12%，增长率 5-20%
func DefaultSensitivityAxes() SensitivityAxes {
	return SensitivityAxes{
		WACC:   []float64{6, 7, 8, 9, 10, 11, 12},
		Growth: []float64{5, 7.5, 10, 12.5, 15, 17.5, 20},
	}
}

// SensitivityInput 矩阵输入，Base 为单阶段 DCF
type SensitivityInput struct {
	Base        DCFInput        `json:"base"`
	Axes        SensitivityAxes `json:"axes"`
	MarketPrice float64         `json:"market_price"`
}

// SensitivityCell 单元格
type SensitivityCell struct {
	WACC           float64   `json:"wacc"`
	Growth         float64   `json:"growth"`
	Value          Estimate  `json:"value"`
	MarginOfSafety Estimate  `json:"margin_of_safety"`
	Available      bool      `json:"available"`
	Class          CellClass `json:"class"`
}

// String 不可用的单元格显示为 "—"
func (c SensitivityCell) String() string {
	if !c.Available {
		return "—"
	}
	return fmt.Sprintf("%.2f", c.Value.Or(0))
}

// SensitivityGrid 行为 WACC，列为增长率
type SensitivityGrid struct {
	WACC   []float64           `json:"wacc"`
	Growth []float64           `json:"growth"`
	Cells  [][]SensitivityCell `json:"cells"`
}

// Sensitivity 在每个 (WACC, 增长率) 组合上重算单阶段 DCF
// growth >= wacc 的组合在结构上无效，标记为不可用
func Sensitivity(in SensitivityInput) SensitivityGrid {
	axes := in.Axes
	if len(axes.WACC) == 0 || len(axes.Growth) == 0 {
		axes = DefaultSensitivityAxes()
	}

	years := in.Base.Years()
	grid := SensitivityGrid{
		WACC:   axes.WACC,
		Growth: axes.Growth,
		Cells:  make([][]SensitivityCell, len(axes.WACC)),
	}
	for i, wacc := range axes.WACC {
		row := make([]SensitivityCell, len(axes.Growth))
		for j, growth := range axes.Growth {
			cell := SensitivityCell{
				WACC:           wacc,
				Growth:         growth,
				Value:          None(),
				MarginOfSafety: None(),
				Class:          CellUnavailable,
			}
			if growth < wacc {
				trial := in.Base
				trial.Stages = []Stage{{Years: years, Growth: growth}}
				trial.WACC = wacc
				if value := DCFValue(trial); value.Valid() {
					cell.Value = value
					cell.Available = true
					cell.MarginOfSafety = MarginOfSafety(value, in.MarketPrice)
					cell.Class = classify(cell.MarginOfSafety)
				}
			}
			row[j] = cell
		}
		grid.Cells[i] = row
	}
	return grid
}

func classify(mos Estimate) CellClass {
	m, ok := mos.Get()
	switch {
	case !ok:
		return CellUnpriced
	case m > fairBandPct:
		return CellUndervalued
	case m < -fairBandPct:
		return CellOvervalued
	default:
		return CellFair
	}
}
