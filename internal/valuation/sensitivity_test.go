package valuation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensitivity_DefaultGrid(t *testing.T) {
	f := msftFundamentals()
	grid := Sensitivity(SensitivityInputFor(f, DefaultAssumptions(), SensitivityAxes{}))

	require.Len(t, grid.Cells, 7)
	for i, row := range grid.Cells {
		require.Len(t, row, 7)
		for j, cell := range row {
			assert.Equal(t, grid.WACC[i], cell.WACC)
			assert.Equal(t, grid.Growth[j], cell.Growth)

			if cell.Growth >= cell.WACC {
				assert.False(t, cell.Available)
				assert.False(t, cell.Value.Valid())
				assert.Equal(t, "—", cell.String())
				assert.Equal(t, CellUnavailable, cell.Class)
				continue
			}
			assert.True(t, cell.Available, "wacc %.1f growth %.1f", cell.WACC, cell.Growth)
			assert.True(t, cell.Value.Valid())
			assert.True(t, cell.MarginOfSafety.Valid())
			assert.NotEqual(t, CellUnavailable, cell.Class)
		}
	}
}

func TestSensitivity_ValueFallsAsWACCRises(t *testing.T) {
	grid := Sensitivity(SensitivityInputFor(msftFundamentals(), DefaultAssumptions(), SensitivityAxes{
		WACC:   []float64{7, 8, 9, 10},
		Growth: []float64{3, 5},
	}))

	for j := range grid.Growth {
		for i := 1; i < len(grid.WACC); i++ {
			prev, _ := grid.Cells[i-1][j].Value.Get()
			curr, _ := grid.Cells[i][j].Value.Get()
			assert.Less(t, curr, prev)
		}
	}
}

func TestSensitivity_Classification(t *testing.T) {
	base := SingleStage(100, 10, 0, 5, 10, 2, 5)
	value, ok := DCFValue(base).Get()
	require.True(t, ok)

	classAt := func(price float64) CellClass {
		grid := Sensitivity(SensitivityInput{
			Base:        base,
			Axes:        SensitivityAxes{WACC: []float64{10}, Growth: []float64{5}},
			MarketPrice: price,
		})
		return grid.Cells[0][0].Class
	}

	assert.Equal(t, CellUndervalued, classAt(value*0.5))
	assert.Equal(t, CellFair, classAt(value))
	assert.Equal(t, CellOvervalued, classAt(value*1.5))
	assert.Equal(t, CellUnpriced, classAt(0), "no market price")
}

func TestSensitivity_MissingCashFlow(t *testing.T) {
	f := msftFundamentals()
	f.FCF = 0

	grid := Sensitivity(SensitivityInputFor(f, DefaultAssumptions(), DefaultSensitivityAxes()))

	for _, row := range grid.Cells {
		for _, cell := range row {
			assert.Equal(t, "—", cell.String())
		}
	}
}

func TestSensitivityAxes_Validate(t *testing.T) {
	assert.NoError(t, DefaultSensitivityAxes().Validate())
	assert.NoError(t, SensitivityAxes{}.Validate())

	wide := make([]float64, MaxAxisPoints+1)
	err := SensitivityAxes{WACC: []float64{8}, Growth: wide}.Validate()
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "axes.growth", inputErr.Field)

	err = SensitivityAxes{WACC: []float64{8, math.NaN()}}.Validate()
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "axes.wacc", inputErr.Field)
}
