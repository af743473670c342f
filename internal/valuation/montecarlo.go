// 蒙特卡洛风险模拟
package valuation

import (
	"context"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MaxIterations 单次模拟的试验数上限
const MaxIterations = 100000

// MonteCarloParams 扰动参数
type MonteCarloParams struct {
	Iterations int   `json:"iterations" mapstructure:"iterations"`
	Seed       int64 `json:"seed" mapstructure:"seed"`
	// GrowthSpread 增长率扰动幅度 (占自身绝对值比例)
	GrowthSpread float64 `json:"growth_spread" mapstructure:"growth_spread"`
	// DiscountSpread 折现率扰动幅度 (占自身绝对值比例)
	DiscountSpread float64 `json:"discount_spread" mapstructure:"discount_spread"`
	// DiscountFloor 折现率下限 (占基准比例)
	DiscountFloor float64 `json:"discount_floor" mapstructure:"discount_floor"`
	// TerminalBand 永续增长率绝对扰动 (百分点)
	TerminalBand float64 `json:"terminal_band" mapstructure:"terminal_band"`
	// TerminalCap 永续增长率上限 (占基准比例)
	TerminalCap float64 `json:"terminal_cap" mapstructure:"terminal_cap"`
	// ValueCeiling 每股价值上限 (每股 FCF 的倍数)
	ValueCeiling float64 `json:"value_ceiling" mapstructure:"value_ceiling"`
	Bins         int     `json:"bins" mapstructure:"bins"`
	ChunkSize    int     `json:"chunk_size" mapstructure:"chunk_size"`
}

// DefaultMonteCarloParams 默认参数
func DefaultMonteCarloParams() MonteCarloParams {
	return MonteCarloParams{
		Iterations:     2000,
		Seed:           1,
		GrowthSpread:   0.6,
		DiscountSpread: 0.5,
		DiscountFloor:  0.58,
		TerminalBand:   0.5,
		TerminalCap:    1.5,
		ValueCeiling:   250,
		Bins:           30,
		ChunkSize:      256,
	}
}

// MonteCarloInput 模拟输入，Base 为单阶段 DCF
type MonteCarloInput struct {
	Base   DCFInput         `json:"base"`
	Params MonteCarloParams `json:"params"`
}

// Percentiles 分位数
type Percentiles struct {
	P10 float64 `json:"p10"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
}

// Histogram 固定分箱直方图
type Histogram struct {
	Counts   []int   `json:"counts"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	BinWidth float64 `json:"bin_width"`
}

// MonteCarloResult 模拟结果
type MonteCarloResult struct {
	Percentiles Percentiles `json:"percentiles"`
	Mean        float64     `json:"mean"`
	Histogram   Histogram   `json:"histogram"`
	RawSamples  []float64   `json:"raw_samples"`
	Trials      int         `json:"trials"`
	Accepted    int         `json:"accepted"`
}

// MonteCarlo 对单阶段 DCF 输入做均匀扰动并统计价值分布
// 试验之间无依赖，按块并行；每块使用独立的种子，同一种子结果确定
// 迭代数为 0、FCF 或股本缺失、或无有效样本时返回 nil, nil
func MonteCarlo(ctx context.Context, in MonteCarloInput) (*MonteCarloResult, error) {
	p := in.Params
	base := in.Base
	if p.Iterations <= 0 || base.FCF <= 0 || base.Shares <= 0 || len(base.Stages) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chunkSize := p.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 256
	}

	ceiling := math.Inf(1)
	if p.ValueCeiling > 0 {
		ceiling = p.ValueCeiling * base.FCF / base.Shares
	}

	samples := make([]float64, p.Iterations)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for start := 0; start < p.Iterations; start += chunkSize {
		end := start + chunkSize
		if end > p.Iterations {
			end = p.Iterations
		}
		start := start
		chunk := start / chunkSize
		g.Go(func() error {
			rng := rand.New(rand.NewSource(p.Seed + int64(chunk)))
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				samples[i] = runTrial(base, p, rng, ceiling)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	accepted := samples[:0]
	for _, v := range samples {
		if !math.IsNaN(v) {
			accepted = append(accepted, v)
		}
	}
	if len(accepted) == 0 {
		return nil, nil
	}
	sort.Float64s(accepted)

	return &MonteCarloResult{
		Percentiles: Percentiles{
			P10: stat.Quantile(0.10, stat.Empirical, accepted, nil),
			P25: stat.Quantile(0.25, stat.Empirical, accepted, nil),
			P50: stat.Quantile(0.50, stat.Empirical, accepted, nil),
			P75: stat.Quantile(0.75, stat.Empirical, accepted, nil),
			P90: stat.Quantile(0.90, stat.Empirical, accepted, nil),
		},
		Mean:       stat.Mean(accepted, nil),
		Histogram:  buildHistogram(accepted, p.Bins),
		RawSamples: accepted,
		Trials:     p.Iterations,
		Accepted:   len(accepted),
	}, nil
}

// runTrial 单次试验，丢弃的试验返回 NaN
func runTrial(base DCFInput, p MonteCarloParams, rng *rand.Rand, ceiling float64) float64 {
	uniform := func() float64 { return rng.Float64()*2 - 1 }

	stage := base.Stages[0]
	growth := stage.Growth + math.Abs(stage.Growth)*p.GrowthSpread*uniform()

	wacc := base.WACC + math.Abs(base.WACC)*p.DiscountSpread*uniform()
	if floor := base.WACC * p.DiscountFloor; wacc < floor {
		wacc = floor
	}

	terminal := base.TerminalGrowth + p.TerminalBand*uniform()
	if base.TerminalGrowth > 0 && p.TerminalCap > 0 {
		if limit := base.TerminalGrowth * p.TerminalCap; terminal > limit {
			terminal = limit
		}
	}

	trial := base
	trial.Stages = []Stage{{Years: stage.Years, Growth: growth}}
	trial.WACC = wacc
	trial.TerminalGrowth = terminal

	res, ok := DiscountedCashFlow(trial)
	if !ok || res.PerShare <= 0 || res.PerShare > ceiling {
		return math.NaN()
	}
	return res.PerShare
}

func buildHistogram(sorted []float64, bins int) Histogram {
	if bins <= 0 {
		bins = 30
	}
	lo, hi := sorted[0], sorted[len(sorted)-1]
	h := Histogram{Counts: make([]int, bins), Min: lo, Max: hi}
	if hi == lo {
		h.Counts[0] = len(sorted)
		return h
	}

	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, sorted, nil)
	for i, c := range counts {
		h.Counts[i] = int(c)
	}
	h.BinWidth = (hi - lo) / float64(bins)
	return h
}
