// 加权共识估值
package valuation

// WeightedValue 模型输出与权重
type WeightedValue struct {
	Model  ModelName `json:"model"`
	Value  Estimate  `json:"value"`
	Weight float64   `json:"weight"`
}

// ConsensusResult 共识结果
type ConsensusResult struct {
	IntrinsicValue    Estimate         `json:"intrinsic_value"`
	MarginOfSafetyPct Estimate         `json:"margin_of_safety_pct"`
	ActiveModelCount  int              `json:"active_model_count"`
	Confidence        ConfidenceResult `json:"confidence"`
}

// WeightedAverage Σ(value × weight) / Σweight，仅统计值为正且权重为正的模型
// 无有效模型时返回 None，而不是 0
func WeightedAverage(entries []WeightedValue) Estimate {
	sum, totalWeight := 0.0, 0.0
	for _, e := range entries {
		if !e.Value.Positive() || e.Weight <= 0 {
			continue
		}
		v, _ := e.Value.Get()
		sum += v * e.Weight
		totalWeight += e.Weight
	}
	if totalWeight == 0 {
		return None()
	}
	return Some(sum / totalWeight)
}

// MarginOfSafety (内在价值 - 市价) / 内在价值 × 100，市价须为正
func MarginOfSafety(intrinsic Estimate, price float64) Estimate {
	iv, ok := intrinsic.Get()
	if !ok || iv == 0 || price <= 0 {
		return None()
	}
	return Some((iv - price) / iv * 100)
}

// Consensus 计算共识估值、安全边际与一致性
// 一致性只看权重为正 (启用) 的模型
func Consensus(entries []WeightedValue, price float64) ConsensusResult {
	intrinsic := WeightedAverage(entries)

	active := 0
	enabled := make([]Estimate, 0, len(entries))
	for _, e := range entries {
		if e.Weight <= 0 {
			continue
		}
		enabled = append(enabled, e.Value)
		if e.Value.Positive() {
			active++
		}
	}

	return ConsensusResult{
		IntrinsicValue:    intrinsic,
		MarginOfSafetyPct: MarginOfSafety(intrinsic, price),
		ActiveModelCount:  active,
		Confidence:        Confidence(enabled),
	}
}
