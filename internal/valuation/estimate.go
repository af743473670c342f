// 可选数值类型
// 用显式的 Some/None 代替 null 判断，None 表示模型当前不可用
package valuation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Estimate 估值结果 (可能不存在)
type Estimate struct {
	value float64
	ok    bool
}

// Some 构造存在的值
func Some(v float64) Estimate {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Estimate{}
	}
	return Estimate{value: v, ok: true}
}

// None 构造不存在的值
func None() Estimate {
	return Estimate{}
}

// Get 返回值和是否存在
func (e Estimate) Get() (float64, bool) {
	return e.value, e.ok
}

// Valid 是否存在
func (e Estimate) Valid() bool {
	return e.ok
}

// Positive 存在且大于 0
func (e Estimate) Positive() bool {
	return e.ok && e.value > 0
}

// Or 不存在时返回默认值
func (e Estimate) Or(fallback float64) float64 {
	if !e.ok {
		return fallback
	}
	return e.value
}

func (e Estimate) String() string {
	if !e.ok {
		return "—"
	}
	return fmt.Sprintf("%.2f", e.value)
}

// MarshalJSON None 序列化为 null
func (e Estimate) MarshalJSON() ([]byte, error) {
	if !e.ok {
		return []byte("null"), nil
	}
	return json.Marshal(e.value)
}

// UnmarshalJSON null 反序列化为 None
func (e *Estimate) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*e = None()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("estimate: %w", err)
	}
	*e = Some(v)
	return nil
}
