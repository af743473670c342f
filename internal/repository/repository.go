// 已保存估值的持久化
// 估值核心不感知存储，仓库由调用方 (活动、API) 注入
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/biovalue-ai/fairvalue/internal/valuation"
	apperrors "github.com/biovalue-ai/fairvalue/pkg/errors"
)

const (
	recordKeyPrefix = "saved:valuation:"
	indexKey        = "saved:valuations"
)

// ErrNotFound 记录不存在
var ErrNotFound = apperrors.ErrNotFound

// SavedValuation 已保存的估值 (输入快照 + 结果)
type SavedValuation struct {
	ID           string                 `json:"id"`
	Ticker       string                 `json:"ticker"`
	Label        string                 `json:"label,omitempty"`
	Fundamentals valuation.Fundamentals `json:"fundamentals"`
	Assumptions  valuation.Assumptions  `json:"assumptions"`
	Weights      valuation.WeightSet    `json:"weights"`
	Result       *valuation.Valuation   `json:"result,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Repository 已保存估值仓库
type Repository interface {
	Save(ctx context.Context, rec *SavedValuation) (string, error)
	Get(ctx context.Context, id string) (*SavedValuation, error)
	List(ctx context.Context) ([]SavedValuation, error)
	Delete(ctx context.Context, id string) error
}

// HashStore 仓库所需的 Redis 操作子集，由 cache.RedisCache 实现
type HashStore interface {
	HSet(ctx context.Context, key string, values ...interface{}) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Delete(ctx context.Context, key string) error
	SAdd(ctx context.Context, key string, members ...interface{}) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, members ...interface{}) error
}

// RedisRepository 每条记录一个 Hash，另用一个 Set 做索引
type RedisRepository struct {
	store HashStore
	now   func() time.Time
	newID func() string
}

// NewRedisRepository 创建仓库
func NewRedisRepository(store HashStore) *RedisRepository {
	return &RedisRepository{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func recordKey(id string) string {
	return recordKeyPrefix + id
}

// Save 保存记录，ID 为空时生成新 ID；相同 ID 覆盖
func (r *RedisRepository) Save(ctx context.Context, rec *SavedValuation) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("%w: nil record", apperrors.ErrInvalidInput)
	}
	if rec.Ticker == "" {
		return "", fmt.Errorf("%w: ticker is required", apperrors.ErrInvalidInput)
	}

	out := *rec
	if out.ID == "" {
		out.ID = r.newID()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = r.now().UTC()
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode saved valuation: %w", err)
	}

	if err := r.store.HSet(ctx, recordKey(out.ID),
		"ticker", out.Ticker,
		"label", out.Label,
		"created_at", out.CreatedAt.Format(time.RFC3339Nano),
		"payload", string(payload),
	); err != nil {
		return "", fmt.Errorf("failed to save valuation %s: %w", out.ID, err)
	}
	if err := r.store.SAdd(ctx, indexKey, out.ID); err != nil {
		return "", fmt.Errorf("failed to index valuation %s: %w", out.ID, err)
	}
	return out.ID, nil
}

// Get 按 ID 读取
func (r *RedisRepository) Get(ctx context.Context, id string) (*SavedValuation, error) {
	fields, err := r.store.HGetAll(ctx, recordKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load valuation %s: %w", id, err)
	}
	payload, ok := fields["payload"]
	if !ok {
		return nil, fmt.Errorf("saved valuation %s: %w", id, ErrNotFound)
	}

	var rec SavedValuation
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("%w: failed to decode valuation %s: %v", apperrors.ErrValidationFailed, id, err)
	}
	return &rec, nil
}

// List 按创建时间倒序列出全部记录，清理索引中的失效 ID
func (r *RedisRepository) List(ctx context.Context) ([]SavedValuation, error) {
	ids, err := r.store.SMembers(ctx, indexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list valuations: %w", err)
	}

	out := make([]SavedValuation, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			_ = r.store.SRem(ctx, indexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Delete 删除记录，不存在时返回 ErrNotFound
func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	fields, err := r.store.HGetAll(ctx, recordKey(id))
	if err != nil {
		return fmt.Errorf("failed to load valuation %s: %w", id, err)
	}
	if len(fields) == 0 {
		return fmt.Errorf("saved valuation %s: %w", id, ErrNotFound)
	}

	if err := r.store.Delete(ctx, recordKey(id)); err != nil {
		return fmt.Errorf("failed to delete valuation %s: %w", id, err)
	}
	if err := r.store.SRem(ctx, indexKey, id); err != nil {
		return fmt.Errorf("failed to unindex valuation %s: %w", id, err)
	}
	return nil
}
