package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biovalue-ai/fairvalue/internal/valuation"
	apperrors "github.com/biovalue-ai/fairvalue/pkg/errors"
)

// memoryStore 内存版 HashStore
type memoryStore struct {
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
	fail   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		hashes: map[string]map[string]string{},
		sets:   map[string]map[string]struct{}{},
	}
}

func (m *memoryStore) HSet(_ context.Context, key string, values ...interface{}) error {
	if m.fail != nil {
		return m.fail
	}
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[fmt.Sprint(values[i])] = fmt.Sprint(values[i+1])
	}
	return nil
}

func (m *memoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	out := map[string]string{}
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	delete(m.hashes, key)
	return nil
}

func (m *memoryStore) SAdd(_ context.Context, key string, members ...interface{}) error {
	s, ok := m.sets[key]
	if !ok {
		s = map[string]struct{}{}
		m.sets[key] = s
	}
	for _, member := range members {
		s[fmt.Sprint(member)] = struct{}{}
	}
	return nil
}

func (m *memoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	var out []string
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out, nil
}

func (m *memoryStore) SRem(_ context.Context, key string, members ...interface{}) error {
	for _, member := range members {
		delete(m.sets[key], fmt.Sprint(member))
	}
	return nil
}

func newTestRepository(store *memoryStore) *RedisRepository {
	repo := NewRedisRepository(store)
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ids := 0
	repo.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	repo.newID = func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}
	return repo
}

func sampleRecord(ticker string) *SavedValuation {
	f := valuation.Fundamentals{Ticker: ticker, FCF: 100, SharesOutstanding: 10, MarketPrice: 50}
	a := valuation.DefaultAssumptions()
	w := valuation.DefaultWeights()
	result, _ := valuation.Evaluate(f, a, w)
	return &SavedValuation{Ticker: ticker, Fundamentals: f, Assumptions: a, Weights: w, Result: result}
}

func TestRedisRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(newMemoryStore())
	rec := sampleRecord("MSFT")
	rec.Label = "base case"

	id, err := repo.Save(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)
	assert.Empty(t, rec.ID, "caller's record is not mutated")

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "MSFT", got.Ticker)
	assert.Equal(t, "base case", got.Label)
	assert.Equal(t, rec.Assumptions, got.Assumptions)
	assert.Equal(t, rec.Weights, got.Weights)
	require.NotNil(t, got.Result)
	assert.Equal(t, rec.Result.Consensus.IntrinsicValue.String(), got.Result.Consensus.IntrinsicValue.String())
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRedisRepository_SaveOverwritesExistingID(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(newMemoryStore())

	id, err := repo.Save(ctx, sampleRecord("AAPL"))
	require.NoError(t, err)

	updated := sampleRecord("AAPL")
	updated.ID = id
	updated.Label = "revised"
	_, err = repo.Save(ctx, updated)
	require.NoError(t, err)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "revised", all[0].Label)
}

func TestRedisRepository_SaveRejectsInvalid(t *testing.T) {
	repo := newTestRepository(newMemoryStore())

	_, err := repo.Save(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = repo.Save(context.Background(), &SavedValuation{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRedisRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	repo := newTestRepository(store)

	for _, ticker := range []string{"AAA", "BBB", "CCC"} {
		_, err := repo.Save(ctx, sampleRecord(ticker))
		require.NoError(t, err)
	}
	// 索引中的失效 ID 被跳过并清理
	require.NoError(t, store.SAdd(ctx, indexKey, "ghost"))

	all, err := repo.List(ctx)

	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "CCC", all[0].Ticker)
	assert.Equal(t, "AAA", all[2].Ticker)
	assert.NotContains(t, store.sets[indexKey], "ghost")
}

func TestRedisRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(newMemoryStore())
	id, err := repo.Save(ctx, sampleRecord("MSFT"))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, id))

	_, err = repo.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, id), ErrNotFound)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRedisRepository_CorruptRecord(t *testing.T) {
	store := newMemoryStore()
	store.hashes[recordKey("broken")] = map[string]string{"payload": "{not json"}
	repo := newTestRepository(store)

	_, err := repo.Get(context.Background(), "broken")

	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)
	assert.False(t, apperrors.ClassifyError(err).Retryable)
}

func TestRedisRepository_StoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.fail = fmt.Errorf("%w: connection reset", apperrors.ErrCacheUnavailable)
	repo := newTestRepository(store)

	_, err := repo.Save(context.Background(), sampleRecord("MSFT"))
	assert.ErrorIs(t, err, apperrors.ErrCacheUnavailable)

	_, err = repo.Get(context.Background(), "id-1")
	assert.True(t, errors.Is(err, apperrors.ErrCacheUnavailable))
	assert.False(t, errors.Is(err, ErrNotFound))
}
