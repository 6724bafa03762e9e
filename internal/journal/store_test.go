package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelab/internal/pkg/faults"
	"tradelab/internal/risk"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRisk(t *testing.T) *risk.Result {
	t.Helper()
	res, err := risk.Compute(risk.TradeParameters{
		Symbol:         "BTCUSDT",
		AccountBalance: 10000,
		EntryPrice:     100,
		StopLossPrice:  95,
		TargetPrice:    115,
		Direction:      "long",
		Method:         risk.MethodFixedPercentage,
		RiskPercent:    1,
	})
	require.NoError(t, err)
	return &res
}

func TestStoreCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, Entry{
		Symbol:    "btcusdt",
		Direction: "long",
		Risk:      sampleRisk(t),
		Notes:     "突破回踩，1% 风险",
		Tags:      []string{"breakout", "trend"},
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	assert.Equal(t, "BTCUSDT", created.Symbol)
	assert.Equal(t, StatusPlanned, created.Status) // 缺省状态

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Risk)
	assert.InDelta(t, 100.0, got.Risk.RiskAmount, 1e-9)
	assert.InDelta(t, 20.0, got.Risk.PositionSizeAsset, 1e-9)
	assert.Equal(t, []string{"breakout", "trend"}, got.Tags)
}

func TestStoreCreateValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, Entry{Symbol: "  "})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))

	_, err = store.Create(ctx, Entry{Symbol: "BTCUSDT", Status: Status("weird")})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreListFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, Entry{Symbol: "BTCUSDT", Status: StatusPlanned})
	require.NoError(t, err)
	_, err = store.Create(ctx, Entry{Symbol: "ETHUSDT", Status: StatusOpen})
	require.NoError(t, err)
	_, err = store.Create(ctx, Entry{Symbol: "BTCUSDT", Status: StatusClosed})
	require.NoError(t, err)

	all, err := store.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	btc, err := store.List(ctx, ListFilter{Symbol: "btcusdt"})
	require.NoError(t, err)
	assert.Len(t, btc, 2)

	open, err := store.List(ctx, ListFilter{Status: StatusOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "ETHUSDT", open[0].Symbol)

	_, err = store.List(ctx, ListFilter{Status: Status("weird")})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
}

func TestStoreUpdateStatusAndNotes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, Entry{Symbol: "BTCUSDT", Risk: sampleRisk(t)})
	require.NoError(t, err)

	status := StatusOpen
	notes := "已按计划进场"
	updated, err := store.Update(ctx, created.ID, Update{Status: &status, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, updated.Status)
	assert.Equal(t, notes, updated.Notes)
	// 风险快照不受更新影响
	require.NotNil(t, updated.Risk)
	assert.InDelta(t, 100.0, updated.Risk.RiskAmount, 1e-9)

	bad := Status("weird")
	_, err = store.Update(ctx, created.ID, Update{Status: &bad})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))

	_, err = store.Update(ctx, 404, Update{Notes: &notes})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, Entry{Symbol: "BTCUSDT"})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, created.ID))
	_, err = store.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, created.ID), ErrNotFound)
}
