package observability_test

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/config"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/observability"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/store"
)

func newTestPool(t *testing.T) *store.Pool {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(store.AllModels()...))

	pool, err := store.NewPool(db, store.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func testObsConfig() config.ObservabilityConfig {
	return config.ObservabilityConfig{LedgerCapacity: 3}
}

func TestLedgerRecordAndRecent(t *testing.T) {
	ledger := observability.NewLedger(testObsConfig(), nil)
	ctx := context.Background()

	_, err := ledger.Record(ctx, "route-message", "deliver", map[string]any{"agent": "a"}, 0.9, "local", 1)
	require.NoError(t, err)
	_, err = ledger.Record(ctx, "route-message", "defer", map[string]any{"agent": "b"}, 0.6, "local", 2)
	require.NoError(t, err)

	recent := ledger.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "route-message", recent[0].DecisionPoint)
	assert.NotEqual(t, recent[0].ID, recent[1].ID)
}

func TestLedgerRespectsCapacity(t *testing.T) {
	ledger := observability.NewLedger(testObsConfig(), nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := ledger.Record(ctx, "dp", "action", nil, 0.5, "local", int64(i))
		require.NoError(t, err)
	}
	assert.Len(t, ledger.Recent(100), 3)
}

func TestLedgerQueryFiltersByDecisionPoint(t *testing.T) {
	ledger := observability.NewLedger(config.ObservabilityConfig{LedgerCapacity: 100}, nil)
	ctx := context.Background()
	_, _ = ledger.Record(ctx, "a", "x", nil, 0.5, "local", 1)
	_, _ = ledger.Record(ctx, "b", "y", nil, 0.5, "local", 2)
	_, _ = ledger.Record(ctx, "a", "z", nil, 0.5, "local", 3)

	matches := ledger.Query("a", 10)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, "a", m.DecisionPoint)
	}
}

func TestLedgerIDsAreMonotonicallyIncreasing(t *testing.T) {
	ledger := observability.NewLedger(config.ObservabilityConfig{LedgerCapacity: 100}, nil)
	ctx := context.Background()
	r1, err := ledger.Record(ctx, "dp", "action", nil, 0.5, "local", 1000)
	require.NoError(t, err)
	r2, err := ledger.Record(ctx, "dp", "action", nil, 0.5, "local", 1000)
	require.NoError(t, err)
	assert.Less(t, r1.ID, r2.ID, "ULIDs generated from the same monotonic entropy source in the same microsecond must still sort in creation order")
}

func TestLedgerPersistsToStoreWhenPoolConfigured(t *testing.T) {
	pool := newTestPool(t)
	ledger := observability.NewLedger(config.ObservabilityConfig{LedgerCapacity: 100}, pool)
	ctx := context.Background()

	_, err := ledger.Record(ctx, "route-message", "deliver", map[string]any{"k": "v"}, 0.8, "local", 42)
	require.NoError(t, err)

	db, err := pool.Acquire(ctx)
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&store.EvidenceLedgerRow{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
