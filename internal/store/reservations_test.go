package store

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"pgregory.net/rapid"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(AllModels()...))

	pool, err := NewPool(db, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1, AcquireTimeout: 0}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func seedProjectAndAgents(t *testing.T, pool *Pool) (projectID int64, agentA, agentB int64) {
	t.Helper()
	db := pool.DB()
	project := Project{Key: "alpha", Slug: "alpha", CreatedAt: time.Now()}
	require.NoError(t, db.Create(&project).Error)

	a := Agent{ProjectID: project.ID, Name: "BlueLake", InceptionUsec: 1, LastActiveUsec: 1}
	require.NoError(t, db.Create(&a).Error)
	b := Agent{ProjectID: project.ID, Name: "GreenField", InceptionUsec: 1, LastActiveUsec: 1}
	require.NoError(t, db.Create(&b).Error)

	return project.ID, a.ID, b.ID
}

func TestCreateReservationRejectsOverlappingExclusive(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	repo := NewReservations(pool)
	projectID, agentA, agentB := seedProjectAndAgents(t, pool)

	first := &Reservation{
		ProjectID: projectID, AgentID: agentA,
		PathPattern: "src/**", Exclusive: true,
		CreatedAtUsec: 1000, ExpiresAtUsec: 2_000_000,
	}
	require.NoError(t, repo.CreateReservation(ctx, first))

	second := &Reservation{
		ProjectID: projectID, AgentID: agentB,
		PathPattern: "src/api/**", Exclusive: true,
		CreatedAtUsec: 1500, ExpiresAtUsec: 2_000_000,
	}
	err := repo.CreateReservation(ctx, second)
	require.Error(t, err)
	assert.Equal(t, errs.Conflict, errs.CodeOf(err))
}

func TestCreateReservationAllowsDisjointExclusive(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	repo := NewReservations(pool)
	projectID, agentA, agentB := seedProjectAndAgents(t, pool)

	first := &Reservation{
		ProjectID: projectID, AgentID: agentA,
		PathPattern: "src/api/**", Exclusive: true,
		CreatedAtUsec: 1000, ExpiresAtUsec: 2_000_000,
	}
	require.NoError(t, repo.CreateReservation(ctx, first))

	second := &Reservation{
		ProjectID: projectID, AgentID: agentB,
		PathPattern: "docs/**", Exclusive: true,
		CreatedAtUsec: 1500, ExpiresAtUsec: 2_000_000,
	}
	require.NoError(t, repo.CreateReservation(ctx, second))
}

func TestCreateReservationAllowsSharedOverlap(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	repo := NewReservations(pool)
	projectID, agentA, agentB := seedProjectAndAgents(t, pool)

	first := &Reservation{
		ProjectID: projectID, AgentID: agentA,
		PathPattern: "src/**", Exclusive: false,
		CreatedAtUsec: 1000, ExpiresAtUsec: 2_000_000,
	}
	require.NoError(t, repo.CreateReservation(ctx, first))

	second := &Reservation{
		ProjectID: projectID, AgentID: agentB,
		PathPattern: "src/api/**", Exclusive: false,
		CreatedAtUsec: 1500, ExpiresAtUsec: 2_000_000,
	}
	require.NoError(t, repo.CreateReservation(ctx, second))
}

func TestCreateReservationIgnoresReleasedAndExpired(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	repo := NewReservations(pool)
	projectID, agentA, agentB := seedProjectAndAgents(t, pool)

	released := &Reservation{
		ProjectID: projectID, AgentID: agentA,
		PathPattern: "src/**", Exclusive: true,
		CreatedAtUsec: 1000, ExpiresAtUsec: 2_000_000,
	}
	require.NoError(t, repo.CreateReservation(ctx, released))
	require.NoError(t, repo.ReleaseReservation(ctx, released.ID, 1200))

	expired := &Reservation{
		ProjectID: projectID, AgentID: agentA,
		PathPattern: "src/**", Exclusive: true,
		CreatedAtUsec: 1300, ExpiresAtUsec: 1301,
	}
	require.NoError(t, repo.CreateReservation(ctx, expired))

	second := &Reservation{
		ProjectID: projectID, AgentID: agentB,
		PathPattern: "src/api/**", Exclusive: true,
		CreatedAtUsec: 999_000_000, ExpiresAtUsec: 999_999_999,
	}
	require.NoError(t, repo.CreateReservation(ctx, second))
}

// TestPathPatternsOverlapProperty checks the exclusivity invariant from
// spec.md §8: two identical literal paths always overlap, and
// appending arbitrary literal suffixes under a "**" prefix always
// overlaps with that prefix.
func TestPathPatternsOverlapProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		prefix := rapid.StringMatching(`[a-z]{1,8}(/[a-z]{1,8}){0,3}`).Draw(rt, "prefix")
		suffix := rapid.StringMatching(`[a-z]{1,8}(/[a-z]{1,8}){0,3}`).Draw(rt, "suffix")

		wide := prefix + "/**"
		nested := prefix + "/" + suffix

		assert.True(rt, PathPatternsOverlap(wide, nested))
		assert.True(rt, PathPatternsOverlap(nested, wide))
		assert.True(rt, PathPatternsOverlap(nested, nested))
	})
}

func TestPathPatternsOverlapDisjointLiterals(t *testing.T) {
	assert.False(t, PathPatternsOverlap("src/api/**", "docs/**"))
	assert.False(t, PathPatternsOverlap("src/api", "src/web"))
	assert.True(t, PathPatternsOverlap("src/*/handlers", "src/api/handlers"))
}
