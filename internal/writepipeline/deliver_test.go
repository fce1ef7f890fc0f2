package writepipeline

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/config"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/archive"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/store"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(store.AllModels()...))

	pool, err := store.NewPool(db, store.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	s := &store.Store{Pool: pool, Reservations: store.NewReservations(pool), Integrity: store.NewIntegrity(pool)}

	root := t.TempDir()
	queue := archive.NewQueue(archive.QueueConfig{Workers: 2, HighWaterMark: 32}, zap.NewNop())
	t.Cleanup(queue.Close)
	arch := archive.NewArchive(root, queue)

	return &Pipeline{
		Store:       s,
		Archive:     arch,
		StorageRoot: root,
		Limits:      config.DefaultLimitsConfig(),
	}
}

func TestDeliverMessageHappyPath(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t)

	result, err := p.DeliverMessage(ctx, DeliverMessageInput{
		ProjectKey:  "alpha",
		ProjectSlug: "alpha",
		SenderAgent: "BlueLake",
		Subject:     "status",
		Body:        "all green",
		Importance:  store.ImportanceNormal,
		Recipients:  []Recipient{{Name: "GreenField", Kind: store.RecipientTo}},
		NowUsec:     1000,
	})
	require.NoError(t, err)
	assert.NotZero(t, result.MessageID)
	assert.Empty(t, result.Warnings)

	require.NoError(t, p.Archive.FlushAsyncCommits(ctx))

	db := p.Store.Pool.DB()
	var count int64
	require.NoError(t, db.Model(&store.Recipient{}).Where("message_id = ?", result.MessageID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDeliverMessageRejectsNoRecipients(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t)

	_, err := p.DeliverMessage(ctx, DeliverMessageInput{
		ProjectKey:  "alpha",
		ProjectSlug: "alpha",
		SenderAgent: "BlueLake",
		Subject:     "status",
		Body:        "all green",
		NowUsec:     1000,
	})
	require.Error(t, err)
}

func TestDeliverMessageRejectsOversizedBody(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t)
	p.Limits.MaxMessageBodyBytes = 4

	_, err := p.DeliverMessage(ctx, DeliverMessageInput{
		ProjectKey:  "alpha",
		ProjectSlug: "alpha",
		SenderAgent: "BlueLake",
		Subject:     "status",
		Body:        "this body is too long",
		Recipients:  []Recipient{{Name: "GreenField", Kind: store.RecipientTo}},
		NowUsec:     1000,
	})
	require.Error(t, err)
}

func TestDeliverMessageRejectsUnknownRecipientWhenAutoRegisterDisabled(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t)
	p.Limits.AutoRegisterRecipients = false

	_, err := p.DeliverMessage(ctx, DeliverMessageInput{
		ProjectKey:  "alpha",
		ProjectSlug: "alpha",
		SenderAgent: "BlueLake",
		Subject:     "status",
		Body:        "all green",
		Importance:  store.ImportanceNormal,
		Recipients:  []Recipient{{Name: "GreenField", Kind: store.RecipientTo}},
		NowUsec:     1000,
	})
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.CodeOf(err))
}

func TestDeliverMessageAllowsPreRegisteredRecipientWhenAutoRegisterDisabled(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t)

	proj, err := p.Store.EnsureProject(ctx, "alpha", "alpha", 900)
	require.NoError(t, err)
	_, err = p.Store.EnsureAgent(ctx, proj.ID, "GreenField", "", "", "", 900)
	require.NoError(t, err)

	p.Limits.AutoRegisterRecipients = false

	result, err := p.DeliverMessage(ctx, DeliverMessageInput{
		ProjectKey:  "alpha",
		ProjectSlug: "alpha",
		SenderAgent: "BlueLake",
		Subject:     "status",
		Body:        "all green",
		Importance:  store.ImportanceNormal,
		Recipients:  []Recipient{{Name: "GreenField", Kind: store.RecipientTo}},
		NowUsec:     1000,
	})
	require.NoError(t, err)
	assert.NotZero(t, result.MessageID)
}
