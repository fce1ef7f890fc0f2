package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	root := t.TempDir()
	q := NewQueue(QueueConfig{Workers: 2, HighWaterMark: 32}, zap.NewNop())
	t.Cleanup(q.Close)
	return NewArchive(root, q)
}

func TestWriteMessageBundleWritesEnvelopeAndPointers(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	err := a.WriteMessageBundle(ctx, "alpha", BundleInput{
		ProjectID:     1,
		MessageID:     42,
		Subject:       "status update",
		Body:          "all green",
		SenderAgent:   "BlueLake",
		RecipientKind: map[string]string{"GreenField": "to"},
		CreatedAtUsec: 1000,
	})
	require.NoError(t, err)
	require.NoError(t, a.queue.FlushAsyncCommits(ctx))

	envelopePath := filepath.Join(a.projectDir("alpha"), "messages", "42.json")
	assert.FileExists(t, envelopePath)

	bodyPath := filepath.Join(a.projectDir("alpha"), "messages", "42.md")
	body, err := os.ReadFile(bodyPath)
	require.NoError(t, err)
	assert.Equal(t, "all green", string(body))

	pointerPath := filepath.Join(a.projectDir("alpha"), "recipients", "42", "GreenField.pointer")
	assert.FileExists(t, pointerPath)
}

func TestWriteMessageBundleCASAttachment(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	dir := t.TempDir()
	attachmentPath := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(attachmentPath, []byte("report contents"), 0o644))

	err := a.WriteMessageBundle(ctx, "alpha", BundleInput{
		ProjectID:     1,
		MessageID:     7,
		Subject:       "report",
		Body:          "see attached",
		SenderAgent:   "BlueLake",
		RecipientKind: map[string]string{"GreenField": "to"},
		CreatedAtUsec: 1000,
		Attachments: []AttachmentRef{
			{Name: "report.txt", MediaType: "text/plain", FilePath: attachmentPath},
		},
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(a.projectDir("alpha"), "attachments", "cas"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestRecentCommitsOrdersNewestFirst(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	for i, usec := range []int64{1000, 3000, 2000} {
		require.NoError(t, a.WriteMessageBundle(ctx, "alpha", BundleInput{
			ProjectID: 1, MessageID: int64(i + 1), Subject: "m", Body: "b",
			SenderAgent: "BlueLake", RecipientKind: map[string]string{"GreenField": "to"},
			CreatedAtUsec: usec,
		}))
	}

	commits, err := a.RecentCommits("alpha", 0)
	require.NoError(t, err)
	require.Len(t, commits, 3)
	assert.Equal(t, int64(3000), commits[0].CreatedAtUsec)
	assert.Equal(t, int64(1000), commits[2].CreatedAtUsec)
}

func TestCommunicationGraphAggregatesEdges(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, a.WriteMessageBundle(ctx, "alpha", BundleInput{
			ProjectID: 1, MessageID: int64(i + 1), Subject: "m", Body: "b",
			SenderAgent: "BlueLake", RecipientKind: map[string]string{"GreenField": "to"},
			CreatedAtUsec: int64(1000 + i),
		}))
	}

	edges, err := a.CommunicationGraph("alpha")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "BlueLake", edges[0].From)
	assert.Equal(t, "GreenField", edges[0].To)
	assert.Equal(t, 3, edges[0].Count)
}

func TestInboxSnapshotHonorsAsOfTimestamp(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	require.NoError(t, a.WriteMessageBundle(ctx, "alpha", BundleInput{
		ProjectID: 1, MessageID: 1, Subject: "early", Body: "b",
		SenderAgent: "BlueLake", RecipientKind: map[string]string{"GreenField": "to"},
		CreatedAtUsec: 1000,
	}))
	require.NoError(t, a.WriteMessageBundle(ctx, "alpha", BundleInput{
		ProjectID: 1, MessageID: 2, Subject: "late", Body: "b",
		SenderAgent: "BlueLake", RecipientKind: map[string]string{"GreenField": "to"},
		CreatedAtUsec: 5000,
	}))

	snapshot, err := a.InboxSnapshot("alpha", "GreenField", 2000)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "early", snapshot[0].Subject)
}
