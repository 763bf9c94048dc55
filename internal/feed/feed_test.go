package feed_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/reqflow/internal/domain"
	"github.com/xela07ax/reqflow/internal/feed"
	"github.com/xela07ax/reqflow/internal/repository/memory"
)

func newTestFeed() *feed.Feed {
	return feed.NewFeed(memory.NewNotificationRepo(), nil, zap.NewNop(), 100)
}

func notif(requestID string, kind domain.NotificationKind, to domain.RequestState, recipient string) *domain.Notification {
	return &domain.Notification{
		RecipientRole:    recipient,
		RelatedRequestID: requestID,
		Kind:             kind,
		ToState:          to,
		Message:          "test message",
	}
}

func TestPush_FillsDefaults(t *testing.T) {
	f := newTestFeed()

	stored, err := f.Push(context.Background(), notif("req-1", domain.KindNewRequest, domain.StateSubmitted, "marketing"))
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.False(t, stored.IsRead)
}

func TestPush_DedupReturnsExistingRow(t *testing.T) {
	f := newTestFeed()
	ctx := context.Background()

	first, err := f.Push(ctx, notif("req-1", domain.KindDecisionMade, domain.StateApproved, "customer-1"))
	require.NoError(t, err)

	second, err := f.Push(ctx, notif("req-1", domain.KindDecisionMade, domain.StateApproved, "customer-1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "replay collapses into the stored row")

	items, err := f.ListFor(ctx, "customer-1", false)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

// Same logical event fanned out to two recipients is two distinct rows.
func TestPush_FanOutIsNotDeduped(t *testing.T) {
	f := newTestFeed()
	ctx := context.Background()

	_, err := f.Push(ctx, notif("req-1", domain.KindForwarded, domain.StateForwarded, "admin"))
	require.NoError(t, err)
	_, err = f.Push(ctx, notif("req-1", domain.KindForwarded, domain.StateForwarded, "customer-1"))
	require.NoError(t, err)

	adminItems, err := f.ListFor(ctx, "admin", false)
	require.NoError(t, err)
	authorItems, err := f.ListFor(ctx, "customer-1", false)
	require.NoError(t, err)
	assert.Len(t, adminItems, 1)
	assert.Len(t, authorItems, 1)
}

func TestListFor_NewestFirstAndUnreadOnly(t *testing.T) {
	f := newTestFeed()
	ctx := context.Background()

	older := notif("req-1", domain.KindNewRequest, domain.StateSubmitted, "marketing")
	older.CreatedAt = time.Now().Add(-time.Hour).UTC()
	first, err := f.Push(ctx, older)
	require.NoError(t, err)

	second, err := f.Push(ctx, notif("req-2", domain.KindNewRequest, domain.StateSubmitted, "marketing"))
	require.NoError(t, err)

	items, err := f.ListFor(ctx, "marketing", false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, second.ID, items[0].ID, "newest on top")
	assert.Equal(t, first.ID, items[1].ID)

	require.NoError(t, f.MarkRead(ctx, first.ID, "marketing"))

	unread, err := f.ListFor(ctx, "marketing", true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, second.ID, unread[0].ID)
}

func TestListFor_EmptyFeedIsEmptySlice(t *testing.T) {
	f := newTestFeed()

	items, err := f.ListFor(context.Background(), "nobody", false)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

// MarkRead is monotonic: replays and unknown IDs are silent no-ops.
func TestMarkRead_Monotonic(t *testing.T) {
	f := newTestFeed()
	ctx := context.Background()

	stored, err := f.Push(ctx, notif("req-1", domain.KindNewRequest, domain.StateSubmitted, "marketing"))
	require.NoError(t, err)

	require.NoError(t, f.MarkRead(ctx, stored.ID, "marketing"))
	require.NoError(t, f.MarkRead(ctx, stored.ID, "marketing"), "second ack is a no-op")
	require.NoError(t, f.MarkRead(ctx, "unknown-id", "marketing"), "unknown id is a no-op")

	items, err := f.ListFor(ctx, "marketing", false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].IsRead)

	// Acking under a different recipient must not flip someone else's rows
	other, err := f.Push(ctx, notif("req-2", domain.KindNewRequest, domain.StateSubmitted, "admin"))
	require.NoError(t, err)
	require.NoError(t, f.MarkRead(ctx, other.ID, "marketing"))

	adminItems, err := f.ListFor(ctx, "admin", true)
	require.NoError(t, err)
	assert.Len(t, adminItems, 1, "row stays unread for its owner")
}

func TestUnreadCache(t *testing.T) {
	c := feed.NewUnreadCache()

	assert.Zero(t, c.Get("marketing"))

	c.Add("marketing", 1)
	c.Add("marketing", 1)
	c.Add("admin", 1)
	assert.Equal(t, int64(2), c.Get("marketing"))

	c.Add("marketing", -5)
	assert.Zero(t, c.Get("marketing"), "out-of-order signals never drive the counter negative")

	c.Replace(map[string]int64{"admin": 7})
	assert.Equal(t, int64(7), c.Get("admin"))
	assert.Zero(t, c.Get("marketing"), "replace drops stale recipients")

	snap := c.Snapshot()
	snap["admin"] = 0
	assert.Equal(t, int64(7), c.Get("admin"), "snapshot is a copy")
}
