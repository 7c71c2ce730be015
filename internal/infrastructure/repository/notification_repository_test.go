package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/homereach/lead-exchange-backend/internal/domain/errors"
	"github.com/homereach/lead-exchange-backend/internal/domain/notification"
	"github.com/homereach/lead-exchange-backend/internal/testutil"
)

func newStoredNotification(t *testing.T, buyerID uuid.UUID, leadID, title string) *notification.Notification {
	t.Helper()
	n, err := notification.New(buyerID, leadID, title, "A new roofing lead in 94110 is waiting in your dashboard.")
	require.NoError(t, err)
	return n
}

func TestNotificationRepository_InsertAndListUnread(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := NewNotificationRepository(testDB.DB())
	ctx := testutil.TestContext(t)

	buyerID := testutil.GenerateUUID(t)
	otherBuyer := testutil.GenerateUUID(t)

	older := newStoredNotification(t, buyerID, "lead-1", "New Roofing Lead - 94110")
	older.CreatedAt = time.Now().UTC().Add(-time.Minute)
	newer := newStoredNotification(t, buyerID, "lead-2", "New Solar Lead - 94110")
	seen := newStoredNotification(t, buyerID, "lead-3", "New Hvac Lead - 94110")
	seen.MarkRead()
	foreign := newStoredNotification(t, otherBuyer, "lead-4", "New Roofing Lead - 73301")

	for _, n := range []*notification.Notification{older, newer, seen, foreign} {
		require.NoError(t, repo.Insert(ctx, n))
	}

	unread, err := repo.ListUnreadByBuyer(ctx, buyerID)
	require.NoError(t, err)
	require.Len(t, unread, 2)

	// Newest first, read rows and other buyers excluded
	assert.Equal(t, newer.ID, unread[0].ID)
	assert.Equal(t, older.ID, unread[1].ID)
	assert.Equal(t, "New Solar Lead - 94110", unread[0].Title)
	assert.Equal(t, "lead-2", unread[0].LeadID)
	assert.False(t, unread[0].Read)
}

func TestNotificationRepository_Insert_RequiresIdentity(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := NewNotificationRepository(testDB.DB())
	ctx := testutil.TestContext(t)

	err := repo.Insert(ctx, &notification.Notification{BuyerID: uuid.New()})
	assert.Error(t, err)
}

func TestNotificationRepository_MarkRead(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := NewNotificationRepository(testDB.DB())
	ctx := testutil.TestContext(t)

	buyerID := testutil.GenerateUUID(t)
	n := newStoredNotification(t, buyerID, "lead-1", "New Roofing Lead - 94110")
	require.NoError(t, repo.Insert(ctx, n))

	require.NoError(t, repo.MarkRead(ctx, n.ID))

	unread, err := repo.ListUnreadByBuyer(ctx, buyerID)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestNotificationRepository_MarkRead_NotFound(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := NewNotificationRepository(testDB.DB())
	ctx := testutil.TestContext(t)

	err := repo.MarkRead(ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, domainErrors.IsType(err, domainErrors.ErrorTypeNotFound))
}
