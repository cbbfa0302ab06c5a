package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subwatch/internal/models"
)

func TestGetUserSettings_DefaultsWhenMissing(t *testing.T) {
	db := newTestDB(t)

	user := createTestUser(t, db, "alice@example.com")
	settings, err := db.GetUserSettings(context.Background(), user.ID)
	require.NoError(t, err)

	assert.Equal(t, user.ID, settings.UserID)
	assert.True(t, settings.RemindersEnabled)
	assert.Equal(t, models.DefaultReminderOffsets, settings.ReminderOffsets)
	assert.True(t, settings.EmailEnabled)
	assert.True(t, settings.PushEnabled)
	assert.False(t, settings.WhatsAppEnabled)
	assert.Equal(t, "UTC", settings.Timezone)
}

func TestUpsertUserSettings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := createTestUser(t, db, "alice@example.com")

	settings := models.DefaultUserSettings(user.ID)
	settings.ReminderOffsets = []int{14, 7, 1}
	settings.TelegramEnabled = true
	settings.TelegramChatID = 123456789
	settings.Timezone = "Europe/Berlin"
	require.NoError(t, db.UpsertUserSettings(ctx, settings))

	got, err := db.GetUserSettings(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{14, 7, 1}, got.ReminderOffsets)
	assert.True(t, got.TelegramEnabled)
	assert.Equal(t, int64(123456789), got.TelegramChatID)
	assert.Equal(t, "Europe/Berlin", got.Timezone)

	// Second save updates in place.
	got.RemindersEnabled = false
	got.ReminderOffsets = []int{3}
	require.NoError(t, db.UpsertUserSettings(ctx, got))

	again, err := db.GetUserSettings(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, again.RemindersEnabled)
	assert.Equal(t, []int{3}, again.ReminderOffsets)
	assert.Equal(t, got.ID, again.ID, "still one row")
}

func TestChannelCredentials(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := createTestUser(t, db, "alice@example.com")

	_, err := db.GetChannelCredential(ctx, user.ID, models.ChannelCalendar)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.SaveChannelCredential(ctx, user.ID, models.ChannelCalendar, "sealed-token-v1"))
	sealed, err := db.GetChannelCredential(ctx, user.ID, models.ChannelCalendar)
	require.NoError(t, err)
	assert.Equal(t, "sealed-token-v1", sealed)

	// Saving again replaces the blob.
	require.NoError(t, db.SaveChannelCredential(ctx, user.ID, models.ChannelCalendar, "sealed-token-v2"))
	sealed, err = db.GetChannelCredential(ctx, user.ID, models.ChannelCalendar)
	require.NoError(t, err)
	assert.Equal(t, "sealed-token-v2", sealed)

	// Channels are independent.
	_, err = db.GetChannelCredential(ctx, user.ID, models.ChannelWhatsApp)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.DeleteChannelCredential(ctx, user.ID, models.ChannelCalendar))
	_, err = db.GetChannelCredential(ctx, user.ID, models.ChannelCalendar)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing credential is fine.
	require.NoError(t, db.DeleteChannelCredential(ctx, user.ID, models.ChannelCalendar))
}
