package models

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultReminderOffsets is used when a user has no explicit setting.
var DefaultReminderOffsets = []int{7, 3, 1}

// UserSettings stores per-user notification preferences.
// Exactly one active row exists per user; a missing row reads as defaults.
type UserSettings struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	RemindersEnabled bool      `json:"reminders_enabled"`
	ReminderOffsets  []int     `json:"reminder_offsets"`
	EmailEnabled     bool      `json:"email_enabled"`
	WhatsAppEnabled  bool      `json:"whatsapp_enabled"`
	TelegramEnabled  bool      `json:"telegram_enabled"`
	CalendarEnabled  bool      `json:"calendar_enabled"`
	PushEnabled      bool      `json:"push_enabled"`
	TelegramChatID   int64     `json:"telegram_chat_id,omitempty"`
	WhatsAppNumber   string    `json:"whatsapp_number,omitempty"`
	Timezone         string    `json:"timezone,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DefaultUserSettings returns the defaults for a user without a settings row.
func DefaultUserSettings(userID int64) *UserSettings {
	return &UserSettings{
		UserID:           userID,
		RemindersEnabled: true,
		ReminderOffsets:  append([]int(nil), DefaultReminderOffsets...),
		EmailEnabled:     true,
		PushEnabled:      true,
		Timezone:         "UTC",
	}
}

// ParseOffsets parses a comma-separated offset list like "7,3,1".
// Invalid and negative entries are dropped, duplicates collapsed, result
// sorted descending. An empty result falls back to the defaults.
func ParseOffsets(s string) []int {
	seen := make(map[int]bool)
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	if len(out) == 0 {
		return append([]int(nil), DefaultReminderOffsets...)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// FormatOffsets renders offsets back to the stored "7,3,1" form.
func FormatOffsets(offsets []int) string {
	parts := make([]string, 0, len(offsets))
	for _, n := range offsets {
		parts = append(parts, strconv.Itoa(n))
	}
	return strings.Join(parts, ",")
}
