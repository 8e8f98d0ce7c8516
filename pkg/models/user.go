package models

// User represents a Telegram user known to the bot.
type User struct {
	TelegramID          int64  `json:"telegram_id" db:"telegram_id"`
	Username            string `json:"username" db:"username"`
	FirstName           string `json:"first_name" db:"first_name"`
	NotificationEnabled bool   `json:"notification_enabled" db:"notification_enabled"`
	NotificationHour    int    `json:"notification_hour" db:"notification_hour"` // Hour of day for the daily phrase (0-23)
}
