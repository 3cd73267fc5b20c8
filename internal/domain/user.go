package domain

import "time"

// User is a registered platform user. DiscordID is the user's linked Discord
// account; nil until the user connects one.
type User struct {
	ID        string
	Username  string
	Email     string
	DiscordID *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
