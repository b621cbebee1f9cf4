package model

import "time"

// Activity types used by the mailbox subsystem.
const (
	ActivityMail = "mail"
	ActivityCard = "card"
)

// MaxActivityEntries bounds the activity log. Older entries are dropped.
const MaxActivityEntries = 50

// ActivityEntry is one line of the bounded activity log.
type ActivityEntry struct {
	ID        string    `json:"id" db:"id"`
	Type      string    `json:"type" db:"type"`
	Text      string    `json:"text" db:"text"`
	User      string    `json:"user" db:"user"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
