package domain

import "time"

// Tag labels tickets; attached idempotently by escalation actions.
type Tag struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
}
