package domain

import "time"

// Department represents a support queue with an optional default SLA policy.
type Department struct {
	ID                 string
	Name               string
	Slug               string
	Email              string
	DefaultSlaPolicyID *string
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
