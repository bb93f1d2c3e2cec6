package domain

import "time"

// PriorityHours maps a ticket priority to a target measured in hours.
// A missing entry means no target is tracked for that priority.
type PriorityHours map[TicketPriority]float64

// HoursFor returns the target hours for a priority, or nil when the
// policy carries no target for it.
func (h PriorityHours) HoursFor(priority TicketPriority) *float64 {
	if h == nil {
		return nil
	}
	hours, ok := h[priority]
	if !ok {
		return nil
	}
	return &hours
}

// SlaPolicy defines per-priority response and resolution commitments.
type SlaPolicy struct {
	ID                 string
	Name               string
	Description        string
	FirstResponseHours PriorityHours
	ResolutionHours    PriorityHours
	IsActive           bool
	IsDefault          bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// FirstResponseHoursFor returns the first-response target for a priority.
func (p *SlaPolicy) FirstResponseHoursFor(priority TicketPriority) *float64 {
	return p.FirstResponseHours.HoursFor(priority)
}

// ResolutionHoursFor returns the resolution target for a priority.
func (p *SlaPolicy) ResolutionHoursFor(priority TicketPriority) *float64 {
	return p.ResolutionHours.HoursFor(priority)
}
