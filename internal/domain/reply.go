package domain

import "time"

// Reply is a message on a ticket thread. Internal replies are visible to
// agents only; system replies are authored by automation (nil AuthorID).
type Reply struct {
	ID         string
	TicketID   string
	AuthorID   *string
	Body       string
	IsInternal bool
	IsSystem   bool
	CreatedAt  time.Time
}

// Public reports whether the reply is visible to the requester.
func (r *Reply) Public() bool {
	return !r.IsInternal
}
