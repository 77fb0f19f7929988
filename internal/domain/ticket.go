package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen         TicketStatus = "open"
	TicketStatusTriaged      TicketStatus = "triaged"
	TicketStatusWaitingHuman TicketStatus = "waiting_human"
	TicketStatusResolved     TicketStatus = "resolved"
	TicketStatusClosed       TicketStatus = "closed"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusTriaged, TicketStatusWaitingHuman, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// Category is the support queue a ticket belongs to.
type Category string

const (
	CategoryBilling  Category = "billing"
	CategoryTech     Category = "tech"
	CategoryShipping Category = "shipping"
	CategoryOther    Category = "other"
)

// Categories lists every category in a stable order.
var Categories = []Category{CategoryBilling, CategoryTech, CategoryShipping, CategoryOther}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryBilling, CategoryTech, CategoryShipping, CategoryOther:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID                string
	Title             string
	Description       string
	Category          Category
	Status            TicketStatus
	CreatedBy         string
	AssigneeID        *string
	AgentSuggestionID *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Reply markers appended to the ticket description.
const (
	AutoReplyMarker  = "Auto Reply"
	AgentReplyMarker = "Agent Reply"
)

// AppendReply adds a reply block under marker to the description.
func (t *Ticket) AppendReply(marker, text string) {
	t.Description += "\n\n" + marker + ": " + text
}
