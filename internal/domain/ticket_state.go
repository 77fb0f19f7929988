package domain

import "fmt"

// TransitionError reports a status change the state machine does not allow.
type TransitionError struct {
	From  TicketStatus
	To    TicketStatus
	Actor AuditActor
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s not allowed for %s", e.From, e.To, e.Actor)
}

// ticketTransitions maps from -> to -> the only actor allowed to move it.
// triaged -> triaged lets a retried triage run re-enter its own step.
var ticketTransitions = map[TicketStatus]map[TicketStatus]AuditActor{
	TicketStatusOpen: {
		TicketStatusTriaged: ActorSystem,
	},
	TicketStatusTriaged: {
		TicketStatusTriaged:      ActorSystem,
		TicketStatusResolved:     ActorSystem,
		TicketStatusWaitingHuman: ActorSystem,
	},
	TicketStatusWaitingHuman: {
		TicketStatusResolved: ActorAgent,
		TicketStatusClosed:   ActorAgent,
	},
	TicketStatusResolved: {},
	TicketStatusClosed:   {},
}

// CheckTransition validates that actor may move a ticket from -> to.
func CheckTransition(from, to TicketStatus, actor AuditActor) error {
	allowed, ok := ticketTransitions[from][to]
	if !ok || allowed != actor {
		return &TransitionError{From: from, To: to, Actor: actor}
	}
	return nil
}

// Transition applies a validated status change to the ticket.
func (t *Ticket) Transition(to TicketStatus, actor AuditActor) error {
	if err := CheckTransition(t.Status, to, actor); err != nil {
		return err
	}
	t.Status = to
	return nil
}

// Triageable reports whether the triage worker may still process the ticket.
func (t *Ticket) Triageable() bool {
	return t.Status == TicketStatusOpen || t.Status == TicketStatusTriaged
}

// Terminal reports whether no further core transitions exist.
func (s TicketStatus) Terminal() bool {
	return len(ticketTransitions[s]) == 0
}
