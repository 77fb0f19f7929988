package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    TicketStatus
		to      TicketStatus
		actor   AuditActor
		allowed bool
	}{
		{"worker triages open ticket", TicketStatusOpen, TicketStatusTriaged, ActorSystem, true},
		{"agent cannot triage", TicketStatusOpen, TicketStatusTriaged, ActorAgent, false},
		{"open cannot jump to resolved", TicketStatusOpen, TicketStatusResolved, ActorSystem, false},
		{"retry re-enters triaged", TicketStatusTriaged, TicketStatusTriaged, ActorSystem, true},
		{"worker auto resolves", TicketStatusTriaged, TicketStatusResolved, ActorSystem, true},
		{"worker escalates", TicketStatusTriaged, TicketStatusWaitingHuman, ActorSystem, true},
		{"user cannot escalate", TicketStatusTriaged, TicketStatusWaitingHuman, ActorUser, false},
		{"agent resolves", TicketStatusWaitingHuman, TicketStatusResolved, ActorAgent, true},
		{"agent closes", TicketStatusWaitingHuman, TicketStatusClosed, ActorAgent, true},
		{"worker cannot leave waiting_human", TicketStatusWaitingHuman, TicketStatusResolved, ActorSystem, false},
		{"resolved is terminal", TicketStatusResolved, TicketStatusClosed, ActorAgent, false},
		{"closed is terminal", TicketStatusClosed, TicketStatusOpen, ActorAgent, false},
		{"never back to open", TicketStatusTriaged, TicketStatusOpen, ActorSystem, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTransition(tt.from, tt.to, tt.actor)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			var transitionErr *TransitionError
			require.True(t, errors.As(err, &transitionErr))
			assert.Equal(t, tt.from, transitionErr.From)
			assert.Equal(t, tt.to, transitionErr.To)
		})
	}
}

func TestTicketTransitionLeavesStatusOnError(t *testing.T) {
	ticket := &Ticket{Status: TicketStatusOpen}
	require.Error(t, ticket.Transition(TicketStatusWaitingHuman, ActorSystem))
	assert.Equal(t, TicketStatusOpen, ticket.Status)

	require.NoError(t, ticket.Transition(TicketStatusTriaged, ActorSystem))
	require.NoError(t, ticket.Transition(TicketStatusWaitingHuman, ActorSystem))
	assert.Equal(t, TicketStatusWaitingHuman, ticket.Status)
	assert.False(t, ticket.Triageable())
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, TicketStatusResolved.Terminal())
	assert.True(t, TicketStatusClosed.Terminal())
	assert.False(t, TicketStatusWaitingHuman.Terminal())
}

func TestAppendReply(t *testing.T) {
	ticket := &Ticket{Description: "My package never arrived"}
	ticket.AppendReply(AutoReplyMarker, "It is on its way")
	assert.Equal(t, "My package never arrived\n\nAuto Reply: It is on its way", ticket.Description)
}
