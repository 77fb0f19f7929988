package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-labs/triage-service/internal/api/dto"
	"github.com/helpdesk-labs/triage-service/internal/service"
	apperrors "github.com/helpdesk-labs/triage-service/pkg/util/errorutil"
)

// StaffTicketsHandler handles agent and admin ticket work.
type StaffTicketsHandler struct {
	tickets *service.TicketService
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(ticketService *service.TicketService) *StaffTicketsHandler {
	return &StaffTicketsHandler{tickets: ticketService}
}

// ListWaiting GET /tickets/unassigned.
func (h *StaffTicketsHandler) ListWaiting(c *fiber.Ctx) error {
	limit, offset := parsePage(c)
	tickets, total, err := h.tickets.ListWaiting(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketListResponse{
		Items:  dto.TicketsFromDomain(tickets),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}})
}

// Assign POST /tickets/:id/assign.
func (h *StaffTicketsHandler) Assign(c *fiber.Ctx) error {
	staff, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	ticket, err := h.tickets.Assign(c.UserContext(), *staff, c.Params("id"), req.AssigneeID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketFromDomain(ticket)})
}

// Reply POST /tickets/:id/reply.
func (h *StaffTicketsHandler) Reply(c *fiber.Ctx) error {
	staff, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.Reply(c.UserContext(), *staff, c.Params("id"), service.ReplyInput{
		Body:   req.Reply,
		Status: req.Status,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketFromDomain(ticket)})
}
