package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-labs/triage-service/internal/api/dto"
	"github.com/helpdesk-labs/triage-service/internal/auth"
	"github.com/helpdesk-labs/triage-service/internal/domain"
	"github.com/helpdesk-labs/triage-service/internal/service"
	apperrors "github.com/helpdesk-labs/triage-service/pkg/util/errorutil"
)

// TicketsHandler serves ticket endpoints shared by every role.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, traceID, err := h.service.CreateTicket(c.UserContext(), *principal, service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.CreateTicketResponse{
		Ticket:  dto.TicketFromDomain(ticket),
		TraceID: traceID,
	}})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	limit, offset := parsePage(c)
	filter := service.TicketListFilter{Limit: limit, Offset: offset}
	if status := c.Query("status"); status != "" {
		s := domain.TicketStatus(status)
		filter.Status = &s
	}
	tickets, total, err := h.service.ListTickets(c.UserContext(), *principal, filter)
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

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	detail, err := h.service.GetTicket(c.UserContext(), *principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketDetailResponse{
		Ticket:     dto.TicketFromDomain(detail.Ticket),
		Suggestion: dto.SuggestionFromDomain(detail.Suggestion),
	}})
}

// GetAudit GET /tickets/:id/audit.
func (h *TicketsHandler) GetAudit(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	entries, err := h.service.AuditTrail(c.UserContext(), *principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuditFromDomain(entries)})
}

// GetTrace GET /audit/traces/:traceId.
func (h *TicketsHandler) GetTrace(c *fiber.Ctx) error {
	entries, err := h.service.TraceTrail(c.UserContext(), c.Params("traceId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuditFromDomain(entries)})
}

func requirePrincipal(c *fiber.Ctx) (*domain.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func parsePage(c *fiber.Ctx) (limit, offset int) {
	limit = parseInt(c.Query("limit"), 10)
	if limit > 100 {
		limit = 100
	}
	offset, err := strconv.Atoi(c.Query("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
