package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-labs/triage-service/internal/api/dto"
	"github.com/helpdesk-labs/triage-service/internal/observability"
	"github.com/helpdesk-labs/triage-service/internal/queue"
	"github.com/helpdesk-labs/triage-service/internal/service"
	apperrors "github.com/helpdesk-labs/triage-service/pkg/util/errorutil"
)

// AdminHandler serves triage settings, queue maintenance and metrics.
type AdminHandler struct {
	settings *service.SettingsService
	queue    queue.Queue
	metrics  *observability.Metrics
}

// NewAdminHandler constructs handler.
func NewAdminHandler(settings *service.SettingsService, q queue.Queue, metrics *observability.Metrics) *AdminHandler {
	return &AdminHandler{settings: settings, queue: q, metrics: metrics}
}

// GetSettings GET /admin/settings.
func (h *AdminHandler) GetSettings(c *fiber.Ctx) error {
	cfg, err := h.settings.Current(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": cfg})
}

// PutSettings PUT /admin/settings.
func (h *AdminHandler) PutSettings(c *fiber.Ctx) error {
	var req dto.SettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if !req.Complete() {
		return apperrors.NewValidationError("autoCloseEnabled, confidenceThreshold and slaHours are required", nil)
	}
	cfg, err := h.settings.Replace(c.UserContext(), req.ToDomain())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": cfg})
}

// DeadLetters GET /admin/queue/dead-letters.
func (h *AdminHandler) DeadLetters(c *fiber.Ctx) error {
	limit := parseInt(c.Query("limit"), 50)
	jobs, err := h.queue.DeadLetters(c.UserContext(), limit)
	if err != nil {
		return apperrors.MapError(err)
	}
	stats, err := h.queue.Stats(c.UserContext())
	if err != nil {
		return apperrors.MapError(err)
	}
	if jobs == nil {
		jobs = []queue.Job{}
	}
	return c.JSON(fiber.Map{"data": dto.DeadLettersResponse{Items: jobs, Stats: stats}})
}

// GetJob GET /admin/queue/jobs/:id.
func (h *AdminHandler) GetJob(c *fiber.Ctx) error {
	job, err := h.queue.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return queueError(err, c.Params("id"))
	}
	return c.JSON(fiber.Map{"data": job})
}

// Requeue POST /admin/queue/jobs/:id/requeue.
func (h *AdminHandler) Requeue(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.queue.Requeue(c.UserContext(), id); err != nil {
		return queueError(err, id)
	}
	job, err := h.queue.Get(c.UserContext(), id)
	if err != nil {
		return queueError(err, id)
	}
	return c.JSON(fiber.Map{"data": job})
}

// Metrics GET /admin/metrics.
func (h *AdminHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}

func queueError(err error, id string) error {
	switch {
	case errors.Is(err, queue.ErrJobNotFound):
		return apperrors.NewNotFound("job", map[string]any{"job_id": id})
	case errors.Is(err, queue.ErrNotDead):
		return apperrors.NewConflict("job is not dead-lettered", map[string]any{"job_id": id})
	}
	return apperrors.MapError(err)
}
