package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ticketdesk/ticketdesk/internal/domain"
	"github.com/ticketdesk/ticketdesk/internal/service"
)

// AdminHandler exposes administrator-only endpoints. The role gate runs
// in the route group, before these handlers.
type AdminHandler struct {
	service *service.TicketService
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(ticketService *service.TicketService) *AdminHandler {
	return &AdminHandler{service: ticketService}
}

// ListTickets handles GET /admin/tickets across all owners.
func (h *AdminHandler) ListTickets(c *fiber.Ctx) error {
	skip, limit := parsePagination(c)

	var statuses []domain.TicketStatus
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			statuses = append(statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}

	tickets, err := h.service.ListAll(c.UserContext(), skip, limit, statuses)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponses(tickets)})
}
