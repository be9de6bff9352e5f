package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ticketdesk/ticketdesk/internal/domain"
	"github.com/ticketdesk/ticketdesk/internal/events"
	"github.com/ticketdesk/ticketdesk/internal/repository"
	apperrors "github.com/ticketdesk/ticketdesk/pkg/util"
)

const (
	titleMinLen       = 3
	titleMaxLen       = 100
	descriptionMinLen = 5
	defaultPageSize   = 10
	maxPageSize       = 100
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
}

// TicketCreateInput describes the creation payload. A missing status
// defaults to open.
type TicketCreateInput struct {
	Title       string
	Description string
	Status      domain.TicketStatus
}

// TicketReplaceInput describes a full replacement: every field required.
type TicketReplaceInput struct {
	Title       string
	Description string
	Status      domain.TicketStatus
}

// TicketPatchInput describes a partial update: nil fields are untouched.
type TicketPatchInput struct {
	Title       *string
	Description *string
	Status      *domain.TicketStatus
}

// NewTicketService constructs the service.
func NewTicketService(tickets repository.TicketRepository, dispatcher events.Dispatcher) *TicketService {
	return &TicketService{tickets: tickets, dispatcher: dispatcher}
}

// Create stores a ticket owned by the given user. Ownership is fixed at
// this point and never reassigned.
func (s *TicketService) Create(ctx context.Context, ownerID string, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validateDescription(input.Description); err != nil {
		return nil, err
	}
	status := input.Status
	if status == "" {
		status = domain.TicketStatusOpen
	}
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", nil)
	}

	ticket := &domain.Ticket{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       title,
		Description: input.Description,
		Status:      status,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventTicketCreated, ownerID, ticket.ID)
	return ticket, nil
}

// Get returns the ticket when it exists and belongs to the caller. A
// foreign or missing ticket reports the same not-found, so ticket IDs
// do not leak across owners.
func (s *TicketService) Get(ctx context.Context, ownerID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByIDForOwner(ctx, ticketID, ownerID)
	if err != nil {
		return nil, mapTicketErr(err)
	}
	return ticket, nil
}

// List returns the caller's tickets with offset pagination.
func (s *TicketService) List(ctx context.Context, ownerID string, skip, limit int) ([]domain.Ticket, error) {
	skip, limit = clampPage(skip, limit)
	tickets, err := s.tickets.ListByOwner(ctx, ownerID, limit, skip)
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets, nil
}

// ListAll returns tickets across all owners, for administrators.
func (s *TicketService) ListAll(ctx context.Context, skip, limit int, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	for _, status := range statuses {
		if !status.Valid() {
			return nil, apperrors.NewValidationError("invalid status", nil)
		}
	}
	skip, limit = clampPage(skip, limit)
	tickets, err := s.tickets.List(ctx, repository.TicketFilter{
		Statuses: statuses,
		Limit:    limit,
		Offset:   skip,
	})
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets, nil
}

// Replace overwrites title, description and status, refreshing the
// update timestamp.
func (s *TicketService) Replace(ctx context.Context, ownerID, ticketID string, input TicketReplaceInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validateDescription(input.Description); err != nil {
		return nil, err
	}
	if !input.Status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", nil)
	}

	ticket, err := s.tickets.GetByIDForOwner(ctx, ticketID, ownerID)
	if err != nil {
		return nil, mapTicketErr(err)
	}

	ticket.Title = title
	ticket.Description = input.Description
	ticket.Status = input.Status
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, mapTicketErr(err)
	}

	s.publish(ctx, events.EventTicketUpdated, ownerID, ticket.ID)
	return ticket, nil
}

// Patch applies the provided fields only, refreshing the update
// timestamp.
func (s *TicketService) Patch(ctx context.Context, ownerID, ticketID string, input TicketPatchInput) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByIDForOwner(ctx, ticketID, ownerID)
	if err != nil {
		return nil, mapTicketErr(err)
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if err := validateTitle(title); err != nil {
			return nil, err
		}
		ticket.Title = title
	}
	if input.Description != nil {
		if err := validateDescription(*input.Description); err != nil {
			return nil, err
		}
		ticket.Description = *input.Description
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return nil, apperrors.NewValidationError("invalid status", nil)
		}
		ticket.Status = *input.Status
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, mapTicketErr(err)
	}

	s.publish(ctx, events.EventTicketUpdated, ownerID, ticket.ID)
	return ticket, nil
}

// Delete removes the caller's ticket.
func (s *TicketService) Delete(ctx context.Context, ownerID, ticketID string) error {
	if err := s.tickets.Delete(ctx, ticketID, ownerID); err != nil {
		return mapTicketErr(err)
	}
	s.publish(ctx, events.EventTicketDeleted, ownerID, ticketID)
	return nil
}

func (s *TicketService) publish(ctx context.Context, eventType events.EventType, actorID, ticketID string) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		Type:       eventType,
		ActorID:    actorID,
		TicketID:   ticketID,
		OccurredAt: time.Now(),
	})
}

// validateTitle expects the value already trimmed; limits count
// characters, not bytes.
func validateTitle(title string) error {
	if title == "" {
		return apperrors.NewValidationError("title must not be empty or whitespace", nil)
	}
	if n := utf8.RuneCountInString(title); n < titleMinLen || n > titleMaxLen {
		return apperrors.NewValidationError("title must be 3-100 characters", nil)
	}
	return nil
}

func validateDescription(description string) error {
	if utf8.RuneCountInString(description) < descriptionMinLen {
		return apperrors.NewValidationError("description must be at least 5 characters", nil)
	}
	return nil
}

func clampPage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return skip, limit
}

func mapTicketErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("ticket")
	}
	return err
}
