package service

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketdesk/ticketdesk/internal/domain"
	"github.com/ticketdesk/ticketdesk/internal/repository"
	apperrors "github.com/ticketdesk/ticketdesk/pkg/util"
)

type fakeTicketRepo struct {
	byID map[string]*domain.Ticket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{byID: map[string]*domain.Ticket{}}
}

func (f *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	now := time.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	clone := *ticket
	f.byID[ticket.ID] = &clone
	return nil
}

func (f *fakeTicketRepo) GetByIDForOwner(_ context.Context, id, ownerID string) (*domain.Ticket, error) {
	ticket, ok := f.byID[id]
	if !ok || ticket.OwnerID != ownerID {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (f *fakeTicketRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.Ticket, error) {
	return f.List(ctx, repository.TicketFilter{OwnerID: &ownerID, Limit: limit, Offset: offset})
}

func (f *fakeTicketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var all []domain.Ticket
	for _, ticket := range f.byID {
		if filter.OwnerID != nil && ticket.OwnerID != *filter.OwnerID {
			continue
		}
		if len(filter.Statuses) > 0 {
			match := false
			for _, status := range filter.Statuses {
				if ticket.Status == status {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		all = append(all, *ticket)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })

	if filter.Offset >= len(all) {
		return nil, nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil
}

func (f *fakeTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	stored, ok := f.byID[ticket.ID]
	if !ok || stored.OwnerID != ticket.OwnerID {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = time.Now()
	clone := *ticket
	clone.CreatedAt = stored.CreatedAt
	f.byID[ticket.ID] = &clone
	return nil
}

func (f *fakeTicketRepo) Delete(_ context.Context, id, ownerID string) error {
	ticket, ok := f.byID[id]
	if !ok || ticket.OwnerID != ownerID {
		return pgx.ErrNoRows
	}
	delete(f.byID, id)
	return nil
}

func newTestTicketService() (*TicketService, *fakeTicketRepo) {
	repo := newFakeTicketRepo()
	return NewTicketService(repo, nil), repo
}

func TestCreateTicketDefaultsToOpen(t *testing.T) {
	svc, _ := newTestTicketService()

	ticket, err := svc.Create(context.Background(), "owner-1", TicketCreateInput{
		Title:       "Printer on fire",
		Description: "The office printer is literally on fire",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, "owner-1", ticket.OwnerID)
	assert.NotEmpty(t, ticket.ID)
	assert.False(t, ticket.CreatedAt.IsZero())
}

func TestCreateTicketValidation(t *testing.T) {
	svc, _ := newTestTicketService()
	ctx := context.Background()

	cases := []struct {
		name  string
		input TicketCreateInput
	}{
		{"title too short", TicketCreateInput{Title: "ab", Description: "valid description"}},
		{"title two multibyte chars", TicketCreateInput{Title: "日本", Description: "valid description"}},
		{"title whitespace only", TicketCreateInput{Title: "     ", Description: "valid description"}},
		{"title padded below minimum", TicketCreateInput{Title: "  a  ", Description: "valid description"}},
		{"description too short", TicketCreateInput{Title: "Valid title", Description: "abcd"}},
		{"description four multibyte chars", TicketCreateInput{Title: "Valid title", Description: "あいうえ"}},
		{"bad status", TicketCreateInput{Title: "Valid title", Description: "valid description", Status: "resolved"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, "owner-1", tc.input)
			require.Error(t, err)
			assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
		})
	}
}

func TestTicketLimitsCountCharactersNotBytes(t *testing.T) {
	svc, _ := newTestTicketService()
	ctx := context.Background()

	// 60 multibyte characters is well inside the 100-character maximum
	// even though the byte length is far above it.
	longTitle := strings.Repeat("あ", 60)
	ticket, err := svc.Create(ctx, "owner-1", TicketCreateInput{
		Title:       longTitle,
		Description: "a long multibyte title should be accepted",
	})
	require.NoError(t, err)
	assert.Equal(t, longTitle, ticket.Title)

	// Five multibyte characters meet the description minimum.
	_, err = svc.Create(ctx, "owner-1", TicketCreateInput{
		Title:       "Valid title",
		Description: "データが消えた",
	})
	require.NoError(t, err)
}

func TestCreateTicketStoresTrimmedTitle(t *testing.T) {
	svc, _ := newTestTicketService()

	ticket, err := svc.Create(context.Background(), "owner-1", TicketCreateInput{
		Title:       "  Printer broken  ",
		Description: "The printer stopped working",
	})
	require.NoError(t, err)
	assert.Equal(t, "Printer broken", ticket.Title)

	stored, err := svc.Get(context.Background(), "owner-1", ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "Printer broken", stored.Title)
}

func TestGetTicketScopedToOwner(t *testing.T) {
	svc, _ := newTestTicketService()
	ctx := context.Background()

	ticket, err := svc.Create(ctx, "owner-1", TicketCreateInput{
		Title: "VPN down", Description: "Cannot reach the VPN since morning",
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, "owner-1", ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, got.ID)

	_, foreignErr := svc.Get(ctx, "owner-2", ticket.ID)
	require.Error(t, foreignErr)
	_, missingErr := svc.Get(ctx, "owner-1", "no-such-id")
	require.Error(t, missingErr)

	// Foreign and missing tickets are indistinguishable.
	assert.Equal(t,
		apperrors.ToDomainError(missingErr).Message,
		apperrors.ToDomainError(foreignErr).Message)
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(foreignErr).Code)
}

func TestReplaceTicketRefreshesTimestamp(t *testing.T) {
	svc, _ := newTestTicketService()
	ctx := context.Background()

	ticket, err := svc.Create(ctx, "owner-1", TicketCreateInput{
		Title: "Slow laptop", Description: "Laptop takes minutes to boot",
	})
	require.NoError(t, err)
	createdAt := ticket.CreatedAt

	time.Sleep(5 * time.Millisecond)
	updated, err := svc.Replace(ctx, "owner-1", ticket.ID, TicketReplaceInput{
		Title:       "Slow laptop after update",
		Description: "Laptop takes minutes to boot since the last update",
		Status:      domain.TicketStatusInProgress,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	assert.True(t, updated.UpdatedAt.After(createdAt))
}

func TestPatchTicketPartialUpdate(t *testing.T) {
	svc, _ := newTestTicketService()
	ctx := context.Background()

	ticket, err := svc.Create(ctx, "owner-1", TicketCreateInput{
		Title: "Broken keyboard", Description: "Several keys stopped working",
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	status := domain.TicketStatusClosed
	patched, err := svc.Patch(ctx, "owner-1", ticket.ID, TicketPatchInput{Status: &status})
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusClosed, patched.Status)
	assert.Equal(t, ticket.Title, patched.Title)
	assert.Equal(t, ticket.Description, patched.Description)
	assert.True(t, patched.UpdatedAt.After(ticket.UpdatedAt))
}

func TestPatchTicketValidatesProvidedFields(t *testing.T) {
	svc, _ := newTestTicketService()
	ctx := context.Background()

	ticket, err := svc.Create(ctx, "owner-1", TicketCreateInput{
		Title: "Broken keyboard", Description: "Several keys stopped working",
	})
	require.NoError(t, err)

	badTitle := "  "
	_, err = svc.Patch(ctx, "owner-1", ticket.ID, TicketPatchInput{Title: &badTitle})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
}

func TestDeleteTicketScopedToOwner(t *testing.T) {
	svc, _ := newTestTicketService()
	ctx := context.Background()

	ticket, err := svc.Create(ctx, "owner-1", TicketCreateInput{
		Title: "Monitor flicker", Description: "External monitor flickers constantly",
	})
	require.NoError(t, err)

	err = svc.Delete(ctx, "owner-2", ticket.ID)
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)

	require.NoError(t, svc.Delete(ctx, "owner-1", ticket.ID))
	_, err = svc.Get(ctx, "owner-1", ticket.ID)
	require.Error(t, err)
}

func TestListScopedAndPaginated(t *testing.T) {
	svc, _ := newTestTicketService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, "owner-1", TicketCreateInput{
			Title: "Owner one ticket", Description: "A ticket belonging to owner one",
		})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, "owner-2", TicketCreateInput{
		Title: "Owner two ticket", Description: "A ticket belonging to owner two",
	})
	require.NoError(t, err)

	mine, err := svc.List(ctx, "owner-1", 0, 10)
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	page, err := svc.List(ctx, "owner-1", 2, 10)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	empty, err := svc.List(ctx, "owner-3", 0, 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Len(t, empty, 0)
}

func TestListAllSpansOwners(t *testing.T) {
	svc, _ := newTestTicketService()
	ctx := context.Background()

	_, err := svc.Create(ctx, "owner-1", TicketCreateInput{
		Title: "First ticket", Description: "Ticket from the first owner",
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "owner-2", TicketCreateInput{
		Title: "Second ticket", Description: "Ticket from the second owner", Status: domain.TicketStatusClosed,
	})
	require.NoError(t, err)

	all, err := svc.ListAll(ctx, 0, 10, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	closed, err := svc.ListAll(ctx, 0, 10, []domain.TicketStatus{domain.TicketStatusClosed})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "owner-2", closed[0].OwnerID)
}
