package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/belgrano/ticketera/internal/domain"
	"github.com/belgrano/ticketera/internal/events"
)

// Sentinel errors surfaced by the store. The service layer maps them to the
// caller-facing error kinds.
var (
	ErrNotFound                = errors.New("ticket not found")
	ErrDuplicateExternalNumber = errors.New("external number already exists")
	ErrVersionConflict         = errors.New("ticket version conflict")
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	AssigneeID *string
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence. Writes are transactional:
// the ticket row and its domain event commit or roll back together, so an
// event can never be observed for state the store did not keep.
type TicketRepository interface {
	// Insert persists a new ticket and its created event atomically.
	// Returns ErrDuplicateExternalNumber when the external number is taken.
	Insert(ctx context.Context, ticket *domain.Ticket, event *events.Event) error
	// UpdateVersioned persists a mutated ticket and its event atomically,
	// guarded by expectedVersion. Returns ErrVersionConflict when the stored
	// version moved on, ErrNotFound when the ticket does not exist.
	UpdateVersioned(ctx context.Context, ticket *domain.Ticket, expectedVersion int64, event *events.Event) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByExternalNumber(ctx context.Context, externalNumber string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, external_number, customer_name, customer_address, customer_phone, customer_email,
               items, status, priority, assignee_id, notes, courier_note, version,
               created_at, updated_at, assigned_at, delivered_at`

func (r *ticketRepository) Insert(ctx context.Context, ticket *domain.Ticket, event *events.Event) error {
	items, err := json.Marshal(ticket.Items)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        INSERT INTO tickets (id, external_number, customer_name, customer_address, customer_phone, customer_email,
                             items, status, priority, assignee_id, notes, courier_note, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	if _, err := tx.Exec(ctx, query,
		ticket.ID,
		ticket.ExternalNumber,
		ticket.Customer.Name,
		ticket.Customer.Address,
		ticket.Customer.Phone,
		ticket.Customer.Email,
		items,
		ticket.Status,
		ticket.Priority,
		ticket.AssigneeID,
		ticket.Notes,
		ticket.CourierNote,
		ticket.Version,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateExternalNumber
		}
		return err
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) UpdateVersioned(ctx context.Context, ticket *domain.Ticket, expectedVersion int64, event *events.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        UPDATE tickets SET status=$1, priority=$2, assignee_id=$3, courier_note=$4, version=$5,
            updated_at=$6, assigned_at=$7, delivered_at=$8
        WHERE id=$9 AND version=$10`
	cmd, err := tx.Exec(ctx, query,
		ticket.Status,
		ticket.Priority,
		ticket.AssigneeID,
		ticket.CourierNote,
		ticket.Version,
		ticket.UpdatedAt,
		ticket.AssignedAt,
		ticket.DeliveredAt,
		ticket.ID,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByExternalNumber(ctx context.Context, externalNumber string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE external_number=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, externalNumber)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := fmt.Sprintf(`SELECT %s FROM tickets`, ticketColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var items []byte
	if err := row.Scan(
		&ticket.ID,
		&ticket.ExternalNumber,
		&ticket.Customer.Name,
		&ticket.Customer.Address,
		&ticket.Customer.Phone,
		&ticket.Customer.Email,
		&items,
		&ticket.Status,
		&ticket.Priority,
		&ticket.AssigneeID,
		&ticket.Notes,
		&ticket.CourierNote,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.AssignedAt,
		&ticket.DeliveredAt,
	); err != nil {
		return nil, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &ticket.Items); err != nil {
			return nil, err
		}
	}
	return &ticket, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, event *events.Event) error {
	if event == nil {
		return nil
	}
	snapshot, err := json.Marshal(event.Ticket)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO ticket_events (id, ticket_id, event_type, version, previous_status, previous_assignee,
                                   reason, actor_kind, actor_id, snapshot, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err = tx.Exec(ctx, query,
		event.ID,
		event.TicketID,
		event.Type,
		event.Version,
		event.PreviousStatus,
		event.PreviousAssignee,
		event.Reason,
		event.Actor.Kind,
		event.Actor.ID,
		snapshot,
		event.Timestamp,
	)
	return err
}
