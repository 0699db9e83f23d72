package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/belgrano/ticketera/internal/events"
)

// EventRepository reads the per-ticket event log for reconnect replay.
// Appends happen inside TicketRepository writes so that the ticket row and
// its event share one transaction.
type EventRepository interface {
	// ListByTicketSince returns events with version > afterVersion, ordered
	// by version ascending.
	ListByTicketSince(ctx context.Context, ticketID string, afterVersion int64) ([]events.Event, error)
	// OldestVersion returns the lowest retained event version for the
	// ticket, or 0 when no events are retained. A watermark older than this
	// cannot be replayed and forces the snapshot path.
	OldestVersion(ctx context.Context, ticketID string) (int64, error)
}

type eventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository instantiates the Postgres-backed event log reader.
func NewEventRepository(pool *pgxpool.Pool) EventRepository {
	return &eventRepository{pool: pool}
}

func (r *eventRepository) ListByTicketSince(ctx context.Context, ticketID string, afterVersion int64) ([]events.Event, error) {
	const query = `
        SELECT id, ticket_id, event_type, version, previous_status, previous_assignee,
               reason, actor_kind, actor_id, snapshot, created_at
        FROM ticket_events WHERE ticket_id=$1 AND version > $2 ORDER BY version ASC`
	rows, err := r.pool.Query(ctx, query, ticketID, afterVersion)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []events.Event
	for rows.Next() {
		var ev events.Event
		var snapshot []byte
		if err := rows.Scan(
			&ev.ID,
			&ev.TicketID,
			&ev.Type,
			&ev.Version,
			&ev.PreviousStatus,
			&ev.PreviousAssignee,
			&ev.Reason,
			&ev.Actor.Kind,
			&ev.Actor.ID,
			&snapshot,
			&ev.Timestamp,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(snapshot, &ev.Ticket); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

func (r *eventRepository) OldestVersion(ctx context.Context, ticketID string) (int64, error) {
	const query = `SELECT COALESCE(MIN(version), 0) FROM ticket_events WHERE ticket_id=$1`
	var version int64
	if err := r.pool.QueryRow(ctx, query, ticketID).Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}
