package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/belgrano/ticketera/internal/domain"
)

// ErrCourierNotFound is returned when a courier id resolves to no account.
var ErrCourierNotFound = errors.New("courier not found")

// CourierRepository is the delivery-staff directory. The lifecycle engine
// only ever asks "is this a valid, active courier"; credential storage stays
// with the external identity provider.
type CourierRepository interface {
	Create(ctx context.Context, courier *domain.Courier) error
	GetByID(ctx context.Context, id string) (*domain.Courier, error)
	List(ctx context.Context) ([]domain.Courier, error)
}

type courierRepository struct {
	pool *pgxpool.Pool
}

// NewCourierRepository instantiates the Postgres-backed directory.
func NewCourierRepository(pool *pgxpool.Pool) CourierRepository {
	return &courierRepository{pool: pool}
}

func (r *courierRepository) Create(ctx context.Context, courier *domain.Courier) error {
	const query = `
        INSERT INTO couriers (id, name, email, active)
        VALUES ($1,$2,$3,$4)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		courier.ID,
		courier.Name,
		courier.Email,
		courier.Active,
	).Scan(&courier.CreatedAt, &courier.UpdatedAt)
}

func (r *courierRepository) GetByID(ctx context.Context, id string) (*domain.Courier, error) {
	const query = `
        SELECT id, name, email, active, created_at, updated_at
        FROM couriers WHERE id=$1`
	var courier domain.Courier
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&courier.ID,
		&courier.Name,
		&courier.Email,
		&courier.Active,
		&courier.CreatedAt,
		&courier.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCourierNotFound
		}
		return nil, err
	}
	return &courier, nil
}

func (r *courierRepository) List(ctx context.Context) ([]domain.Courier, error) {
	const query = `
        SELECT id, name, email, active, created_at, updated_at
        FROM couriers ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Courier
	for rows.Next() {
		var courier domain.Courier
		if err := rows.Scan(
			&courier.ID,
			&courier.Name,
			&courier.Email,
			&courier.Active,
			&courier.CreatedAt,
			&courier.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, courier)
	}
	return result, rows.Err()
}
