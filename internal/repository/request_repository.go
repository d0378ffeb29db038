package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/picto-request-service/internal/domain"
)

// ErrVersionConflict signals that the row changed since it was read.
var ErrVersionConflict = errors.New("request was modified concurrently")

// RequestFilter captures listing parameters.
type RequestFilter struct {
	RequesterLogin *string
	AssigneeLogin  *string
	Statuses       []domain.Status
	Limit          int
	Offset         int
}

// RequestRepository encapsulates request persistence.
type RequestRepository interface {
	Create(ctx context.Context, req *domain.Request) error
	// Update writes req if its Version still matches the stored row and bumps it.
	Update(ctx context.Context, req *domain.Request) error
	GetByID(ctx context.Context, id string) (*domain.Request, error)
	List(ctx context.Context, filter RequestFilter) ([]domain.Request, error)
}

type requestRepository struct {
	pool *pgxpool.Pool
}

// NewRequestRepository instantiates repository.
func NewRequestRepository(pool *pgxpool.Pool) RequestRepository {
	return &requestRepository{pool: pool}
}

const requestColumns = `id, requester_login, requester_name, title, description, reference_image_key, urgency,
               status, assignee_login, delivered_asset_id, rejection_reason, version, created_at, updated_at`

func (r *requestRepository) Create(ctx context.Context, req *domain.Request) error {
	const query = `
        INSERT INTO picto_requests (requester_login, requester_name, title, description, reference_image_key, urgency, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, version, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		req.RequesterLogin,
		req.RequesterName,
		req.Title,
		req.Description,
		req.ReferenceImageKey,
		req.Urgency,
		req.Status,
	).Scan(&req.ID, &req.Version, &req.CreatedAt, &req.UpdatedAt)
}

func (r *requestRepository) Update(ctx context.Context, req *domain.Request) error {
	const query = `
        UPDATE picto_requests SET status=$1, assignee_login=$2, delivered_asset_id=$3, rejection_reason=$4,
            version=version+1, updated_at=NOW()
        WHERE id=$5 AND version=$6
        RETURNING version, updated_at`
	err := r.pool.QueryRow(ctx, query,
		req.Status,
		req.AssigneeLogin,
		req.DeliveredAssetID,
		req.RejectionReason,
		req.ID,
		req.Version,
	).Scan(&req.Version, &req.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, req.ID); getErr != nil {
			return getErr
		}
		return ErrVersionConflict
	}
	return err
}

func (r *requestRepository) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM picto_requests WHERE id=$1`
	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter) ([]domain.Request, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.RequesterLogin != nil {
		args = append(args, *filter.RequesterLogin)
		clauses = append(clauses, fmt.Sprintf("requester_login=$%d", len(args)))
	}
	if filter.AssigneeLogin != nil {
		args = append(args, *filter.AssigneeLogin)
		clauses = append(clauses, fmt.Sprintf("assignee_login=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM picto_requests WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		requestColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *req)
	}
	return result, rows.Err()
}

func scanRequest(row pgx.Row) (*domain.Request, error) {
	var req domain.Request
	if err := row.Scan(
		&req.ID,
		&req.RequesterLogin,
		&req.RequesterName,
		&req.Title,
		&req.Description,
		&req.ReferenceImageKey,
		&req.Urgency,
		&req.Status,
		&req.AssigneeLogin,
		&req.DeliveredAssetID,
		&req.RejectionReason,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &req, nil
}
