package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/picto-request-service/internal/domain"
)

// HistoryRepository is the append-only ledger of request transitions.
// It deliberately exposes no update or delete.
type HistoryRepository interface {
	Append(ctx context.Context, entry *domain.HistoryEntry) error
	ListByRequest(ctx context.Context, requestID string) ([]domain.HistoryEntry, error)
}

type historyRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository builds repository.
func NewHistoryRepository(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepository{pool: pool}
}

func (r *historyRepository) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	const query = `
        INSERT INTO picto_request_history (request_id, actor_login, action, from_status, to_status, detail)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.RequestID,
		entry.ActorLogin,
		entry.Action,
		entry.FromStatus,
		entry.ToStatus,
		entry.Detail,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *historyRepository) ListByRequest(ctx context.Context, requestID string) ([]domain.HistoryEntry, error) {
	const query = `
        SELECT id, request_id, actor_login, action, from_status, to_status, detail, created_at
        FROM picto_request_history WHERE request_id=$1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.HistoryEntry
	for rows.Next() {
		var entry domain.HistoryEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.RequestID,
			&entry.ActorLogin,
			&entry.Action,
			&entry.FromStatus,
			&entry.ToStatus,
			&entry.Detail,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
