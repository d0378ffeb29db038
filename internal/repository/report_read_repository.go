package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ReportReadRepository tracks which closed tracker issues a user acknowledged.
// It is independent of the notification store.
type ReportReadRepository interface {
	ListSeen(ctx context.Context, login string, externalIDs []int64) (map[int64]bool, error)
	MarkSeen(ctx context.Context, login string, externalIDs []int64) error
}

type reportReadRepository struct {
	pool *pgxpool.Pool
}

// NewReportReadRepository builds repository.
func NewReportReadRepository(pool *pgxpool.Pool) ReportReadRepository {
	return &reportReadRepository{pool: pool}
}

func (r *reportReadRepository) ListSeen(ctx context.Context, login string, externalIDs []int64) (map[int64]bool, error) {
	seen := make(map[int64]bool, len(externalIDs))
	if len(externalIDs) == 0 {
		return seen, nil
	}
	const query = `SELECT external_id FROM report_reads WHERE login=$1 AND external_id = ANY($2)`
	rows, err := r.pool.Query(ctx, query, login, externalIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		seen[id] = true
	}
	return seen, rows.Err()
}

func (r *reportReadRepository) MarkSeen(ctx context.Context, login string, externalIDs []int64) error {
	if len(externalIDs) == 0 {
		return nil
	}
	const query = `
        INSERT INTO report_reads (login, external_id)
        SELECT $1, unnest($2::bigint[])
        ON CONFLICT (login, external_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, login, externalIDs)
	return err
}
