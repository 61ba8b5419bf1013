package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Execer is satisfied by pgx.Tx and *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Repository reads transactional records from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Find loads the record identified by kind and id.
func (r *Repository) Find(ctx context.Context, kind Kind, id int64) (Record, error) {
	if r == nil || r.pool == nil {
		return Record{}, errors.New("records: repository not initialised")
	}
	t, ok := tables[kind]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	rec := Record{Kind: kind}
	query := fmt.Sprintf(`SELECT id, created_at, %s, is_closed FROM %s WHERE id=$1`, t.effectiveColumn, t.name)
	err := r.pool.QueryRow(ctx, query, id).Scan(&rec.ID, &rec.CreatedAt, &rec.EffectiveDate, &rec.IsClosed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// MarkClosed sets is_closed on every record of kind whose effective date is
// in [from, to). Already closed rows are left untouched so replays report zero.
func MarkClosed(ctx context.Context, db Execer, kind Kind, from, to time.Time) (int64, error) {
	t, ok := tables[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	query := fmt.Sprintf(`UPDATE %s SET is_closed=TRUE WHERE %s >= $1 AND %s < $2 AND NOT is_closed`, t.name, t.effectiveColumn, t.effectiveColumn)
	tag, err := db.Exec(ctx, query, from, to)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
