package limiter

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed fixed-window limiter shared by all server processes.
type PG struct {
	pool   pgxQuerier
	window time.Duration
	limit  int
}

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(pool *pgxpool.Pool, window time.Duration, limit int) *PG {
	return &PG{pool: pool, window: window, limit: limit}
}

// NewPGWithQuerier constructs a PostgreSQL-backed limiter.
func NewPGWithQuerier(q pgxQuerier, window time.Duration, limit int) *PG {
	return &PG{pool: q, window: window, limit: limit}
}

// Allow counts the attempt in the current window, opening a new window when
// the previous one has expired. The database clock is authoritative.
func (l *PG) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	const q = `
INSERT INTO send_limiter (key, window_start, hits)
VALUES ($1, now(), 1)
ON CONFLICT (key) DO UPDATE
SET
  hits = CASE WHEN send_limiter.window_start + $2::interval <= now() THEN 1 ELSE send_limiter.hits + 1 END,
  window_start = CASE WHEN send_limiter.window_start + $2::interval <= now() THEN now() ELSE send_limiter.window_start END
RETURNING hits, window_start, now()`
	var (
		hits        int
		windowStart time.Time
		now         time.Time
	)
	if err := l.pool.QueryRow(ctx, q, key, l.window).Scan(&hits, &windowStart, &now); err != nil {
		return false, 0, err
	}
	if hits > l.limit {
		retry := windowStart.Add(l.window).Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return false, retry, nil
	}
	return true, 0, nil
}
