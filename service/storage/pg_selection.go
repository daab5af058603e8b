package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"ChatSync/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// OpenPg connects a pool and checks it with one round trip.
func OpenPg(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errs.WrapMsg(err, "postgres connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.WrapMsg(err, "postgres ping")
	}
	return pool, nil
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PgSelections stores one row per user: (user_id, channel_id, updated_at).
type PgSelections struct {
	pool  *pgxpool.Pool
	table string // already quoted
	ttl   time.Duration
	now   func() time.Time
}

// NewPgSelections creates the table if needed.
func NewPgSelections(ctx context.Context, pool *pgxpool.Pool, table string, ttl time.Duration) (*PgSelections, error) {
	if !tableName.MatchString(table) {
		return nil, errs.ErrArgs.WrapMsg("bad selection table name", "table", table)
	}
	s := &PgSelections{
		pool:  pool,
		table: pgx.Identifier{table}.Sanitize(),
		ttl:   ttl,
		now:   time.Now,
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	user_id    TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, errs.WrapMsg(err, "create selection table", "table", table)
	}
	return s, nil
}

func (s *PgSelections) SaveSelection(ctx context.Context, user, channelID string) error {
	if user == "" || channelID == "" {
		return errs.ErrArgs.WrapMsg("save selection", "user", user, "channel", channelID)
	}
	q := fmt.Sprintf(`INSERT INTO %s (user_id, channel_id, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET channel_id = EXCLUDED.channel_id, updated_at = EXCLUDED.updated_at`, s.table)
	_, err := s.pool.Exec(ctx, q, user, channelID, s.now().UTC())
	return errs.Wrap(err)
}

// LoadSelection returns "" when nothing is remembered or the row is older than the TTL.
func (s *PgSelections) LoadSelection(ctx context.Context, user string) (string, error) {
	var (
		channelID string
		updatedAt time.Time
	)
	q := fmt.Sprintf(`SELECT channel_id, updated_at FROM %s WHERE user_id = $1`, s.table)
	err := s.pool.QueryRow(ctx, q, user).Scan(&channelID, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errs.Wrap(err)
	}
	if s.ttl > 0 && !s.now().Before(updatedAt.Add(s.ttl)) {
		return "", nil
	}
	return channelID, nil
}

func (s *PgSelections) ClearSelection(ctx context.Context, user string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, s.table), user)
	return errs.Wrap(err)
}
