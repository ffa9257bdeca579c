package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toyoshi/solo-block-report-bot/internal/domain"
)

// PostgresRepo implements Repo on a pgx connection pool.
type PostgresRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// OpenPostgres connects to dsn, verifies the connection and runs migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresRepo, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := runPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return &PostgresRepo{pool: pool, now: time.Now}, nil
}

func (r *PostgresRepo) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanPgUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(
		&u.ChatID, &u.Username, &u.FirstName, &u.Hour, &u.Minute, &u.Active,
		&u.CreatedAt, &u.UpdatedAt, &u.LastActiveAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	if u.LastActiveAt != nil {
		t := u.LastActiveAt.UTC()
		u.LastActiveAt = &t
	}
	return &u, nil
}

func (r *PostgresRepo) TouchUser(ctx context.Context, chatID int64, username, firstName string) (*domain.User, error) {
	now := r.now().UTC()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (
			chat_id, username, first_name, hour, minute, active,
			created_at, updated_at, last_active_at
		) VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6, $6)
		ON CONFLICT (chat_id) DO UPDATE SET
			username       = CASE WHEN excluded.username <> '' THEN excluded.username ELSE users.username END,
			first_name     = CASE WHEN excluded.first_name <> '' THEN excluded.first_name ELSE users.first_name END,
			last_active_at = excluded.last_active_at,
			updated_at     = excluded.updated_at
		RETURNING `+userColumns,
		chatID, username, firstName, domain.DefaultHour, domain.DefaultMinute, now,
	)
	u, err := scanPgUser(row)
	if err != nil {
		return nil, fmt.Errorf("touch user: %w", err)
	}
	return u, nil
}

func (r *PostgresRepo) GetUser(ctx context.Context, chatID int64) (*domain.User, error) {
	return scanPgUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE chat_id = $1`, chatID))
}

func (r *PostgresRepo) SetActive(ctx context.Context, chatID int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET active = $1, updated_at = $2 WHERE chat_id = $3`,
		active, r.now().UTC(), chatID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) SetNotifyTime(ctx context.Context, chatID int64, hour, minute int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET hour = $1, minute = $2, active = TRUE, updated_at = $3 WHERE chat_id = $4`,
		hour, minute, r.now().UTC(), chatID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) ListDueUsers(ctx context.Context, hour, minute int) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE active AND hour = $1 AND minute = $2
		ORDER BY chat_id ASC`,
		hour, minute,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanPgUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

// UpsertWorker relies on xmax = 0 to tell an insert from an update. A changed
// address drops the hit state.
func (r *PostgresRepo) UpsertWorker(ctx context.Context, chatID int64, label, address string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM hit_states
		WHERE worker_id IN (
			SELECT id FROM workers WHERE chat_id = $1 AND label = $2 AND address <> $3
		)`,
		chatID, label, address,
	); err != nil {
		return false, fmt.Errorf("reset hit state: %w", err)
	}

	var created bool
	err = tx.QueryRow(ctx, `
		INSERT INTO workers (chat_id, label, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (chat_id, label) DO UPDATE SET
			address    = excluded.address,
			updated_at = excluded.updated_at
		RETURNING (xmax = 0)`,
		chatID, label, address, r.now().UTC(),
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert worker: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return created, nil
}

func (r *PostgresRepo) DeleteWorker(ctx context.Context, chatID int64, label string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM workers WHERE chat_id = $1 AND label = $2`, chatID, label)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepo) ListWorkers(ctx context.Context, chatID int64) ([]domain.Worker, error) {
	return r.queryWorkers(ctx, `
		SELECT id, chat_id, label, address, created_at, updated_at
		FROM workers
		WHERE chat_id = $1
		ORDER BY id ASC`, chatID)
}

func (r *PostgresRepo) ListAllWorkers(ctx context.Context) ([]domain.Worker, error) {
	return r.queryWorkers(ctx, `
		SELECT id, chat_id, label, address, created_at, updated_at
		FROM workers
		ORDER BY id ASC`)
}

func (r *PostgresRepo) queryWorkers(ctx context.Context, query string, args ...any) ([]domain.Worker, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Worker
	for rows.Next() {
		var w domain.Worker
		if err := rows.Scan(&w.ID, &w.ChatID, &w.Label, &w.Address, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		w.CreatedAt = w.CreatedAt.UTC()
		w.UpdatedAt = w.UpdatedAt.UTC()
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r *PostgresRepo) GetHitState(ctx context.Context, workerID int64) (*domain.HitState, error) {
	h := domain.HitState{WorkerID: workerID}
	err := r.pool.QueryRow(ctx, `
		SELECT last_notified_best_share, last_hit_at
		FROM hit_states
		WHERE worker_id = $1`,
		workerID,
	).Scan(&h.LastNotifiedBestShare, &h.LastHitAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &h, nil
	}
	if err != nil {
		return nil, err
	}
	if h.LastHitAt != nil {
		t := h.LastHitAt.UTC()
		h.LastHitAt = &t
	}
	return &h, nil
}

func (r *PostgresRepo) MarkHitNotified(ctx context.Context, workerID int64, bestShare float64, at time.Time) (bool, error) {
	if bestShare <= 0 {
		return false, nil
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO hit_states (worker_id, last_notified_best_share, last_hit_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (worker_id) DO UPDATE SET
			last_notified_best_share = excluded.last_notified_best_share,
			last_hit_at              = excluded.last_hit_at
		WHERE excluded.last_notified_best_share > hit_states.last_notified_best_share`,
		workerID, bestShare, at.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("mark hit notified: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepo) LogCommand(ctx context.Context, chatID int64, command, params string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO command_logs (chat_id, command, parameters, executed_at)
		VALUES ($1, $2, $3, $4)`,
		chatID, clip(command, maxCommandLen), clip(params, maxParamsLen), r.now().UTC(),
	)
	return err
}

func (r *PostgresRepo) CommandUsage(ctx context.Context, since time.Time) ([]CommandCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT command, COUNT(id) AS usage_count
		FROM command_logs
		WHERE executed_at >= $1
		GROUP BY command
		ORDER BY usage_count DESC, command ASC`,
		since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []CommandCount
	for rows.Next() {
		var c CommandCount
		if err := rows.Scan(&c.Command, &c.Count); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *PostgresRepo) ActiveUsers(ctx context.Context, since time.Time) ([]UserActivity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT chat_id, COUNT(id) AS command_count
		FROM command_logs
		WHERE executed_at >= $1
		GROUP BY chat_id
		ORDER BY command_count DESC, chat_id ASC`,
		since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []UserActivity
	for rows.Next() {
		var a UserActivity
		if err := rows.Scan(&a.ChatID, &a.Count); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r *PostgresRepo) HourlyDistribution(ctx context.Context, since time.Time) ([]HourCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT EXTRACT(HOUR FROM executed_at AT TIME ZONE 'UTC')::int AS hour, COUNT(id)
		FROM command_logs
		WHERE executed_at >= $1
		GROUP BY hour
		ORDER BY hour ASC`,
		since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []HourCount
	for rows.Next() {
		var h HourCount
		if err := rows.Scan(&h.Hour, &h.Count); err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}
