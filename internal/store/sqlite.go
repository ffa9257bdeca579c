package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/toyoshi/solo-block-report-bot/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single writer; also makes the compare-and-set in MarkHitNotified
	// trivially serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db, now: time.Now}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const userColumns = `chat_id, username, first_name, hour, minute, active,
	created_at, updated_at, last_active_at`

func scanUser(s rowScanner) (*domain.User, error) {
	var (
		u          domain.User
		activeInt  int
		createdAt  int64
		updatedAt  int64
		lastActive sql.NullInt64
	)
	if err := s.Scan(
		&u.ChatID, &u.Username, &u.FirstName, &u.Hour, &u.Minute, &activeInt,
		&createdAt, &updatedAt, &lastActive,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Active = activeInt != 0
	u.CreatedAt = fromUnix(createdAt)
	u.UpdatedAt = fromUnix(updatedAt)
	u.LastActiveAt = fromNullInt64(lastActive)
	return &u, nil
}

// TouchUser inserts the user with default settings or refreshes its profile.
func (r *SQLiteRepo) TouchUser(ctx context.Context, chatID int64, username, firstName string) (*domain.User, error) {
	now := r.now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
			chat_id, username, first_name, hour, minute, active,
			created_at, updated_at, last_active_at
		) VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			username       = CASE WHEN excluded.username <> '' THEN excluded.username ELSE users.username END,
			first_name     = CASE WHEN excluded.first_name <> '' THEN excluded.first_name ELSE users.first_name END,
			last_active_at = excluded.last_active_at,
			updated_at     = excluded.updated_at`,
		chatID, username, firstName, domain.DefaultHour, domain.DefaultMinute,
		now.Unix(), now.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("touch user: %w", err)
	}
	return r.GetUser(ctx, chatID)
}

// GetUser returns a user by chatID or ErrNotFound.
func (r *SQLiteRepo) GetUser(ctx context.Context, chatID int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE chat_id = ?`, chatID)
	return scanUser(row)
}

// SetActive toggles the digest for a user.
func (r *SQLiteRepo) SetActive(ctx context.Context, chatID int64, active bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET active = ?, updated_at = ?
		WHERE chat_id = ?`,
		boolToInt(active), r.now().UTC().Unix(), chatID,
	)
	return affectedOne(res, err)
}

// SetNotifyTime stores the digest time and re-activates the user.
func (r *SQLiteRepo) SetNotifyTime(ctx context.Context, chatID int64, hour, minute int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET hour = ?, minute = ?, active = 1, updated_at = ?
		WHERE chat_id = ?`,
		hour, minute, r.now().UTC().Unix(), chatID,
	)
	return affectedOne(res, err)
}

// ListDueUsers returns active users scheduled for hour:minute, ordered by chat id.
func (r *SQLiteRepo) ListDueUsers(ctx context.Context, hour, minute int) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE active = 1 AND hour = ? AND minute = ?
		ORDER BY chat_id ASC`,
		hour, minute,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// UpsertWorker adds a worker or replaces the address of an existing label
// in place, keeping its id. A changed address drops the hit state, since the
// old address's record says nothing about the new one.
func (r *SQLiteRepo) UpsertWorker(ctx context.Context, chatID int64, label, address string) (bool, error) {
	now := r.now().UTC().Unix()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM hit_states
		WHERE worker_id IN (
			SELECT id FROM workers WHERE chat_id = ? AND label = ? AND address <> ?
		)`,
		chatID, label, address,
	); err != nil {
		return false, fmt.Errorf("reset hit state: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE workers
		SET address = ?, updated_at = ?
		WHERE chat_id = ? AND label = ?`,
		address, now, chatID, label,
	)
	if err != nil {
		return false, fmt.Errorf("update worker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	created := n == 0
	if created {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO workers (chat_id, label, address, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			chatID, label, address, now, now,
		); err != nil {
			return false, fmt.Errorf("insert worker: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return created, nil
}

// DeleteWorker removes a worker by label; its hit state goes with it.
func (r *SQLiteRepo) DeleteWorker(ctx context.Context, chatID int64, label string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM workers WHERE chat_id = ? AND label = ?`, chatID, label)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListWorkers returns a user's workers in registration order.
func (r *SQLiteRepo) ListWorkers(ctx context.Context, chatID int64) ([]domain.Worker, error) {
	return r.queryWorkers(ctx, `
		SELECT id, chat_id, label, address, created_at, updated_at
		FROM workers
		WHERE chat_id = ?
		ORDER BY id ASC`, chatID)
}

// ListAllWorkers returns every worker of every user, read in one statement.
func (r *SQLiteRepo) ListAllWorkers(ctx context.Context) ([]domain.Worker, error) {
	return r.queryWorkers(ctx, `
		SELECT id, chat_id, label, address, created_at, updated_at
		FROM workers
		ORDER BY id ASC`)
}

func (r *SQLiteRepo) queryWorkers(ctx context.Context, query string, args ...any) ([]domain.Worker, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Worker
	for rows.Next() {
		var (
			w                    domain.Worker
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&w.ID, &w.ChatID, &w.Label, &w.Address, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		w.CreatedAt = fromUnix(createdAt)
		w.UpdatedAt = fromUnix(updatedAt)
		res = append(res, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// GetHitState returns the stored state or a zero state for workerID.
func (r *SQLiteRepo) GetHitState(ctx context.Context, workerID int64) (*domain.HitState, error) {
	var (
		h      = domain.HitState{WorkerID: workerID}
		lastNS sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT last_notified_best_share, last_hit_at
		FROM hit_states
		WHERE worker_id = ?`,
		workerID,
	).Scan(&h.LastNotifiedBestShare, &lastNS)
	if errors.Is(err, sql.ErrNoRows) {
		return &h, nil
	}
	if err != nil {
		return nil, err
	}
	h.LastHitAt = fromNullInt64(lastNS)
	return &h, nil
}

// MarkHitNotified is a compare-and-set: the row is written only when
// bestShare is strictly greater than the stored value.
func (r *SQLiteRepo) MarkHitNotified(ctx context.Context, workerID int64, bestShare float64, at time.Time) (bool, error) {
	if bestShare <= 0 {
		return false, nil
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO hit_states (worker_id, last_notified_best_share, last_hit_at)
		VALUES (?, ?, ?)
		ON CONFLICT(worker_id) DO UPDATE SET
			last_notified_best_share = excluded.last_notified_best_share,
			last_hit_at              = excluded.last_hit_at
		WHERE excluded.last_notified_best_share > hit_states.last_notified_best_share`,
		workerID, bestShare, at.UTC().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("mark hit notified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LogCommand appends an entry to the command audit log.
func (r *SQLiteRepo) LogCommand(ctx context.Context, chatID int64, command, params string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO command_logs (chat_id, command, parameters, executed_at)
		VALUES (?, ?, ?, ?)`,
		chatID, clip(command, maxCommandLen), clip(params, maxParamsLen), r.now().UTC().Unix(),
	)
	return err
}

// CommandUsage counts commands executed since the given time, most used first.
func (r *SQLiteRepo) CommandUsage(ctx context.Context, since time.Time) ([]CommandCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT command, COUNT(id) AS usage_count
		FROM command_logs
		WHERE executed_at >= ?
		GROUP BY command
		ORDER BY usage_count DESC, command ASC`,
		since.UTC().Unix(),
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

// ActiveUsers ranks users by the number of commands since the given time.
func (r *SQLiteRepo) ActiveUsers(ctx context.Context, since time.Time) ([]UserActivity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT chat_id, COUNT(id) AS command_count
		FROM command_logs
		WHERE executed_at >= ?
		GROUP BY chat_id
		ORDER BY command_count DESC, chat_id ASC`,
		since.UTC().Unix(),
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

// HourlyDistribution counts commands per UTC hour of the day.
func (r *SQLiteRepo) HourlyDistribution(ctx context.Context, since time.Time) ([]HourCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT CAST(strftime('%H', executed_at, 'unixepoch') AS INTEGER) AS hour, COUNT(id)
		FROM command_logs
		WHERE executed_at >= ?
		GROUP BY hour
		ORDER BY hour ASC`,
		since.UTC().Unix(),
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

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
