package store

import (
	"context"
	"errors"
	"time"

	"github.com/toyoshi/solo-block-report-bot/internal/domain"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// CommandCount is one row of the command usage report.
type CommandCount struct {
	Command string
	Count   int64
}

// UserActivity is one row of the active users report.
type UserActivity struct {
	ChatID int64
	Count  int64
}

// HourCount is the number of commands executed in one UTC hour of the day.
type HourCount struct {
	Hour  int
	Count int64
}

// Repo is the registry of users and workers plus the per-worker hit state.
type Repo interface {
	// TouchUser creates the user on first contact or refreshes its profile
	// and last activity. Empty username/firstName keep the stored values.
	TouchUser(ctx context.Context, chatID int64, username, firstName string) (*domain.User, error)
	GetUser(ctx context.Context, chatID int64) (*domain.User, error)
	SetActive(ctx context.Context, chatID int64, active bool) error
	// SetNotifyTime sets the digest time and re-activates the user.
	SetNotifyTime(ctx context.Context, chatID int64, hour, minute int) error
	// ListDueUsers returns active users whose digest time is hour:minute.
	ListDueUsers(ctx context.Context, hour, minute int) ([]domain.User, error)

	// UpsertWorker adds a worker or replaces the address of an existing label.
	UpsertWorker(ctx context.Context, chatID int64, label, address string) (created bool, err error)
	DeleteWorker(ctx context.Context, chatID int64, label string) (bool, error)
	ListWorkers(ctx context.Context, chatID int64) ([]domain.Worker, error)
	ListAllWorkers(ctx context.Context) ([]domain.Worker, error)

	// GetHitState returns a zero state when none was recorded yet.
	GetHitState(ctx context.Context, workerID int64) (*domain.HitState, error)
	// MarkHitNotified records bestShare only if it exceeds the stored value
	// and reports whether it did.
	MarkHitNotified(ctx context.Context, workerID int64, bestShare float64, at time.Time) (bool, error)

	LogCommand(ctx context.Context, chatID int64, command, params string) error
	CommandUsage(ctx context.Context, since time.Time) ([]CommandCount, error)
	// ActiveUsers ranks users by commands executed since the given time.
	ActiveUsers(ctx context.Context, since time.Time) ([]UserActivity, error)
	// HourlyDistribution counts commands per UTC hour, ordered by hour.
	HourlyDistribution(ctx context.Context, since time.Time) ([]HourCount, error)

	Ping(ctx context.Context) error
	Close() error
}

const (
	maxCommandLen = 50
	maxParamsLen  = 255
)

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
