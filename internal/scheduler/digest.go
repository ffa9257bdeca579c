package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/remeh/sizedwaitgroup"
	"go.uber.org/zap"

	"github.com/toyoshi/solo-block-report-bot/internal/domain"
	"github.com/toyoshi/solo-block-report-bot/internal/report"
	"github.com/toyoshi/solo-block-report-bot/internal/store"
)

// DigestResult summarizes one digest tick.
type DigestResult struct {
	TickID    string        `json:"tick_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Clock     string        `json:"clock"`
	Due       int           `json:"due"`
	Sent      int64         `json:"sent"`
	Skipped   int64         `json:"skipped"`
	Failures  int64         `json:"failures"`
}

// Digest delivers the daily report to every user whose local digest time
// matches the current minute.
type Digest struct {
	repo        store.Repo
	gw          Gateway
	sender      Sender
	loc         *time.Location
	log         *zap.Logger
	concurrency int
	now         func() time.Time
}

func NewDigest(repo store.Repo, gw Gateway, sender Sender, loc *time.Location, log *zap.Logger, concurrency int) *Digest {
	if loc == nil {
		loc = time.UTC
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Digest{
		repo:        repo,
		gw:          gw,
		sender:      sender,
		loc:         loc,
		log:         log,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Tick runs one digest pass for the current minute.
func (d *Digest) Tick(ctx context.Context) DigestResult {
	return d.RunAt(ctx, d.now())
}

// RunAt runs the digest pass as if the clock read now. Users whose time
// matched an earlier minute are not caught up.
func (d *Digest) RunAt(ctx context.Context, now time.Time) (res DigestResult) {
	hour, minute := domain.LocalClock(now, d.loc)
	res = DigestResult{
		TickID:    uuid.NewString(),
		StartedAt: d.now().UTC(),
		Clock:     domain.FormatClock(hour, minute),
	}
	log := d.log.With(zap.String("tick", res.TickID), zap.String("clock", res.Clock))
	defer func() { res.Duration = d.now().Sub(res.StartedAt) }()

	users, err := d.repo.ListDueUsers(ctx, hour, minute)
	if err != nil {
		res.Failures = 1
		log.Error("list due users failed", zap.Error(err))
		return res
	}
	res.Due = len(users)
	if len(users) == 0 {
		return res
	}

	difficulty := d.difficulty(ctx)

	// users run concurrency-wide and fetch their workers one at a time, so a
	// tick never has more than concurrency pool requests in flight
	var sent, skipped, failures atomic.Int64
	swg := sizedwaitgroup.New(d.concurrency)
	for _, u := range users {
		if !u.DigestDue(hour, minute) {
			continue
		}
		swg.Add()
		go func(u domain.User) {
			defer swg.Done()
			defer func() {
				if r := recover(); r != nil {
					failures.Add(1)
					log.Error("digest panicked", zap.Int64("chat_id", u.ChatID), zap.Any("panic", r), zap.Stack("stack"))
				}
			}()

			ok, err := d.deliver(ctx, u.ChatID, now, difficulty, 1)
			switch {
			case err != nil:
				failures.Add(1)
				log.Error("send digest failed", zap.Int64("chat_id", u.ChatID), zap.Error(err))
			case !ok:
				skipped.Add(1)
			default:
				sent.Add(1)
			}
		}(u)
	}
	swg.Wait()

	res.Sent = sent.Load()
	res.Skipped = skipped.Load()
	res.Failures = failures.Load()
	log.Info("digest tick done",
		zap.Int("due", res.Due),
		zap.Int64("sent", res.Sent),
		zap.Int64("skipped", res.Skipped),
		zap.Int64("failures", res.Failures),
	)
	return res
}

// SendDigest builds and sends the daily report for one user right away.
// It returns false without sending when the user has no workers.
func (d *Digest) SendDigest(ctx context.Context, chatID int64) (bool, error) {
	return d.deliver(ctx, chatID, d.now(), d.difficulty(ctx), d.concurrency)
}

func (d *Digest) deliver(ctx context.Context, chatID int64, now time.Time, difficulty float64, limit int) (bool, error) {
	entries, err := d.gather(ctx, chatID, limit)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return false, nil
	}
	text := report.Digest(entries, report.View{Difficulty: difficulty, Now: now, Loc: d.loc})
	if err := d.sender.SendMessage(chatID, text); err != nil {
		return false, fmt.Errorf("send: %w", err)
	}
	return true, nil
}

// StatusReport renders the on-demand status for a user's workers. workers is
// zero (and text empty) when the user has none registered.
func (d *Digest) StatusReport(ctx context.Context, chatID int64) (text string, workers int, err error) {
	entries, err := d.gather(ctx, chatID, d.concurrency)
	if err != nil {
		return "", 0, err
	}
	if len(entries) == 0 {
		return "", 0, nil
	}
	v := report.View{Difficulty: d.difficulty(ctx), Now: d.now(), Loc: d.loc}
	return report.LiveStatus(entries, v), len(entries), nil
}

// gather loads the user's workers and one snapshot per worker, with at most
// limit pool requests in flight.
func (d *Digest) gather(ctx context.Context, chatID int64, limit int) ([]report.Entry, error) {
	workers, err := d.repo.ListWorkers(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	if len(workers) == 0 {
		return nil, nil
	}
	return collectEntries(ctx, d.gw, workers, limit), nil
}

// difficulty returns the network difficulty, or 0 when it is unavailable.
func (d *Digest) difficulty(ctx context.Context) float64 {
	v, ok := d.gw.FetchNetworkDifficulty(ctx)
	if !ok {
		return 0
	}
	return v
}
