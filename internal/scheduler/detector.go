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

// CycleResult summarizes one detector cycle.
type CycleResult struct {
	TickID     string        `json:"tick_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	Aborted    bool          `json:"aborted"`
	Difficulty float64       `json:"difficulty"`
	Workers    int           `json:"workers"`
	Unreadable int64         `json:"unreadable"`
	Hits       int64         `json:"hits"`
	Alerts     int64         `json:"alerts"`
	Suppressed int64         `json:"suppressed"`
	Failures   int64         `json:"failures"`
}

// Detector checks every registered worker for a best share at or above the
// network difficulty and alerts the owner once per new record.
type Detector struct {
	repo        store.Repo
	gw          Gateway
	sender      Sender
	log         *zap.Logger
	concurrency int
	now         func() time.Time
}

func NewDetector(repo store.Repo, gw Gateway, sender Sender, log *zap.Logger, concurrency int) *Detector {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Detector{
		repo:        repo,
		gw:          gw,
		sender:      sender,
		log:         log,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// RunCycle performs one detection pass. Without a network difficulty the
// cycle is aborted before any worker is looked at.
func (d *Detector) RunCycle(ctx context.Context) (res CycleResult) {
	res = CycleResult{TickID: uuid.NewString(), StartedAt: d.now().UTC()}
	log := d.log.With(zap.String("tick", res.TickID))
	defer func() { res.Duration = d.now().Sub(res.StartedAt) }()

	difficulty, ok := d.gw.FetchNetworkDifficulty(ctx)
	if !ok {
		res.Aborted = true
		log.Warn("network difficulty unavailable, skipping cycle")
		return res
	}
	res.Difficulty = difficulty

	workers, err := d.repo.ListAllWorkers(ctx)
	if err != nil {
		res.Aborted = true
		log.Error("list workers failed", zap.Error(err))
		return res
	}
	res.Workers = len(workers)

	var unreadable, hits, alerts, suppressed, failures atomic.Int64
	swg := sizedwaitgroup.New(d.concurrency)
	for _, w := range workers {
		swg.Add()
		go func(w domain.Worker) {
			defer swg.Done()
			defer func() {
				if r := recover(); r != nil {
					failures.Add(1)
					log.Error("worker check panicked",
						zap.Int64("worker_id", w.ID),
						zap.Any("panic", r),
						zap.Stack("stack"),
					)
				}
			}()

			switch out, err := d.checkWorker(ctx, w, difficulty); {
			case err != nil:
				failures.Add(1)
				log.Error("worker check failed",
					zap.Int64("worker_id", w.ID),
					zap.String("address", w.Address),
					zap.Error(err),
				)
			case out == outcomeUnreadable:
				unreadable.Add(1)
			case out == outcomeSuppressed:
				hits.Add(1)
				suppressed.Add(1)
			case out == outcomeAlerted:
				hits.Add(1)
				alerts.Add(1)
			case out == outcomeAlertFailed:
				hits.Add(1)
				failures.Add(1)
			}
		}(w)
	}
	swg.Wait()

	res.Unreadable = unreadable.Load()
	res.Hits = hits.Load()
	res.Alerts = alerts.Load()
	res.Suppressed = suppressed.Load()
	res.Failures = failures.Load()

	log.Info("hit check done",
		zap.Int("workers", res.Workers),
		zap.Float64("difficulty", difficulty),
		zap.Int64("hits", res.Hits),
		zap.Int64("alerts", res.Alerts),
		zap.Int64("suppressed", res.Suppressed),
		zap.Int64("unreadable", res.Unreadable),
		zap.Int64("failures", res.Failures),
	)
	return res
}

type outcome int

const (
	outcomeBelow outcome = iota
	outcomeUnreadable
	outcomeSuppressed
	outcomeAlerted
	outcomeAlertFailed
)

// checkWorker evaluates one worker. The hit state is committed before the
// alert goes out, so a failed delivery is not retried on the next cycle.
func (d *Detector) checkWorker(ctx context.Context, w domain.Worker, difficulty float64) (outcome, error) {
	snap, ok := d.gw.FetchWorkerStats(ctx, w.Address)
	if !ok {
		return outcomeUnreadable, nil
	}
	best := snap.BestShare
	if !domain.IsHit(best, difficulty) {
		return outcomeBelow, nil
	}

	notified, err := d.repo.MarkHitNotified(ctx, w.ID, best, d.now())
	if err != nil {
		return outcomeBelow, fmt.Errorf("mark hit: %w", err)
	}
	if !notified {
		d.log.Debug("hit already notified",
			zap.Int64("worker_id", w.ID),
			zap.Float64("best_share", best),
		)
		return outcomeSuppressed, nil
	}

	text := report.HitAlert(w, best, difficulty, d.gw.WorkerURL(w.Address))
	if err := d.sender.SendMessage(w.ChatID, text); err != nil {
		d.log.Error("send hit alert failed",
			zap.Int64("chat_id", w.ChatID),
			zap.Int64("worker_id", w.ID),
			zap.Error(err),
		)
		return outcomeAlertFailed, nil
	}
	d.log.Info("hit alert sent",
		zap.Int64("chat_id", w.ChatID),
		zap.String("label", w.Label),
		zap.Float64("best_share", best),
		zap.Float64("difficulty", difficulty),
	)
	return outcomeAlerted, nil
}
