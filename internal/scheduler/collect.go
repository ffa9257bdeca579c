package scheduler

import (
	"context"

	"github.com/remeh/sizedwaitgroup"

	"github.com/toyoshi/solo-block-report-bot/internal/domain"
	"github.com/toyoshi/solo-block-report-bot/internal/report"
)

// collectEntries fetches one snapshot per worker with at most limit requests
// in flight. The result keeps the order of workers; a failed fetch leaves a
// nil Snapshot.
func collectEntries(ctx context.Context, gw Gateway, workers []domain.Worker, limit int) []report.Entry {
	entries := make([]report.Entry, len(workers))
	if limit < 1 {
		limit = 1
	}
	swg := sizedwaitgroup.New(limit)
	for i, w := range workers {
		entries[i].Worker = w
		swg.Add()
		go func(i int, addr string) {
			defer swg.Done()
			if s, ok := gw.FetchWorkerStats(ctx, addr); ok {
				entries[i].Snapshot = &s
			}
		}(i, w.Address)
	}
	swg.Wait()
	return entries
}
