package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/toyoshi/solo-block-report-bot/internal/domain"
)

func (r *Router) handleStart(ctx context.Context, chatID int64, _ string) error {
	if err := r.repo.SetActive(ctx, chatID, true); err != nil {
		return err
	}
	r.audit(ctx, chatID, "start", "")
	r.reply(chatID, startText)
	return nil
}

func (r *Router) handleHelp(ctx context.Context, chatID int64, _ string) error {
	r.audit(ctx, chatID, "help", "")
	r.reply(chatID, helpText)
	return nil
}

func (r *Router) handleAddWorker(ctx context.Context, chatID int64, args string) error {
	if args == "" {
		r.audit(ctx, chatID, "add_worker", "help_requested")
		r.reply(chatID, addWorkerUsage)
		return nil
	}
	r.audit(ctx, chatID, "add_worker", args)

	label, address, err := domain.ParseWorkerArgs(args)
	switch {
	case errors.Is(err, domain.ErrInvalidAddress):
		r.reply(chatID, invalidAddressText)
		return nil
	case errors.Is(err, domain.ErrWorkerArgs) && len(strings.Fields(args)) == 2:
		r.reply(chatID, labelTooLongText)
		return nil
	case err != nil:
		r.reply(chatID, addWorkerUsage)
		return nil
	}

	created, err := r.repo.UpsertWorker(ctx, chatID, label, address)
	if err != nil {
		return fmt.Errorf("upsert worker: %w", err)
	}
	format := workerUpdatedFmt
	if created {
		format = workerAddedFmt
	}
	text := fmt.Sprintf(format, label, address)
	if kind := domain.DescribeAddress(address); kind != "" {
		text += fmt.Sprintf(addressTypeFmt, kind)
	}
	r.reply(chatID, text)
	return nil
}

func (r *Router) handleRemoveWorker(ctx context.Context, chatID int64, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		r.reply(chatID, removeWorkerUsage)
		return nil
	}
	label := fields[0]
	r.audit(ctx, chatID, "remove_worker", label)

	removed, err := r.repo.DeleteWorker(ctx, chatID, label)
	if err != nil {
		return fmt.Errorf("delete worker: %w", err)
	}
	if removed {
		r.reply(chatID, fmt.Sprintf(workerRemovedFmt, label))
	} else {
		r.reply(chatID, fmt.Sprintf(workerNotFoundFmt, label))
	}
	return nil
}

func (r *Router) handleListWorkers(ctx context.Context, chatID int64, _ string) error {
	r.audit(ctx, chatID, "list_workers", "")
	workers, err := r.repo.ListWorkers(ctx, chatID)
	if err != nil {
		return fmt.Errorf("list workers: %w", err)
	}
	if len(workers) == 0 {
		r.reply(chatID, noWorkersText)
		return nil
	}
	lines := []string{workersTitle}
	for _, w := range workers {
		line := "• " + w.Label + ": " + w.Address
		if kind := domain.DescribeAddress(w.Address); kind != "" {
			line += " (" + kind + ")"
		}
		lines = append(lines, line)
	}
	r.reply(chatID, strings.Join(lines, "\n"))
	return nil
}

// handleCheck serves both /check and /now.
func (r *Router) handleCheck(ctx context.Context, chatID int64, _ string) error {
	r.audit(ctx, chatID, "check", "")
	workers, err := r.repo.ListWorkers(ctx, chatID)
	if err != nil {
		return fmt.Errorf("list workers: %w", err)
	}
	if len(workers) == 0 {
		r.reply(chatID, noWorkersCheckText)
		return nil
	}
	r.reply(chatID, fmt.Sprintf(fetchingFmt, len(workers)))

	text, n, err := r.reports.StatusReport(ctx, chatID)
	if err != nil {
		return fmt.Errorf("status report: %w", err)
	}
	if n == 0 {
		r.reply(chatID, noWorkersCheckText)
		return nil
	}
	r.reply(chatID, text)
	return nil
}

func (r *Router) handleTime(ctx context.Context, chatID int64, args string) error {
	hour, minute, err := domain.ParseClock(args)
	if err != nil {
		r.audit(ctx, chatID, "time", args)
		r.reply(chatID, invalidTimeText)
		return nil
	}
	r.audit(ctx, chatID, "time", fmt.Sprintf("%d:%d", hour, minute))
	if err := r.repo.SetNotifyTime(ctx, chatID, hour, minute); err != nil {
		return fmt.Errorf("set notify time: %w", err)
	}
	r.reply(chatID, fmt.Sprintf(timeSetFmt, domain.FormatClock(hour, minute), r.zone))
	return nil
}

func (r *Router) handleStatus(ctx context.Context, chatID int64, _ string) error {
	r.audit(ctx, chatID, "status", "")
	u, err := r.repo.GetUser(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	workers, err := r.repo.ListWorkers(ctx, chatID)
	if err != nil {
		return fmt.Errorf("list workers: %w", err)
	}

	state := statusInactive
	if u.Active {
		state = statusActive
	}
	lines := []string{
		statusTitle,
		"",
		fmt.Sprintf(statusTimeFmt, domain.FormatClock(u.Hour, u.Minute), r.zone),
		state,
		fmt.Sprintf(statusCountFmt, len(workers)),
	}
	if len(workers) > 0 {
		lines = append(lines, "", "Workers:")
		for _, w := range workers {
			lines = append(lines, "• "+w.Label+": "+shortAddress(w.Address))
		}
	}
	r.reply(chatID, strings.Join(lines, "\n"))
	return nil
}

func (r *Router) handleStop(ctx context.Context, chatID int64, _ string) error {
	r.audit(ctx, chatID, "stop", "")
	if err := r.repo.SetActive(ctx, chatID, false); err != nil {
		return err
	}
	r.reply(chatID, stoppedText)
	return nil
}

// shortAddress keeps the first 21 characters of an address.
func shortAddress(a string) string {
	if len(a) <= 21 {
		return a
	}
	return a[:21] + "..."
}
