package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/toyoshi/solo-block-report-bot/internal/app"
	"github.com/toyoshi/solo-block-report-bot/internal/config"
	"github.com/toyoshi/solo-block-report-bot/internal/logger"
	"github.com/toyoshi/solo-block-report-bot/internal/scheduler"
	"github.com/toyoshi/solo-block-report-bot/internal/store"
	"github.com/toyoshi/solo-block-report-bot/internal/telegram"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "solo-block-report-bot",
		Short:         "Telegram bot reporting CKPool solo mining workers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBot,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the bot, the hit detector and the daily digest (default)",
			RunE:  runBot,
		},
		newCheckHitsCmd(),
		&cobra.Command{
			Use:   "migrate",
			Short: "Open the database, apply migrations and exit",
			RunE:  runMigrate,
		},
		newStatsCmd(),
	)
	return root
}

// setup loads configuration and builds the logger. offline skips the bot
// token requirement.
func setup(offline bool) (config.Config, *zap.Logger, error) {
	load := config.Load
	if offline {
		load = config.LoadOffline
	}
	cfg, err := load()
	if err != nil {
		return cfg, nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return cfg, nil, fmt.Errorf("logger init: %w", err)
	}
	return cfg, log, nil
}

func runBot(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(false)
	if err != nil {
		return err
	}
	// Ensure logger flush; ignore sync error (common on some platforms).
	defer func() { _ = log.Sync() }()

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("app init failed", zap.Error(err))
		return err
	}
	if err := application.Run(cmd.Context()); err != nil {
		log.Error("app run failed", zap.Error(err))
		return err
	}
	return nil
}

func newCheckHitsCmd() *cobra.Command {
	var dryRun bool
	c := &cobra.Command{
		Use:   "check-hits",
		Short: "Run one block-hit detection cycle now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(dryRun)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			var sender scheduler.Sender = logSender{log: log.Named("dry-run")}
			if !dryRun {
				bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
				if err != nil {
					return fmt.Errorf("telegram: %w", err)
				}
				sender = telegram.NewNotifier(bot, cfg.SendRPS, log.Named("telegram"))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			comp, err := app.Build(ctx, cfg, log, sender)
			if err != nil {
				return err
			}
			defer comp.Repo.Close()

			res := comp.Detector.RunCycle(ctx)
			fmt.Fprintf(cmd.OutOrStdout(),
				"tick %s: workers=%d hits=%d alerts=%d suppressed=%d unreadable=%d failures=%d aborted=%t\n",
				res.TickID, res.Workers, res.Hits, res.Alerts, res.Suppressed, res.Unreadable, res.Failures, res.Aborted)
			return nil
		},
	}
	c.Flags().BoolVar(&dryRun, "dry-run", false, "log alerts instead of sending them (hit state is still recorded)")
	return c
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(true)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	repo, err := store.Open(cmd.Context(), cfg.DatabaseURL, cfg.DBPath)
	if err != nil {
		log.Error("migrate failed", zap.Error(err))
		return err
	}
	defer repo.Close()
	fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", store.Backend(cfg.DatabaseURL))
	return nil
}

func newStatsCmd() *cobra.Command {
	var (
		hours  int
		users  bool
		hourly bool
	)
	c := &cobra.Command{
		Use:   "stats",
		Short: "Show command usage from the audit log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if hours < 1 {
				return fmt.Errorf("--hours must be >= 1")
			}
			cfg, log, err := setup(true)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			repo, err := store.Open(cmd.Context(), cfg.DatabaseURL, cfg.DBPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			since := time.Now().Add(-time.Duration(hours) * time.Hour)
			usage, err := repo.CommandUsage(cmd.Context(), since)
			if err != nil {
				return err
			}
			printUsage(cmd, hours, usage)

			if users {
				active, err := repo.ActiveUsers(cmd.Context(), since)
				if err != nil {
					return err
				}
				printActiveUsers(cmd, active)
			}
			if hourly {
				dist, err := repo.HourlyDistribution(cmd.Context(), since)
				if err != nil {
					return err
				}
				printHourly(cmd, dist)
			}
			return nil
		},
	}
	c.Flags().IntVar(&hours, "hours", 24, "look-back window in hours")
	c.Flags().BoolVar(&users, "users", false, "also list the most active users")
	c.Flags().BoolVar(&hourly, "hourly", false, "also show commands per UTC hour")
	return c
}

func printUsage(cmd *cobra.Command, hours int, usage []store.CommandCount) {
	out := cmd.OutOrStdout()
	if len(usage) == 0 {
		fmt.Fprintf(out, "no commands in the last %dh\n", hours)
		return
	}
	fmt.Fprintf(out, "commands in the last %dh:\n", hours)
	for _, u := range usage {
		fmt.Fprintf(out, "  %-16s %d\n", u.Command, u.Count)
	}
}

func printActiveUsers(cmd *cobra.Command, active []store.UserActivity) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "active users:")
	for _, a := range active {
		fmt.Fprintf(out, "  %-16d %d\n", a.ChatID, a.Count)
	}
}

func printHourly(cmd *cobra.Command, dist []store.HourCount) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "commands per hour (UTC):")
	for _, h := range dist {
		fmt.Fprintf(out, "  %02d:00 %d\n", h.Hour, h.Count)
	}
}

// logSender writes messages to the log instead of Telegram.
type logSender struct {
	log *zap.Logger
}

func (s logSender) SendMessage(chatID int64, text string) error {
	s.log.Info("message", zap.Int64("chat_id", chatID), zap.String("text", text))
	return nil
}
