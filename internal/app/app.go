package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/toyoshi/solo-block-report-bot/internal/config"
	"github.com/toyoshi/solo-block-report-bot/internal/pool"
	"github.com/toyoshi/solo-block-report-bot/internal/scheduler"
	"github.com/toyoshi/solo-block-report-bot/internal/store"
	"github.com/toyoshi/solo-block-report-bot/internal/telegram"
)

const shutdownTimeout = 30 * time.Second

type App struct {
	cfg      config.Config
	log      *zap.Logger
	bot      *tgbotapi.BotAPI
	httpSrv  *http.Server
	repo     store.Repo
	gateway  *pool.Client
	notifier *telegram.Notifier
	router   *telegram.Router
	detector *scheduler.Detector
	digest   *scheduler.Digest
	runner   *scheduler.Runner
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	log.Info("authorized on telegram", zap.String("bot", bot.Self.UserName))

	return &App{cfg: cfg, log: log, bot: bot}, nil
}

// Components are the store-backed parts shared by the bot and the CLI.
type Components struct {
	Repo     store.Repo
	Gateway  *pool.Client
	Detector *scheduler.Detector
	Digest   *scheduler.Digest
}

// Build opens the store and wires the gateway, detector and digest around
// sender. The caller owns Repo and must close it.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger, sender scheduler.Sender) (*Components, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	repo, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	log.Info("store ready", zap.String("backend", store.Backend(cfg.DatabaseURL)))

	gw := pool.New(pool.Options{
		BaseURL:           cfg.PoolBaseURL,
		DifficultyURL:     cfg.DifficultyURL,
		StatsTimeout:      cfg.PoolTimeout,
		DifficultyTimeout: cfg.DifficultyTimeout,
		RequestsPerSecond: cfg.PoolRPS,
	}, log.Named("gateway"))

	return &Components{
		Repo:     repo,
		Gateway:  gw,
		Detector: scheduler.NewDetector(repo, gw, sender, log.Named("detector"), cfg.CheckConcurrency),
		Digest:   scheduler.NewDigest(repo, gw, sender, loc, log.Named("digest"), cfg.CheckConcurrency),
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting solo-block-report-bot",
		zap.String("http", a.cfg.HTTPAddr),
		zap.String("report_tz", a.cfg.ReportTZ),
	)

	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}

	a.notifier = telegram.NewNotifier(a.bot, a.cfg.SendRPS, a.log.Named("telegram"))
	c, err := Build(ctx, a.cfg, a.log, a.notifier)
	if err != nil {
		a.log.Error("open store failed", zap.Error(err))
		return err
	}
	a.repo, a.gateway, a.detector, a.digest = c.Repo, c.Gateway, c.Detector, c.Digest
	a.router = telegram.NewRouter(a.notifier, a.log.Named("telegram"), a.repo, a.digest, loc)

	a.runner = scheduler.NewRunner(a.detector, a.digest, a.cfg.HitCheckSpec, a.cfg.DigestSpec, loc, a.log.Named("scheduler"))
	if err := a.runner.Start(ctx); err != nil {
		_ = a.repo.Close()
		return err
	}

	a.httpSrv = &http.Server{
		Addr:         a.cfg.HTTPAddr,
		Handler:      NewHTTPHandler(a.repo, a.runner, a.log.Named("http")),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")
			a.shutdown()
			return nil

		case upd, ok := <-updCh:
			if !ok {
				a.shutdown()
				return errors.New("telegram updates channel closed")
			}
			a.router.HandleUpdate(ctx, upd)
		}
	}
}

// shutdown stops intake first, then drains the running ticks, then closes
// the store they write to.
func (a *App) shutdown() {
	a.bot.StopReceivingUpdates()

	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.httpSrv.Shutdown(shCtx); err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}
	a.runner.Stop(shCtx)
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.log.Warn("store close error", zap.Error(err))
		}
	}
}
