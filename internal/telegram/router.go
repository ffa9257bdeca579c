package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/toyoshi/solo-block-report-bot/internal/store"
)

// Reporter renders the on-demand status report for a chat.
type Reporter interface {
	StatusReport(ctx context.Context, chatID int64) (text string, workers int, err error)
}

// Router interprets chat commands and maps them onto registry operations.
type Router struct {
	sender  *Notifier
	log     *zap.Logger
	repo    store.Repo
	reports Reporter
	zone    string // zone abbreviation shown next to digest times
}

// NewRouter creates a new Telegram router. loc is the report zone.
func NewRouter(sender *Notifier, log *zap.Logger, repo store.Repo, reports Reporter, loc *time.Location) *Router {
	if loc == nil {
		loc = time.UTC
	}
	return &Router{
		sender:  sender,
		log:     log,
		repo:    repo,
		reports: reports,
		zone:    time.Now().In(loc).Format("MST"),
	}
}

type handlerFunc func(r *Router, ctx context.Context, chatID int64, args string) error

var commands = map[string]handlerFunc{
	"start":         (*Router).handleStart,
	"help":          (*Router).handleHelp,
	"add_worker":    (*Router).handleAddWorker,
	"remove_worker": (*Router).handleRemoveWorker,
	"list_workers":  (*Router).handleListWorkers,
	"check":         (*Router).handleCheck,
	"now":           (*Router).handleCheck,
	"time":          (*Router).handleTime,
	"status":        (*Router).handleStatus,
	"stop":          (*Router).handleStop,
}

// HandleUpdate routes a single update to the matching command handler.
// Handler failures are logged and answered with a generic error reply.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	chatID := msg.Chat.ID

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("handler panicked", zap.Int64("chat_id", chatID), zap.Any("panic", p), zap.Stack("stack"))
			r.reply(chatID, errorText)
		}
	}()

	var username, firstName string
	if msg.From != nil {
		username, firstName = msg.From.UserName, msg.From.FirstName
	}
	r.log.Debug("message received",
		zap.Int64("chat_id", chatID),
		zap.String("from", firstName),
		zap.String("text", text),
	)

	if _, err := r.repo.TouchUser(ctx, chatID, username, firstName); err != nil {
		r.fail(chatID, "touch user", err)
		return
	}

	cmd, args := parseCommand(text)
	h, ok := commands[cmd]
	if !ok {
		r.reply(chatID, unknownText)
		return
	}
	if err := h(r, ctx, chatID, args); err != nil {
		r.fail(chatID, cmd, err)
	}
}

// parseCommand splits "/cmd@bot args" into "cmd" and "args". Non-command
// text yields an empty command.
func parseCommand(text string) (cmd, args string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	head, rest, _ := strings.Cut(text, " ")
	if i := strings.IndexAny(head, "\n\t"); i >= 0 {
		rest = head[i:] + " " + rest
		head = head[:i]
	}
	head = strings.TrimPrefix(head, "/")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return head, strings.TrimSpace(rest)
}

func (r *Router) audit(ctx context.Context, chatID int64, command, params string) {
	if err := r.repo.LogCommand(ctx, chatID, command, params); err != nil {
		r.log.Warn("log command failed", zap.Int64("chat_id", chatID), zap.String("command", command), zap.Error(err))
	}
}

func (r *Router) reply(chatID int64, text string) {
	if err := r.sender.SendMessage(chatID, text); err != nil {
		r.log.Error("reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) fail(chatID int64, op string, err error) {
	r.log.Error("command failed",
		zap.Int64("chat_id", chatID),
		zap.String("op", op),
		zap.Error(err),
	)
	r.reply(chatID, errorText)
}
