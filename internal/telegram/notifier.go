package telegram

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxMessageLen is Telegram's limit for one text message, in characters.
const maxMessageLen = 4096

// Bot is the part of *tgbotapi.BotAPI the package uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers plain text messages. It satisfies scheduler.Sender.
type Notifier struct {
	bot     Bot
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewNotifier creates a Notifier sending at most rps messages per second.
// rps <= 0 disables limiting.
func NewNotifier(bot Bot, rps float64, log *zap.Logger) *Notifier {
	n := &Notifier{bot: bot, log: log}
	if rps > 0 {
		n.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return n
}

// SendMessage sends text to chatID. Texts over the Telegram limit are split
// on line boundaries; the first failing part aborts the rest.
func (n *Notifier) SendMessage(chatID int64, text string) error {
	for _, part := range splitMessage(text, maxMessageLen) {
		if n.limiter != nil {
			if err := n.limiter.Wait(context.Background()); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
		}
		if _, err := n.bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return fmt.Errorf("send to %d: %w", chatID, err)
		}
	}
	return nil
}

func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var (
		parts []string
		cur   strings.Builder
		n     int
	)
	flush := func() {
		if p := strings.TrimRight(cur.String(), "\n"); p != "" {
			parts = append(parts, p)
		}
		cur.Reset()
		n = 0
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		ln := utf8.RuneCountInString(line)
		if n+ln > limit {
			flush()
		}
		// a single line longer than the limit is cut hard
		for ln > limit {
			r := []rune(line)
			parts = append(parts, string(r[:limit]))
			line = string(r[limit:])
			ln -= limit
		}
		cur.WriteString(line)
		n += ln
	}
	flush()
	return parts
}
