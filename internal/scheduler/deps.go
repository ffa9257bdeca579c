package scheduler

import (
	"context"

	"github.com/toyoshi/solo-block-report-bot/internal/domain"
)

// Gateway is the read side of the pool and difficulty feeds.
// ok=false means "not available"; the cause is logged by the gateway.
type Gateway interface {
	FetchWorkerStats(ctx context.Context, address string) (domain.Snapshot, bool)
	FetchNetworkDifficulty(ctx context.Context) (float64, bool)
	WorkerURL(address string) string
}

// Sender is a minimal interface the scheduler needs to send a text message.
// telegram.Router implements this (method: SendMessage).
type Sender interface {
	SendMessage(chatID int64, text string) error
}
