package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/toyoshi/solo-block-report-bot/internal/domain"
)

// Separator is placed between worker blocks.
const Separator = "━━━━━━━━━━━━━━━━━━━━"

const hitBanner = "🎉 BLOCK FOUND! 🎉"

// Entry pairs a worker with its freshly fetched snapshot.
// A nil Snapshot means the pool could not be read this time.
type Entry struct {
	Worker   domain.Worker
	Snapshot *domain.Snapshot
}

// View carries the presentation context shared by all blocks of one message.
type View struct {
	Difficulty float64 // 0 when unknown
	Now        time.Time
	Loc        *time.Location
}

// WorkerBlock renders one worker. ok is false when there is no snapshot.
func WorkerBlock(w domain.Worker, s *domain.Snapshot, v View) (block string, ok bool) {
	if s == nil {
		return "", false
	}

	lines := make([]string, 0, 16)
	lines = append(lines,
		"📍 "+w.Label,
		"Address: "+w.Address,
		"",
		"⚡ Hashrate:",
		"• 1m: "+FormatMagnitude(s.Hashrate1m)+"H/s",
		"• 5m: "+FormatMagnitude(s.Hashrate5m)+"H/s",
		"• 1h: "+FormatMagnitude(s.Hashrate1hr)+"H/s",
		"• 1d: "+FormatMagnitude(s.Hashrate1d)+"H/s",
		"• 7d: "+FormatMagnitude(s.Hashrate7d)+"H/s",
		"",
		"📊 Shares: "+strconv.FormatInt(s.Shares, 10),
		"📊 Best Share: "+FormatMagnitude(s.BestShare),
		"🏆 Best Ever: "+FormatMagnitude(s.BestEver),
		hitLine(s.BestShare, v.Difficulty),
		"",
		"🕐 Last Share: "+lastShare(s.LastShare, v),
	)
	return strings.Join(lines, "\n"), true
}

func hitLine(best, difficulty float64) string {
	if domain.IsHit(best, difficulty) {
		return hitBanner
	}
	return "📊 Progress: " + FormatProgress(best, difficulty)
}

func lastShare(t time.Time, v View) string {
	ts := FormatTimestamp(t, v.Loc)
	if ts == NotAvailable {
		return ts
	}
	if ago := FormatAgo(t, v.Now); ago != "" {
		return ts + " (" + ago + ")"
	}
	return ts
}

// blocks joins the rendered worker blocks with separators, skipping entries
// without a snapshot.
func blocks(entries []Entry, v View) []string {
	var out []string
	for _, e := range entries {
		b, ok := WorkerBlock(e.Worker, e.Snapshot, v)
		if !ok {
			continue
		}
		if len(out) > 0 {
			out = append(out, Separator)
		}
		out = append(out, b)
	}
	return out
}

// Digest renders the scheduled daily report for one user.
func Digest(entries []Entry, v View) string {
	lines := []string{
		"📝 Daily Report (" + v.Now.In(loc(v)).Format("2006-01-02") + ")",
		Separator,
		"",
	}
	lines = append(lines, blocks(entries, v)...)
	if v.Difficulty > 0 {
		lines = append(lines, "", "🎯 Network Difficulty: "+FormatMagnitude(v.Difficulty))
	}
	return strings.Join(lines, "\n")
}

// LiveStatus renders the on-demand status report.
func LiveStatus(entries []Entry, v View) string {
	lines := []string{
		"📈 Current Mining Status",
		Separator,
		"",
	}
	lines = append(lines, blocks(entries, v)...)
	if v.Difficulty > 0 {
		lines = append(lines, "", "🎯 Network Difficulty: "+FormatMagnitude(v.Difficulty))
	}
	lines = append(lines, "", "⏰ Generated at: "+FormatTimestamp(v.Now, loc(v)))
	return strings.Join(lines, "\n")
}

// HitAlert renders the immediate block-found notification. link may be empty.
func HitAlert(w domain.Worker, bestShare, difficulty float64, link string) string {
	var b strings.Builder
	b.WriteString("🎉🎉🎉 BLOCK FOUND! 🎉🎉🎉\n\n")
	b.WriteString("Worker: " + w.Label + "\n")
	b.WriteString("Address: " + w.Address + "\n")
	b.WriteString("Best Share: " + FormatMagnitude(bestShare) + "\n")
	b.WriteString("Network Difficulty: " + FormatMagnitude(difficulty) + "\n")
	if link != "" {
		b.WriteString("\n🔗 " + link)
	}
	return strings.TrimRight(b.String(), "\n")
}

func loc(v View) *time.Location {
	if v.Loc == nil {
		return time.UTC
	}
	return v.Loc
}
