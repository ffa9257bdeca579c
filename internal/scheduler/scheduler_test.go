package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/toyoshi/solo-block-report-bot/internal/domain"
	"github.com/toyoshi/solo-block-report-bot/internal/store"
)

const (
	addrA = "3LKSkoE3QtXAU6oDmVHdMmEJ3EwwS6ESwy"
	addrB = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"
	addrC = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
)

var jst = time.FixedZone("JST", 9*60*60)

type fakeGateway struct {
	mu         sync.Mutex
	difficulty float64
	diffOK     bool
	stats      map[string]domain.Snapshot
	statCalls  int
	diffCalls  int
	delay      time.Duration
	inFlight   int
	maxFlight  int
}

func newFakeGateway(difficulty float64) *fakeGateway {
	return &fakeGateway{difficulty: difficulty, diffOK: true, stats: map[string]domain.Snapshot{}}
}

func (g *fakeGateway) FetchWorkerStats(_ context.Context, address string) (domain.Snapshot, bool) {
	g.mu.Lock()
	g.statCalls++
	g.inFlight++
	if g.inFlight > g.maxFlight {
		g.maxFlight = g.inFlight
	}
	delay := g.delay
	g.mu.Unlock()

	time.Sleep(delay)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight--
	s, ok := g.stats[address]
	return s, ok
}

func (g *fakeGateway) FetchNetworkDifficulty(context.Context) (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.diffCalls++
	return g.difficulty, g.diffOK
}

func (g *fakeGateway) WorkerURL(address string) string {
	return "https://solo.ckpool.org/users/" + address
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statCalls
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sentMessage
	err  error
}

func (s *fakeSender) SendMessage(chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, sentMessage{chatID: chatID, text: text})
	return nil
}

func (s *fakeSender) sent() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.msgs...)
}

func openRepo(t *testing.T) store.Repo {
	t.Helper()
	r, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func addWorker(t *testing.T, r store.Repo, chatID int64, label, addr string) {
	t.Helper()
	ctx := context.Background()
	_, err := r.TouchUser(ctx, chatID, "", "")
	require.NoError(t, err)
	_, err = r.UpsertWorker(ctx, chatID, label, addr)
	require.NoError(t, err)
}

func TestDetector_AlertsOnceForNewRecord(t *testing.T) {
	repo := openRepo(t)
	addWorker(t, repo, 1, "main", addrA)

	gw := newFakeGateway(2.5e16)
	gw.stats[addrA] = domain.Snapshot{BestShare: 3.0e16}
	sender := &fakeSender{}
	d := NewDetector(repo, gw, sender, zap.NewNop(), 4)

	res := d.RunCycle(context.Background())
	assert.False(t, res.Aborted)
	assert.Equal(t, int64(1), res.Alerts)
	msgs := sender.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(1), msgs[0].chatID)
	assert.Contains(t, msgs[0].text, "BLOCK FOUND")
	assert.Contains(t, msgs[0].text, "main")
	assert.Contains(t, msgs[0].text, addrA)
	assert.Contains(t, msgs[0].text, "30.00 P")
	assert.Contains(t, msgs[0].text, "25.00 P")
	assert.Contains(t, msgs[0].text, "https://solo.ckpool.org/users/"+addrA)

	res = d.RunCycle(context.Background())
	assert.Equal(t, int64(0), res.Alerts)
	assert.Equal(t, int64(1), res.Suppressed)
	assert.Len(t, sender.sent(), 1)

	// a higher best share is a new record
	gw.mu.Lock()
	gw.stats[addrA] = domain.Snapshot{BestShare: 3.1e16}
	gw.mu.Unlock()
	d.RunCycle(context.Background())
	assert.Len(t, sender.sent(), 2)
}

func TestDetector_NoDifficultyAbortsCycle(t *testing.T) {
	repo := openRepo(t)
	addWorker(t, repo, 1, "main", addrA)
	workers, err := repo.ListAllWorkers(context.Background())
	require.NoError(t, err)

	gw := newFakeGateway(0)
	gw.diffOK = false
	gw.stats[addrA] = domain.Snapshot{BestShare: 3.0e16}
	sender := &fakeSender{}

	res := NewDetector(repo, gw, sender, zap.NewNop(), 2).RunCycle(context.Background())
	assert.True(t, res.Aborted)
	assert.Zero(t, gw.calls())
	assert.Empty(t, sender.sent())

	h, err := repo.GetHitState(context.Background(), workers[0].ID)
	require.NoError(t, err)
	assert.Zero(t, h.LastNotifiedBestShare)
}

func TestDetector_EqualToDifficultyIsHit(t *testing.T) {
	repo := openRepo(t)
	addWorker(t, repo, 1, "main", addrA)
	gw := newFakeGateway(1000)
	gw.stats[addrA] = domain.Snapshot{BestShare: 1000}
	sender := &fakeSender{}

	NewDetector(repo, gw, sender, zap.NewNop(), 1).RunCycle(context.Background())
	assert.Len(t, sender.sent(), 1)
}

func TestDetector_BelowDifficultyLeavesStateAlone(t *testing.T) {
	repo := openRepo(t)
	addWorker(t, repo, 1, "main", addrA)
	gw := newFakeGateway(2.5e16)
	gw.stats[addrA] = domain.Snapshot{BestShare: 1e15}
	sender := &fakeSender{}

	res := NewDetector(repo, gw, sender, zap.NewNop(), 1).RunCycle(context.Background())
	assert.Zero(t, res.Hits)
	assert.Empty(t, sender.sent())

	ws, err := repo.ListAllWorkers(context.Background())
	require.NoError(t, err)
	h, err := repo.GetHitState(context.Background(), ws[0].ID)
	require.NoError(t, err)
	assert.Zero(t, h.LastNotifiedBestShare)
}

func TestDetector_IsolatesWorkersAndIgnoresActiveFlag(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	addWorker(t, repo, 1, "dead", addrA)
	addWorker(t, repo, 1, "alive", addrB)
	addWorker(t, repo, 2, "other", addrC)
	require.NoError(t, repo.SetActive(ctx, 2, false))

	gw := newFakeGateway(1e12)
	// addrA is unreadable
	gw.stats[addrB] = domain.Snapshot{BestShare: 2e12}
	gw.stats[addrC] = domain.Snapshot{BestShare: 5e12}
	sender := &fakeSender{}

	res := NewDetector(repo, gw, sender, zap.NewNop(), 3).RunCycle(ctx)
	assert.Equal(t, 3, res.Workers)
	assert.Equal(t, int64(1), res.Unreadable)
	assert.Equal(t, int64(2), res.Alerts)

	chats := map[int64]bool{}
	for _, m := range sender.sent() {
		chats[m.chatID] = true
	}
	assert.True(t, chats[1])
	assert.True(t, chats[2], "inactive users still get hit alerts")
}

func TestDetector_CommitsBeforeSend(t *testing.T) {
	repo := openRepo(t)
	addWorker(t, repo, 1, "main", addrA)
	gw := newFakeGateway(2.5e16)
	gw.stats[addrA] = domain.Snapshot{BestShare: 3.0e16}
	sender := &fakeSender{err: errors.New("telegram down")}
	d := NewDetector(repo, gw, sender, zap.NewNop(), 1)

	res := d.RunCycle(context.Background())
	assert.Equal(t, int64(1), res.Failures)

	sender.mu.Lock()
	sender.err = nil
	sender.mu.Unlock()
	res = d.RunCycle(context.Background())
	assert.Equal(t, int64(1), res.Suppressed)
	assert.Empty(t, sender.sent())
}

func TestDigest_SelectsExactMinute(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()

	addWorker(t, repo, 1, "a", addrA)
	require.NoError(t, repo.SetNotifyTime(ctx, 1, 14, 30))

	addWorker(t, repo, 2, "b", addrB)
	require.NoError(t, repo.SetNotifyTime(ctx, 2, 14, 30))
	require.NoError(t, repo.SetActive(ctx, 2, false))

	addWorker(t, repo, 3, "c", addrC)
	require.NoError(t, repo.SetNotifyTime(ctx, 3, 14, 31))

	// due but without workers
	_, err := repo.TouchUser(ctx, 4, "", "")
	require.NoError(t, err)
	require.NoError(t, repo.SetNotifyTime(ctx, 4, 14, 30))

	gw := newFakeGateway(1e15)
	for _, a := range []string{addrA, addrB, addrC} {
		gw.stats[a] = domain.Snapshot{BestShare: 1e12, LastShare: time.Unix(1633024800, 0)}
	}

	cases := []struct {
		minute int
		want   []int64
	}{
		{29, nil},
		{30, []int64{1}},
		{31, []int64{3}},
	}
	for _, c := range cases {
		sender := &fakeSender{}
		dg := NewDigest(repo, gw, sender, jst, zap.NewNop(), 2)
		now := time.Date(2025, time.May, 6, 14, c.minute, 5, 0, jst)

		dg.RunAt(ctx, now)

		var got []int64
		for _, m := range sender.sent() {
			got = append(got, m.chatID)
			assert.True(t, strings.HasPrefix(m.text, "📝 Daily Report (2025-05-06)"))
		}
		assert.Equal(t, c.want, got, "14:%d", c.minute)
	}
}

func TestDigest_UsesReportZone(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	addWorker(t, repo, 1, "a", addrA)
	require.NoError(t, repo.SetNotifyTime(ctx, 1, 9, 0))

	gw := newFakeGateway(1e15)
	gw.stats[addrA] = domain.Snapshot{BestShare: 1e12}
	sender := &fakeSender{}
	dg := NewDigest(repo, gw, sender, jst, zap.NewNop(), 1)

	// 00:00 UTC is 09:00 in UTC+9
	res := dg.RunAt(ctx, time.Date(2025, time.May, 6, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "09:00", res.Clock)
	assert.Len(t, sender.sent(), 1)
}

func TestDigest_SkipsUnreadableWorkersInBody(t *testing.T) {
	repo := openRepo(t)
	addWorker(t, repo, 1, "ok", addrA)
	addWorker(t, repo, 1, "down", addrB)

	gw := newFakeGateway(0)
	gw.diffOK = false
	gw.stats[addrA] = domain.Snapshot{BestShare: 1e12}
	sender := &fakeSender{}

	sent, err := NewDigest(repo, gw, sender, jst, zap.NewNop(), 2).SendDigest(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, sent)
	msgs := sender.sent()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, "📍 ok")
	assert.NotContains(t, msgs[0].text, "📍 down")
	assert.NotContains(t, msgs[0].text, "Network Difficulty")
}

func TestDigest_SendFailureIsReported(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	addWorker(t, repo, 1, "a", addrA)
	require.NoError(t, repo.SetNotifyTime(ctx, 1, 14, 30))

	gw := newFakeGateway(1e15)
	gw.stats[addrA] = domain.Snapshot{BestShare: 1e12}
	sender := &fakeSender{err: errors.New("blocked by user")}

	res := NewDigest(repo, gw, sender, jst, zap.NewNop(), 1).
		RunAt(ctx, time.Date(2025, time.May, 6, 14, 30, 0, 0, jst))
	assert.Equal(t, 1, res.Due)
	assert.Equal(t, int64(1), res.Failures)
	assert.Zero(t, res.Sent)
}

func TestDigest_BoundsPoolRequestsPerTick(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	gw := newFakeGateway(1e15)
	gw.delay = 5 * time.Millisecond
	for chatID := int64(1); chatID <= 6; chatID++ {
		for i, addr := range []string{addrA, addrB, addrC, addrA} {
			addWorker(t, repo, chatID, "w"+string(rune('a'+i)), addr)
		}
		require.NoError(t, repo.SetNotifyTime(ctx, chatID, 9, 0))
	}
	gw.stats[addrA] = domain.Snapshot{BestShare: 1}
	gw.stats[addrB] = domain.Snapshot{BestShare: 2}
	gw.stats[addrC] = domain.Snapshot{BestShare: 3}
	sender := &fakeSender{}

	res := NewDigest(repo, gw, sender, jst, zap.NewNop(), 3).
		RunAt(ctx, time.Date(2025, time.May, 6, 9, 0, 0, 0, jst))

	assert.Equal(t, int64(6), res.Sent)
	assert.Len(t, sender.sent(), 6)
	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Equal(t, 24, gw.statCalls)
	assert.LessOrEqual(t, gw.maxFlight, 3)
	assert.Equal(t, 1, gw.diffCalls)
}

func TestStatusReport(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	_, err := repo.TouchUser(ctx, 1, "", "")
	require.NoError(t, err)

	gw := newFakeGateway(2.5e16)
	gw.stats[addrA] = domain.Snapshot{BestShare: 3.0e16}
	dg := NewDigest(repo, gw, &fakeSender{}, jst, zap.NewNop(), 1)

	text, n, err := dg.StatusReport(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, text)

	_, err = repo.UpsertWorker(ctx, 1, "main", addrA)
	require.NoError(t, err)
	text, n, err = dg.StatusReport(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, strings.HasPrefix(text, "📈 Current Mining Status"))
	assert.Contains(t, text, "🎉 BLOCK FOUND! 🎉")
	assert.Contains(t, text, "⏰ Generated at:")
}

func TestRunner_RunsAndStops(t *testing.T) {
	repo := openRepo(t)
	gw := newFakeGateway(1e15)
	sender := &fakeSender{}
	det := NewDetector(repo, gw, sender, zap.NewNop(), 1)
	dg := NewDigest(repo, gw, sender, jst, zap.NewNop(), 1)

	r := NewRunner(det, dg, "@every 1s", "@every 1s", jst, zap.NewNop())
	require.NoError(t, r.Start(context.Background()))

	require.Eventually(t, func() bool {
		st := r.Stats()
		return st.HitCheckRuns > 0 && st.DigestRuns > 0
	}, 5*time.Second, 50*time.Millisecond)

	st := r.Stats()
	assert.True(t, st.Running)
	require.NotNil(t, st.LastHitCheck)
	assert.NotEmpty(t, st.LastHitCheck.TickID)
	assert.NotNil(t, st.NextHitCheckAt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.Stop(ctx)
	assert.False(t, r.Stats().Running)
}

func TestRunner_RejectsBadSpec(t *testing.T) {
	repo := openRepo(t)
	gw := newFakeGateway(1e15)
	det := NewDetector(repo, gw, &fakeSender{}, zap.NewNop(), 1)
	dg := NewDigest(repo, gw, &fakeSender{}, jst, zap.NewNop(), 1)

	r := NewRunner(det, dg, "every five minutes", "", jst, zap.NewNop())
	assert.Error(t, r.Start(context.Background()))
}
