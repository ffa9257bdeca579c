package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toyoshi/solo-block-report-bot/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func offlineEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot.db")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_PATH", path)
	t.Setenv("LOG_LEVEL", "error")
	return path
}

func TestMigrateCommand(t *testing.T) {
	offlineEnv(t)
	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite schema is up to date")
}

func TestStatsCommand(t *testing.T) {
	path := offlineEnv(t)

	out, err := execute(t, "stats", "--hours", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "no commands in the last 1h")

	ctx := context.Background()
	repo, err := store.OpenSQLite(ctx, path)
	require.NoError(t, err)
	_, err = repo.TouchUser(ctx, 1, "alice", "")
	require.NoError(t, err)
	require.NoError(t, repo.LogCommand(ctx, 1, "check", ""))
	require.NoError(t, repo.LogCommand(ctx, 1, "check", ""))
	require.NoError(t, repo.Close())

	out, err = execute(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "commands in the last 24h:")
	assert.Regexp(t, `check\s+2`, out)

	assert.NotContains(t, out, "active users:")

	out, err = execute(t, "stats", "--users", "--hourly")
	require.NoError(t, err)
	assert.Contains(t, out, "active users:")
	assert.Regexp(t, `\n\s+1\s+2\n`, out)
	assert.Contains(t, out, "commands per hour (UTC):")
	assert.Regexp(t, `\d{2}:00 [12]`, out)

	_, err = execute(t, "stats", "--hours", "0")
	assert.Error(t, err)
}

func TestCheckHitsDryRun_NoWorkers(t *testing.T) {
	offlineEnv(t)
	// no workers registered: the cycle may still fetch difficulty, which is
	// pointed at a closed port so it fails fast and aborts.
	t.Setenv("DIFFICULTY_URL", "http://127.0.0.1:1/difficulty")
	t.Setenv("DIFFICULTY_TIMEOUT", "1s")

	out, err := execute(t, "check-hits", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "aborted=true")
}

func TestRunRequiresToken(t *testing.T) {
	offlineEnv(t)
	_, err := execute(t, "run")
	assert.ErrorContains(t, err, "TELEGRAM_BOT_TOKEN")
}
