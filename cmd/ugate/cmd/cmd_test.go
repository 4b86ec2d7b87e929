package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkuds/ugate/internal/bus"
	"github.com/hkuds/ugate/internal/config"
	"github.com/hkuds/ugate/internal/session"
	"github.com/hkuds/ugate/internal/transports"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "uGate "+Version)
}

func TestSessionCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("UGATE_SESSION_STORE", "redis")
	t.Setenv("UGATE_REDIS_ADDRESS", mr.Addr())
	cfgFile := filepath.Join(t.TempDir(), "config.json")

	out, err := run(t, "session", "create", "--config", cfgFile, "--id", "abc", "--to", "*120#", "--from", "27761234567")
	require.NoError(t, err)
	assert.Contains(t, out, "created session abc")
	assert.True(t, mr.Exists("airtel:session:abc"))

	_, err = run(t, "session", "create", "--config", cfgFile, "--id", "abc")
	assert.Error(t, err)

	out, err = run(t, "session", "show", "--config", cfgFile, "--id", "abc")
	require.NoError(t, err)
	assert.Contains(t, out, "*120#")

	out, err = run(t, "session", "clear", "--config", cfgFile, "--id", "abc")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared session abc")
	assert.False(t, mr.Exists("airtel:session:abc"))

	_, err = run(t, "session", "show", "--config", cfgFile, "--id", "abc")
	assert.Error(t, err)
}

func TestHousekeepingJob(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Transports.Airtel.Enabled = true
	store := session.NewMemoryStore("", time.Minute)
	m := transports.NewManager(cfg, bus.NewMessageBus(1), store, nil, nil)
	require.NoError(t, m.Initialize())

	job := housekeeping(cfg.Sessions.SweepSchedule, store, m)
	assert.Equal(t, "@every 1m", job.Schedule)
	assert.NoError(t, job.Run(context.Background()))
}

func TestOpenStoreMemory(t *testing.T) {
	store, release, err := openStore(context.Background(), config.DefaultConfig())
	require.NoError(t, err)
	defer release()
	_, ok := store.(session.Namespaced)
	assert.True(t, ok)
}

func TestOpenBrokerMemory(t *testing.T) {
	b, release, err := openBroker(context.Background(), config.DefaultConfig(), nil)
	require.NoError(t, err)
	defer release()
	assert.Equal(t, "memory", b.Type())
}
