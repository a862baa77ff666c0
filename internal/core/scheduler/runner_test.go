package scheduler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitalsync/vitalsync/internal/core"
	"github.com/vitalsync/vitalsync/internal/core/route"
	"github.com/vitalsync/vitalsync/internal/sink"
)

func newRunnerEnv(t *testing.T, handler http.HandlerFunc, users ...core.User) (*Runner, *generatorEnv, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	env := newGeneratorEnv(t, Config{BaseURL: srv.URL}, users...)
	rt := testRoute(&stubConverter{timestamps: []time.Time{utc(2024, 1, 2, 0)}})

	var buf bytes.Buffer
	out := sink.NewWriter(&buf, false)
	runner := NewRunner(RunnerConfig{MaxBatch: 1, Workers: 2},
		env.gen, env.repo, []route.Route{rt}, out, srv.Client(), zap.NewNop())
	return runner, env, &buf
}

func TestRunOnceExecutesAndPublishes(t *testing.T) {
	user := testUser("u1", utc(2024, 1, 1, 0))
	runner, env, buf := newRunnerEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":[{}]}`))
	}, user)

	stats := runner.RunOnce(context.Background())
	assert.Equal(t, int64(1), stats.Requests)
	assert.Equal(t, int64(1), stats.Records)
	assert.Equal(t, int64(0), stats.Failures)
	assert.Equal(t, stats, runner.LastStats())

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	assert.Contains(t, line, `"topic":"test_topic"`)

	stored, err := env.offsets.Get(context.Background(), "heart_rate", user)
	require.NoError(t, err)
	require.NotNil(t, stored, "a successful cycle advances the offset")
}

func TestRunOnceCountsFailures(t *testing.T) {
	user := testUser("u1", utc(2024, 1, 1, 0))
	runner, env, buf := newRunnerEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, user)

	stats := runner.RunOnce(context.Background())
	assert.Equal(t, int64(1), stats.Requests)
	assert.Equal(t, int64(0), stats.Records)
	assert.Equal(t, int64(1), stats.Failures)
	assert.Empty(t, buf.String())

	stored, err := env.offsets.Get(context.Background(), "heart_rate", user)
	require.NoError(t, err)
	assert.Nil(t, stored, "a failed cycle leaves the offset untouched")
}

func TestRunStopsOnCancel(t *testing.T) {
	runner, _, _ := newRunnerEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
}
