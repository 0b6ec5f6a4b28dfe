package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStep(t *testing.T) {
	r := New("static")
	r.ObserveStep("login", 200*time.Millisecond, "")
	r.ObserveStep("rebuild", 3*time.Second, "navigation_timeout")
	r.ObserveStep("rebuild", time.Second, "navigation_timeout")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.failures.WithLabelValues("rebuild", "navigation_timeout")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.duration))
}

func TestObserveRunAndTextfile(t *testing.T) {
	r := New("playwright")
	r.ObserveRun(true, time.Unix(1700000000, 0))
	r.ObserveRun(false, time.Unix(1700000100, 0))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("failure")))
	assert.Equal(t, 1700000100.0, testutil.ToFloat64(r.lastRun))

	path := filepath.Join(t.TempDir(), "staticpress_e2e.prom")
	require.NoError(t, r.WriteTextfile(path))
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), `staticpress_e2e_runs_total{driver="playwright",outcome="success"} 1`)

	assert.NoError(t, r.WriteTextfile(""))
}
