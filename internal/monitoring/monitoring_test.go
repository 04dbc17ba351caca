package monitoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testutil "github.com/charlesng35/opsdash/internal/database/testutil"
	"github.com/charlesng35/opsdash/internal/monitoring"
	"github.com/charlesng35/opsdash/internal/monitoring/checks"
	"github.com/charlesng35/opsdash/internal/realtime"
)

func TestHealthManagerEvaluate(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(monitoring.NewCheck("realtime", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "hub unavailable"}
	}))

	report := manager.EvaluateReadiness(context.Background())
	require.False(t, report.Success)
	require.Equal(t, monitoring.StatusDegraded, report.Status)
	require.Len(t, report.Checks, 2)

	manager.RegisterReadiness(monitoring.NewCheck("broken", nil))
	report = manager.EvaluateReadiness(context.Background())
	require.Equal(t, monitoring.StatusDown, report.Status)

	live := manager.EvaluateLiveness(context.Background())
	require.True(t, live.Success)
	require.Empty(t, live.Checks)
}

func TestHealthManagerRecoversPanics(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterLiveness(monitoring.NewCheck("panicky", func(ctx context.Context) monitoring.ProbeResult {
		panic("probe exploded")
	}))

	report := manager.EvaluateLiveness(context.Background())
	require.False(t, report.Success)
	require.Equal(t, "panicky", report.Checks[0].Component)
	require.Equal(t, "probe exploded", report.Checks[0].Details)
}

func TestResultFromError(t *testing.T) {
	t.Parallel()

	require.Equal(t, monitoring.StatusUp, monitoring.ResultFromError("db", nil, time.Millisecond).Status)
	require.Equal(t, monitoring.StatusDegraded, monitoring.ResultFromError("db", context.DeadlineExceeded, 0).Status)

	down := monitoring.ResultFromError("db", errors.New("refused"), -1)
	require.Equal(t, monitoring.StatusDown, down.Status)
	require.Zero(t, down.Duration)
}

func TestDatabaseCheck(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	result := checks.Database(db, time.Second).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)

	result = checks.Database(nil, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
}

func TestRealtimeCheck(t *testing.T) {
	t.Parallel()

	result := checks.Realtime(realtime.NewHub()).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Equal(t, "0 notification connections", result.Details)

	result = checks.Realtime(nil).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
}

func TestHealthManagerBoundsSlowProbes(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.SetProbeTimeout(20 * time.Millisecond)
	manager.RegisterReadiness(monitoring.NewCheck("slow", func(ctx context.Context) monitoring.ProbeResult {
		<-ctx.Done()
		return monitoring.ResultFromError("slow", ctx.Err(), 0)
	}))
	manager.RegisterReadiness(monitoring.NewCheck("fast", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))

	report := manager.EvaluateReadiness(context.Background())
	require.Equal(t, monitoring.StatusDegraded, report.Status)
	require.Equal(t, "slow", report.Checks[0].Component)
	require.Equal(t, "fast", report.Checks[1].Component)
	require.Positive(t, report.Checks[0].Duration)
}
