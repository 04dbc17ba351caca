package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/charlesng35/opsdash/internal/monitoring"
	"github.com/charlesng35/opsdash/internal/realtime"
)

// ConnectionCounter reports open websocket connections on a stream.
type ConnectionCounter interface {
	ConnectionCount(stream string) int
}

// Realtime reports the notification stream's connection count. A missing hub
// degrades readiness: pages still render but realtime inserts are lost.
func Realtime(hub ConnectionCounter) monitoring.Check {
	return monitoring.NewCheck("realtime", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if hub == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "realtime hub unavailable",
				Duration: time.Since(start),
			}
		}

		count := hub.ConnectionCount(realtime.StreamNotifications)
		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Details:  fmt.Sprintf("%d notification connections", count),
			Duration: time.Since(start),
		}
	})
}
