package core

import (
	"context"
	"time"

	channerics "github.com/niceyeti/channerics/channels"
)

// RunStatsReporter logs a leaderboard/uptime summary on a low-frequency
// ticker, grounded on the source bridge's periodic console reporter.
func (e *Engine) RunStatsReporter(ctx context.Context, interval time.Duration) {
	for range channerics.NewTicker(ctx.Done(), interval) {
		e.enqueue(func() {
			rows := e.raceMgr.Leaderboard()
			leader := "none"
			if len(rows) > 0 {
				leader = rows[0].Name
			}
			e.log.Info("race status",
				"uptime_s", e.nowSeconds(time.Now()),
				"udp_valid", e.udpValid,
				"udp_invalid", e.udpInvalid,
				"clients", e.hub.ClientCount(),
				"tags_seen", len(e.tagsSeen),
				"leader", leader,
			)
		})
	}
}
