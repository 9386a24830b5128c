package app

import (
	"context"
	"log"
	"time"

	"github.com/Bagi4-source/Mirotok/internal/logging"
)

const housekeepingInterval = 30 * time.Minute

func (a *App) startHousekeeping(ctx context.Context) {
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	mon := &runtimeMonitor{}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sweep(a.now())
			logging.RotateIfNeeded()
			mon.check(time.Now())
		}
	}
}

// sweep drops stale rate-limit entries, expired selection tokens and
// admin dialogues nobody finished.
func (a *App) sweep(now time.Time) {
	a.rate.cleanup(now, 36*time.Hour)
	if n := a.readings.PruneTokens(now); n > 0 {
		log.Printf("🧹 Удалено просроченных токенов рекомендаций: %d", n)
	}
	a.states.prune(now, stateTTL)
}

type runtimeMonitor struct {
	lastGoroutines int
	lastAliveLog   time.Time
}

func (m *runtimeMonitor) check(now time.Time) {
	gor, alloc, _, sys := runtimeStats()
	if m.lastGoroutines > 0 && gor > m.lastGoroutines+300 {
		log.Printf("⚠️ Возможная утечка: goroutines выросли %d -> %d", m.lastGoroutines, gor)
	}
	if gor > 2000 {
		log.Printf("⚠️ Много goroutines: %d", gor)
	}
	if alloc > 600*1024*1024 {
		log.Printf("⚠️ Высокое потребление памяти: %s (sys %s)", formatBytes(alloc), formatBytes(sys))
	}
	if m.lastAliveLog.IsZero() || now.Sub(m.lastAliveLog) > 6*time.Hour {
		uptime := now.Sub(logging.StartedAt())
		log.Printf("💓 Watchdog: uptime %s, goroutines %d, mem %s", formatDuration(uptime), gor, formatBytes(alloc))
		m.lastAliveLog = now
	}
	m.lastGoroutines = gor
}
