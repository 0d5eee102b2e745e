package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"chat-server/runtime"

	"github.com/dgraph-io/badger/v4"
	"github.com/shirou/gopsutil/process"
)

// MaintenanceWorker periodically reclaims Badger value-log space and logs
// process health (RSS, CPU, live session count) so an operator can see at a
// glance whether the server is keeping up.
type MaintenanceWorker struct {
	log      *slog.Logger
	db       *badger.DB
	registry *runtime.Registry
	interval time.Duration
}

func NewMaintenanceWorker(log *slog.Logger, db *badger.DB, registry *runtime.Registry,
	interval time.Duration) *MaintenanceWorker {
	return &MaintenanceWorker{log: log, db: db, registry: registry, interval: interval}
}

func (w *MaintenanceWorker) Run(ctx context.Context) error {
	w.log.Info("Starting maintenance worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.collectGarbage()
			w.reportSelfStats(p)
		}
	}
}

// collectGarbage runs Badger value-log GC until it reports nothing left to
// rewrite. ErrNoRewrite is the normal idle outcome, not a failure.
func (w *MaintenanceWorker) collectGarbage() {
	for {
		err := w.db.RunValueLogGC(0.5)
		if err == badger.ErrNoRewrite {
			return
		}
		if err != nil {
			w.log.Warn("Value log GC failed", "error", err)
			return
		}
	}
}

func (w *MaintenanceWorker) reportSelfStats(p *process.Process) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		w.log.Error("Failed to collect memory stats", "error", err)
		return
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		w.log.Error("Failed to collect cpu stats", "error", err)
		return
	}
	w.log.Info("Server health",
		"ram_bytes", memInfo.RSS,
		"cpu_percent", cpuPercent,
		"live_sessions", w.registry.Len(),
	)
}
