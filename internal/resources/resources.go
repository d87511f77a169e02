// Package resources tracks host memory/disk and per-tenant allocation,
// producing the Resource Inventory described in spec.md §3/§4.9.
package resources

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"grafeodb/server/engine"
	"grafeodb/server/internal/logging"
)

// Inventory is a point-in-time accounting of host resources plus the
// per-tenant allocation and build capabilities the manager reports back to
// clients at /system/resources.
type Inventory struct {
	TotalMemoryBytes     int64
	AllocatedMemoryBytes int64
	FreeDiskBytes        int64
	PersistentAvailable  bool
	SupportedKinds       []engine.Kind
	DefaultOptions       engine.Options
	UpdatedAt            time.Time
	Warnings             []string
}

// Tracker owns the last-probed Inventory and a configurable periodic
// refresh job (§4.10), refreshed on demand by Snapshot.
type Tracker struct {
	mu   sync.RWMutex
	last Inventory

	persistenceRoot string
	supportedKinds  []engine.Kind
	defaultOptions  engine.Options
	persistentOK    bool

	allocated int64 // bytes currently promised to live databases

	refreshSchedule string

	log *logging.Logger
	cr  *cron.Cron
}

// Config configures a Tracker.
type Config struct {
	PersistenceRoot string
	SupportedKinds  []engine.Kind
	DefaultOptions  engine.Options
	PersistentOK    bool
	RefreshSchedule string // cron expression, default "@every 30s"
}

// New builds a Tracker and performs an initial probe.
func New(cfg Config, log *logging.Logger) *Tracker {
	t := &Tracker{
		persistenceRoot: cfg.PersistenceRoot,
		supportedKinds:  cfg.SupportedKinds,
		defaultOptions:  cfg.DefaultOptions,
		persistentOK:    cfg.PersistentOK,
		refreshSchedule: cfg.RefreshSchedule,
		log:             log,
	}
	t.refresh()
	return t
}

// Name implements service.Service.
func (t *Tracker) Name() string { return "resource-tracker" }

// Start launches the periodic refresh cron job (spec §4.10).
func (t *Tracker) Start(ctx context.Context) error {
	schedule := t.refreshSchedule
	if schedule == "" {
		schedule = "@every 30s"
	}
	t.cr = cron.New()
	if _, err := t.cr.AddFunc(schedule, t.refresh); err != nil {
		return err
	}
	t.cr.Start()
	return nil
}

// Stop halts the periodic refresh job, waiting for any in-flight run.
func (t *Tracker) Stop(ctx context.Context) error {
	if t.cr != nil {
		stopCtx := t.cr.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	return nil
}

// Reserve records bytes allocated to a newly created database. Returns
// false (without mutating state) if granting would exceed host RAM.
func (t *Tracker) Reserve(bytes int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allocated+bytes > t.last.TotalMemoryBytes && t.last.TotalMemoryBytes > 0 {
		return false
	}
	t.allocated += bytes
	return true
}

// Release returns bytes previously reserved by Reserve (e.g. on delete).
func (t *Tracker) Release(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allocated -= bytes
	if t.allocated < 0 {
		t.allocated = 0
	}
}

// Snapshot forces a fresh probe and returns it (spec: "recomputed on
// demand" for /system/resources).
func (t *Tracker) Snapshot() Inventory {
	t.refresh()
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// Cached returns the last probed reading without forcing a new probe. No
// caller in this module reads it; the resource gauges in internal/metrics
// are not fed from it.
func (t *Tracker) Cached() Inventory {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

func (t *Tracker) refresh() {
	var warnings []string

	var totalMem int64
	if vm, err := mem.VirtualMemory(); err == nil {
		totalMem = int64(vm.Total)
	} else {
		warnings = append(warnings, "memory probe failed, reporting 0")
	}

	var freeDisk int64
	if t.persistenceRoot != "" {
		if du, err := disk.Usage(t.persistenceRoot); err == nil {
			freeDisk = int64(du.Free)
		} else {
			warnings = append(warnings, "disk probe failed, reporting 0")
		}
	}

	t.mu.Lock()
	t.last = Inventory{
		TotalMemoryBytes:     totalMem,
		AllocatedMemoryBytes: t.allocated,
		FreeDiskBytes:        freeDisk,
		PersistentAvailable:  t.persistentOK && t.persistenceRoot != "",
		SupportedKinds:       t.supportedKinds,
		DefaultOptions:       t.defaultOptions,
		UpdatedAt:            time.Now(),
		Warnings:             warnings,
	}
	t.mu.Unlock()

	if t.log != nil && len(warnings) > 0 {
		for _, w := range warnings {
			t.log.Warnf("resource probe: %s", w)
		}
	}
}
