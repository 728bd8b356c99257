// Package lifecycle keeps the local tier current without the modules having
// to think about it: a debounced autosave after every mutation, periodic
// emergency backups, storage health polling with escalation, and a final
// flush on shutdown.
package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veselinppetkov/orders-app-sub000/internal/eventbus"
	"github.com/veselinppetkov/orders-app-sub000/internal/localstore"
	"github.com/veselinppetkov/orders-app-sub000/internal/state"
)

// Defaults.
const (
	DefaultAutosaveDebounce  = 3 * time.Second
	DefaultEmergencyInterval = 10 * time.Minute
	DefaultHealthInterval    = 30 * time.Second

	// maxHealthEscalations caps how often a broken store triggers the
	// recovery routine before the guard settles into a critical warning.
	maxHealthEscalations = 3
)

// mutationTopics are the after-events that mark state dirty.
var mutationTopics = []string{
	"order:created", "order:updated", "order:deleted",
	"client:created", "client:updated", "client:deleted",
	"expense:created", "expense:updated", "expense:deleted", "expenses:reset",
	"inventory:created", "inventory:updated", "inventory:deleted",
	"settings:updated",
	"history:undone", "history:redone",
}

// Options tune the guard's timing, mostly for tests.
type Options struct {
	AutosaveDebounce  time.Duration
	EmergencyInterval time.Duration
	HealthInterval    time.Duration
	ExportDir         string
}

func (o *Options) fill() {
	if o.AutosaveDebounce <= 0 {
		o.AutosaveDebounce = DefaultAutosaveDebounce
	}
	if o.EmergencyInterval <= 0 {
		o.EmergencyInterval = DefaultEmergencyInterval
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = DefaultHealthInterval
	}
}

// Guard is the lifecycle supervisor.
type Guard struct {
	bus   *eventbus.Bus
	state *state.Store
	local *localstore.Persistence
	log   *zap.Logger
	opts  Options

	mu          sync.Mutex
	dirty       bool
	timer       *time.Timer
	escalations int
	saves       int
	lastSave    time.Time
	stopped     bool

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// New wires a guard to the bus. Call Start to launch the background loops.
func New(bus *eventbus.Bus, st *state.Store, local *localstore.Persistence, log *zap.Logger, opts Options) *Guard {
	opts.fill()
	g := &Guard{
		bus:   bus,
		state: st,
		local: local,
		log:   log.Named("lifecycle"),
		opts:  opts,
		done:  make(chan struct{}),
	}
	for _, topic := range mutationTopics {
		bus.On(topic, g.markDirty)
	}
	return g
}

// Start launches the emergency-backup and health-poll loops.
func (g *Guard) Start() {
	g.wg.Add(2)
	go g.emergencyLoop()
	go g.healthLoop()
	g.log.Info("lifecycle guard started",
		zap.Duration("autosaveDebounce", g.opts.AutosaveDebounce),
		zap.Duration("emergencyInterval", g.opts.EmergencyInterval),
		zap.Duration("healthInterval", g.opts.HealthInterval))
}

// Stop flushes pending work, writes the shutdown backup, and joins the
// loops. Safe to call more than once.
func (g *Guard) Stop(ctx context.Context) {
	g.once.Do(func() {
		close(g.done)

		g.mu.Lock()
		g.stopped = true
		if g.timer != nil {
			g.timer.Stop()
		}
		dirty := g.dirty
		g.mu.Unlock()

		if dirty {
			g.ForceSave()
		}
		if err := g.local.WriteTabCloseBackup(g.snapshot("shutdown")); err != nil {
			g.log.Error("shutdown backup failed", zap.Error(err))
		}

		joined := make(chan struct{})
		go func() {
			g.wg.Wait()
			close(joined)
		}()
		select {
		case <-joined:
		case <-ctx.Done():
			g.log.Warn("lifecycle loops did not stop in time")
		}
		g.log.Info("lifecycle guard stopped")
	})
}

func (g *Guard) markDirty(eventbus.Payload) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return nil
	}
	g.dirty = true
	// Restart the debounce window on every mutation.
	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(g.opts.AutosaveDebounce, g.autosave)
	return nil
}

func (g *Guard) autosave() {
	g.mu.Lock()
	if g.stopped || !g.dirty {
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	g.ForceSave()
}

// ForceSave writes the whole mutable state to the local tier immediately.
func (g *Guard) ForceSave() {
	ok := true
	if err := g.local.SaveMonthlyData(g.state.MonthlyData()); err != nil {
		g.log.Error("save monthlyData failed", zap.Error(err))
		ok = false
	}
	if err := g.local.SaveClientsData(g.state.ClientsData()); err != nil {
		g.log.Error("save clientsData failed", zap.Error(err))
		ok = false
	}
	if err := g.local.SaveInventory(g.state.Inventory()); err != nil {
		g.log.Error("save inventory failed", zap.Error(err))
		ok = false
	}
	if err := g.local.SaveSettings(g.state.Settings()); err != nil {
		g.log.Error("save settings failed", zap.Error(err))
		ok = false
	}
	if month, _ := g.state.Get(state.KeyCurrentMonth).(string); month != "" {
		if err := g.local.SaveCurrentMonth(month); err != nil {
			g.log.Error("save currentMonth failed", zap.Error(err))
			ok = false
		}
	}

	now := time.Now()
	g.mu.Lock()
	g.dirty = !ok
	if ok {
		g.saves++
		g.lastSave = now
	}
	g.mu.Unlock()

	if ok {
		if err := g.local.TouchLastSave(now); err != nil {
			g.log.Error("touch lastSave failed", zap.Error(err))
		}
		g.bus.Emit("data:saved", eventbus.Payload{"at": now})
	} else {
		g.bus.Emit("data:save-failed", eventbus.Payload{"at": now})
	}
}

// SaveCount returns how many full saves have succeeded.
func (g *Guard) SaveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.saves
}

// LastSave returns the time of the latest successful save.
func (g *Guard) LastSave() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSave
}

func (g *Guard) snapshot(reason string) *localstore.EmergencySnapshot {
	return &localstore.EmergencySnapshot{
		MonthlyData: g.state.MonthlyData(),
		ClientsData: g.state.ClientsData(),
		Inventory:   g.state.Inventory(),
		Settings:    g.state.Settings(),
		SavedAt:     time.Now(),
		Reason:      reason,
	}
}

func (g *Guard) emergencyLoop() {
	defer g.wg.Done()
	ticker := time.NewTicker(g.opts.EmergencyInterval)
	defer ticker.Stop()
	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			if err := g.local.WriteEmergencyBackup(g.snapshot("interval")); err != nil {
				g.log.Error("emergency backup failed", zap.Error(err))
			} else {
				g.log.Debug("emergency backup written")
			}
		}
	}
}

func (g *Guard) healthLoop() {
	defer g.wg.Done()
	ticker := time.NewTicker(g.opts.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			g.checkHealth()
		}
	}
}

// checkHealth polls the store and escalates on failure: export what we can,
// warn listeners, and after repeated failures settle into a critical state
// instead of hammering a broken disk.
func (g *Guard) checkHealth() {
	h := g.local.StorageHealth()
	switch h.Status {
	case localstore.HealthHealthy:
		g.mu.Lock()
		g.escalations = 0
		g.mu.Unlock()
		return
	case localstore.HealthDegraded:
		g.log.Warn("storage degraded", zap.Strings("issues", h.Issues))
		g.bus.Emit("storage:health-warning", eventbus.Payload{
			"status": h.Status,
			"issues": h.Issues,
		})
		return
	}

	g.mu.Lock()
	g.escalations++
	n := g.escalations
	g.mu.Unlock()

	g.log.Error("storage unhealthy", zap.Int("escalation", n), zap.Strings("issues", h.Issues))
	if n > maxHealthEscalations {
		// Last resort: hand listeners everything still readable.
		doc, expErr := g.local.ExportAll()
		if expErr != nil {
			g.log.Error("critical export failed", zap.Error(expErr))
		}
		g.bus.Emit("storage:health-critical", eventbus.Payload{
			"status": h.Status,
			"issues": h.Issues,
			"export": doc,
		})
		return
	}

	g.exportRescue()
	g.bus.Emit("storage:health-warning", eventbus.Payload{
		"status":     h.Status,
		"issues":     h.Issues,
		"escalation": n,
	})
}

// exportRescue dumps everything readable to a timestamped file so the data
// survives a dying store.
func (g *Guard) exportRescue() {
	if g.opts.ExportDir == "" {
		return
	}
	doc, err := g.local.ExportAll()
	if err != nil {
		g.log.Error("rescue export failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(g.opts.ExportDir, 0o755); err != nil {
		g.log.Error("rescue export dir failed", zap.Error(err))
		return
	}
	name := filepath.Join(g.opts.ExportDir,
		"rescue_"+time.Now().Format("20060102_150405")+".json")
	if err := os.WriteFile(name, []byte(doc), 0o644); err != nil {
		g.log.Error("rescue export write failed", zap.Error(err))
		return
	}
	g.log.Info("rescue export written", zap.String("file", name))
}
