// Package history implements the bounded undo/redo log. Every mutation
// announces itself on a before-topic carrying the action name; the log
// snapshots the mutable state subset at that moment, so undo restores the
// world as it was just before the change.
package history

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
	"github.com/veselinppetkov/orders-app-sub000/internal/eventbus"
	"github.com/veselinppetkov/orders-app-sub000/internal/localstore"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
	"github.com/veselinppetkov/orders-app-sub000/internal/state"
)

// maxDepth bounds the undo stack; the oldest snapshot falls off.
const maxDepth = 50

// beforeTopics are the mutation announcements the log listens on.
var beforeTopics = []string{
	"order:before-created", "order:before-updated", "order:before-deleted",
	"client:before-created", "client:before-updated", "client:before-deleted",
	"expense:before-created", "expense:before-updated", "expense:before-deleted",
	"inventory:before-created", "inventory:before-updated", "inventory:before-deleted",
	"settings:before-updated",
}

// Log is the undo/redo stack pair.
type Log struct {
	bus   *eventbus.Bus
	state *state.Store
	local *localstore.Persistence
	log   *zap.Logger

	mu        sync.Mutex
	undo      []*model.UndoSnapshot
	redo      []*model.UndoSnapshot
	restoring bool
	unsubs    []func()
}

// New wires a log to the bus. Snapshots are taken synchronously inside the
// emitting mutation, before its optimistic write lands.
func New(bus *eventbus.Bus, st *state.Store, local *localstore.Persistence, log *zap.Logger) *Log {
	l := &Log{
		bus:   bus,
		state: st,
		local: local,
		log:   log.Named("history"),
	}
	for _, topic := range beforeTopics {
		unsub := bus.On(topic, l.capture)
		l.unsubs = append(l.unsubs, unsub)
	}
	return l
}

func (l *Log) capture(p eventbus.Payload) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.restoring {
		return nil
	}

	action, _ := p["action"].(string)
	snap := l.snapshotLocked(action)
	if prior, ok := p["prior"]; ok && prior != nil {
		snap.ActionData = map[string]any{"prior": prior}
	}

	l.undo = append(l.undo, snap)
	if len(l.undo) > maxDepth {
		l.undo = l.undo[len(l.undo)-maxDepth:]
	}
	// A fresh mutation invalidates everything that was undone.
	l.redo = nil
	return nil
}

func (l *Log) snapshotLocked(action string) *model.UndoSnapshot {
	return &model.UndoSnapshot{
		MonthlyData: model.CloneMonthlyData(l.state.MonthlyData()),
		ClientsData: model.CloneClientsData(l.state.ClientsData()),
		Inventory:   model.CloneInventory(l.state.Inventory()),
		Timestamp:   time.Now(),
		Action:      action,
	}
}

// Undo restores the newest snapshot and parks the current state on the redo
// stack.
func (l *Log) Undo() (string, error) {
	l.mu.Lock()
	if len(l.undo) == 0 {
		l.mu.Unlock()
		return "", cdperr.NotFound("nothing to undo")
	}
	snap := l.undo[len(l.undo)-1]
	l.undo = l.undo[:len(l.undo)-1]
	l.redo = append(l.redo, l.snapshotLocked(snap.Action))
	l.restoring = true
	l.mu.Unlock()

	err := l.restore(snap)

	l.mu.Lock()
	l.restoring = false
	l.mu.Unlock()
	if err != nil {
		return "", err
	}

	l.bus.Emit("history:undone", eventbus.Payload{"action": snap.Action})
	l.log.Info("undo applied", zap.String("action", snap.Action))
	return snap.Action, nil
}

// Redo reverses the newest Undo.
func (l *Log) Redo() (string, error) {
	l.mu.Lock()
	if len(l.redo) == 0 {
		l.mu.Unlock()
		return "", cdperr.NotFound("nothing to redo")
	}
	snap := l.redo[len(l.redo)-1]
	l.redo = l.redo[:len(l.redo)-1]
	l.undo = append(l.undo, l.snapshotLocked(snap.Action))
	l.restoring = true
	l.mu.Unlock()

	err := l.restore(snap)

	l.mu.Lock()
	l.restoring = false
	l.mu.Unlock()
	if err != nil {
		return "", err
	}

	l.bus.Emit("history:redone", eventbus.Payload{"action": snap.Action})
	l.log.Info("redo applied", zap.String("action", snap.Action))
	return snap.Action, nil
}

func (l *Log) restore(snap *model.UndoSnapshot) error {
	if err := l.state.Update(map[string]any{
		state.KeyMonthlyData: model.CloneMonthlyData(snap.MonthlyData),
		state.KeyClientsData: model.CloneClientsData(snap.ClientsData),
		state.KeyInventory:   model.CloneInventory(snap.Inventory),
	}); err != nil {
		return err
	}
	if err := l.local.SaveMonthlyData(snap.MonthlyData); err != nil {
		l.log.Error("local restore failed", zap.Error(err))
	}
	if err := l.local.SaveClientsData(snap.ClientsData); err != nil {
		l.log.Error("local restore failed", zap.Error(err))
	}
	if err := l.local.SaveInventory(snap.Inventory); err != nil {
		l.log.Error("local restore failed", zap.Error(err))
	}
	return nil
}

// CanUndo reports whether an undo snapshot exists.
func (l *Log) CanUndo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.undo) > 0
}

// CanRedo reports whether a redo snapshot exists.
func (l *Log) CanRedo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.redo) > 0
}

// Depths returns the undo and redo stack sizes.
func (l *Log) Depths() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.undo), len(l.redo)
}

// Clear drops both stacks.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.undo = nil
	l.redo = nil
}

// Close detaches the log from the bus.
func (l *Log) Close() {
	for _, unsub := range l.unsubs {
		unsub()
	}
}
