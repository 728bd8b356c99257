package module

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
	"github.com/veselinppetkov/orders-app-sub000/internal/eventbus"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
	"github.com/veselinppetkov/orders-app-sub000/internal/state"
)

// SettingsModule manages the process-wide settings singleton: cloud row
// preferred, local mirror next, compiled defaults last.
type SettingsModule struct {
	d   Deps
	log *zap.Logger

	mu     sync.Mutex
	loaded bool
	stats  Statistics
}

// NewSettings builds the settings module.
func NewSettings(d Deps) *SettingsModule {
	return &SettingsModule{d: d, log: d.Log.Named("settings")}
}

// GetSettings returns the active settings, loading them on first use.
func (m *SettingsModule) GetSettings(ctx context.Context) (*model.Settings, error) {
	m.mu.Lock()
	loaded := m.loaded
	m.stats.TotalLoads++
	if loaded {
		m.stats.CacheHits++
	} else {
		m.stats.CacheMisses++
	}
	m.mu.Unlock()

	if !loaded {
		m.Reload(ctx)
	}
	return m.d.State.Settings().Clone(), nil
}

// Reload resolves settings across the tiers and publishes the result.
func (m *SettingsModule) Reload(ctx context.Context) {
	s, err := m.d.Cloud.GetSettings(ctx)
	switch {
	case err == nil:
		m.mu.Lock()
		m.stats.CloudOperations++
		m.mu.Unlock()
		if lerr := m.d.Local.SaveSettings(s); lerr != nil {
			m.log.Error("local mirror failed", zap.Error(lerr))
		}
	case errors.Is(err, cdperr.ErrNotFound):
		// No cloud row yet: fall through to the local mirror.
		s = nil
	default:
		m.log.Warn("cloud load failed, serving local tier", zap.Error(err))
		m.mu.Lock()
		m.stats.FallbackOperations++
		m.mu.Unlock()
		s = nil
	}

	if s == nil {
		stored, lerr := m.d.Local.LoadSettings()
		if lerr != nil {
			m.log.Error("local tier read failed", zap.Error(lerr))
		}
		s = stored
	}
	if s == nil {
		s = model.DefaultSettings()
	}

	if err := m.d.State.Set(state.KeySettings, s); err != nil {
		m.log.Error("state write failed", zap.Error(err))
		return
	}
	m.mu.Lock()
	m.loaded = true
	m.mu.Unlock()
}

// Save validates and persists new settings across every tier.
func (m *SettingsModule) Save(ctx context.Context, s *model.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	prior := m.d.State.Settings().Clone()
	m.d.Bus.Emit("settings:before-updated", eventbus.Payload{
		"action": "settings:updated",
		"prior":  prior,
	})

	if err := m.d.State.Set(state.KeySettings, s.Clone()); err != nil {
		return err
	}
	if err := m.d.Local.SaveSettings(s); err != nil {
		m.log.Error("local mirror failed", zap.Error(err))
	}

	source := SourceCloud
	if err := m.d.Cloud.SaveSettings(ctx, s); err != nil {
		if cdperr.IsFatal(err) {
			m.d.Bus.Emit("settings:update-failed", eventbus.Payload{"error": err.Error()})
			return err
		}
		m.log.Warn("cloud save failed, settings kept in local tier", zap.Error(err))
		source = SourceLocal
		m.mu.Lock()
		m.stats.FallbackOperations++
		m.mu.Unlock()
	} else {
		m.mu.Lock()
		m.stats.CloudOperations++
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.loaded = true
	m.mu.Unlock()
	m.d.Bus.Emit("settings:updated", eventbus.Payload{
		"settings": s.Clone(),
		"source":   source,
	})
	return nil
}

// Stats returns a snapshot of the module counters.
func (m *SettingsModule) Stats() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
