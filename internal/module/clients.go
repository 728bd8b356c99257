package module

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
	"github.com/veselinppetkov/orders-app-sub000/internal/currency"
	"github.com/veselinppetkov/orders-app-sub000/internal/eventbus"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
	"github.com/veselinppetkov/orders-app-sub000/internal/state"
)

const clientsCacheTTL = 10 * time.Minute

// ClientInput is the write payload for client creation and update.
type ClientInput struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	Address         string `json:"address"`
	PreferredSource string `json:"preferredSource"`
	Notes           string `json:"notes"`
}

// Clients is the client-collection module. Client names are compared and
// sorted case-insensitively with Bulgarian collation, since most of the data
// is Cyrillic.
type Clients struct {
	d   Deps
	log *zap.Logger

	mu         sync.Mutex
	cache      map[string]*model.Client
	loadedAt   time.Time
	optimistic map[string]*model.Client
	statsCache map[string]*model.ClientStats
	stats      Statistics

	// The collator keeps internal iterator state, so every call must hold
	// collMu. It is a leaf lock, safe to take while holding mu.
	collMu   sync.Mutex
	collator *collate.Collator
}

// sameName reports whether two names collate equal.
func (m *Clients) sameName(a, b string) bool {
	m.collMu.Lock()
	defer m.collMu.Unlock()
	return m.collator.CompareString(a, b) == 0
}

func (m *Clients) nameLess(a, b string) bool {
	m.collMu.Lock()
	defer m.collMu.Unlock()
	return m.collator.CompareString(a, b) < 0
}

// NewClients builds the clients module and wires the order-event listener
// that keeps the stats cache honest.
func NewClients(d Deps) *Clients {
	m := &Clients{
		d:          d,
		log:        d.Log.Named("clients"),
		optimistic: make(map[string]*model.Client),
		statsCache: make(map[string]*model.ClientStats),
		collator:   collate.New(language.Bulgarian, collate.IgnoreCase),
	}
	invalidate := func(eventbus.Payload) error {
		m.mu.Lock()
		m.statsCache = make(map[string]*model.ClientStats)
		m.mu.Unlock()
		return nil
	}
	d.Bus.On("order:created", invalidate)
	d.Bus.On("order:updated", invalidate)
	d.Bus.On("order:deleted", invalidate)
	return m
}

// Create runs the optimistic write protocol for a new client. Duplicate
// names are rejected case-insensitively.
func (m *Clients) Create(ctx context.Context, in ClientInput) (*model.Client, error) {
	c := &model.Client{
		Name:            strings.TrimSpace(in.Name),
		Phone:           in.Phone,
		Email:           in.Email,
		Address:         in.Address,
		PreferredSource: in.PreferredSource,
		Notes:           in.Notes,
		CreatedDate:     time.Now().Format("2006-01-02"),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if existing := m.findByName(ctx, c.Name); existing != nil {
		return nil, cdperr.Duplicate("client named %q already exists", existing.Name)
	}

	m.d.Bus.Emit("client:before-created", eventbus.Payload{
		"action": "client:created",
		"prior":  nil,
	})

	temp := c.Clone()
	temp.ID = TempID()
	temp.IsOptimistic = true
	m.mu.Lock()
	m.optimistic[temp.ID] = temp
	m.mu.Unlock()
	m.d.Bus.Emit("client:created", eventbus.Payload{
		"client":       temp.Clone(),
		"isOptimistic": true,
	})

	created, err := m.d.Cloud.CreateClient(ctx, c)
	if err == nil {
		m.mu.Lock()
		delete(m.optimistic, temp.ID)
		m.stats.CloudOperations++
		if m.cache != nil {
			m.cache[created.ID] = created.Clone()
		}
		m.mu.Unlock()
		m.writeThrough(created)
		m.d.Bus.Emit("client:created", eventbus.Payload{
			"client": created.Clone(),
			"source": SourceCloud,
		})
		return created, nil
	}

	if cdperr.IsFatal(err) {
		m.mu.Lock()
		delete(m.optimistic, temp.ID)
		m.mu.Unlock()
		m.d.Bus.Emit("client:create-failed", eventbus.Payload{"error": err.Error()})
		return nil, err
	}

	m.log.Warn("cloud create failed, falling back to local tier", zap.Error(err))
	local := c.Clone()
	local.ID = "client_" + LocalID()
	m.mu.Lock()
	delete(m.optimistic, temp.ID)
	m.stats.FallbackOperations++
	if m.cache != nil {
		m.cache[local.ID] = local.Clone()
	}
	m.mu.Unlock()
	m.writeThrough(local)
	m.d.Bus.Emit("client:created", eventbus.Payload{
		"client": local.Clone(),
		"source": SourceLocal,
	})
	return local, nil
}

// Update applies input to an existing client.
func (m *Clients) Update(ctx context.Context, id string, in ClientInput) (*model.Client, error) {
	prior, err := m.FindClientByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := prior.Clone()
	if in.Name != "" {
		updated.Name = strings.TrimSpace(in.Name)
	}
	if in.Phone != "" {
		updated.Phone = in.Phone
	}
	if in.Email != "" {
		updated.Email = in.Email
	}
	if in.Address != "" {
		updated.Address = in.Address
	}
	if in.PreferredSource != "" {
		updated.PreferredSource = in.PreferredSource
	}
	if in.Notes != "" {
		updated.Notes = in.Notes
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if !m.sameName(updated.Name, prior.Name) {
		if other := m.findByName(ctx, updated.Name); other != nil && other.ID != id {
			return nil, cdperr.Duplicate("client named %q already exists", other.Name)
		}
	}

	m.d.Bus.Emit("client:before-updated", eventbus.Payload{
		"action": "client:updated",
		"prior":  prior.Clone(),
	})

	source := SourceLocal
	if isCloudClientID(id) {
		if _, err := m.d.Cloud.UpdateClient(ctx, updated); err == nil {
			source = SourceCloud
			m.mu.Lock()
			m.stats.CloudOperations++
			m.mu.Unlock()
		} else if cdperr.IsFatal(err) {
			m.d.Bus.Emit("client:update-failed", eventbus.Payload{"error": err.Error(), "id": id})
			return nil, err
		} else {
			m.log.Warn("cloud update failed, falling back to local tier", zap.Error(err))
			m.mu.Lock()
			m.stats.FallbackOperations++
			m.mu.Unlock()
		}
	} else {
		m.mu.Lock()
		m.stats.FallbackOperations++
		m.mu.Unlock()
	}

	m.mu.Lock()
	if m.cache != nil {
		m.cache[updated.ID] = updated.Clone()
	}
	m.mu.Unlock()
	m.writeThrough(updated)
	m.d.Bus.Emit("client:updated", eventbus.Payload{
		"client": updated.Clone(),
		"source": source,
	})
	return updated, nil
}

// Delete removes a client. Clients with orders on file cannot be deleted.
func (m *Clients) Delete(ctx context.Context, id string) error {
	prior, err := m.FindClientByID(ctx, id)
	if err != nil {
		return err
	}
	if stats := m.GetClientStats(prior.Name); stats.OrderCount > 0 {
		return cdperr.Validation("client %q has %d orders on file and cannot be deleted",
			prior.Name, stats.OrderCount)
	}

	m.d.Bus.Emit("client:before-deleted", eventbus.Payload{
		"action": "client:deleted",
		"prior":  prior.Clone(),
	})

	source := SourceLocal
	if isCloudClientID(id) {
		if err := m.d.Cloud.DeleteClient(ctx, id); err == nil {
			source = SourceCloud
			m.mu.Lock()
			m.stats.CloudOperations++
			m.mu.Unlock()
		} else if cdperr.IsFatal(err) {
			m.d.Bus.Emit("client:delete-failed", eventbus.Payload{"error": err.Error(), "id": id})
			return err
		} else {
			m.log.Warn("cloud delete failed, removing locally only", zap.Error(err))
			m.mu.Lock()
			m.stats.FallbackOperations++
			m.mu.Unlock()
		}
	} else {
		m.mu.Lock()
		m.stats.FallbackOperations++
		m.mu.Unlock()
	}

	m.mu.Lock()
	delete(m.optimistic, id)
	if m.cache != nil {
		delete(m.cache, id)
	}
	m.mu.Unlock()

	clients := model.CloneClientsData(m.d.State.ClientsData())
	delete(clients, id)
	if err := m.d.State.Set(state.KeyClientsData, clients); err != nil {
		m.log.Error("state write failed", zap.Error(err))
	}
	if err := m.d.Local.SaveClientsData(clients); err != nil {
		m.log.Error("local backup failed", zap.Error(err))
	}

	m.d.Bus.Emit("client:deleted", eventbus.Payload{
		"id":     id,
		"client": prior.Clone(),
		"source": source,
	})
	return nil
}

// GetClients serves the full collection sorted by name, optimistic entries
// included.
func (m *Clients) GetClients(ctx context.Context) ([]*model.Client, error) {
	m.mu.Lock()
	m.stats.TotalLoads++
	if m.cache != nil && time.Since(m.loadedAt) < clientsCacheTTL {
		m.stats.CacheHits++
		out := m.mergedLocked()
		m.mu.Unlock()
		return out, nil
	}
	m.stats.CacheMisses++
	m.mu.Unlock()

	m.reload(ctx)

	m.mu.Lock()
	out := m.mergedLocked()
	m.mu.Unlock()
	return out, nil
}

// FindClientByID resolves a client by id from any tier.
func (m *Clients) FindClientByID(ctx context.Context, id string) (*model.Client, error) {
	m.mu.Lock()
	if c, ok := m.optimistic[id]; ok {
		m.mu.Unlock()
		return c.Clone(), nil
	}
	if m.cache != nil {
		if c, ok := m.cache[id]; ok {
			m.mu.Unlock()
			return c.Clone(), nil
		}
	}
	m.mu.Unlock()

	if c, ok := m.d.State.ClientsData()[id]; ok {
		return c.Clone(), nil
	}

	m.reload(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache != nil {
		if c, ok := m.cache[id]; ok {
			return c.Clone(), nil
		}
	}
	return nil, cdperr.NotFound("client %s", id)
}

// FindClientByName resolves a client by case-insensitive name.
func (m *Clients) FindClientByName(ctx context.Context, name string) (*model.Client, error) {
	if c := m.findByName(ctx, name); c != nil {
		return c, nil
	}
	return nil, cdperr.NotFound("client named %q", name)
}

// GetClientStats aggregates a client's orders across every month bucket.
// Results are cached until the next order mutation.
func (m *Clients) GetClientStats(name string) *model.ClientStats {
	key := strings.ToLower(strings.TrimSpace(name))
	m.mu.Lock()
	if s, ok := m.statsCache[key]; ok {
		m.mu.Unlock()
		cp := *s
		return &cp
	}
	m.mu.Unlock()

	stats := &model.ClientStats{}
	for _, bucket := range m.d.State.MonthlyData() {
		for _, o := range bucket.Orders {
			if !m.sameName(o.Client, name) {
				continue
			}
			stats.OrderCount++
			stats.TotalSpentEUR += o.SellEUR
			stats.ProfitEUR += o.BalanceEUR
			if o.Date > stats.LastOrderDate {
				stats.LastOrderDate = o.Date
			}
			if stats.FirstSeenDate == "" || o.Date < stats.FirstSeenDate {
				stats.FirstSeenDate = o.Date
			}
		}
	}
	stats.TotalSpentEUR = currency.Round2(stats.TotalSpentEUR)
	stats.ProfitEUR = currency.Round2(stats.ProfitEUR)
	stats.TotalSpentBGN = currency.BGNFromEUR(stats.TotalSpentEUR)
	stats.ProfitBGN = currency.BGNFromEUR(stats.ProfitEUR)

	m.mu.Lock()
	m.statsCache[key] = stats
	m.mu.Unlock()
	cp := *stats
	return &cp
}

// Stats returns a snapshot of the module counters.
func (m *Clients) Stats() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// InvalidateCache drops the collection cache and the stats cache.
func (m *Clients) InvalidateCache() {
	m.mu.Lock()
	m.cache = nil
	m.statsCache = make(map[string]*model.ClientStats)
	m.mu.Unlock()
}

// reload fills the cache from the cloud tier, falling back to state and
// then the local tier.
func (m *Clients) reload(ctx context.Context) {
	clients, err := m.d.Cloud.GetClients(ctx)
	if err == nil {
		m.mu.Lock()
		m.stats.CloudOperations++
		m.mu.Unlock()
		merged := m.unionWithLocal(clients)
		m.storeCache(merged)
		m.backup(merged)
		return
	}

	m.log.Warn("cloud load failed, serving local tier", zap.Error(err))
	m.mu.Lock()
	m.stats.FallbackOperations++
	m.mu.Unlock()

	local := m.d.State.ClientsData()
	if len(local) == 0 {
		stored, lerr := m.d.Local.LoadClientsData()
		if lerr != nil {
			m.log.Error("local tier read failed", zap.Error(lerr))
		} else {
			local = stored
		}
	}
	list := make([]*model.Client, 0, len(local))
	for _, c := range local {
		list = append(list, c)
	}
	m.storeCache(list)
}

// unionWithLocal keeps local-only clients a cloud load would drop.
func (m *Clients) unionWithLocal(cloudClients []*model.Client) []*model.Client {
	seen := make(map[string]struct{}, len(cloudClients))
	for _, c := range cloudClients {
		seen[c.ID] = struct{}{}
	}
	out := cloudClients
	for id, c := range m.d.State.ClientsData() {
		if _, ok := seen[id]; !ok && !isCloudClientID(id) {
			out = append(out, c.Clone())
		}
	}
	return out
}

func (m *Clients) storeCache(clients []*model.Client) {
	cache := make(map[string]*model.Client, len(clients))
	for _, c := range clients {
		cache[c.ID] = c.Clone()
	}
	m.mu.Lock()
	m.cache = cache
	m.loadedAt = time.Now()
	m.mu.Unlock()
}

// backup folds a cloud load into state and the local tier.
func (m *Clients) backup(clients []*model.Client) {
	data := make(map[string]*model.Client, len(clients))
	for _, c := range clients {
		data[c.ID] = c.Clone()
	}
	if err := m.d.State.Set(state.KeyClientsData, data); err != nil {
		m.log.Error("state write failed", zap.Error(err))
	}
	if err := m.d.Local.SaveClientsData(data); err != nil {
		m.log.Error("local backup failed", zap.Error(err))
	}
}

func (m *Clients) writeThrough(c *model.Client) {
	clients := model.CloneClientsData(m.d.State.ClientsData())
	clients[c.ID] = c.Clone()
	if err := m.d.State.Set(state.KeyClientsData, clients); err != nil {
		m.log.Error("state write failed", zap.Error(err))
	}
	if err := m.d.Local.SaveClientsData(clients); err != nil {
		m.log.Error("local backup failed", zap.Error(err))
	}
}

func (m *Clients) findByName(ctx context.Context, name string) *model.Client {
	m.mu.Lock()
	if m.cache == nil || time.Since(m.loadedAt) >= clientsCacheTTL {
		m.mu.Unlock()
		m.reload(ctx)
		m.mu.Lock()
	}
	defer m.mu.Unlock()
	for _, c := range m.cache {
		if m.sameName(c.Name, name) {
			return c.Clone()
		}
	}
	for _, c := range m.optimistic {
		if m.sameName(c.Name, name) {
			return c.Clone()
		}
	}
	return nil
}

// mergedLocked returns cache plus optimistic entries, name-sorted with the
// Bulgarian collator.
func (m *Clients) mergedLocked() []*model.Client {
	out := make([]*model.Client, 0, len(m.cache)+len(m.optimistic))
	for _, c := range m.cache {
		out = append(out, c.Clone())
	}
	for _, c := range m.optimistic {
		out = append(out, c.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return m.nameLess(out[i].Name, out[j].Name)
	})
	return out
}

// isCloudClientID reports whether the id names a cloud row. Local clients
// embed a millisecond timestamp instead of a small serial.
func isCloudClientID(id string) bool {
	rest := strings.TrimPrefix(id, "client_")
	if rest == id {
		return false
	}
	return isCloudOrderID(rest)
}
