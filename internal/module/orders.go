package module

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
	"github.com/veselinppetkov/orders-app-sub000/internal/currency"
	"github.com/veselinppetkov/orders-app-sub000/internal/eventbus"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
	"github.com/veselinppetkov/orders-app-sub000/internal/state"
)

const (
	ordersCacheTTL = 5 * time.Minute
	// ordersCacheCap bounds how many month buckets stay cached; the
	// oldest-loaded month is evicted beyond it.
	ordersCacheCap = 10
)

// OrderInput is the write payload for order creation and update. Pointer
// fields distinguish "absent" from zero: historical orders carry BGN
// amounts with no EUR counterpart.
type OrderInput struct {
	Date        string   `json:"date"`
	Client      string   `json:"client"`
	Phone       string   `json:"phone"`
	Origin      string   `json:"origin"`
	Vendor      string   `json:"vendor"`
	Model       string   `json:"model"`
	CostUSD     float64  `json:"costUSD"`
	ShippingUSD *float64 `json:"shippingUSD"`
	Rate        *float64 `json:"rate"`
	Status      string   `json:"status"`
	FullSet     bool     `json:"fullSet"`
	Notes       string   `json:"notes"`
	ImagePath   string   `json:"imagePath"`

	ExtrasEUR *float64 `json:"extrasEUR"`
	ExtrasBGN *float64 `json:"extrasBGN"`
	SellEUR   *float64 `json:"sellEUR"`
	SellBGN   *float64 `json:"sellBGN"`
}

type ordersMonthCache struct {
	orders   []*model.Order
	loadedAt time.Time
}

// Orders is the order-collection module. The cache is keyed by month.
type Orders struct {
	d   Deps
	log *zap.Logger

	mu         sync.Mutex
	cache      map[string]*ordersMonthCache
	optimistic map[string]*model.Order
	pending    map[string]struct{}
	stats      Statistics
}

// NewOrders builds the orders module.
func NewOrders(d Deps) *Orders {
	return &Orders{
		d:          d,
		log:        d.Log.Named("orders"),
		cache:      make(map[string]*ordersMonthCache),
		optimistic: make(map[string]*model.Order),
		pending:    make(map[string]struct{}),
	}
}

// PrepareOrder resolves settings defaults and computes the derived money
// fields for an input, returning a validated order.
func (m *Orders) PrepareOrder(in OrderInput) (*model.Order, error) {
	settings := m.d.State.Settings()

	o := &model.Order{
		Date:        in.Date,
		Client:      in.Client,
		Phone:       in.Phone,
		Origin:      in.Origin,
		Vendor:      in.Vendor,
		Model:       in.Model,
		CostUSD:     in.CostUSD,
		Status:      in.Status,
		FullSet:     in.FullSet,
		Notes:       in.Notes,
		ImagePath:   in.ImagePath,
		ShippingUSD: settings.FactoryShipping,
		Rate:        settings.EURRate,
	}
	if in.ShippingUSD != nil {
		o.ShippingUSD = *in.ShippingUSD
	}
	if in.Rate != nil {
		o.Rate = *in.Rate
	}
	if in.ExtrasEUR != nil {
		o.ExtrasEUR = *in.ExtrasEUR
	}
	if in.ExtrasBGN != nil {
		o.ExtrasBGN = *in.ExtrasBGN
	}
	if in.SellEUR != nil {
		o.SellEUR = *in.SellEUR
	}
	if in.SellBGN != nil {
		o.SellBGN = *in.SellBGN
	}
	if o.Status == "" {
		o.Status = model.OrderStatusPending
	}

	if err := o.Validate(); err != nil {
		return nil, err
	}
	currency.RecomputeOrderTotals(o)
	return o, nil
}

// Create runs the optimistic write protocol for a new order.
func (m *Orders) Create(ctx context.Context, in OrderInput) (*model.Order, error) {
	o, err := m.PrepareOrder(in)
	if err != nil {
		return nil, err
	}

	m.d.Bus.Emit("order:before-created", eventbus.Payload{
		"action": "order:created",
		"month":  o.MonthKey(),
		"prior":  nil,
	})

	temp := o.Clone()
	temp.ID = TempID()
	temp.IsOptimistic = true
	m.mu.Lock()
	m.optimistic[temp.ID] = temp
	m.pending[temp.ID] = struct{}{}
	m.mu.Unlock()
	m.d.Bus.Emit("order:created", eventbus.Payload{
		"order":        temp.Clone(),
		"isOptimistic": true,
	})

	created, err := m.d.Cloud.CreateOrder(ctx, o)
	if err == nil {
		m.settle(temp.ID)
		m.mu.Lock()
		m.stats.CloudOperations++
		m.upsertCacheLocked(created)
		m.mu.Unlock()
		m.writeThrough(created, "")
		m.d.Bus.Emit("order:created", eventbus.Payload{
			"order":  created.Clone(),
			"source": SourceCloud,
		})
		return created, nil
	}

	if cdperr.IsFatal(err) {
		m.settle(temp.ID)
		m.d.Bus.Emit("order:create-failed", eventbus.Payload{"error": err.Error()})
		return nil, err
	}

	m.log.Warn("cloud create failed, falling back to local tier", zap.Error(err))
	local := o.Clone()
	local.ID = LocalID()
	m.settle(temp.ID)
	m.mu.Lock()
	m.stats.FallbackOperations++
	m.upsertCacheLocked(local)
	m.mu.Unlock()
	m.writeThrough(local, "")
	m.d.Bus.Emit("order:created", eventbus.Payload{
		"order":  local.Clone(),
		"source": SourceLocal,
	})
	return local, nil
}

// Update applies input to an existing order, migrating it between month
// buckets when the date changed.
func (m *Orders) Update(ctx context.Context, id string, in OrderInput) (*model.Order, error) {
	prior, err := m.FindOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := prior.Clone()
	applyOrderInput(updated, in)
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	currency.RecomputeOrderTotals(updated)

	oldMonth := prior.MonthKey()
	newMonth := updated.MonthKey()
	movedFrom := ""
	if oldMonth != newMonth {
		movedFrom = oldMonth
	}

	m.d.Bus.Emit("order:before-updated", eventbus.Payload{
		"action": "order:updated",
		"month":  oldMonth,
		"prior":  prior.Clone(),
	})

	source := SourceLocal
	if isCloudOrderID(id) {
		if _, err := m.d.Cloud.UpdateOrder(ctx, updated); err == nil {
			source = SourceCloud
			m.mu.Lock()
			m.stats.CloudOperations++
			m.mu.Unlock()
		} else if cdperr.IsFatal(err) {
			m.d.Bus.Emit("order:update-failed", eventbus.Payload{"error": err.Error(), "id": id})
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
	if movedFrom != "" {
		m.removeFromCacheLocked(movedFrom, id)
	}
	m.upsertCacheLocked(updated)
	m.mu.Unlock()
	m.writeThrough(updated, movedFrom)

	payload := eventbus.Payload{"order": updated.Clone(), "source": source}
	if movedFrom != "" {
		payload["movedToMonth"] = newMonth
		payload["movedFromMonth"] = movedFrom
	}
	m.d.Bus.Emit("order:updated", payload)
	return updated, nil
}

// Delete removes an order from every tier.
func (m *Orders) Delete(ctx context.Context, id string) error {
	prior, err := m.FindOrderByID(ctx, id)
	if err != nil {
		return err
	}
	month := prior.MonthKey()

	m.d.Bus.Emit("order:before-deleted", eventbus.Payload{
		"action": "order:deleted",
		"month":  month,
		"prior":  prior.Clone(),
	})

	source := SourceLocal
	if isCloudOrderID(id) {
		if err := m.d.Cloud.DeleteOrder(ctx, id); err == nil {
			source = SourceCloud
			m.mu.Lock()
			m.stats.CloudOperations++
			m.mu.Unlock()
		} else if cdperr.IsFatal(err) {
			m.d.Bus.Emit("order:delete-failed", eventbus.Payload{"error": err.Error(), "id": id})
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
	m.removeFromCacheLocked(month, id)
	m.mu.Unlock()
	m.removeFromState(month, id)

	m.d.Bus.Emit("order:deleted", eventbus.Payload{
		"id":     id,
		"order":  prior.Clone(),
		"source": source,
	})
	return nil
}

// GetOrders serves a month's orders: fresh cache merged with optimistic
// entries, else cloud with a local backup, else the local tier.
func (m *Orders) GetOrders(ctx context.Context, monthKey string) ([]*model.Order, error) {
	m.mu.Lock()
	m.stats.TotalLoads++
	c := m.cache[monthKey]
	if c != nil && time.Since(c.loadedAt) < ordersCacheTTL {
		m.stats.CacheHits++
		out := m.mergedMonthLocked(monthKey, c.orders)
		m.mu.Unlock()
		return out, nil
	}
	m.stats.CacheMisses++
	m.mu.Unlock()

	orders, err := m.d.Cloud.GetOrders(ctx, monthKey)
	if err == nil {
		m.mu.Lock()
		m.stats.CloudOperations++
		m.mu.Unlock()
		orders = m.unionWithLocal(monthKey, orders)
		m.storeMonth(monthKey, orders)
		m.backupMonth(monthKey, orders)
	} else {
		m.log.Warn("cloud load failed, serving local tier",
			zap.String("month", monthKey), zap.Error(err))
		m.mu.Lock()
		m.stats.FallbackOperations++
		m.mu.Unlock()
		orders = m.loadMonthFromLocal(monthKey)
		m.storeMonth(monthKey, orders)
	}

	m.mu.Lock()
	out := m.mergedMonthLocked(monthKey, orders)
	m.mu.Unlock()
	return out, nil
}

// FindOrderByID resolves an order from the optimistic map, then the cache,
// then the local tier, then a full cloud load.
func (m *Orders) FindOrderByID(ctx context.Context, id string) (*model.Order, error) {
	m.mu.Lock()
	if o, ok := m.optimistic[id]; ok {
		m.mu.Unlock()
		return o.Clone(), nil
	}
	for _, c := range m.cache {
		for _, o := range c.orders {
			if o.ID == id {
				m.mu.Unlock()
				return o.Clone(), nil
			}
		}
	}
	m.mu.Unlock()

	for _, bucket := range m.d.State.MonthlyData() {
		for _, o := range bucket.Orders {
			if o.ID == id {
				return o.Clone(), nil
			}
		}
	}

	all, err := m.d.Cloud.GetOrders(ctx, "")
	if err == nil {
		for _, o := range all {
			if o.ID == id {
				return o.Clone(), nil
			}
		}
	}
	return nil, cdperr.NotFound("order %s", id)
}

// Stats returns a snapshot of the module counters.
func (m *Orders) Stats() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// InvalidateCache drops every cached month.
func (m *Orders) InvalidateCache() {
	m.mu.Lock()
	m.cache = make(map[string]*ordersMonthCache)
	m.mu.Unlock()
}

func (m *Orders) settle(tempID string) {
	m.mu.Lock()
	delete(m.optimistic, tempID)
	delete(m.pending, tempID)
	m.mu.Unlock()
}

// mergedMonthLocked merges cached orders with optimistic entries for the
// month, date-descending.
func (m *Orders) mergedMonthLocked(monthKey string, orders []*model.Order) []*model.Order {
	out := make([]*model.Order, 0, len(orders)+1)
	for _, o := range orders {
		out = append(out, o.Clone())
	}
	for _, o := range m.optimistic {
		if o.MonthKey() == monthKey {
			out = append(out, o.Clone())
		}
	}
	sortOrders(out)
	return out
}

func sortOrders(orders []*model.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].Date != orders[j].Date {
			return orders[i].Date > orders[j].Date
		}
		return orders[i].ID > orders[j].ID
	})
}

func (m *Orders) upsertCacheLocked(o *model.Order) {
	month := o.MonthKey()
	c := m.cache[month]
	if c == nil {
		c = &ordersMonthCache{loadedAt: time.Now()}
		m.cache[month] = c
		m.evictLocked()
	}
	for i, existing := range c.orders {
		if existing.ID == o.ID {
			c.orders[i] = o.Clone()
			return
		}
	}
	c.orders = append(c.orders, o.Clone())
}

func (m *Orders) removeFromCacheLocked(month, id string) {
	c := m.cache[month]
	if c == nil {
		return
	}
	for i, o := range c.orders {
		if o.ID == id {
			c.orders = append(c.orders[:i:i], c.orders[i+1:]...)
			return
		}
	}
}

// evictLocked drops the oldest-loaded month beyond the cache cap.
func (m *Orders) evictLocked() {
	for len(m.cache) > ordersCacheCap {
		oldestKey := ""
		var oldest time.Time
		for k, c := range m.cache {
			if oldestKey == "" || c.loadedAt.Before(oldest) {
				oldestKey, oldest = k, c.loadedAt
			}
		}
		delete(m.cache, oldestKey)
	}
}

func (m *Orders) storeMonth(monthKey string, orders []*model.Order) {
	cloned := make([]*model.Order, 0, len(orders))
	for _, o := range orders {
		cloned = append(cloned, o.Clone())
	}
	m.mu.Lock()
	m.cache[monthKey] = &ordersMonthCache{orders: cloned, loadedAt: time.Now()}
	m.evictLocked()
	m.mu.Unlock()
}

// unionWithLocal keeps local-only orders (created during an outage) that a
// cloud load would otherwise drop from the bucket.
func (m *Orders) unionWithLocal(monthKey string, cloudOrders []*model.Order) []*model.Order {
	seen := make(map[string]struct{}, len(cloudOrders))
	for _, o := range cloudOrders {
		seen[o.ID] = struct{}{}
	}
	out := cloudOrders
	if bucket := m.d.State.MonthlyData()[monthKey]; bucket != nil {
		for _, o := range bucket.Orders {
			if _, ok := seen[o.ID]; !ok && !isCloudOrderID(o.ID) {
				out = append(out, o.Clone())
			}
		}
	}
	return out
}

func (m *Orders) loadMonthFromLocal(monthKey string) []*model.Order {
	if bucket := m.d.State.MonthlyData()[monthKey]; bucket != nil && len(bucket.Orders) > 0 {
		return bucket.Orders
	}
	monthly, err := m.d.Local.LoadMonthlyData()
	if err != nil {
		m.log.Error("local tier read failed", zap.Error(err))
		return []*model.Order{}
	}
	if bucket := monthly[monthKey]; bucket != nil {
		return bucket.Orders
	}
	return []*model.Order{}
}

// writeThrough upserts the order into the state month bucket (removing it
// from a previous month on migration), persists monthlyData locally, and
// keeps availableMonths in sync.
func (m *Orders) writeThrough(o *model.Order, removedMonth string) {
	monthly := model.CloneMonthlyData(m.d.State.MonthlyData())
	if removedMonth != "" {
		if bucket := monthly[removedMonth]; bucket != nil {
			bucket.Orders = removeOrder(bucket.Orders, o.ID)
		}
	}
	month := o.MonthKey()
	bucket := monthly[month].Ensure()
	bucket.Orders = removeOrder(bucket.Orders, o.ID)
	bucket.Orders = append(bucket.Orders, o.Clone())
	sortOrders(bucket.Orders)
	monthly[month] = bucket

	if err := m.d.State.Set(state.KeyMonthlyData, monthly); err != nil {
		m.log.Error("state write failed", zap.Error(err))
	}
	m.ensureMonthOption(month)
	if err := m.d.Local.SaveMonthlyData(monthly); err != nil {
		m.log.Error("local backup failed", zap.Error(err))
	}
}

func (m *Orders) removeFromState(month, id string) {
	monthly := model.CloneMonthlyData(m.d.State.MonthlyData())
	if bucket := monthly[month]; bucket != nil {
		bucket.Orders = removeOrder(bucket.Orders, id)
	}
	if err := m.d.State.Set(state.KeyMonthlyData, monthly); err != nil {
		m.log.Error("state write failed", zap.Error(err))
	}
	if err := m.d.Local.SaveMonthlyData(monthly); err != nil {
		m.log.Error("local backup failed", zap.Error(err))
	}
}

// backupMonth folds a cloud load into the local tier without disturbing
// other months.
func (m *Orders) backupMonth(monthKey string, orders []*model.Order) {
	monthly := model.CloneMonthlyData(m.d.State.MonthlyData())
	bucket := monthly[monthKey].Ensure()
	bucket.Orders = make([]*model.Order, 0, len(orders))
	for _, o := range orders {
		bucket.Orders = append(bucket.Orders, o.Clone())
	}
	sortOrders(bucket.Orders)
	monthly[monthKey] = bucket

	if err := m.d.State.Set(state.KeyMonthlyData, monthly); err != nil {
		m.log.Error("state write failed", zap.Error(err))
	}
	m.ensureMonthOption(monthKey)
	if err := m.d.Local.SaveMonthlyData(monthly); err != nil {
		m.log.Error("local backup failed", zap.Error(err))
	}
}

func (m *Orders) ensureMonthOption(monthKey string) {
	months, _ := m.d.State.Get(state.KeyAvailableMonths).([]model.MonthOption)
	for _, opt := range months {
		if opt.Key == monthKey {
			return
		}
	}
	months = append(append([]model.MonthOption(nil), months...), model.MonthOption{
		Key:  monthKey,
		Name: monthDisplayName(monthKey),
	})
	sort.Slice(months, func(i, j int) bool { return months[i].Key > months[j].Key })
	if err := m.d.State.Set(state.KeyAvailableMonths, months); err != nil {
		m.log.Error("availableMonths write failed", zap.Error(err))
	}
	if err := m.d.Local.SaveAvailableMonths(months); err != nil {
		m.log.Error("availableMonths backup failed", zap.Error(err))
	}
}

func monthDisplayName(monthKey string) string {
	t, err := time.Parse("2006-01", monthKey)
	if err != nil {
		return monthKey
	}
	return t.Format("January 2006")
}

func removeOrder(orders []*model.Order, id string) []*model.Order {
	for i, o := range orders {
		if o.ID == id {
			return append(orders[:i:i], orders[i+1:]...)
		}
	}
	return orders
}

func applyOrderInput(o *model.Order, in OrderInput) {
	if in.Date != "" {
		o.Date = in.Date
	}
	if in.Client != "" {
		o.Client = in.Client
	}
	if in.Phone != "" {
		o.Phone = in.Phone
	}
	if in.Origin != "" {
		o.Origin = in.Origin
	}
	if in.Vendor != "" {
		o.Vendor = in.Vendor
	}
	if in.Model != "" {
		o.Model = in.Model
	}
	if in.Status != "" {
		o.Status = in.Status
	}
	if in.Notes != "" {
		o.Notes = in.Notes
	}
	if in.ImagePath != "" {
		o.ImagePath = in.ImagePath
	}
	if in.CostUSD != 0 {
		o.CostUSD = in.CostUSD
	}
	if in.ShippingUSD != nil {
		o.ShippingUSD = *in.ShippingUSD
	}
	if in.Rate != nil {
		o.Rate = *in.Rate
	}
	if in.ExtrasEUR != nil {
		o.ExtrasEUR = *in.ExtrasEUR
	}
	if in.ExtrasBGN != nil {
		o.ExtrasBGN = *in.ExtrasBGN
	}
	if in.SellEUR != nil {
		o.SellEUR = *in.SellEUR
	}
	if in.SellBGN != nil {
		o.SellBGN = *in.SellBGN
	}
	o.FullSet = in.FullSet
}

// isCloudOrderID distinguishes cloud serial ids from local identities,
// which are millisecond timestamps and therefore far larger.
func isCloudOrderID(id string) bool {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return false
	}
	return n > 0 && n < 1_000_000_000
}
