package module

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
	"github.com/veselinppetkov/orders-app-sub000/internal/currency"
	"github.com/veselinppetkov/orders-app-sub000/internal/eventbus"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
	"github.com/veselinppetkov/orders-app-sub000/internal/state"
)

// ExpenseInput is the write payload for expense creation and update.
type ExpenseInput struct {
	Month     string   `json:"month"`
	Name      string   `json:"name"`
	AmountEUR *float64 `json:"amountEUR"`
	AmountBGN *float64 `json:"amountBGN"`
	Note      string   `json:"note"`
}

// Expenses is the monthly-expense module. Each month's list is the default
// template, seeded on first touch and kept in the local tier only, plus
// custom entries that live in the cloud tier. Local-only custom ids are
// assigned from LocalExpenseIDBase upward.
type Expenses struct {
	d   Deps
	log *zap.Logger

	mu          sync.Mutex
	seeded      map[string]bool
	nextLocalID int64
	stats       Statistics
}

// NewExpenses builds the expenses module.
func NewExpenses(d Deps) *Expenses {
	return &Expenses{
		d:           d,
		log:         d.Log.Named("expenses"),
		seeded:      make(map[string]bool),
		nextLocalID: model.LocalExpenseIDBase,
	}
}

// GetExpenses returns a month's expenses: seeded defaults merged with cloud
// customs, id-sorted. The first touch of a month seeds the template.
func (m *Expenses) GetExpenses(ctx context.Context, monthKey string) ([]*model.Expense, error) {
	if !model.ValidMonthKey(monthKey) {
		return nil, cdperr.Validation("month must be YYYY-MM, got %q", monthKey)
	}

	m.mu.Lock()
	m.stats.TotalLoads++
	m.mu.Unlock()

	local := m.seedIfNeeded(monthKey)

	customs, err := m.d.Cloud.GetExpenses(ctx, monthKey)
	if err != nil {
		m.log.Warn("cloud load failed, serving local tier",
			zap.String("month", monthKey), zap.Error(err))
		m.mu.Lock()
		m.stats.FallbackOperations++
		m.mu.Unlock()
		customs = nil
	} else {
		m.mu.Lock()
		m.stats.CloudOperations++
		m.mu.Unlock()
	}

	merged := mergeExpenses(local, customs)
	m.writeBucket(monthKey, merged)
	out := make([]*model.Expense, 0, len(merged))
	for _, e := range merged {
		out = append(out, e.Clone())
	}
	return out, nil
}

// Create adds a custom expense to a month.
func (m *Expenses) Create(ctx context.Context, in ExpenseInput) (*model.Expense, error) {
	e := &model.Expense{
		Month: in.Month,
		Name:  in.Name,
		Note:  in.Note,
	}
	if in.AmountEUR != nil {
		e.AmountEUR = *in.AmountEUR
	}
	if in.AmountBGN != nil {
		e.AmountBGN = *in.AmountBGN
	}
	currency.NormalizeExpense(e, m.log)
	if err := e.Validate(); err != nil {
		return nil, err
	}

	m.d.Bus.Emit("expense:before-created", eventbus.Payload{
		"action": "expense:created",
		"month":  e.Month,
		"prior":  nil,
	})

	m.seedIfNeeded(e.Month)

	created, err := m.d.Cloud.CreateExpense(ctx, e)
	source := SourceCloud
	if err != nil {
		if cdperr.IsFatal(err) {
			m.d.Bus.Emit("expense:create-failed", eventbus.Payload{"error": err.Error()})
			return nil, err
		}
		m.log.Warn("cloud create failed, falling back to local tier", zap.Error(err))
		created = e.Clone()
		created.ID = m.claimLocalID()
		source = SourceLocal
		m.mu.Lock()
		m.stats.FallbackOperations++
		m.mu.Unlock()
	} else {
		m.mu.Lock()
		m.stats.CloudOperations++
		m.mu.Unlock()
	}

	m.upsert(created)
	m.d.Bus.Emit("expense:created", eventbus.Payload{
		"expense": created.Clone(),
		"source":  source,
	})
	return created.Clone(), nil
}

// Update applies input to an existing expense. Template defaults only ever
// change in the local tier.
func (m *Expenses) Update(ctx context.Context, monthKey string, id int64, in ExpenseInput) (*model.Expense, error) {
	prior, err := m.find(monthKey, id)
	if err != nil {
		return nil, err
	}

	updated := prior.Clone()
	if in.Name != "" {
		updated.Name = in.Name
	}
	if in.Note != "" {
		updated.Note = in.Note
	}
	if in.AmountEUR != nil {
		updated.AmountEUR = *in.AmountEUR
		updated.AmountBGN = 0
	} else if in.AmountBGN != nil {
		updated.AmountEUR = 0
		updated.AmountBGN = *in.AmountBGN
	}
	currency.NormalizeExpense(updated, m.log)
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	m.d.Bus.Emit("expense:before-updated", eventbus.Payload{
		"action": "expense:updated",
		"month":  monthKey,
		"prior":  prior.Clone(),
	})

	source := SourceLocal
	if m.isCloudBacked(updated) {
		if _, err := m.d.Cloud.UpdateExpense(ctx, updated); err == nil {
			source = SourceCloud
			m.mu.Lock()
			m.stats.CloudOperations++
			m.mu.Unlock()
		} else if cdperr.IsFatal(err) {
			m.d.Bus.Emit("expense:update-failed", eventbus.Payload{"error": err.Error(), "id": id})
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

	m.upsert(updated)
	m.d.Bus.Emit("expense:updated", eventbus.Payload{
		"expense": updated.Clone(),
		"source":  source,
	})
	return updated.Clone(), nil
}

// Delete removes an expense from a month.
func (m *Expenses) Delete(ctx context.Context, monthKey string, id int64) error {
	prior, err := m.find(monthKey, id)
	if err != nil {
		return err
	}

	m.d.Bus.Emit("expense:before-deleted", eventbus.Payload{
		"action": "expense:deleted",
		"month":  monthKey,
		"prior":  prior.Clone(),
	})

	source := SourceLocal
	if m.isCloudBacked(prior) {
		if err := m.d.Cloud.DeleteExpense(ctx, id); err == nil {
			source = SourceCloud
			m.mu.Lock()
			m.stats.CloudOperations++
			m.mu.Unlock()
		} else if cdperr.IsFatal(err) {
			m.d.Bus.Emit("expense:delete-failed", eventbus.Payload{"error": err.Error(), "id": id})
			return err
		} else {
			m.log.Warn("cloud delete failed, removing locally only", zap.Error(err))
			m.mu.Lock()
			m.stats.FallbackOperations++
			m.mu.Unlock()
		}
	}

	monthly := model.CloneMonthlyData(m.d.State.MonthlyData())
	bucket := monthly[monthKey].Ensure()
	for i, e := range bucket.Expenses {
		if e.ID == id {
			bucket.Expenses = append(bucket.Expenses[:i:i], bucket.Expenses[i+1:]...)
			break
		}
	}
	monthly[monthKey] = bucket
	m.saveMonthly(monthly)

	m.d.Bus.Emit("expense:deleted", eventbus.Payload{
		"id":      id,
		"expense": prior.Clone(),
		"source":  source,
	})
	return nil
}

// ResetMonth discards a month's expense list and re-seeds the default
// template. Cloud rows are untouched; the next GetExpenses merges them back.
func (m *Expenses) ResetMonth(monthKey string) ([]*model.Expense, error) {
	if !model.ValidMonthKey(monthKey) {
		return nil, cdperr.Validation("month must be YYYY-MM, got %q", monthKey)
	}

	defaults := model.DefaultExpenseTemplate(monthKey)
	for _, e := range defaults {
		e.AmountBGN = currency.BGNFromEUR(e.AmountEUR)
	}
	m.writeBucket(monthKey, defaults)
	m.mu.Lock()
	m.seeded[monthKey] = true
	m.mu.Unlock()

	m.d.Bus.Emit("expenses:reset", eventbus.Payload{"month": monthKey})
	m.log.Info("expense month reset to template", zap.String("month", monthKey))

	out := make([]*model.Expense, 0, len(defaults))
	for _, e := range defaults {
		out = append(out, e.Clone())
	}
	return out, nil
}

// MonthTotal sums a month's expenses in EUR.
func (m *Expenses) MonthTotal(monthKey string) float64 {
	total := 0.0
	if bucket := m.d.State.MonthlyData()[monthKey]; bucket != nil {
		for _, e := range bucket.Expenses {
			total += e.AmountEUR
		}
	}
	return currency.Round2(total)
}

// Stats returns a snapshot of the module counters.
func (m *Expenses) Stats() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// seedIfNeeded fills an untouched month with the default template and
// returns the month's current local expenses.
func (m *Expenses) seedIfNeeded(monthKey string) []*model.Expense {
	m.mu.Lock()
	seeded := m.seeded[monthKey]
	m.mu.Unlock()

	bucket := m.d.State.MonthlyData()[monthKey]
	if !seeded && (bucket == nil || len(bucket.Expenses) == 0) {
		defaults := model.DefaultExpenseTemplate(monthKey)
		for _, e := range defaults {
			e.AmountBGN = currency.BGNFromEUR(e.AmountEUR)
		}
		m.writeBucket(monthKey, defaults)
		m.log.Info("seeded default expense template", zap.String("month", monthKey))
		m.d.Bus.Emit("expenses:month-initialized", eventbus.Payload{
			"month": monthKey,
			"count": len(defaults),
		})
		bucket = m.d.State.MonthlyData()[monthKey]
	}
	m.mu.Lock()
	m.seeded[monthKey] = true
	m.mu.Unlock()

	if bucket == nil {
		return nil
	}
	return bucket.Expenses
}

func (m *Expenses) claimLocalID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Skip past any imported local ids already in use.
	for _, bucket := range m.d.State.MonthlyData() {
		for _, e := range bucket.Expenses {
			if e.ID >= m.nextLocalID {
				m.nextLocalID = e.ID + 1
			}
		}
	}
	id := m.nextLocalID
	m.nextLocalID++
	return id
}

// isCloudBacked reports whether the expense has a cloud row: not a template
// default and not in the local-only id space.
func (m *Expenses) isCloudBacked(e *model.Expense) bool {
	return !e.IsDefault && e.ID > 0 && e.ID < model.LocalExpenseIDBase
}

func (m *Expenses) find(monthKey string, id int64) (*model.Expense, error) {
	if bucket := m.d.State.MonthlyData()[monthKey]; bucket != nil {
		for _, e := range bucket.Expenses {
			if e.ID == id {
				return e.Clone(), nil
			}
		}
	}
	return nil, cdperr.NotFound("expense %d in month %s", id, monthKey)
}

func (m *Expenses) upsert(e *model.Expense) {
	monthly := model.CloneMonthlyData(m.d.State.MonthlyData())
	bucket := monthly[e.Month].Ensure()
	replaced := false
	for i, existing := range bucket.Expenses {
		if existing.ID == e.ID {
			bucket.Expenses[i] = e.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		bucket.Expenses = append(bucket.Expenses, e.Clone())
	}
	sortExpenses(bucket.Expenses)
	monthly[e.Month] = bucket
	m.saveMonthly(monthly)
}

// writeBucket replaces a month's expense list wholesale.
func (m *Expenses) writeBucket(monthKey string, expenses []*model.Expense) {
	monthly := model.CloneMonthlyData(m.d.State.MonthlyData())
	bucket := monthly[monthKey].Ensure()
	bucket.Expenses = make([]*model.Expense, 0, len(expenses))
	for _, e := range expenses {
		bucket.Expenses = append(bucket.Expenses, e.Clone())
	}
	sortExpenses(bucket.Expenses)
	monthly[monthKey] = bucket
	m.saveMonthly(monthly)
}

func (m *Expenses) saveMonthly(monthly map[string]*model.MonthBucket) {
	if err := m.d.State.Set(state.KeyMonthlyData, monthly); err != nil {
		m.log.Error("state write failed", zap.Error(err))
	}
	if err := m.d.Local.SaveMonthlyData(monthly); err != nil {
		m.log.Error("local backup failed", zap.Error(err))
	}
}

// mergeExpenses unions local entries (defaults and local-only customs) with
// cloud customs. Cloud rows win on id collision, except against template
// defaults: ids 1..11 belong to the local template and a colliding cloud
// serial must never displace an isDefault row.
func mergeExpenses(local, cloud []*model.Expense) []*model.Expense {
	byID := make(map[int64]*model.Expense, len(local)+len(cloud))
	for _, e := range local {
		byID[e.ID] = e
	}
	for _, e := range cloud {
		if cur, ok := byID[e.ID]; ok && cur.IsDefault {
			continue
		}
		byID[e.ID] = e
	}
	out := make([]*model.Expense, 0, len(byID))
	for _, e := range byID {
		out = append(out, e)
	}
	sortExpenses(out)
	return out
}

func sortExpenses(expenses []*model.Expense) {
	sort.SliceStable(expenses, func(i, j int) bool { return expenses[i].ID < expenses[j].ID })
}
