package module

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
)

func TestExpensesSeedsDefaultTemplateOnce(t *testing.T) {
	deps, _ := newTestDeps(t)
	m := NewExpenses(deps)

	expenses, err := m.GetExpenses(context.Background(), "2026-03")
	require.NoError(t, err)
	require.Len(t, expenses, 11)

	assert.Equal(t, "Наем", expenses[0].Name)
	assert.Equal(t, 300.0, expenses[0].AmountEUR)
	assert.InDelta(t, 300*model.BGNPerEUR, expenses[0].AmountBGN, 0.01)
	assert.True(t, expenses[0].IsDefault)

	// A second read must not duplicate the template.
	again, err := m.GetExpenses(context.Background(), "2026-03")
	require.NoError(t, err)
	assert.Len(t, again, 11)

	// Each month gets its own seed.
	other, err := m.GetExpenses(context.Background(), "2026-04")
	require.NoError(t, err)
	assert.Len(t, other, 11)
}

func TestExpensesRejectsBadMonth(t *testing.T) {
	deps, _ := newTestDeps(t)
	m := NewExpenses(deps)

	_, err := m.GetExpenses(context.Background(), "March 2026")
	assert.ErrorIs(t, err, cdperr.ErrValidation)
}

func TestExpensesCreateCustomCloud(t *testing.T) {
	deps, stub := newTestDeps(t)
	rec := &recorder{}
	rec.listen(deps.Bus, "expense:created")
	m := NewExpenses(deps)

	amount := 75.0
	e, err := m.Create(context.Background(), ExpenseInput{
		Month: "2026-03", Name: "Куриер", AmountEUR: &amount,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, e.ID, int64(12))
	assert.False(t, e.IsDefault)
	assert.InDelta(t, 75*model.BGNPerEUR, e.AmountBGN, 0.01)

	p, ok := rec.last("expense:created")
	require.True(t, ok)
	assert.Equal(t, SourceCloud, p["source"])
	assert.Equal(t, 1, stub.callCount("expenses.create"))

	// Template plus the custom entry.
	all, err := m.GetExpenses(context.Background(), "2026-03")
	require.NoError(t, err)
	assert.Len(t, all, 12)
}

func TestExpensesCreateFallsBackToLocalIDSpace(t *testing.T) {
	deps, stub := newTestDeps(t)
	stub.failTransient = true
	rec := &recorder{}
	rec.listen(deps.Bus, "expense:created")
	m := NewExpenses(deps)

	amount := 30.0
	e, err := m.Create(context.Background(), ExpenseInput{
		Month: "2026-03", Name: "Опаковки", AmountEUR: &amount,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, e.ID, int64(model.LocalExpenseIDBase))

	p, ok := rec.last("expense:created")
	require.True(t, ok)
	assert.Equal(t, SourceLocal, p["source"])

	second, err := m.Create(context.Background(), ExpenseInput{
		Month: "2026-03", Name: "Стикери", AmountEUR: &amount,
	})
	require.NoError(t, err)
	assert.Greater(t, second.ID, e.ID)
}

func TestExpensesCreateDerivesEURFromBGN(t *testing.T) {
	deps, _ := newTestDeps(t)
	m := NewExpenses(deps)

	bgn := 195.58
	e, err := m.Create(context.Background(), ExpenseInput{
		Month: "2026-03", Name: "Наем склад", AmountBGN: &bgn,
	})
	require.NoError(t, err)
	assert.InDelta(t, 100.0, e.AmountEUR, 0.01)
}

func TestExpensesUpdateDefaultStaysLocal(t *testing.T) {
	deps, stub := newTestDeps(t)
	m := NewExpenses(deps)

	_, err := m.GetExpenses(context.Background(), "2026-03")
	require.NoError(t, err)

	amount := 350.0
	updated, err := m.Update(context.Background(), "2026-03", 1, ExpenseInput{AmountEUR: &amount})
	require.NoError(t, err)
	assert.Equal(t, 350.0, updated.AmountEUR)
	assert.True(t, updated.IsDefault)
	assert.Equal(t, 0, stub.callCount("expenses.update"), "template defaults never reach the cloud")
}

func TestExpensesUpdateCustomGoesToCloud(t *testing.T) {
	deps, stub := newTestDeps(t)
	m := NewExpenses(deps)

	amount := 75.0
	e, err := m.Create(context.Background(), ExpenseInput{
		Month: "2026-03", Name: "Куриер", AmountEUR: &amount,
	})
	require.NoError(t, err)

	newAmount := 90.0
	updated, err := m.Update(context.Background(), "2026-03", e.ID, ExpenseInput{AmountEUR: &newAmount})
	require.NoError(t, err)
	assert.Equal(t, 90.0, updated.AmountEUR)
	assert.Equal(t, 1, stub.callCount("expenses.update"))
}

func TestExpensesDelete(t *testing.T) {
	deps, stub := newTestDeps(t)
	rec := &recorder{}
	rec.listen(deps.Bus, "expense:deleted")
	m := NewExpenses(deps)

	amount := 75.0
	e, err := m.Create(context.Background(), ExpenseInput{
		Month: "2026-03", Name: "Куриер", AmountEUR: &amount,
	})
	require.NoError(t, err)

	require.NoError(t, m.Delete(context.Background(), "2026-03", e.ID))
	assert.Equal(t, 1, stub.callCount("expenses.delete"))
	_, ok := rec.last("expense:deleted")
	assert.True(t, ok)

	_, err = m.find("2026-03", e.ID)
	assert.ErrorIs(t, err, cdperr.ErrNotFound)
}

func TestExpensesSeedEmitsMonthInitialized(t *testing.T) {
	deps, _ := newTestDeps(t)
	rec := &recorder{}
	rec.listen(deps.Bus, "expenses:month-initialized")
	m := NewExpenses(deps)

	_, err := m.GetExpenses(context.Background(), "2026-03")
	require.NoError(t, err)

	p, ok := rec.last("expenses:month-initialized")
	require.True(t, ok)
	assert.Equal(t, "2026-03", p["month"])
	assert.Equal(t, 11, p["count"])

	// Re-reading an already seeded month stays quiet.
	rec.reset()
	_, err = m.GetExpenses(context.Background(), "2026-03")
	require.NoError(t, err)
	_, ok = rec.last("expenses:month-initialized")
	assert.False(t, ok)
}

func TestExpensesResetMonthRestoresTemplate(t *testing.T) {
	deps, _ := newTestDeps(t)
	rec := &recorder{}
	rec.listen(deps.Bus, "expenses:reset")
	m := NewExpenses(deps)

	amount := 75.0
	custom, err := m.Create(context.Background(), ExpenseInput{
		Month: "2026-03", Name: "Куриер", AmountEUR: &amount,
	})
	require.NoError(t, err)

	bump := 500.0
	_, err = m.Update(context.Background(), "2026-03", 1, ExpenseInput{AmountEUR: &bump})
	require.NoError(t, err)

	reset, err := m.ResetMonth("2026-03")
	require.NoError(t, err)
	require.Len(t, reset, 11)
	assert.Equal(t, 300.0, reset[0].AmountEUR, "edited default back at template value")

	_, ok := rec.last("expenses:reset")
	assert.True(t, ok)

	// The custom entry is gone from the local bucket; its cloud row comes
	// back on the next merge.
	_, err = m.find("2026-03", custom.ID)
	assert.ErrorIs(t, err, cdperr.ErrNotFound)
	all, err := m.GetExpenses(context.Background(), "2026-03")
	require.NoError(t, err)
	assert.Len(t, all, 12)

	_, err = m.ResetMonth("bad-month")
	assert.ErrorIs(t, err, cdperr.ErrValidation)
}

func TestExpensesMergeKeepsDefaultsOnCloudIDCollision(t *testing.T) {
	deps, stub := newTestDeps(t)
	m := NewExpenses(deps)

	_, err := m.GetExpenses(context.Background(), "2026-03")
	require.NoError(t, err)

	// A backend reusing low serials must not displace template rows.
	stub.mu.Lock()
	stub.expenses[1] = &model.Expense{ID: 1, Month: "2026-03", Name: "Застраховка", AmountEUR: 99}
	stub.mu.Unlock()

	all, err := m.GetExpenses(context.Background(), "2026-03")
	require.NoError(t, err)
	require.Len(t, all, 11)
	assert.Equal(t, "Наем", all[0].Name)
	assert.True(t, all[0].IsDefault)
	assert.Equal(t, 300.0, all[0].AmountEUR)
}

func TestExpensesMonthTotal(t *testing.T) {
	deps, _ := newTestDeps(t)
	m := NewExpenses(deps)

	_, err := m.GetExpenses(context.Background(), "2026-03")
	require.NoError(t, err)

	// Template total: 300+60+15+20+25+80+50+10+12+50+40.
	assert.InDelta(t, 662.0, m.MonthTotal("2026-03"), 0.001)
	assert.Zero(t, m.MonthTotal("2026-05"))
}
