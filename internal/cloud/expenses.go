package cloud

import (
	"context"
	"fmt"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
)

// CreateExpense inserts a custom expense row. Template defaults never reach
// this path; the expenses module keeps them local-only.
func (g *Gateway) CreateExpense(ctx context.Context, e *model.Expense) (*model.Expense, error) {
	row := expenseToRow(e)
	row.ID = 0
	err := g.executeRequest(ctx, "expenses.create", func(ctx context.Context) error {
		return g.db.WithContext(ctx).Create(row).Error
	})
	if err != nil {
		return nil, err
	}
	return rowToExpense(row), nil
}

// GetExpenses returns the custom expenses of a month.
func (g *Gateway) GetExpenses(ctx context.Context, monthKey string) ([]*model.Expense, error) {
	var rows []model.ExpenseRow
	err := g.executeRequest(ctx, "expenses.list", func(ctx context.Context) error {
		return g.db.WithContext(ctx).Where("month_key = ?", monthKey).
			Order("id asc").Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]*model.Expense, 0, len(rows))
	for i := range rows {
		out = append(out, rowToExpense(&rows[i]))
	}
	return out, nil
}

// UpdateExpense persists the full expense row.
func (g *Gateway) UpdateExpense(ctx context.Context, e *model.Expense) (*model.Expense, error) {
	row := expenseToRow(e)
	if row.ID == 0 {
		return nil, cdperr.NotFound("expense %d has no cloud id", e.ID)
	}
	err := g.executeRequest(ctx, "expenses.update", func(ctx context.Context) error {
		res := g.db.WithContext(ctx).Model(&model.ExpenseRow{}).Where("id = ?", row.ID).
			Select("*").Omit("id", "created_at").Updates(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: expense %d", cdperr.ErrNotFound, row.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rowToExpense(row), nil
}

// DeleteExpense removes the expense row.
func (g *Gateway) DeleteExpense(ctx context.Context, id int64) error {
	if id == 0 {
		return cdperr.NotFound("expense has no cloud id")
	}
	return g.executeRequest(ctx, "expenses.delete", func(ctx context.Context) error {
		return g.db.WithContext(ctx).Delete(&model.ExpenseRow{}, id).Error
	})
}
