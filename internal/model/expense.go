package model

import "strings"

// LocalExpenseIDBase is the first id handed out for expenses that only
// exist in the local tier. Template defaults use 1..11 and cloud rows use
// low auto-increment ids, so local-only ids start well above both spaces.
const LocalExpenseIDBase = 1000

// Expense is a monthly cost entry. AmountEUR is canonical; AmountBGN is the
// derived legacy mirror. IsDefault marks rows seeded from the template;
// those never leave the local tier.
type Expense struct {
	ID        int64   `json:"id"`
	Month     string  `json:"month"` // YYYY-MM
	Name      string  `json:"name"`
	AmountEUR float64 `json:"amountEUR"`
	AmountBGN float64 `json:"amountBGN"`
	Note      string  `json:"note"`
	IsDefault bool    `json:"isDefault"`

	IsOptimistic bool `json:"_isOptimistic,omitempty"`
}

// Validate checks required fields and formats.
func (e *Expense) Validate() error {
	if !ValidMonthKey(e.Month) {
		return errValidation("expense month must be YYYY-MM, got %q", e.Month)
	}
	if strings.TrimSpace(e.Name) == "" {
		return errValidation("expense name is required")
	}
	if e.AmountEUR < 0 {
		return errValidation("expense amount must not be negative")
	}
	return nil
}

// Clone returns a deep copy.
func (e *Expense) Clone() *Expense {
	cp := *e
	return &cp
}

// DefaultExpenseTemplate returns the fixed list seeded into a month's
// expense list the first time that month is touched. Amounts are EUR; the
// BGN mirrors are filled in by the expenses module on seed.
func DefaultExpenseTemplate(month string) []*Expense {
	template := []struct {
		id     int64
		name   string
		amount float64
	}{
		{1, "Наем", 300},
		{2, "Ток", 60},
		{3, "Вода", 15},
		{4, "Интернет", 20},
		{5, "Телефон", 25},
		{6, "Гориво", 80},
		{7, "Facebook реклама", 50},
		{8, "OLX такси", 10},
		{9, "Банкови такси", 12},
		{10, "Счетоводител", 50},
		{11, "Транспорт", 40},
	}

	out := make([]*Expense, 0, len(template))
	for _, t := range template {
		out = append(out, &Expense{
			ID:        t.id,
			Month:     month,
			Name:      t.name,
			AmountEUR: t.amount,
			IsDefault: true,
		})
	}
	return out
}
