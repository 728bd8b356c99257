package model

import "time"

// MonthBucket is the local-tier per-month container. Buckets are lazily
// created and never destroyed.
type MonthBucket struct {
	Orders   []*Order   `json:"orders"`
	Expenses []*Expense `json:"expenses"`
}

// NewMonthBucket returns an empty bucket with non-nil slices.
func NewMonthBucket() *MonthBucket {
	return &MonthBucket{
		Orders:   []*Order{},
		Expenses: []*Expense{},
	}
}

// Ensure returns b, replacing nil receivers and nil slices so callers can
// append without nil checks.
func (b *MonthBucket) Ensure() *MonthBucket {
	if b == nil {
		return NewMonthBucket()
	}
	if b.Orders == nil {
		b.Orders = []*Order{}
	}
	if b.Expenses == nil {
		b.Expenses = []*Expense{}
	}
	return b
}

// Clone returns a deep copy.
func (b *MonthBucket) Clone() *MonthBucket {
	if b == nil {
		return NewMonthBucket()
	}
	cp := NewMonthBucket()
	for _, o := range b.Orders {
		cp.Orders = append(cp.Orders, o.Clone())
	}
	for _, e := range b.Expenses {
		cp.Expenses = append(cp.Expenses, e.Clone())
	}
	return cp
}

// MonthOption is one entry of the availableMonths list.
type MonthOption struct {
	Key  string `json:"key"`  // YYYY-MM
	Name string `json:"name"` // display label
}

// CurrentMonthKey returns the bucket key for the current wall-clock month.
func CurrentMonthKey() string {
	return time.Now().Format("2006-01")
}
