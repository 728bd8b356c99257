package model

import "time"

// UndoSnapshot is one entry of the undo/redo history: a deep copy of the
// mutable subset of state taken before a mutation became visible.
type UndoSnapshot struct {
	MonthlyData map[string]*MonthBucket   `json:"monthlyData"`
	ClientsData map[string]*Client        `json:"clientsData"`
	Inventory   map[string]*InventoryItem `json:"inventory"`
	Timestamp   time.Time                 `json:"timestamp"`
	Action      string                    `json:"action"`
	ActionData  map[string]any            `json:"actionData,omitempty"`
}

// CloneMonthlyData deep-copies a monthlyData map.
func CloneMonthlyData(in map[string]*MonthBucket) map[string]*MonthBucket {
	out := make(map[string]*MonthBucket, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}

// CloneClientsData deep-copies a clientsData map.
func CloneClientsData(in map[string]*Client) map[string]*Client {
	out := make(map[string]*Client, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}

// CloneInventory deep-copies an inventory map.
func CloneInventory(in map[string]*InventoryItem) map[string]*InventoryItem {
	out := make(map[string]*InventoryItem, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}
