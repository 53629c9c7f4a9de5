package models

// MarketplaceStatistics aggregate counters for the overview endpoint
type MarketplaceStatistics struct {
	TasksByStatus     map[TaskLifecycleStatus]int64 `json:"tasks_by_status"`
	Payments          int64                         `json:"payments"`
	TotalPaidLamports int64                         `json:"total_paid_lamports"`
	Users             int64                         `json:"users"`
}
