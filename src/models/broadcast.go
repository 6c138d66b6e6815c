package models

import "time"

// MBroadcastMetrics describes the last completed broadcast cycle.
type MBroadcastMetrics struct {
	CycleSeconds   float64   `json:"cycle_seconds"`
	Symbols        int       `json:"symbols"`
	FailedSymbols  int       `json:"failed_symbols"`
	Deliveries     int       `json:"deliveries"`
	PrunedClients  int       `json:"pruned_clients"`
	CompletedAt    time.Time `json:"completed_at"`
	Connections    int       `json:"connections"`
	SubscribedSyms int       `json:"subscribed_symbols"`
}
