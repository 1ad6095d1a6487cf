// Package model defines the envelopes returned to admin screens.
package model

import "encoding/json"

// EmptyItems is the list sent when no fresh data is available.
var EmptyItems = json.RawMessage(`[]`)

// Page is one admin screen's list state. Items is always the result of the
// latest fetch; on failure it is EmptyItems and Error explains why.
type Page struct {
	Module string          `json:"module"`
	Access string          `json:"access"`
	Items  json.RawMessage `json:"items"`
	Error  string          `json:"error,omitempty"`
}

// Operation is a mutation kind.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Mutation is a create, update, or delete against one module. Body is handed
// to the gateway unchanged.
type Mutation struct {
	Module string
	Op     Operation
	ID     string
	Body   any
}

// MutationResult reports a successful mutation and the refetched list.
type MutationResult struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	Page   *Page           `json:"page"`
}

// DashboardEntry is one module's count on the dashboard.
type DashboardEntry struct {
	Module string `json:"module"`
	Count  int    `json:"count"`
	Error  string `json:"error,omitempty"`
}

// Dashboard is the dashboard summary.
type Dashboard struct {
	Entries []DashboardEntry `json:"entries"`
}
