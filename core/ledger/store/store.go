package store

import (
	"context"
	"time"
)

// Entry is one accepted ledger event as persisted by a Store.
type Entry struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Step      int       `json:"step"`
	Kind      string    `json:"kind"`
	From      string    `json:"from"`
	To        string    `json:"to,omitempty"`
	Amount    float64   `json:"amount"`
	Loss      float64   `json:"loss,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// Balances holds the post-event balances of the accounts involved.
	Balances map[string]float64 `json:"balances,omitempty"`
}

// Query defines filters for retrieving entries. Zero values match everything.
type Query struct {
	Start   time.Time
	End     time.Time
	Kind    string
	Account string
	RunID   string
}

// Match reports whether e satisfies every filter of q.
func (q Query) Match(e Entry) bool {
	if !q.Start.IsZero() && e.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && e.Timestamp.After(q.End) {
		return false
	}
	if q.Kind != "" && e.Kind != q.Kind {
		return false
	}
	if q.RunID != "" && e.RunID != q.RunID {
		return false
	}
	if q.Account != "" && e.From != q.Account && e.To != q.Account {
		return false
	}
	return true
}

// Store persists ledger entries and supports querying them back in append order.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Query(ctx context.Context, q Query) ([]Entry, error)
	Close() error
}
