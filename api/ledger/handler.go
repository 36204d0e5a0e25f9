// Package ledger exposes the energy ledger over HTTP:
//
//	GET /api/ledger/entries   entries filtered by run, kind, account, start, end
//	GET /api/ledger/balances  current balances and token supply
//
// Requests must carry "Authorization: Bearer <token>" when a token is set.
package ledger

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kilianp07/gridsim/core/ledger/store"
)

// BalanceReader is the read side of a ledger book.
type BalanceReader interface {
	RunID() string
	Balances() map[string]float64
	Supply() float64
}

// BalancesResponse is the body of GET /api/ledger/balances.
type BalancesResponse struct {
	RunID    string             `json:"run_id"`
	Supply   float64            `json:"supply"`
	Balances map[string]float64 `json:"balances"`
}

// NewMux routes both endpoints.
func NewMux(st store.Store, book BalanceReader, token string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/ledger/entries", NewEntriesHandler(st, token))
	mux.Handle("/api/ledger/balances", NewBalancesHandler(book, token))
	return mux
}

// NewEntriesHandler serves stored entries as a JSON array.
func NewEntriesHandler(st store.Store, token string) http.Handler {
	return guard(token, func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()
		q := store.Query{
			RunID:   params.Get("run"),
			Kind:    params.Get("kind"),
			Account: params.Get("account"),
		}
		var err error
		if q.Start, err = parseTime(params.Get("start")); err != nil {
			http.Error(w, "invalid start: "+err.Error(), http.StatusBadRequest)
			return
		}
		if q.End, err = parseTime(params.Get("end")); err != nil {
			http.Error(w, "invalid end: "+err.Error(), http.StatusBadRequest)
			return
		}
		entries, err := st.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []store.Entry{}
		}
		writeJSON(w, entries)
	})
}

// NewBalancesHandler serves the balances of book.
func NewBalancesHandler(book BalanceReader, token string) http.Handler {
	return guard(token, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, BalancesResponse{RunID: book.RunID(), Supply: book.Supply(), Balances: book.Balances()})
	})
}

func guard(token string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	})
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
