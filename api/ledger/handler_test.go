package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridsim/core/ledger/store"
)

type fakeBook struct{}

func (fakeBook) RunID() string                { return "run-1" }
func (fakeBook) Balances() map[string]float64 { return map[string]float64{"sub": 1} }
func (fakeBook) Supply() float64              { return 1 }

func seeded(t *testing.T) store.Store {
	t.Helper()
	st := store.NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, e := range []store.Entry{
		{ID: "1", RunID: "run-1", Kind: "generation", From: "plant", To: "line", Amount: 110},
		{ID: "2", RunID: "run-1", Kind: "transmission", From: "line", To: "sub", Amount: 104, Loss: 6},
		{ID: "3", RunID: "run-2", Kind: "generation", From: "plant", To: "line", Amount: 50},
	} {
		e.Timestamp = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, st.Append(context.Background(), e))
	}
	return st
}

func get(t *testing.T, h http.Handler, url, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestEntriesHandler(t *testing.T) {
	mux := NewMux(seeded(t), fakeBook{}, "tok")

	tests := []struct {
		name  string
		url   string
		token string
		code  int
		ids   []string
	}{
		{"unauthorized", "/api/ledger/entries", "", http.StatusUnauthorized, nil},
		{"wrong_token", "/api/ledger/entries", "nope", http.StatusUnauthorized, nil},
		{"all", "/api/ledger/entries", "tok", http.StatusOK, []string{"1", "2", "3"}},
		{"run", "/api/ledger/entries?run=run-1", "tok", http.StatusOK, []string{"1", "2"}},
		{"kind", "/api/ledger/entries?kind=generation", "tok", http.StatusOK, []string{"1", "3"}},
		{"account", "/api/ledger/entries?account=sub", "tok", http.StatusOK, []string{"2"}},
		{"window", "/api/ledger/entries?start=2024-01-01T01:00:00Z&end=2024-01-01T01:30:00Z", "tok", http.StatusOK, []string{"2"}},
		{"none", "/api/ledger/entries?run=absent", "tok", http.StatusOK, []string{}},
		{"bad_start", "/api/ledger/entries?start=yesterday", "tok", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(t, mux, tt.url, tt.token)
			require.Equal(t, tt.code, rr.Code)
			if tt.ids == nil {
				return
			}
			var got []store.Entry
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
			ids := []string{}
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestBalancesHandler(t *testing.T) {
	h := NewBalancesHandler(fakeBook{}, "")
	rr := get(t, h, "/api/ledger/balances", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var got BalancesResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, BalancesResponse{RunID: "run-1", Supply: 1, Balances: map[string]float64{"sub": 1}}, got)

	req := httptest.NewRequest(http.MethodPost, "/api/ledger/balances", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
