// Package export writes ledger entries as JSON or CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/gridsim/core/ledger/store"
)

// WriteJSON writes entries to w as one JSON array.
func WriteJSON(w io.Writer, entries []store.Entry) error {
	if entries == nil {
		entries = []store.Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

var csvHeader = []string{"id", "run_id", "step", "kind", "from", "to", "amount", "loss", "timestamp"}

// WriteCSV writes entries to w with a header row.
func WriteCSV(w io.Writer, entries []store.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		rec := []string{
			e.ID,
			e.RunID,
			strconv.Itoa(e.Step),
			e.Kind,
			e.From,
			e.To,
			strconv.FormatFloat(e.Amount, 'f', -1, 64),
			strconv.FormatFloat(e.Loss, 'f', -1, 64),
			e.Timestamp.Format(time.RFC3339Nano),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
