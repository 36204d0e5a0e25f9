package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridsim/config"
	"github.com/kilianp07/gridsim/core/ledger/store"
	"github.com/kilianp07/gridsim/pkg/export"
	"github.com/kilianp07/gridsim/pkg/report"
)

var (
	reportBackend string
	reportPath    string
	reportOut     string
	reportFormat  string
	reportRun     string
	reportKind    string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Replay a persisted ledger into an HTML, JSON or CSV report",
	RunE:  runReport,
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportBackend, "backend", store.BackendJSONL, "ledger backend: jsonl, rotating or sqlite")
	f.StringVar(&reportPath, "path", "", "ledger location (defaults to ledger.path from the configuration)")
	f.StringVarP(&reportOut, "out", "o", "report.html", "output file, - for stdout")
	f.StringVar(&reportFormat, "format", "html", "output format: html, json or csv")
	f.StringVar(&reportRun, "run", "", "only include entries of this run id")
	f.StringVar(&reportKind, "kind", "", "only include entries of this kind")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	opts, err := reportStoreOptions(cmd)
	if err != nil {
		return err
	}
	if opts.Backend == store.BackendMemory || opts.Backend == "" {
		return errors.New("the memory ledger is not persisted; configure jsonl, rotating or sqlite")
	}
	st, err := store.Open(opts)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer st.Close()

	entries, err := st.Query(cmd.Context(), store.Query{RunID: reportRun, Kind: reportKind})
	if err != nil {
		return fmt.Errorf("query ledger: %w", err)
	}

	var w io.Writer = cmd.OutOrStdout()
	if reportOut != "-" {
		f, err := os.Create(reportOut)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := writeReport(w, entries); err != nil {
		return err
	}
	if reportOut != "-" {
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d entries to %s\n", len(entries), reportOut)
	}
	return nil
}

// reportStoreOptions reads the ledger section of the configuration unless
// --path points at the ledger directly.
func reportStoreOptions(cmd *cobra.Command) (store.Options, error) {
	if cmd.Flags().Changed("path") {
		return store.Options{Backend: reportBackend, Path: reportPath}, nil
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return store.Options{}, fmt.Errorf("load config: %w", err)
	}
	opts := cfg.Ledger.StoreOptions()
	if cmd.Flags().Changed("backend") {
		opts.Backend = reportBackend
	}
	return opts, nil
}

func writeReport(w io.Writer, entries []store.Entry) error {
	switch reportFormat {
	case "html":
		title := "Energy Ledger Report"
		if reportRun != "" {
			title += " " + reportRun
		}
		return report.WriteHTML(w, title, entries)
	case "json":
		return export.WriteJSON(w, entries)
	case "csv":
		return export.WriteCSV(w, entries)
	default:
		return fmt.Errorf("unknown report format %q", reportFormat)
	}
}

