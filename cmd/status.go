package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/biomed-sul/leadscout/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show row counts per table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "read stats")
		}
		formatStats(os.Stdout, stats)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// formatStats writes a two-column table of row counts to out.
func formatStats(out io.Writer, s *model.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TABLE\tROWS")
	_, _ = fmt.Fprintln(w, "-----\t----")
	for _, row := range []struct {
		name string
		n    int
	}{
		{"locations", s.Locations},
		{"search_log", s.SearchLog},
		{"establishments", s.Establishments},
		{"contacts", s.Contacts},
		{"rejected_results", s.Rejected},
	} {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", row.name, row.n)
	}
	_ = w.Flush()
}
