package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Remove duplicate establishments",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		dd, err := newDeduplicator(st, nil)
		if err != nil {
			return err
		}
		rep, err := dd.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "dedupe")
		}
		return printJSON(os.Stdout, rep)
	},
}

func init() {
	rootCmd.AddCommand(dedupeCmd)
}
