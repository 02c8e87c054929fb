package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Extract contacts for establishments that have none",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		en, err := newEnricher(ctx, st, nil)
		if err != nil {
			return err
		}
		res, err := en.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "enrich")
		}
		return printJSON(os.Stdout, res)
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd)
}
