package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	resetSearchLog bool
	resetAll       bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the search log or all collected data",
	Long:  "--search-log makes every (location, keyword) pair eligible for searching again. --all also removes establishments, contacts and rejected results. Locations are always kept.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if resetSearchLog == resetAll {
			return eris.New("exactly one of --search-log or --all is required")
		}
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if resetAll {
			if err := st.ResetCollected(ctx); err != nil {
				return eris.Wrap(err, "reset collected data")
			}
			zap.L().Info("collected data cleared")
			return nil
		}

		n, err := st.ResetSearchLog(ctx)
		if err != nil {
			return eris.Wrap(err, "reset search log")
		}
		zap.L().Info("search log cleared", zap.Int64("rows", n))
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetSearchLog, "search-log", false, "clear the search log only")
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "clear establishments, contacts, rejections and the search log")
	rootCmd.AddCommand(resetCmd)
}
