package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/pricetrack/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load battery classes, batteries, and optional history from YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, _ := cmd.Flags().GetString("file")
		seed, err := store.LoadSeed(path)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := seed.Apply(ctx, st)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d classes, %d batteries, %d history records.\n",
			stats.Classes, stats.Batteries, stats.History)
		return nil
	},
}

func init() {
	seedCmd.Flags().String("file", "seed.yaml", "seed file path")
	rootCmd.AddCommand(seedCmd)
}
