package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pricetrack/internal/model"
	"github.com/sells-group/pricetrack/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history <battery-id>",
	Short: "Show recorded prices for a battery, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		records, err := st.ReadHistory(ctx, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "history")
		}

		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No price history found.")
			return nil
		}
		formatHistory(cmd.OutOrStdout(), records)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", store.DefaultHistoryLimit, "max records to show")
	rootCmd.AddCommand(historyCmd)
}

// formatHistory writes a tabular list of history records to w.
func formatHistory(out io.Writer, records []model.PriceHistoryRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCRAPED_AT\tPRICE\tID")
	_, _ = fmt.Fprintln(w, "----------\t-----\t--")

	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t$%.2f\t%s\n",
			r.ObservedAt.UTC().Format("2006-01-02 15:04"),
			r.Price,
			truncateID(r.ID),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
