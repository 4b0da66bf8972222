package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pricetrack/internal/catalog"
	"github.com/sells-group/pricetrack/internal/model"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List tracked batteries with their class and current price",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entities, err := st.ListEntitiesWithClassInfo(ctx)
		if err != nil {
			return eris.Wrap(err, "catalog")
		}

		if pattern, _ := cmd.Flags().GetString("match"); pattern != "" {
			entities = catalog.Filter(entities, pattern)
		}

		if len(entities) == 0 {
			fmt.Fprintln(os.Stderr, "No batteries found.")
			return nil
		}
		formatCatalog(cmd.OutOrStdout(), entities)
		return nil
	},
}

func init() {
	catalogCmd.Flags().String("match", "", "only show names matching a LIKE pattern, e.g. %delta%3%")
	rootCmd.AddCommand(catalogCmd)
}

// formatCatalog writes a tabular list of batteries to w.
func formatCatalog(out io.Writer, entities []model.CatalogEntity) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSUPPLIER\tPRICE\tUPDATED\tCLASS")
	_, _ = fmt.Fprintln(w, "--\t----\t--------\t-----\t-------\t-----")

	for _, e := range entities {
		price := "-"
		if e.CurrentPrice != nil {
			price = fmt.Sprintf("$%.2f", *e.CurrentPrice)
		}
		updated := "-"
		if e.UpdatedAt != nil {
			updated = e.UpdatedAt.UTC().Format("2006-01-02 15:04")
		}
		class := "-"
		if e.Class != nil {
			class = e.Class.ShortName
		}

		name := e.Name
		if len(name) > 40 {
			name = name[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", e.ID, name, e.Supplier, price, updated, class)
	}
	_ = w.Flush()
}
