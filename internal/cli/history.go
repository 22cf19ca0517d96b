package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/islamcheck/internal/factcheck"
)

var (
	historyPage    int
	historyPerPage int
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored fact checks, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		page, err := a.service.History(ctx, historyPage, historyPerPage)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCLASSIFICATION\tCLAIM")
		for _, item := range page.Claims {
			fmt.Fprintf(w, "%s\t%s\t%s\n", item.ID, item.Classification, item.Query)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		p := page.Pagination
		fmt.Fprintf(os.Stderr, "\npage %d of %d (%d claims)\n", p.CurrentPage, p.TotalPages, p.TotalItems)
		return nil
	},
}

// reindexCmd represents the reindex command
var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the full-text search index from the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		if a.index == nil {
			return fmt.Errorf("search is disabled (search.enabled=false)")
		}
		n, err := a.index.IndexFromStore(ctx, a.store)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Indexed %d claims\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(reindexCmd)

	historyCmd.Flags().IntVar(&historyPage, "page", 1, "page number (1-based)")
	historyCmd.Flags().IntVar(&historyPerPage, "per-page", factcheck.DefaultPerPage, "claims per page")
}
