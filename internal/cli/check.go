package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/islamcheck/internal/model"
)

var (
	checkJSON    bool
	checkTimeout time.Duration
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check <claim>",
	Short: "Fact-check a single claim",
	Long: `Check analyses one claim, using the cached result when it is less than
24 hours old, and stores fresh results for the server to publish.

Example:
  islamcheck check "Muslims fast during Ramadan"
  islamcheck check --json "Hajj is required every year"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print the record as JSON")
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 5*time.Minute, "overall timeout including retries")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	rec, err := a.service.FactCheck(ctx, strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("fact check failed: %w", err)
	}

	if checkJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	printRecord(rec)
	return nil
}

func printRecord(rec *model.ClaimRecord) {
	fmt.Printf("Claim:          %s\n", rec.Query)
	fmt.Printf("ID:             %s\n", rec.ID)
	fmt.Printf("Classification: %s\n", rec.Classification)
	fmt.Printf("Checked:        %s\n", rec.Timestamp.Format(time.RFC3339))
	fmt.Println()
	fmt.Println(rec.Answer)
	if len(rec.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, s := range rec.Sources {
			fmt.Printf("  - %s\n", s)
		}
	}
}
