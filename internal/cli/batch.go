package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/islamcheck/internal/model"
	"github.com/ppiankov/islamcheck/internal/worker"
)

var (
	concurrency  int
	outputFile   string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Fact-check many claims from a file in parallel",
	Long: `Batch processes claims concurrently:
- Read claims from the input file (one per line, '-' for stdin)
- Blank lines and lines starting with '#' are skipped
- Duplicate claims are checked once
- Cached results younger than 24h are reused
- Upstream calls share the configured rate limit

Example:
  islamcheck batch claims.txt
  islamcheck batch claims.txt --concurrency 8 --output results.jsonl
  cat claims.txt | islamcheck batch -`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default: factcheck.workers)")
	batchCmd.Flags().StringVar(&outputFile, "output", "", "write results as JSON lines to this file")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
}

// batchLine is one JSON-lines output record
type batchLine struct {
	Claim  string             `json:"claim"`
	Record *model.ClaimRecord `json:"record,omitempty"`
	Error  string             `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) (err error) {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	workers := concurrency
	if workers <= 0 {
		workers = a.cfg.FactCheck.Workers
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  islamcheck Batch Processing\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", workers)
	fmt.Fprintf(os.Stderr, "  Model:        %s/%s\n", a.cfg.Upstream.Provider, a.cfg.Upstream.Model)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	var out *json.Encoder
	if outputFile != "" {
		f, createErr := os.Create(outputFile)
		if createErr != nil {
			return fmt.Errorf("create output file: %w", createErr)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close output file: %w", closeErr)
			}
		}()
		out = json.NewEncoder(f)
	}

	processor := worker.NewBatchProcessor(a.service, workers, a.logger.Named("batch"))
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	for _, result := range results {
		line := batchLine{Claim: result.Claim, Record: result.Record}
		if result.Error != nil {
			line.Error = result.Error.Error()
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Claim, result.Error)
		} else {
			fmt.Fprintf(os.Stderr, "✓ [%s] %s (%s)\n", result.Record.ID, result.Claim, result.Record.Classification)
		}
		if out != nil {
			if err := out.Encode(line); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
		}
	}

	succeeded, failed := worker.Summarize(results)

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d claims\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", succeeded)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failed)
	if outputFile != "" {
		fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputFile)
	}
	fmt.Fprintf(os.Stderr, "\n")

	if failed > 0 && succeeded == 0 {
		return fmt.Errorf("all %d claims failed", failed)
	}
	return nil
}
