package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/islamcheck/internal/model"
	"go.uber.org/zap"
)

// FactChecker resolves one claim to a cached or fresh record
type FactChecker interface {
	FactCheck(ctx context.Context, text string) (*model.ClaimRecord, error)
}

// CheckJob fact-checks a single claim
type CheckJob struct {
	Index   int
	Claim   string
	Checker FactChecker
}

// Execute executes the check job
func (j *CheckJob) Execute(ctx context.Context) Result {
	record, err := j.Checker.FactCheck(ctx, j.Claim)
	return &CheckResult{
		Index:  j.Index,
		Claim:  j.Claim,
		Record: record,
		Error:  err,
	}
}

// CheckResult is the outcome of one claim in a batch
type CheckResult struct {
	Index  int
	Claim  string
	Record *model.ClaimRecord
	Error  error
}

// GetError returns the error from the check result
func (r *CheckResult) GetError() error {
	return r.Error
}

// BatchProcessor fact-checks many claims concurrently
type BatchProcessor struct {
	checker     FactChecker
	concurrency int
	logger      *zap.Logger
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(checker FactChecker, concurrency int, logger *zap.Logger) *BatchProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchProcessor{
		checker:     checker,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ProcessClaims checks every claim and returns results in input order.
// Claims left unprocessed because ctx ended carry ctx's error.
func (b *BatchProcessor) ProcessClaims(ctx context.Context, claims []string) []*CheckResult {
	results := make([]*CheckResult, len(claims))
	if len(claims) == 0 {
		return results
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	go func() {
		defer pool.Close()
		for i, claim := range claims {
			if !pool.Submit(&CheckJob{Index: i, Claim: claim, Checker: b.checker}) {
				return
			}
		}
	}()

	for r := range pool.Results() {
		res := r.(*CheckResult)
		results[res.Index] = res
		if res.Error != nil {
			b.logger.Warn("claim check failed", zap.Int("index", res.Index), zap.Error(res.Error))
		} else {
			b.logger.Debug("claim checked", zap.Int("index", res.Index), zap.String("id", res.Record.ID))
		}
	}

	for i, res := range results {
		if res == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			results[i] = &CheckResult{Index: i, Claim: claims[i], Error: err}
		}
	}

	return results
}

// ProcessFile reads claims from a file and checks them concurrently.
// Lines that cannot be read as a claim fail on their own without
// stopping the rest of the batch.
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*CheckResult, error) {
	entries, err := ReadEntriesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read claims: %w", err)
	}

	var claims []string
	for _, entry := range entries {
		if entry.Err == nil {
			claims = append(claims, entry.Claim)
		}
	}
	checked := b.ProcessClaims(ctx, claims)

	results := make([]*CheckResult, len(entries))
	next := 0
	for i, entry := range entries {
		if entry.Err != nil {
			b.logger.Warn("claim rejected", zap.Int("line", entry.Line), zap.Error(entry.Err))
			results[i] = &CheckResult{Index: i, Claim: entry.Claim, Error: entry.Err}
			continue
		}
		res := checked[next]
		next++
		res.Index = i
		results[i] = res
	}

	return results, nil
}

// MaxLineBytes bounds a single claim line in batch input
const MaxLineBytes = 64 * 1024

// previewBytes is how much of an oversized line is kept for reporting
const previewBytes = 80

// Entry is one claim line of batch input. Err is set when the line could
// not be accepted as a claim; Claim then holds a short preview.
type Entry struct {
	Line  int
	Claim string
	Err   error
}

// ReadEntriesFromFile reads claim entries from a file, one per line. "-"
// reads stdin.
func ReadEntriesFromFile(filePath string) ([]Entry, error) {
	if filePath == "-" {
		return ReadEntries(os.Stdin)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ReadEntries(file)
}

// ReadEntries reads newline separated claims, skipping blank lines and
// '#' comments. Claims that normalize to the same text are kept once.
// A line longer than MaxLineBytes becomes an entry wrapping
// model.ErrInvalidInput.
func ReadEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	seen := make(map[string]bool)

	reader := bufio.NewReader(r)
	lineNo := 0
	for {
		raw, oversized, err := readLine(reader)
		if err == io.EOF && raw == nil {
			break
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("scan claims: %w", err)
		}
		lineNo++

		if oversized {
			entries = append(entries, Entry{
				Line:  lineNo,
				Claim: preview(raw),
				Err:   fmt.Errorf("%w: line %d exceeds %d bytes", model.ErrInvalidInput, lineNo, MaxLineBytes),
			})
			continue
		}

		line := model.NormalizeClaim(string(raw))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			entries = append(entries, Entry{Line: lineNo, Claim: line})
		}
	}

	return entries, nil
}

// readLine returns the next line without its terminator. Bytes past
// MaxLineBytes are discarded and reported through oversized. A nil line
// with io.EOF means the input is exhausted.
func readLine(reader *bufio.Reader) (line []byte, oversized bool, err error) {
	for {
		chunk, isPrefix, readErr := reader.ReadLine()
		if readErr != nil {
			return line, oversized, readErr
		}
		if !oversized {
			if len(line)+len(chunk) > MaxLineBytes {
				oversized = true
				line = append(line, chunk[:MaxLineBytes-len(line)]...)
			} else {
				line = append(line, chunk...)
			}
		}
		if line == nil {
			line = []byte{}
		}
		if !isPrefix {
			return line, oversized, nil
		}
	}
}

func preview(raw []byte) string {
	if len(raw) > previewBytes {
		raw = raw[:previewBytes]
	}
	return strings.ToValidUTF8(string(raw), "") + "..."
}

// Summarize counts successful and failed results
func Summarize(results []*CheckResult) (succeeded, failed int) {
	for _, r := range results {
		if r.Error != nil {
			failed++
		} else {
			succeeded++
		}
	}
	return succeeded, failed
}
