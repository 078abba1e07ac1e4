package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aluiziolira/go-bookmeta/models"
	"github.com/aluiziolira/go-bookmeta/parser"
	"github.com/aluiziolira/go-bookmeta/pipeline"
	"github.com/aluiziolira/go-bookmeta/store"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// errNotFound makes a lookup miss exit non-zero.
var errNotFound = errors.New("book not found")

type isbnOutput struct {
	ISBN10 *string `json:"isbn10"`
	ISBN13 *string `json:"isbn13"`
	Valid  bool    `json:"isValid"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var isbnCmd = &cobra.Command{
	Use:   "isbn <raw>",
	Short: "Normalise an ISBN and print both forms",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n := parser.NormalizeISBN(args[0])
		return printJSON(isbnOutput{ISBN10: optional(n.ISBN10), ISBN13: optional(n.ISBN13), Valid: n.Valid})
	},
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <isbn>",
	Short: "Aggregate metadata and covers for one ISBN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession()
		if err != nil {
			return err
		}
		defer sess.close()

		book, err := sess.engine.Aggregator.AggregateBookData(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if book == nil {
			return fmt.Errorf("%w: %s", errNotFound, args[0])
		}
		return printJSON(book)
	},
}

var coversTitle string

var coversCmd = &cobra.Command{
	Use:   "covers <isbn13> [isbn10]",
	Short: "List ISBN-keyed cover candidates",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession()
		if err != nil {
			return err
		}
		defer sess.close()

		q := pipeline.CoverQuery{ISBN13: args[0], Title: coversTitle}
		if len(args) == 2 {
			q.ISBN10 = args[1]
		}
		return printJSON(sess.engine.Covers.FetchCoverOptions(cmd.Context(), q))
	},
}

var (
	webTitle  string
	webAuthor string
	webCount  int
)

var webCoversCmd = &cobra.Command{
	Use:   "web-covers",
	Short: "Search covers by title and author",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession()
		if err != nil {
			return err
		}
		defer sess.close()

		return printJSON(sess.engine.Web.FetchWebCovers(cmd.Context(), webTitle, webAuthor, webCount))
	},
}

var (
	batchInput       string
	batchOutput      string
	batchFormat      string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Aggregate a list of ISBNs into CSV or JSONL output",
	Long: `batch reads one ISBN per line (blank lines and lines starting with # are
ignored) and writes every found book to the output file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		isbns, err := readISBNs(batchInput)
		if err != nil {
			return err
		}

		sess, err := newSession()
		if err != nil {
			return err
		}
		defer sess.close()

		writer, err := pipeline.NewWriter(batchFormat, batchOutput)
		if err != nil {
			return err
		}
		defer func() {
			if err := writer.Close(); err != nil {
				slog.Error("close writer", slog.Any("error", err))
			}
		}()

		p := pipeline.NewPipeline(writer, 64)
		p.Start(1)
		if cfg.Verbose {
			p.StartMetricsReporting(10 * time.Second)
		}

		start := time.Now()
		result, err := pipeline.RunBatch(cmd.Context(), sess.engine.Aggregator, p, isbns, batchConcurrency)
		if closeErr := p.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("batch failed: %w", err)
		}
		if result.Found > 0 {
			if err := writer.Validate(); err != nil {
				return fmt.Errorf("output validation failed: %w", err)
			}
		}

		printSummary(result, p.Snapshot(), time.Since(start), batchOutput)
		return nil
	},
}

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load book records into the local catalogue",
	Long: `seed reads a JSON array (or JSON lines) of book records and upserts them
into the SQLite catalogue named by --db.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DatabasePath == "" {
			return errors.New("seed needs --db or database_path")
		}
		records, err := readRecords(seedFile)
		if err != nil {
			return err
		}

		s, err := store.OpenSQLite(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer s.Close()

		stored := 0
		for _, rec := range records {
			n := parser.NormalizeISBN(firstNonEmpty(rec.ISBN13, rec.ISBN10))
			if n.Valid {
				rec.ISBN13, rec.ISBN10 = n.ISBN13, n.ISBN10
			}
			if err := s.Upsert(cmd.Context(), rec); err != nil {
				slog.Warn("skipping record", slog.String("title", rec.Title), slog.Any("error", err))
				continue
			}
			stored++
		}
		total, err := s.Count(cmd.Context())
		if err != nil {
			return err
		}
		slog.Info("catalogue seeded", slog.Int("stored", stored), slog.Int("total", total))
		return nil
	},
}

func init() {
	coversCmd.Flags().StringVar(&coversTitle, "title", "", "book title, attached to debug logs")

	webCoversCmd.Flags().StringVar(&webTitle, "title", "", "book title")
	webCoversCmd.Flags().StringVar(&webAuthor, "author", "", "primary author")
	webCoversCmd.Flags().IntVar(&webCount, "count", 3, "number of covers wanted")

	batchCmd.Flags().StringVarP(&batchInput, "input", "i", "-", "file with one ISBN per line (- for stdin)")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "books.csv", "output file path")
	batchCmd.Flags().StringVarP(&batchFormat, "format", "f", "csv", "output format: csv, json, or dual")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 4, "books aggregated at once")

	seedCmd.Flags().StringVar(&seedFile, "file", "-", "JSON records file (- for stdin)")
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

func readISBNs(path string) ([]string, error) {
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	var isbns []string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		isbns = append(isbns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return isbns, nil
}

func readRecords(path string) ([]models.BookRecord, error) {
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var records []models.BookRecord
		if err := json.Unmarshal([]byte(trimmed), &records); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		return records, nil
	}

	var records []models.BookRecord
	dec := json.NewDecoder(strings.NewReader(trimmed))
	for dec.More() {
		var rec models.BookRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func printSummary(result pipeline.BatchResult, stats pipeline.Stats, duration time.Duration, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(os.Stderr, "\n"+separator)
	fmt.Fprintln(os.Stderr, "Batch complete")
	fmt.Fprintf(os.Stderr, "  Requested:     %d\n", result.Requested)
	fmt.Fprintf(os.Stderr, "  Found:         %d\n", result.Found)
	fmt.Fprintf(os.Stderr, "  Not found:     %d\n", len(result.NotFound))
	fmt.Fprintf(os.Stderr, "  Invalid:       %d\n", len(result.Invalid))
	fmt.Fprintf(os.Stderr, "  Duplicates:    %d\n", result.Skipped)
	fmt.Fprintf(os.Stderr, "  Written:       %d\n", stats.Written)
	if len(stats.Rejected) > 0 {
		fmt.Fprintf(os.Stderr, "  Rejected:      %v\n", stats.Rejected)
	}
	fmt.Fprintf(os.Stderr, "  Duration:      %v\n", duration)
	fmt.Fprintf(os.Stderr, "  Output file:   %s\n", outputFile)
	fmt.Fprintln(os.Stderr, separator)
}
