package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aluiziolira/go-bookmeta/models"
	"github.com/aluiziolira/go-bookmeta/parser"
	"golang.org/x/sync/errgroup"
)

// BookAggregator is satisfied by *Aggregator.
type BookAggregator interface {
	AggregateBookData(ctx context.Context, raw string) (*models.AggregatedBook, error)
}

// BatchResult summarises one batch run.
type BatchResult struct {
	Requested int      `json:"requested"`
	Found     int      `json:"found"`
	NotFound  []string `json:"not_found"`
	Invalid   []string `json:"invalid"`
	Skipped   int      `json:"skipped_duplicates"`
}

// RunBatch aggregates every ISBN with at most concurrency requests in flight
// and feeds found books to p. Inputs that normalise to the same ISBN are
// looked up once. Only a pipeline failure or cancellation aborts the run.
func RunBatch(ctx context.Context, agg BookAggregator, p *Pipeline, isbns []string, concurrency int) (BatchResult, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	result := BatchResult{Requested: len(isbns)}

	jobs := make([]string, 0, len(isbns))
	seen := make(map[string]struct{}, len(isbns))
	for _, raw := range isbns {
		n := parser.NormalizeISBN(raw)
		if !n.Valid {
			result.Invalid = append(result.Invalid, raw)
			continue
		}
		if _, dup := seen[n.Preferred()]; dup {
			result.Skipped++
			continue
		}
		seen[n.Preferred()] = struct{}{}
		jobs = append(jobs, raw)
	}

	books := make([]*models.AggregatedBook, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, raw := range jobs {
		g.Go(func() error {
			book, err := agg.AggregateBookData(gctx, raw)
			if err != nil {
				if errors.Is(err, ErrInvalidISBN) {
					return nil
				}
				return err
			}
			if book == nil {
				return nil
			}
			books[i] = book
			return p.Process([]*models.AggregatedBook{book})
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	for i, book := range books {
		if book == nil {
			result.NotFound = append(result.NotFound, jobs[i])
			continue
		}
		result.Found++
	}
	slog.Info("batch complete",
		slog.Int("requested", result.Requested),
		slog.Int("found", result.Found),
		slog.Int("not_found", len(result.NotFound)),
		slog.Int("invalid", len(result.Invalid)),
	)
	return result, nil
}
