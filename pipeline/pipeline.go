// Package pipeline aggregates book metadata and covers from every source and
// streams aggregated results to output writers.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-bookmeta/models"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(books []*models.AggregatedBook) error
	Close() error
	Validate() error
}

// Pipeline validates, de-duplicates and batches aggregated books on their way
// to an OutputWriter.
type Pipeline struct {
	writer    OutputWriter
	bookCh    chan *models.AggregatedBook
	batchSize int

	wg sync.WaitGroup

	seen   map[string]struct{}
	seenMu sync.Mutex

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline with a modest in-memory buffer.
func NewPipeline(writer OutputWriter, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Pipeline{
		writer:    writer,
		bookCh:    make(chan *models.AggregatedBook, 256),
		batchSize: batchSize,
		seen:      make(map[string]struct{}),
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues books for writing.
func (p *Pipeline) Process(books []*models.AggregatedBook) error {
	if len(books) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, book := range books {
		if book == nil {
			continue
		}
		if err := p.enqueue(book); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for workers to finish and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.bookCh)
	})

	p.wg.Wait()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Snapshot returns the internal counters.
func (p *Pipeline) Snapshot() Stats {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs until Close.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := p.Snapshot()
				slog.Info("pipeline progress",
					slog.Int64("written", stats.Written),
					slog.Int("rejected", stats.rejectedTotal()),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.AggregatedBook, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for book := range p.bookCh {
		if !p.accept(book) {
			continue
		}
		batch = append(batch, book)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) accept(book *models.AggregatedBook) bool {
	if strings.TrimSpace(book.Title) == "" {
		p.metrics.addRejected("missing_title")
		return false
	}
	key := book.ISBN13
	if key == "" {
		key = book.ISBN10
	}
	if key == "" {
		p.metrics.addRejected("missing_isbn")
		return false
	}

	p.seenMu.Lock()
	if _, ok := p.seen[key]; ok {
		p.seenMu.Unlock()
		p.metrics.addRejected("duplicate_isbn")
		return false
	}
	p.seen[key] = struct{}{}
	p.seenMu.Unlock()

	p.metrics.incrementWritten()
	return true
}

func (p *Pipeline) enqueue(book *models.AggregatedBook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.bookCh <- book:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.bookCh)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

// Stats is a point-in-time copy of pipeline counters.
type Stats struct {
	Written  int64          `json:"written"`
	Rejected map[string]int `json:"rejected"`
}

func (s Stats) rejectedTotal() int {
	total := 0
	for _, n := range s.Rejected {
		total += n
	}
	return total
}

type metrics struct {
	mu       sync.Mutex
	written  int64
	rejected map[string]int
}

func newMetrics() metrics {
	return metrics{
		rejected: make(map[string]int),
	}
}

func (m *metrics) incrementWritten() {
	m.mu.Lock()
	m.written++
	m.mu.Unlock()
}

func (m *metrics) addRejected(kind string) {
	m.mu.Lock()
	m.rejected[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	rejected := make(map[string]int, len(m.rejected))
	for k, v := range m.rejected {
		rejected[k] = v
	}
	return Stats{Written: m.written, Rejected: rejected}
}
