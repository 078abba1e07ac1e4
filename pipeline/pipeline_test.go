package pipeline

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/aluiziolira/go-bookmeta/models"
)

type mockWriter struct {
	mu       sync.Mutex
	batches  [][]*models.AggregatedBook
	closed   bool
	writeErr error
}

func (mw *mockWriter) Write(books []*models.AggregatedBook) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	copyBatch := make([]*models.AggregatedBook, len(books))
	copy(copyBatch, books)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return nil
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

func bookWithISBN(isbn13 string) *models.AggregatedBook {
	return &models.AggregatedBook{
		BookRecord: models.BookRecord{Title: "Book " + isbn13, ISBN13: isbn13},
		Source:     models.SourceGoogleBooks,
	}
}

func TestPipelineProcessValidationAndDedup(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer, 0)
	p.Start(1)

	valid := bookWithISBN("9781649374042")
	untitled := &models.AggregatedBook{BookRecord: models.BookRecord{ISBN13: "9780306406157"}}
	noISBN := &models.AggregatedBook{BookRecord: models.BookRecord{Title: "Orphan"}}
	duplicate := bookWithISBN("9781649374042")

	if err := p.Process([]*models.AggregatedBook{valid, untitled, nil, noISBN, duplicate}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 1 {
		t.Fatalf("written books = %d, want 1", got)
	}
	stats := p.Snapshot()
	if stats.Written != 1 {
		t.Fatalf("stats written = %d, want 1", stats.Written)
	}
	for _, kind := range []string{"missing_title", "missing_isbn", "duplicate_isbn"} {
		if stats.Rejected[kind] != 1 {
			t.Fatalf("rejected[%s] = %d, want 1 (%v)", kind, stats.Rejected[kind], stats.Rejected)
		}
	}
}

func TestPipelineBatchFlushThreshold(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer, 64)
	p.Start(1)

	for i := 0; i < 65; i++ {
		if err := p.Process([]*models.AggregatedBook{bookWithISBN(strconv.Itoa(9780000000000 + i))}); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 {
		t.Fatalf("batch writes = %d, want 2", len(sizes))
	}
	if sizes[0] != 64 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [64 1]", sizes)
	}
}

func TestPipelineCloseDrainsPendingItems(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer, 8)
	p.Start(2)

	for i := 0; i < 100; i++ {
		if err := p.Process([]*models.AggregatedBook{bookWithISBN(strconv.Itoa(9790000000000 + i))}); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := writer.totalWritten(); got != 100 {
		t.Fatalf("written books = %d, want 100", got)
	}
}

func TestPipelineWriteErrorClosesPipeline(t *testing.T) {
	boom := errors.New("disk full")
	writer := &mockWriter{writeErr: boom}
	p := NewPipeline(writer, 1)
	p.Start(1)

	if err := p.Process([]*models.AggregatedBook{bookWithISBN("9781649374042")}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); !errors.Is(err, boom) {
		t.Fatalf("close error = %v, want %v", err, boom)
	}
	if err := p.Process([]*models.AggregatedBook{bookWithISBN("9780306406157")}); err == nil {
		t.Fatalf("expected process after failure to error")
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	p := NewPipeline(&mockWriter{}, 1)
	p.Start(1)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Process([]*models.AggregatedBook{bookWithISBN("9781649374042")}); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("process after close = %v, want ErrPipelineClosed", err)
	}
}
