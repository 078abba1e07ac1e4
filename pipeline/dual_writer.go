package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-bookmeta/models"
)

// namedWriter tags an output so failures say which file broke.
type namedWriter struct {
	name string
	w    OutputWriter
}

// FanoutWriter sends every batch to several outputs in order. The first
// failing output stops the batch.
type FanoutWriter struct {
	mu      sync.Mutex
	outputs []namedWriter
}

// NewDualWriter opens a CSV and a JSONL output side by side. When the second
// cannot be opened the first is closed again.
func NewDualWriter(csvFilename, jsonFilename string) (*FanoutWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("open csv output: %w", err)
	}
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		_ = csvWriter.Close()
		return nil, fmt.Errorf("open jsonl output: %w", err)
	}
	return &FanoutWriter{outputs: []namedWriter{
		{name: "csv", w: csvWriter},
		{name: "jsonl", w: jsonWriter},
	}}, nil
}

func (f *FanoutWriter) Write(books []*models.AggregatedBook) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, out := range f.outputs {
		if err := out.w.Write(books); err != nil {
			return fmt.Errorf("%s write: %w", out.name, err)
		}
	}
	return nil
}

// Close closes every output, even after a failure, and joins the errors.
func (f *FanoutWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for _, out := range f.outputs {
		if err := out.w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s close: %w", out.name, err))
		}
	}
	return errors.Join(errs...)
}

func (f *FanoutWriter) Validate() error {
	var errs []error
	for _, out := range f.outputs {
		if err := out.w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", out.name, err))
		}
	}
	return errors.Join(errs...)
}
