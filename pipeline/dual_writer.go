package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-catalogue/models"
)

type formatWriter struct {
	format string
	OutputWriter
}

// DualWriter fans every batch out to a CSV file and a JSON file.
type DualWriter struct {
	mu      sync.Mutex
	targets []formatWriter
}

// NewDualWriter opens both outputs. Nothing is left open on failure.
func NewDualWriter(csvPath, jsonPath string) (*DualWriter, error) {
	csvOut, err := NewCSVWriter(csvPath)
	if err != nil {
		return nil, fmt.Errorf("open csv output: %w", err)
	}
	jsonOut, err := NewJSONWriter(jsonPath)
	if err != nil {
		_ = csvOut.Close()
		return nil, fmt.Errorf("open json output: %w", err)
	}
	return &DualWriter{targets: []formatWriter{
		{format: "csv", OutputWriter: csvOut},
		{format: "json", OutputWriter: jsonOut},
	}}, nil
}

// Write stops at the first output that fails.
func (dw *DualWriter) Write(items []*models.Item) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	for _, t := range dw.targets {
		if err := t.Write(items); err != nil {
			return fmt.Errorf("%s output: %w", t.format, err)
		}
	}
	return nil
}

func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return dw.each(OutputWriter.Close)
}

func (dw *DualWriter) Validate() error {
	return dw.each(OutputWriter.Validate)
}

// each applies fn to every output and joins the failures.
func (dw *DualWriter) each(fn func(OutputWriter) error) error {
	var errs []error
	for _, t := range dw.targets {
		if err := fn(t.OutputWriter); err != nil {
			errs = append(errs, fmt.Errorf("%s output: %w", t.format, err))
		}
	}
	return errors.Join(errs...)
}
