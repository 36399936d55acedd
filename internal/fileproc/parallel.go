// Package fileproc provides concurrent file processing utilities.
package fileproc

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/panbanda/auspex/pkg/parser"
	"github.com/panbanda/auspex/pkg/source"
	"github.com/sourcegraph/conc/pool"
)

// ProcessingError represents an error that occurred while processing a file.
type ProcessingError struct {
	Path string
	Err  error
}

func (e ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// ProcessingErrors collects multiple file processing errors.
type ProcessingErrors struct {
	Errors []ProcessingError
	mu     sync.Mutex
}

// Add appends an error to the collection (thread-safe).
func (e *ProcessingErrors) Add(path string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, ProcessingError{Path: path, Err: err})
	e.mu.Unlock()
}

// HasErrors returns true if any errors were collected.
func (e *ProcessingErrors) HasErrors() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

// Error implements the error interface.
func (e *ProcessingErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d files failed to process (first: %v)", len(e.Errors), e.Errors[0])
}

// DefaultWorkers returns the worker count used when none is configured.
// Parsing is CGO-bound with some I/O, so 2x NumCPU keeps cores busy.
func DefaultWorkers() int {
	return runtime.NumCPU() * 2
}

// ProgressFunc is called after each file is processed.
type ProgressFunc func()

// MapSources parses files from a ContentSource in parallel, calling fn for
// each file with a per-goroutine parser and the raw content. Returns results
// in arbitrary order; callers that need determinism sort afterwards.
// Individual file errors are collected, never fatal. A canceled context
// stops scheduling further files and records ctx.Err() for the remainder.
func MapSources[T any](ctx context.Context, src source.ContentSource, paths []string, workers int, fn func(*parser.Parser, string, []byte) (T, error), onProgress ProgressFunc) ([]T, *ProcessingErrors) {
	if len(paths) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	results := make([]T, 0, len(paths))
	errs := &ProcessingErrors{}
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(workers)
	for _, path := range paths {
		path := path
		p.Go(func() {
			if onProgress != nil {
				defer onProgress()
			}
			if ctx.Err() != nil {
				errs.Add(path, ctx.Err())
				return
			}

			content, err := src.Read(path)
			if err != nil {
				errs.Add(path, err)
				return
			}

			psr := parser.New()
			defer psr.Close()

			result, err := fn(psr, path, content)
			if err != nil {
				errs.Add(path, err)
				return
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		})
	}
	p.Wait()

	if !errs.HasErrors() {
		return results, nil
	}
	return results, errs
}
