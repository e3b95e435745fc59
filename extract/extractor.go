// Package extract expands downloaded runtime archives.
//
// An Extractor is bound to a single Format when it is created and runs at most
// once, moving through NotStarted, Extracting and finally Done or Failed.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
)

var (
	// ErrAlreadyRun is returned when Extract is called on an Extractor that has
	// already left the NotStarted state.
	ErrAlreadyRun = errors.New("extractor has already run")

	// ErrIllegalPath is returned for archive members or link targets that would
	// land outside the destination directory.
	ErrIllegalPath = errors.New("illegal path in archive")
)

// State is the lifecycle state of an Extractor.
type State int

const (
	NotStarted State = iota
	Extracting
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Extracting:
		return "Extracting"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Extractor expands one archive of a fixed format.
type Extractor struct {
	format Format

	mu    sync.Mutex
	state State
	err   error
}

// New creates an Extractor for archives of the given format.
func New(format Format) *Extractor {
	return &Extractor{format: format}
}

// Format returns the archive format this Extractor was created for.
func (e *Extractor) Format() Format {
	return e.format
}

// State returns the current state.
func (e *Extractor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the error that moved the Extractor to Failed, if any.
func (e *Extractor) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Extract expands archivePath into destDir. Members that already exist are
// overwritten. On failure, anything already written is left in place.
func (e *Extractor) Extract(ctx context.Context, archivePath, destDir string) error {
	e.mu.Lock()
	if e.state != NotStarted {
		e.mu.Unlock()
		return ErrAlreadyRun
	}
	e.state = Extracting
	e.mu.Unlock()

	err := e.run(ctx, archivePath, destDir)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.state = Failed
		e.err = err
		return err
	}
	e.state = Done
	return nil
}

func (e *Extractor) run(ctx context.Context, archivePath, destDir string) error {
	extract, err := e.format.strategy()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}
	return extract(ctx, archivePath, destDir)
}
