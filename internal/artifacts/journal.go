package artifacts

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"fathom/internal/ndjson"
	"fathom/internal/protocol"
)

// Journal appends every worker event for a run to events.ndjson, one line
// per event in arrival order. It complements the structured artifacts with
// a replayable record of the whole exchange.
type Journal struct {
	file    *os.File
	encoder *ndjson.Encoder
	mu      sync.Mutex
}

// OpenJournal opens the run's event journal for appending.
func OpenJournal(dir string, logger *slog.Logger) (*Journal, error) {
	file, err := os.OpenFile(filepath.Join(dir, "events.ndjson"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event journal: %w", err)
	}

	return &Journal{
		file:    file,
		encoder: ndjson.NewEncoder(file, logger),
	}, nil
}

// Append writes one event with its wire discriminator.
func (j *Journal) Append(ev protocol.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.encoder.EncodeEvent(ev)
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		return j.file.Close()
	}
	return nil
}
