package artifacts

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"fathom/internal/protocol"
)

// Store persists the durable artifacts of a single run. All writes are
// best-effort from the session's point of view: a failed write is logged
// as a warning upstream and never aborts the run.
type Store struct {
	runID  string
	dir    string
	logger *slog.Logger
}

// NewStore creates the run directory tree under root and returns a store
// bound to it. Layout:
//
//	<root>/<run-id>/request.json
//	<root>/<run-id>/prompts/NNN-<agent>.txt
//	<root>/<run-id>/raw_responses/NNN-<agent>.json
//	<root>/<run-id>/output.md
//	<root>/<run-id>/metadata.json
func NewStore(root, runID string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Join(root, runID)
	for _, sub := range []string{"", "prompts", "raw_responses"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create run directory: %w", err)
		}
	}
	return &Store{runID: runID, dir: dir, logger: logger}, nil
}

// Dir returns the run's artifact directory.
func (s *Store) Dir() string { return s.dir }

// WriteRequest persists the session request. Written exactly once, before
// any other artifact of the run.
func (s *Store) WriteRequest(req *protocol.Request) error {
	return s.writeJSON(filepath.Join(s.dir, "request.json"), req)
}

// WritePrompt persists one prompt, keyed by sequence number and agent name.
func (s *Store) WritePrompt(ev protocol.Prompt) error {
	path := filepath.Join(s.dir, "prompts", artifactName(ev.Sequence, ev.Agent)+".txt")
	if err := os.WriteFile(path, []byte(ev.Content), 0o644); err != nil {
		return fmt.Errorf("failed to write prompt %d: %w", ev.Sequence, err)
	}
	return nil
}

// rawResponseFile is the on-disk shape of one agent response.
type rawResponseFile struct {
	Agent      string               `json:"agent"`
	Sequence   int                  `json:"sequence"`
	Content    string               `json:"content"`
	TokenUsage *protocol.TokenUsage `json:"token_usage,omitempty"`
}

// WriteRawResponse persists one agent response with its token usage.
func (s *Store) WriteRawResponse(ev protocol.RawResponse) error {
	path := filepath.Join(s.dir, "raw_responses", artifactName(ev.Sequence, ev.Agent)+".json")
	return s.writeJSON(path, rawResponseFile{
		Agent:      ev.Agent,
		Sequence:   ev.Sequence,
		Content:    ev.Content,
		TokenUsage: ev.TokenUsage,
	})
}

// WriteReport persists the final report markdown as output.md.
func (s *Store) WriteReport(markdown string) error {
	path := filepath.Join(s.dir, "output.md")
	if err := os.WriteFile(path, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("failed to write output.md: %w", err)
	}
	return nil
}

// WriteMetadata persists the run metadata record.
func (s *Store) WriteMetadata(meta *protocol.RunMetadata) error {
	return s.writeJSON(filepath.Join(s.dir, "metadata.json"), meta)
}

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// artifactName builds the ordering-stable file stem: zero-padded sequence
// plus lowercased agent name. The sequence number from the event is the
// ordering key, independent of write order.
func artifactName(sequence int, agent string) string {
	return fmt.Sprintf("%03d-%s", sequence, strings.ToLower(agent))
}
