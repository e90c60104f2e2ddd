package session

import "strings"

// Confirmation is the normalized result of a confirmation prompt.
type Confirmation int

const (
	// ConfirmUnknown means the input matched neither token set; the prompt
	// repeats without a phase change.
	ConfirmUnknown Confirmation = iota
	ConfirmYes
	ConfirmNo
)

// ParseConfirmation normalizes a confirmation line. Matching is
// case-insensitive; an empty line confirms.
func ParseConfirmation(input string) Confirmation {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", "y", "yes", "confirm", "continue", "proceed":
		return ConfirmYes
	case "n", "no", "cancel", "stop", "quit":
		return ConfirmNo
	default:
		return ConfirmUnknown
	}
}
