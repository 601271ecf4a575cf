package wire

import "strings"

// Prefixes used by the bulk-retrieval stream.
const (
	PrefixCurrentTime = "Current time:"
	PrefixCutoffTime  = "Cutoff time:"
	PrefixComplete    = "Transfer complete"
	PrefixError       = "Error:"
)

// LineWriter is the write side of a line-oriented channel. Implementations
// append the line terminator themselves.
type LineWriter interface {
	WriteLine(line string) error
}

// Class is the host-side classification of one received line.
type Class int

const (
	// ClassInfo lines are metadata, recorded for display but not accumulated.
	ClassInfo Class = iota
	// ClassData lines are record lines in the persisted format.
	ClassData
	// ClassStatus lines terminate a transfer (completion or error).
	ClassStatus
)

// Classify buckets one stream line. Status wins over everything, known
// metadata prefixes are info, anything with at least five comma-separated
// fields is data, and the rest falls back to info.
func Classify(line string) Class {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, PrefixComplete) || strings.HasPrefix(line, PrefixError) {
		return ClassStatus
	}
	if strings.HasPrefix(line, PrefixCurrentTime) || strings.HasPrefix(line, PrefixCutoffTime) {
		return ClassInfo
	}
	if strings.Count(line, ",") >= 4 {
		return ClassData
	}
	return ClassInfo
}
