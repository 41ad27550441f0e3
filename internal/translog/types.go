package translog

import "errors"

// Unbounded disables a retention limit. A policy dimension set to Unbounded
// contributes no constraint to the minimum-generation computation; it does
// not mean "retain nothing".
const Unbounded int64 = -1

var (
	// ErrNegativeGeneration is returned when a caller passes a negative
	// translog generation to an operation that requires a valid one.
	ErrNegativeGeneration = errors.New("translog generation must not be negative")

	// ErrRecoveryGenerationRegression is returned when a caller attempts to
	// move the minimum generation required for recovery backward. The floor
	// only ever advances.
	ErrRecoveryGenerationRegression = errors.New("minimum generation for recovery cannot move backward")
)

// FileInfo describes one on-disk translog generation file: its generation
// number, its size, and when it was last written to. The file currently
// being appended to is included with its size so far.
type FileInfo struct {
	// Generation is the generation number of the file. Generations are
	// assigned by the log writer on rollover and never reused.
	Generation int64

	// SizeBytes is the current size of the file in bytes.
	SizeBytes int64

	// LastModifiedMs is the file's last-modified time in epoch milliseconds.
	LastModifiedMs int64
}
