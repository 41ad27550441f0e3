// Package commits implements the index-commit deletion policy: deciding,
// on every commit event, which persisted index snapshots are safe to
// physically delete and which one must be retained for recovery.
//
// The storage engine hands the policy the full ordered list of known
// commits via OnInit and OnCommit. The policy classifies them against the
// global checkpoint, deletes stale commits through their Delete capability,
// and keeps the translog retention floor in lockstep with the retained
// safe commit.
package commits

import (
	"errors"
	"fmt"
	"strconv"
)

// User-data keys embedded in every index commit by the indexing layer.
const (
	// TranslogUUIDKey identifies the translog instance the commit was
	// taken against.
	TranslogUUIDKey = "translog_uuid"

	// TranslogGenerationKey is the translog generation that was active
	// when the commit was taken. Recovery from this commit replays the
	// translog from this generation onward.
	TranslogGenerationKey = "translog_generation"

	// MaxSeqNoKey is the highest sequence number assigned as of the
	// commit. Legacy commits predate sequence numbering and lack this key.
	MaxSeqNoKey = "max_seq_no"
)

var (
	// ErrNoCommits is returned when OnInit or OnCommit is invoked with an
	// empty commit list. An open index always has at least one commit.
	ErrNoCommits = errors.New("commit list is empty")

	// ErrSnapshotDeleteDisallowed is returned when Delete is called on an
	// acquired commit. Acquired commits are pinned for reading and export;
	// only the policy itself deletes commits.
	ErrSnapshotDeleteDisallowed = errors.New("cannot delete an acquired index commit")

	// ErrNotInitialized is returned when a commit reference is requested
	// before the policy has seen its first commit list.
	ErrNotInitialized = errors.New("no commit list has been observed yet")
)

// IndexCommit is one durable, point-in-time snapshot of the index as seen
// by this policy. Implementations are supplied by the storage engine; the
// policy never creates commits, it only classifies them and invokes their
// Delete capability.
type IndexCommit interface {
	// Generation is the commit generation. Commit lists are ordered by it.
	Generation() int64

	// UserData returns the commit's embedded key-value metadata.
	UserData() map[string]string

	// Delete physically removes the commit. May fail with an I/O error;
	// the policy propagates such failures without rolling back its
	// bookkeeping, so the commit is reclassified on the next event.
	Delete() error
}

// SafeCommitInfo is an immutable snapshot of the translog state recorded
// in a commit: the translog generation recovery would start from and the
// highest sequence number the commit contains. Parsed once per policy
// invocation so classification does not re-read commit metadata.
type SafeCommitInfo struct {
	TranslogGeneration int64
	MaxSeqNo           int64
}

// isLegacy reports whether the commit predates sequence numbering.
func isLegacy(commit IndexCommit) bool {
	_, ok := commit.UserData()[MaxSeqNoKey]
	return !ok
}

// parseSafeCommitInfo reads the translog generation and max sequence
// number from a commit's user data.
func parseSafeCommitInfo(commit IndexCommit) (SafeCommitInfo, error) {
	userData := commit.UserData()

	rawGen, ok := userData[TranslogGenerationKey]
	if !ok {
		return SafeCommitInfo{}, fmt.Errorf("commit generation %d: missing %s", commit.Generation(), TranslogGenerationKey)
	}
	translogGen, err := strconv.ParseInt(rawGen, 10, 64)
	if err != nil {
		return SafeCommitInfo{}, fmt.Errorf("commit generation %d: parse %s: %w", commit.Generation(), TranslogGenerationKey, err)
	}

	rawSeqNo, ok := userData[MaxSeqNoKey]
	if !ok {
		return SafeCommitInfo{}, fmt.Errorf("commit generation %d: missing %s", commit.Generation(), MaxSeqNoKey)
	}
	maxSeqNo, err := strconv.ParseInt(rawSeqNo, 10, 64)
	if err != nil {
		return SafeCommitInfo{}, fmt.Errorf("commit generation %d: parse %s: %w", commit.Generation(), MaxSeqNoKey, err)
	}

	return SafeCommitInfo{TranslogGeneration: translogGen, MaxSeqNo: maxSeqNo}, nil
}

// maxSeqNo returns the commit's max sequence number. The caller must have
// checked isLegacy first.
func maxSeqNo(commit IndexCommit) (int64, error) {
	raw, ok := commit.UserData()[MaxSeqNoKey]
	if !ok {
		return 0, fmt.Errorf("commit generation %d: missing %s", commit.Generation(), MaxSeqNoKey)
	}
	return strconv.ParseInt(raw, 10, 64)
}
