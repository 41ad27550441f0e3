// Package commits: this file implements the deletion policy invoked by the
// storage engine on every commit and open event.
package commits

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/lodestone-io/lodestone/internal/logging"
	"github.com/lodestone-io/lodestone/internal/metrics"
	"github.com/lodestone-io/lodestone/internal/translog"
)

// DeletionPolicyConfig configures a DeletionPolicy.
type DeletionPolicyConfig struct {
	// TranslogUUID, when set, is the UUID of the translog this shard is
	// writing to. Commits referencing a different or malformed translog
	// UUID are logged; they indicate a restore from the wrong snapshot or
	// a damaged commit.
	TranslogUUID string

	// Logger is used for classification decisions. Default: the global logger.
	Logger *logging.Logger

	// Metrics records deletion outcomes. Optional.
	Metrics *metrics.CommitMetrics
}

// DeletionPolicy decides which index commits are safe to physically delete.
// Exactly one safe commit and the most recent commit are always retained,
// externally acquired commit references pin their commit, and the translog
// retention floor advances in lockstep with the retained safe commit.
//
// OnInit and OnCommit are assumed to be serialized by the storage engine:
// it never fires two commit events concurrently. The policy still guards
// its state with a mutex so reference acquisition and release may
// interleave freely with classification.
type DeletionPolicy struct {
	mu sync.Mutex

	translogPolicy   *translog.RetentionPolicy
	globalCheckpoint func() int64
	translogUUID     string
	logger           *logging.Logger
	metrics          *metrics.CommitMetrics

	// acquired counts external holders per commit generation. Multiple
	// independent holders of the same commit are expected, hence counts
	// rather than a set.
	acquired map[int64]int

	initialized bool
	lastCommit  IndexCommit
	safeCommit  IndexCommit

	// safeCommitInfo caches the safe commit's translog state so recovery
	// code does not re-parse commit metadata.
	safeCommitInfo SafeCommitInfo

	// nextSafeCommitMaxSeqNo is the max sequence number of the oldest
	// commit newer than the safe commit, or math.MaxInt64 when the safe
	// commit is the most recent one. Once the global checkpoint reaches
	// it, a commit event would advance the safe commit and free space.
	nextSafeCommitMaxSeqNo int64
}

// NewDeletionPolicy creates a deletion policy that keeps the given translog
// retention policy's recovery floor in sync with the retained safe commit
// and classifies commits against the given global checkpoint supplier. The
// supplier must be safe to call from any goroutine.
func NewDeletionPolicy(translogPolicy *translog.RetentionPolicy, globalCheckpoint func() int64, cfg DeletionPolicyConfig) *DeletionPolicy {
	if cfg.Logger == nil {
		cfg.Logger = logging.Global()
	}
	return &DeletionPolicy{
		translogPolicy:         translogPolicy,
		globalCheckpoint:       globalCheckpoint,
		translogUUID:           cfg.TranslogUUID,
		logger:                 cfg.Logger,
		metrics:                cfg.Metrics,
		acquired:               make(map[int64]int),
		nextSafeCommitMaxSeqNo: math.MaxInt64,
	}
}

// OnInit classifies the first commit list seen after opening the index.
// Selection works as for OnCommit, but when every commit is legacy the
// list is left untouched: a mixed-version upgrade may still be writing
// sequence-numbered commits, and deleting here would be ambiguous.
func (p *DeletionPolicy) OnInit(commits []IndexCommit) error {
	return p.onCommitList(commits, true)
}

// OnCommit classifies the current commit list after a new commit. It
// retains the safe commit and everything newer, deletes older and legacy
// commits that hold no external references, and advances the translog
// recovery floor to the safe commit's translog generation.
//
// Deletion I/O failures propagate to the caller but never roll back the
// classification: the failed commit stays classified as deletable and is
// retried on the next commit event.
func (p *DeletionPolicy) OnCommit(commits []IndexCommit) error {
	return p.onCommitList(commits, false)
}

func (p *DeletionPolicy) onCommitList(commits []IndexCommit, init bool) error {
	if len(commits) == 0 {
		return ErrNoCommits
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	globalCheckpoint := p.globalCheckpoint()
	p.verifyTranslogUUIDsLocked(commits)

	safeIdx, haveSeqNos := p.safeCommitIndexLocked(commits, globalCheckpoint)

	// Bookkeeping first. The in-memory view must stay correct even when a
	// physical delete below fails.
	p.initialized = true
	p.lastCommit = commits[len(commits)-1]
	p.safeCommit = commits[safeIdx]
	p.updateSafeCommitInfoLocked(commits, safeIdx)

	var errs []error
	if err := p.advanceTranslogFloorLocked(); err != nil {
		errs = append(errs, err)
	}

	// An all-legacy list on init is left alone: deletion only happens once
	// a sequence-numbered safe commit makes it unambiguous.
	deleteAllowed := haveSeqNos || !init
	if deleteAllowed {
		deleted := 0
		for i, commit := range commits[:len(commits)-1] {
			if !p.deletableLocked(commit, commits[safeIdx], i < safeIdx) {
				continue
			}
			if err := commit.Delete(); err != nil {
				p.logger.Warnf("failed to delete index commit", map[string]any{
					"commitGeneration": commit.Generation(),
					"error":            err.Error(),
				})
				if p.metrics != nil {
					p.metrics.RecordDeleteFailure()
				}
				errs = append(errs, fmt.Errorf("delete commit generation %d: %w", commit.Generation(), err))
				continue
			}
			deleted++
		}
		if deleted > 0 {
			p.logger.Debugf("deleted stale index commits", map[string]any{
				"deleted":              deleted,
				"safeCommitGeneration": commits[safeIdx].Generation(),
				"globalCheckpoint":     globalCheckpoint,
			})
		}
		if p.metrics != nil && deleted > 0 {
			p.metrics.RecordDeletedCommits(deleted)
		}
	}

	if p.metrics != nil {
		p.metrics.RecordSafeCommit(p.safeCommit.Generation(), p.safeCommitInfo.MaxSeqNo)
		p.metrics.RecordAcquiredReferences(len(p.acquired))
	}

	return errors.Join(errs...)
}

// safeCommitIndexLocked returns the index of the commit to retain as safe.
// It walks sequence-numbered commits newest to oldest and picks the most
// recent one whose max sequence number the global checkpoint has reached.
// When none qualifies the oldest sequence-numbered commit is kept, since
// deleting it could make recovery impossible. When the list carries no
// sequence numbers at all only the newest commit is retained.
func (p *DeletionPolicy) safeCommitIndexLocked(commits []IndexCommit, globalCheckpoint int64) (int, bool) {
	oldestSeqNumbered := -1
	for i := len(commits) - 1; i >= 0; i-- {
		if isLegacy(commits[i]) {
			continue
		}
		seqNo, err := maxSeqNo(commits[i])
		if err != nil {
			p.logger.Warnf("commit has malformed max sequence number", map[string]any{
				"commitGeneration": commits[i].Generation(),
				"error":            err.Error(),
			})
			continue
		}
		if seqNo <= globalCheckpoint {
			return i, true
		}
		oldestSeqNumbered = i
	}
	if oldestSeqNumbered >= 0 {
		return oldestSeqNumbered, true
	}
	return len(commits) - 1, false
}

// deletableLocked reports whether a commit older than the newest may be
// physically deleted: it is either strictly older than the safe commit or
// legacy, and no external reference pins it.
func (p *DeletionPolicy) deletableLocked(commit, safeCommit IndexCommit, olderThanSafe bool) bool {
	if commit.Generation() == safeCommit.Generation() {
		return false
	}
	if !olderThanSafe && !isLegacy(commit) {
		return false
	}
	return p.acquired[commit.Generation()] == 0
}

// updateSafeCommitInfoLocked refreshes the cached safe-commit view and the
// max sequence number that would unlock the next safe commit.
func (p *DeletionPolicy) updateSafeCommitInfoLocked(commits []IndexCommit, safeIdx int) {
	if isLegacy(commits[safeIdx]) {
		// Legacy commits carry no sequence numbers. The translog
		// generation is still recorded when present.
		info := SafeCommitInfo{MaxSeqNo: -1}
		if parsed, err := parseSafeCommitInfo(commits[safeIdx]); err == nil {
			info.TranslogGeneration = parsed.TranslogGeneration
		}
		p.safeCommitInfo = info
	} else if info, err := parseSafeCommitInfo(commits[safeIdx]); err == nil {
		p.safeCommitInfo = info
	} else {
		p.logger.Warnf("safe commit has malformed translog metadata", map[string]any{
			"commitGeneration": commits[safeIdx].Generation(),
			"error":            err.Error(),
		})
	}

	p.nextSafeCommitMaxSeqNo = math.MaxInt64
	for _, commit := range commits[safeIdx+1:] {
		if isLegacy(commit) {
			continue
		}
		if seqNo, err := maxSeqNo(commit); err == nil {
			p.nextSafeCommitMaxSeqNo = seqNo
			break
		}
	}
}

// advanceTranslogFloorLocked moves the translog recovery floor up to the
// safe commit's translog generation. The floor never moves ahead of what
// recovery from the safe commit requires, and never backward.
func (p *DeletionPolicy) advanceTranslogFloorLocked() error {
	gen := p.safeCommitInfo.TranslogGeneration
	if gen <= p.translogPolicy.MinGenerationForRecovery() {
		return nil
	}
	if err := p.translogPolicy.SetMinGenerationForRecovery(gen); err != nil {
		return fmt.Errorf("advance translog recovery floor to %d: %w", gen, err)
	}
	return nil
}

// verifyTranslogUUIDsLocked flags commits whose translog UUID is missing,
// malformed, or refers to a different translog instance.
func (p *DeletionPolicy) verifyTranslogUUIDsLocked(commits []IndexCommit) {
	for _, commit := range commits {
		raw, ok := commit.UserData()[TranslogUUIDKey]
		if !ok {
			p.logger.Warnf("commit is missing its translog UUID", map[string]any{
				"commitGeneration": commit.Generation(),
			})
			continue
		}
		if _, err := uuid.Parse(raw); err != nil {
			p.logger.Warnf("commit has a malformed translog UUID", map[string]any{
				"commitGeneration": commit.Generation(),
				"translogUUID":     raw,
			})
			continue
		}
		if p.translogUUID != "" && raw != p.translogUUID {
			p.logger.Warnf("commit references a different translog", map[string]any{
				"commitGeneration": commit.Generation(),
				"translogUUID":     raw,
				"expected":         p.translogUUID,
			})
		}
	}
}

// SafeCommitInfo returns the cached translog state of the retained safe
// commit: the generation recovery would replay from and the commit's max
// sequence number (-1 for a legacy safe commit).
func (p *DeletionPolicy) SafeCommitInfo() SafeCommitInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.safeCommitInfo
}

// HasUnreferencedCommits reports whether the global checkpoint has advanced
// far enough that a new commit event would move the safe commit forward and
// reclaim space. The engine uses this to schedule a cleanup commit.
func (p *DeletionPolicy) HasUnreferencedCommits() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized && p.nextSafeCommitMaxSeqNo <= p.globalCheckpoint()
}

// AcquiredReferenceCount returns the number of distinct commits with at
// least one outstanding external reference. Diagnostic only.
func (p *DeletionPolicy) AcquiredReferenceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.acquired)
}
