// Package commits: this file implements acquired commit references, the
// pins held by snapshot and backup operations while they export a commit.
package commits

import "fmt"

// AcquiredCommit is an externally held reference to one index commit. The
// referenced commit is not deleted by the policy while the reference is
// outstanding, even when classification would otherwise discard it.
//
// AcquiredCommit implements IndexCommit for reading, but its Delete always
// fails with ErrSnapshotDeleteDisallowed: acquired commits exist to be
// exported, not reclaimed. The holder must call Release exactly once.
type AcquiredCommit struct {
	policy   *DeletionPolicy
	commit   IndexCommit
	released bool
}

// Generation returns the pinned commit's generation.
func (a *AcquiredCommit) Generation() int64 {
	return a.commit.Generation()
}

// UserData returns the pinned commit's embedded metadata.
func (a *AcquiredCommit) UserData() map[string]string {
	return a.commit.UserData()
}

// Delete always fails: deletion happens only through the policy's own
// classification, never through an acquired reference.
func (a *AcquiredCommit) Delete() error {
	return fmt.Errorf("commit generation %d: %w", a.commit.Generation(), ErrSnapshotDeleteDisallowed)
}

// Release drops the pin. It reports whether the commit is now both
// unreferenced and already superseded, meaning the next commit event can
// reclaim it. Deletion is deferred to that event: deciding whether the
// commit is still needed requires the full current commit list.
//
// Release must be called exactly once; a second call panics because a
// double release indicates a bug in the holding code.
func (a *AcquiredCommit) Release() bool {
	return a.policy.releaseCommit(a)
}

// AcquireIndexCommit pins either the safe commit or the most recent commit
// and returns the reference holding the pin. Fails with ErrNotInitialized
// before the first OnInit/OnCommit call.
func (p *DeletionPolicy) AcquireIndexCommit(acquiringSafeCommit bool) (*AcquiredCommit, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil, ErrNotInitialized
	}

	commit := p.lastCommit
	if acquiringSafeCommit {
		commit = p.safeCommit
	}
	p.acquired[commit.Generation()]++
	if p.metrics != nil {
		p.metrics.RecordAcquiredReferences(len(p.acquired))
	}
	return &AcquiredCommit{policy: p, commit: commit}, nil
}

func (p *DeletionPolicy) releaseCommit(a *AcquiredCommit) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if a.released {
		panic(fmt.Sprintf("commits: reference to commit generation %d released twice", a.commit.Generation()))
	}
	a.released = true

	gen := a.commit.Generation()
	count, ok := p.acquired[gen]
	if !ok || count <= 0 {
		panic(fmt.Sprintf("commits: no outstanding reference for commit generation %d", gen))
	}
	if count == 1 {
		delete(p.acquired, gen)
	} else {
		p.acquired[gen] = count - 1
	}
	if p.metrics != nil {
		p.metrics.RecordAcquiredReferences(len(p.acquired))
	}

	// Reclaimable on the next commit event if nothing else pins it and it
	// is neither the retained safe commit nor the most recent one.
	return p.acquired[gen] == 0 &&
		gen != p.safeCommit.Generation() &&
		gen != p.lastCommit.Generation()
}
