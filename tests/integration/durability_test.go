package integration

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/lodestone-io/lodestone/internal/commits"
	"github.com/lodestone-io/lodestone/internal/gc"
	"github.com/lodestone-io/lodestone/internal/logging"
	"github.com/lodestone-io/lodestone/internal/translog"
)

// fakeCommit is an in-memory index commit for exercising the deletion
// policy end to end without a real index directory.
type fakeCommit struct {
	gen      int64
	userData map[string]string
	deleted  bool
}

func (c *fakeCommit) Generation() int64           { return c.gen }
func (c *fakeCommit) UserData() map[string]string { return c.userData }
func (c *fakeCommit) Delete() error {
	c.deleted = true
	return nil
}

func newCommit(translogUUID string, gen, translogGen, maxSeqNo int64) *fakeCommit {
	return &fakeCommit{
		gen: gen,
		userData: map[string]string{
			commits.TranslogUUIDKey:       translogUUID,
			commits.TranslogGenerationKey: strconv.FormatInt(translogGen, 10),
			commits.MaxSeqNoKey:           strconv.FormatInt(maxSeqNo, 10),
		},
	}
}

func asCommits(cs ...*fakeCommit) []commits.IndexCommit {
	out := make([]commits.IndexCommit, len(cs))
	for i, c := range cs {
		out[i] = c
	}
	return out
}

func writeGeneration(t *testing.T, dir string, gen int64, size int) {
	t.Helper()
	path := filepath.Join(dir, translog.FileName(gen))
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("failed to write generation %d: %v", gen, err)
	}
}

func generationExists(t *testing.T, dir string, gen int64) bool {
	t.Helper()
	_, err := os.Stat(filepath.Join(dir, translog.FileName(gen)))
	if err == nil {
		return true
	}
	if os.IsNotExist(err) {
		return false
	}
	t.Fatalf("failed to stat generation %d: %v", gen, err)
	return false
}

// TestDurability_CommitsAdvanceTranslogFloor runs the whole durability
// chain: commit events select the safe commit, the safe commit's translog
// generation advances the retention floor, and the trim worker reclaims
// the translog files below it.
func TestDurability_CommitsAdvanceTranslogFloor(t *testing.T) {
	dir := t.TempDir()
	translogUUID := uuid.New().String()

	for gen := int64(1); gen <= 4; gen++ {
		writeGeneration(t, dir, gen, 100)
	}

	logger := logging.DefaultLogger()
	logger.SetLevel(logging.LevelError)

	policy := translog.NewRetentionPolicy(translog.RetentionPolicyConfig{
		RetentionSizeBytes: translog.Unbounded,
		RetentionAgeMs:     translog.Unbounded,
		Logger:             logger,
	})
	scanner := translog.NewScanner(dir)
	worker := gc.NewTranslogTrimWorker(policy, scanner, gc.TranslogTrimWorkerConfig{
		Logger: logger,
	})

	var checkpoint int64 = 25
	deletion := commits.NewDeletionPolicy(policy, func() int64 { return checkpoint },
		commits.DeletionPolicyConfig{
			TranslogUUID: translogUUID,
			Logger:       logger,
		})

	c1 := newCommit(translogUUID, 1, 1, 10)
	c2 := newCommit(translogUUID, 2, 2, 25)
	c3 := newCommit(translogUUID, 3, 3, 40)
	if err := deletion.OnInit(asCommits(c1, c2, c3)); err != nil {
		t.Fatalf("OnInit failed: %v", err)
	}

	// c2 is the newest commit at or below the checkpoint; c1 goes.
	if !c1.deleted {
		t.Error("commit 1 should be deleted, it is older than the safe commit")
	}
	if c2.deleted || c3.deleted {
		t.Error("safe and newest commits must be retained")
	}
	if got := deletion.SafeCommitInfo().TranslogGeneration; got != 2 {
		t.Fatalf("safe commit translog generation = %d, want 2", got)
	}
	if got := policy.MinGenerationForRecovery(); got != 2 {
		t.Fatalf("retention floor = %d, want 2", got)
	}

	// The trim worker reclaims generation 1 and keeps everything from the
	// floor upward.
	trimmed, err := worker.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce failed: %v", err)
	}
	if trimmed != 1 {
		t.Errorf("trimmed = %d, want 1", trimmed)
	}
	if generationExists(t, dir, 1) {
		t.Error("generation 1 should be removed")
	}
	for gen := int64(2); gen <= 4; gen++ {
		if !generationExists(t, dir, gen) {
			t.Errorf("generation %d should be retained", gen)
		}
	}

	// The checkpoint advances past c3; the next commit event promotes it.
	checkpoint = 50
	c4 := newCommit(translogUUID, 4, 4, 60)
	if err := deletion.OnCommit(asCommits(c2, c3, c4)); err != nil {
		t.Fatalf("OnCommit failed: %v", err)
	}
	if !c2.deleted {
		t.Error("commit 2 should be deleted after the safe commit moved past it")
	}
	if got := policy.MinGenerationForRecovery(); got != 3 {
		t.Fatalf("retention floor = %d, want 3", got)
	}

	if _, err := worker.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce failed: %v", err)
	}
	if generationExists(t, dir, 2) {
		t.Error("generation 2 should be removed")
	}
	if !generationExists(t, dir, 3) || !generationExists(t, dir, 4) {
		t.Error("generations 3 and 4 should be retained")
	}
}

// TestDurability_ReferencesPinAcrossTheChain verifies that generation locks
// hold translog files on disk and acquired commit references hold commits,
// both beyond what retention alone would keep, until released.
func TestDurability_ReferencesPinAcrossTheChain(t *testing.T) {
	dir := t.TempDir()
	translogUUID := uuid.New().String()

	for gen := int64(1); gen <= 3; gen++ {
		writeGeneration(t, dir, gen, 100)
	}

	logger := logging.DefaultLogger()
	logger.SetLevel(logging.LevelError)

	policy := translog.NewRetentionPolicy(translog.RetentionPolicyConfig{
		RetentionSizeBytes: translog.Unbounded,
		RetentionAgeMs:     translog.Unbounded,
		Logger:             logger,
	})
	scanner := translog.NewScanner(dir)
	worker := gc.NewTranslogTrimWorker(policy, scanner, gc.TranslogTrimWorkerConfig{
		Logger: logger,
	})

	var checkpoint int64 = 100
	deletion := commits.NewDeletionPolicy(policy, func() int64 { return checkpoint },
		commits.DeletionPolicyConfig{
			TranslogUUID: translogUUID,
			Logger:       logger,
		})

	c1 := newCommit(translogUUID, 1, 1, 10)
	c2 := newCommit(translogUUID, 2, 3, 30)
	if err := deletion.OnInit(asCommits(c1, c2)); err != nil {
		t.Fatalf("OnInit failed: %v", err)
	}

	// A recovery reader pins generation 1 before the trim worker runs.
	lock, err := policy.Acquire(1)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if _, err := worker.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce failed: %v", err)
	}
	if !generationExists(t, dir, 1) {
		t.Error("pinned generation 1 should survive the scan")
	}

	lock.Release()
	if _, err := worker.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce failed: %v", err)
	}
	if generationExists(t, dir, 1) {
		t.Error("generation 1 should be removed after the lock is released")
	}
	if !generationExists(t, dir, 3) {
		t.Error("generation 3 should be retained")
	}

	// A backup pins the safe commit; a later commit event must not delete it.
	acquired, err := deletion.AcquireIndexCommit(true)
	if err != nil {
		t.Fatalf("AcquireIndexCommit failed: %v", err)
	}
	if acquired.Generation() != 2 {
		t.Fatalf("acquired generation = %d, want 2", acquired.Generation())
	}

	c3 := newCommit(translogUUID, 3, 4, 60)
	if err := deletion.OnCommit(asCommits(c2, c3)); err != nil {
		t.Fatalf("OnCommit failed: %v", err)
	}
	if c2.deleted {
		t.Fatal("acquired commit 2 must not be deleted while referenced")
	}

	if canCleanUp := acquired.Release(); !canCleanUp {
		t.Error("Release should report the superseded commit as reclaimable")
	}
	if err := deletion.OnCommit(asCommits(c2, c3)); err != nil {
		t.Fatalf("OnCommit failed: %v", err)
	}
	if !c2.deleted {
		t.Error("commit 2 should be deleted after its reference is released")
	}
	if c3.deleted {
		t.Error("newest commit must be retained")
	}
}

// TestDurability_RetentionLimitsBoundDiskUsage verifies that the size limit
// feeds through retention into actual file deletion while the recovery
// floor still caps how far trimming can go.
func TestDurability_RetentionLimitsBoundDiskUsage(t *testing.T) {
	dir := t.TempDir()

	for gen := int64(1); gen <= 5; gen++ {
		writeGeneration(t, dir, gen, 100)
	}

	logger := logging.DefaultLogger()
	logger.SetLevel(logging.LevelError)

	policy := translog.NewRetentionPolicy(translog.RetentionPolicyConfig{
		RetentionSizeBytes: 250,
		RetentionAgeMs:     translog.Unbounded,
		Logger:             logger,
	})
	if err := policy.SetMinGenerationForRecovery(5); err != nil {
		t.Fatalf("SetMinGenerationForRecovery failed: %v", err)
	}

	scanner := translog.NewScanner(dir)
	worker := gc.NewTranslogTrimWorker(policy, scanner, gc.TranslogTrimWorkerConfig{
		Logger: logger,
	})

	// 250 bytes cover generations 5, 4 and the crossing file 3.
	trimmed, err := worker.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce failed: %v", err)
	}
	if trimmed != 2 {
		t.Errorf("trimmed = %d, want 2", trimmed)
	}
	for gen := int64(1); gen <= 2; gen++ {
		if generationExists(t, dir, gen) {
			t.Errorf("generation %d should be removed", gen)
		}
	}
	for gen := int64(3); gen <= 5; gen++ {
		if !generationExists(t, dir, gen) {
			t.Errorf("generation %d should be retained", gen)
		}
	}
}

// TestDurability_UUIDMismatchDoesNotBlockRetention verifies that commits
// carrying a stale translog UUID are still classified and deleted; the
// mismatch is an observability concern, not a retention one.
func TestDurability_UUIDMismatchDoesNotBlockRetention(t *testing.T) {
	logger := logging.DefaultLogger()
	logger.SetLevel(logging.LevelError)

	policy := translog.NewRetentionPolicy(translog.RetentionPolicyConfig{
		RetentionSizeBytes: translog.Unbounded,
		RetentionAgeMs:     translog.Unbounded,
		Logger:             logger,
	})

	expected := uuid.New().String()
	stale := uuid.New().String()
	deletion := commits.NewDeletionPolicy(policy, func() int64 { return 100 },
		commits.DeletionPolicyConfig{
			TranslogUUID: expected,
			Logger:       logger,
		})

	c1 := newCommit(stale, 1, 1, 10)
	c2 := newCommit(expected, 2, 2, 20)
	if err := deletion.OnInit(asCommits(c1, c2)); err != nil {
		t.Fatalf("OnInit failed: %v", err)
	}
	if !c1.deleted {
		t.Error("stale commit should still be deleted by classification")
	}
}

// TestDurability_ManyCommitCycles drives repeated flush cycles and checks
// the invariants hold throughout: the floor never regresses and exactly
// the safe and newer commits survive each event.
func TestDurability_ManyCommitCycles(t *testing.T) {
	logger := logging.DefaultLogger()
	logger.SetLevel(logging.LevelError)

	policy := translog.NewRetentionPolicy(translog.RetentionPolicyConfig{
		RetentionSizeBytes: translog.Unbounded,
		RetentionAgeMs:     translog.Unbounded,
		Logger:             logger,
	})

	translogUUID := uuid.New().String()
	var checkpoint int64
	deletion := commits.NewDeletionPolicy(policy, func() int64 { return checkpoint },
		commits.DeletionPolicyConfig{
			TranslogUUID: translogUUID,
			Logger:       logger,
		})

	live := []*fakeCommit{newCommit(translogUUID, 0, 0, 0)}
	if err := deletion.OnInit(asCommits(live...)); err != nil {
		t.Fatalf("OnInit failed: %v", err)
	}

	prevFloor := policy.MinGenerationForRecovery()
	for i := int64(1); i <= 20; i++ {
		// The checkpoint trails the newest commit by one flush.
		checkpoint = (i - 1) * 10
		live = append(live, newCommit(translogUUID, i, i, i*10))

		if err := deletion.OnCommit(asCommits(live...)); err != nil {
			t.Fatalf("OnCommit %d failed: %v", i, err)
		}

		floor := policy.MinGenerationForRecovery()
		if floor < prevFloor {
			t.Fatalf("floor regressed from %d to %d at cycle %d", prevFloor, floor, i)
		}
		prevFloor = floor

		var survivors []*fakeCommit
		for _, c := range live {
			if !c.deleted {
				survivors = append(survivors, c)
			}
		}
		if len(survivors) != 2 {
			t.Fatalf("cycle %d: %d survivors, want safe + newest", i, len(survivors))
		}
		if survivors[0].Generation() != i-1 || survivors[1].Generation() != i {
			t.Fatalf("cycle %d: survivors %d,%d want %d,%d",
				i, survivors[0].Generation(), survivors[1].Generation(), i-1, i)
		}
		live = survivors
	}

	// checkpoint is 190, newest commit's max seq no is 200.
	if deletion.HasUnreferencedCommits() {
		t.Error("nothing should be pending while the checkpoint trails the newest commit")
	}
	checkpoint = 200
	if !deletion.HasUnreferencedCommits() {
		t.Error("expected pending unreferenced commits once the checkpoint catches up")
	}
}
