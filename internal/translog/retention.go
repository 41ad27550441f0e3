// Package translog: this file implements the retention policy that computes
// the minimum translog generation that must be preserved on disk.
package translog

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/lodestone-io/lodestone/internal/logging"
)

// RetentionPolicyConfig configures a RetentionPolicy.
type RetentionPolicyConfig struct {
	// RetentionSizeBytes is the maximum cumulative size of retained translog
	// files. Unbounded disables the size limit.
	// Default: 512MB
	RetentionSizeBytes int64

	// RetentionAgeMs is the maximum age of the oldest retained translog file
	// in milliseconds. Unbounded disables the age limit.
	// Default: 43200000 (12 hours)
	RetentionAgeMs int64

	// NowMs supplies the current time in epoch milliseconds for age-based
	// retention. Overridable for testing. Default: time.Now().UnixMilli.
	NowMs func() int64

	// Logger is used for retention decisions. Default: the global logger.
	Logger *logging.Logger
}

// DefaultRetentionPolicyConfig returns default configuration.
func DefaultRetentionPolicyConfig() RetentionPolicyConfig {
	return RetentionPolicyConfig{
		RetentionSizeBytes: 512 * 1024 * 1024,
		RetentionAgeMs:     12 * time.Hour.Milliseconds(),
	}
}

// RetentionPolicy decides which translog generations must be kept. It owns
// the per-generation reference-count table, the runtime-mutable retention
// limits, and the minimum generation required for recovery. The minimum
// generation it computes is the floor below which the trim worker may
// delete sealed translog files.
//
// All state is guarded by a single mutex; the policy performs no I/O.
type RetentionPolicy struct {
	mu sync.Mutex

	// refCounts tracks outstanding references per generation. A generation
	// with no holders is removed from the table, never kept at zero.
	refCounts map[int64]int

	retentionSizeBytes int64
	retentionAgeMs     int64

	// minGenForRecovery is the oldest generation a full recovery could need.
	// Monotonically non-decreasing.
	minGenForRecovery int64

	nowMs  func() int64
	logger *logging.Logger
}

// NewRetentionPolicy creates a retention policy from the given configuration.
func NewRetentionPolicy(cfg RetentionPolicyConfig) *RetentionPolicy {
	if cfg.NowMs == nil {
		cfg.NowMs = func() int64 { return time.Now().UnixMilli() }
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Global()
	}
	return &RetentionPolicy{
		refCounts:          make(map[int64]int),
		retentionSizeBytes: cfg.RetentionSizeBytes,
		retentionAgeMs:     cfg.RetentionAgeMs,
		nowMs:              cfg.NowMs,
		logger:             cfg.Logger,
	}
}

// GenerationLock pins a translog generation, and every newer generation,
// against deletion until released. The holder must call Release exactly
// once; a second Release panics because a double release indicates a bug
// in the acquiring code, not a recoverable condition.
type GenerationLock struct {
	policy     *RetentionPolicy
	generation int64
	released   bool
}

// Generation returns the pinned generation.
func (l *GenerationLock) Generation() int64 {
	return l.generation
}

// Release drops the pin on the generation. Must be called exactly once.
func (l *GenerationLock) Release() {
	l.policy.release(l)
}

// Acquire pins the given generation against deletion and returns the lock
// that releases the pin. Returns ErrNegativeGeneration for a negative
// generation.
func (p *RetentionPolicy) Acquire(generation int64) (*GenerationLock, error) {
	if generation < 0 {
		return nil, fmt.Errorf("acquire translog generation %d: %w", generation, ErrNegativeGeneration)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.refCounts[generation]++
	return &GenerationLock{policy: p, generation: generation}, nil
}

func (p *RetentionPolicy) release(l *GenerationLock) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l.released {
		panic(fmt.Sprintf("translog: generation lock for %d released twice", l.generation))
	}
	l.released = true

	count, ok := p.refCounts[l.generation]
	if !ok || count <= 0 {
		panic(fmt.Sprintf("translog: no outstanding reference for generation %d", l.generation))
	}
	if count == 1 {
		delete(p.refCounts, l.generation)
	} else {
		p.refCounts[l.generation] = count - 1
	}
}

// SetMinGenerationForRecovery advances the oldest generation a recovery
// could need. The floor is monotonic: moving it backward returns
// ErrRecoveryGenerationRegression with no state change.
func (p *RetentionPolicy) SetMinGenerationForRecovery(generation int64) error {
	if generation < 0 {
		return fmt.Errorf("set recovery generation %d: %w", generation, ErrNegativeGeneration)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if generation < p.minGenForRecovery {
		return fmt.Errorf("set recovery generation %d below current %d: %w",
			generation, p.minGenForRecovery, ErrRecoveryGenerationRegression)
	}
	if generation > p.minGenForRecovery {
		p.logger.Debugf("advancing translog recovery floor", map[string]any{
			"from": p.minGenForRecovery,
			"to":   generation,
		})
	}
	p.minGenForRecovery = generation
	return nil
}

// MinGenerationForRecovery returns the current recovery floor.
func (p *RetentionPolicy) MinGenerationForRecovery() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minGenForRecovery
}

// SetRetentionSizeBytes replaces the size limit. Unbounded disables it.
func (p *RetentionPolicy) SetRetentionSizeBytes(bytes int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retentionSizeBytes = bytes
}

// SetRetentionAgeMs replaces the age limit in milliseconds. Unbounded
// disables it.
func (p *RetentionPolicy) SetRetentionAgeMs(ageMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retentionAgeMs = ageMs
}

// PendingReferenceCount returns the number of distinct generations with at
// least one outstanding reference. Diagnostic only.
func (p *RetentionPolicy) PendingReferenceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.refCounts)
}

// MinGenerationRequired computes the minimum generation that must be
// preserved, given the known on-disk translog files (including the file
// currently being written) and the active writer generation.
//
// The result is the lowest of three bounds: the oldest referenced
// generation, the recovery floor, and the combined age/size retention
// bound. The age and size limits each keep recent files; a file must
// satisfy both to be retained by the limits, so their combined bound is
// the larger of the two. When both limits are disabled the combined bound
// contributes no constraint at all rather than forcing deletion of
// everything.
func (p *RetentionPolicy) MinGenerationRequired(files []FileInfo, writerGeneration int64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	sorted := make([]FileInfo, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Generation < sorted[j].Generation })

	minByRefs := p.minReferencedGenerationLocked()
	minByAge := minGenerationByAge(sorted, writerGeneration, p.retentionAgeMs, p.nowMs())
	minBySize := minGenerationBySize(sorted, writerGeneration, p.retentionSizeBytes)

	var minByAgeAndSize int64
	switch {
	case minByAge == math.MinInt64 && minBySize == math.MinInt64:
		// Both limits disabled: the limits impose no constraint. The
		// remaining bounds govern what is kept.
		minByAgeAndSize = math.MaxInt64
	case minByAge > minBySize:
		minByAgeAndSize = minByAge
	default:
		minByAgeAndSize = minBySize
	}

	required := minByAgeAndSize
	if minByRefs < required {
		required = minByRefs
	}
	if p.minGenForRecovery < required {
		required = p.minGenForRecovery
	}
	return required
}

// minReferencedGenerationLocked returns the oldest referenced generation,
// or math.MaxInt64 when nothing is referenced.
func (p *RetentionPolicy) minReferencedGenerationLocked() int64 {
	minGen := int64(math.MaxInt64)
	for gen := range p.refCounts {
		if gen < minGen {
			minGen = gen
		}
	}
	return minGen
}

// minGenerationByAge returns the generation of the oldest file still within
// the age limit, walking from oldest to newest. If every file is past the
// limit the writer generation is returned. A disabled limit yields
// math.MinInt64 so the caller can tell "disabled" apart from "keep all".
func minGenerationByAge(files []FileInfo, writerGeneration int64, retentionAgeMs int64, nowMs int64) int64 {
	if retentionAgeMs < 0 {
		return math.MinInt64
	}
	for _, f := range files {
		if nowMs-f.LastModifiedMs <= retentionAgeMs {
			return f.Generation
		}
	}
	return writerGeneration
}

// minGenerationBySize returns the generation of the oldest file that still
// fits within the size limit, accumulating sizes from newest to oldest. A
// disabled limit yields math.MinInt64.
func minGenerationBySize(files []FileInfo, writerGeneration int64, retentionSizeBytes int64) int64 {
	if retentionSizeBytes < 0 {
		return math.MinInt64
	}
	minGen := writerGeneration
	var totalSize int64
	for i := len(files) - 1; i >= 0; i-- {
		totalSize += files[i].SizeBytes
		minGen = files[i].Generation
		if totalSize >= retentionSizeBytes {
			break
		}
	}
	return minGen
}
