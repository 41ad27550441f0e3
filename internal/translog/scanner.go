// Package translog: this file implements the directory scanner that maps
// on-disk translog files to generation numbers, sizes, and ages.
package translog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	fileNamePrefix = "translog-"
	fileNameSuffix = ".wal"
)

// FileName returns the on-disk file name for a translog generation.
func FileName(generation int64) string {
	return fmt.Sprintf("%s%d%s", fileNamePrefix, generation, fileNameSuffix)
}

// ParseFileName extracts the generation from a translog file name. The
// second return value is false when the name is not a translog file.
func ParseFileName(name string) (int64, bool) {
	if !strings.HasPrefix(name, fileNamePrefix) || !strings.HasSuffix(name, fileNameSuffix) {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, fileNamePrefix), fileNameSuffix)
	gen, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || gen < 0 {
		return 0, false
	}
	return gen, true
}

// Scanner reads translog generation files from a shard's translog
// directory. It reports sizes and modification times for retention
// decisions and removes files the trim worker has classified as
// reclaimable. Already-sealed generations are immutable on disk, so the
// values reported for them are stable across scans.
type Scanner struct {
	dir string
}

// NewScanner creates a scanner for the given translog directory.
func NewScanner(dir string) *Scanner {
	return &Scanner{dir: dir}
}

// Dir returns the scanned directory.
func (s *Scanner) Dir() string {
	return s.dir
}

// List returns the translog generation files present in the directory,
// sorted oldest to newest by generation. Files that do not follow the
// translog naming scheme are ignored.
func (s *Scanner) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read translog dir %s: %w", s.dir, err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		gen, ok := ParseFileName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// The file may have been removed between ReadDir and Info.
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stat translog file %s: %w", entry.Name(), err)
		}
		files = append(files, FileInfo{
			Generation:     gen,
			SizeBytes:      info.Size(),
			LastModifiedMs: info.ModTime().UnixMilli(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Generation < files[j].Generation })
	return files, nil
}

// MaxGeneration returns the highest generation present in the directory,
// which is the generation currently being written. Returns 0 when the
// directory holds no translog files.
func (s *Scanner) MaxGeneration() (int64, error) {
	files, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}
	return files[len(files)-1].Generation, nil
}

// Remove deletes the file for the given generation. Removing a generation
// that is already gone is not an error; a concurrent scan may have
// reclaimed it first.
func (s *Scanner) Remove(generation int64) error {
	path := filepath.Join(s.dir, FileName(generation))
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("remove translog file %s: %w", path, err)
	}
	return nil
}
