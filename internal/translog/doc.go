// Package translog implements the retention side of the write-ahead log:
// deciding which sealed translog generations must be kept on disk for
// recovery, for outstanding readers, and for the configured retention
// limits, and which may be reclaimed by the trim worker.
//
// The package never touches the log's contents. It operates on generation
// numbers, file sizes, and modification times supplied by the log writer
// and the directory scanner.
package translog
