// Package gc implements the background trim worker that reclaims sealed
// translog generation files.
//
// The worker periodically scans the shard's translog directory, asks the
// retention policy for the minimum generation that must be preserved, and
// deletes every sealed file below that floor. The policy accounts for
// recovery requirements, retention limits, and outstanding references; the
// worker only performs the file I/O.
//
// # Usage
//
//	worker := gc.NewTranslogTrimWorker(policy, scanner, gc.TranslogTrimWorkerConfig{
//	    ScanIntervalMs: 60000,
//	})
//	worker.Start()
//	defer worker.Stop()
//
// Deletion failures are isolated per file: one failure neither stops the
// scan nor corrupts policy state, and the failed file is simply
// reclassified as deletable on the next scan.
package gc
