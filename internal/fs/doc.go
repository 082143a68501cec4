// Package fs holds the small file system seam used for crash-safe writes.
//
// [WriteFileAtomic] goes through a temp file, fsync and rename, so a crash
// leaves either the old or the new content on disk. [FaultyFS] injects
// write, sync, close and rename errors in tests.
package fs
