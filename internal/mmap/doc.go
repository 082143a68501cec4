// Package mmap maps snapshot files read-only into memory.
//
// On unix platforms the mapping is backed by mmap(2) with an access hint;
// elsewhere the file is read into a heap buffer so callers can use the same
// API everywhere.
package mmap
