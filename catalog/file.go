package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/vecsearch/codec"
	"github.com/hupe1980/vecsearch/internal/fs"
	"github.com/hupe1980/vecsearch/model"
)

// FileName is the catalog file inside the database root.
const FileName = "catalog.json"

const fileFormatVersion = 1

type fileContents struct {
	Version     int                    `json:"version"`
	Collections []model.CollectionInfo `json:"collections"`
}

// File is a catalog persisted as JSON. Every mutation rewrites the file
// atomically.
type File struct {
	mu    sync.RWMutex
	path  string
	fs    fs.FileSystem
	codec codec.Codec
	mem   *Memory
}

// OpenFile loads the catalog at <root>/catalog.json, starting empty when the
// file does not exist yet.
func OpenFile(root string) (*File, error) {
	return OpenFileWithFS(root, fs.Default)
}

// OpenFileWithFS is OpenFile with an explicit file system.
func OpenFileWithFS(root string, fsys fs.FileSystem) (*File, error) {
	f := &File{
		path:  filepath.Join(root, FileName),
		fs:    fsys,
		codec: codec.GoJSON{},
		mem:   NewMemory(),
	}

	data, err := fsys.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", f.path, err)
	}

	var contents fileContents
	if err := f.codec.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", f.path, err)
	}
	if contents.Version != fileFormatVersion {
		return nil, fmt.Errorf("catalog: %s has unsupported version %d", f.path, contents.Version)
	}
	for _, info := range contents.Collections {
		if err := validate(info); err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", f.path, err)
		}
		f.mem.infos[info.Name] = info
	}
	return f, nil
}

// Path returns the catalog file path.
func (f *File) Path() string { return f.path }

func (f *File) Create(ctx context.Context, info model.CollectionInfo) (model.CollectionInfo, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	got, created, err := f.mem.Create(ctx, info)
	if err != nil || !created {
		return got, created, err
	}
	if err := f.flushLocked(ctx); err != nil {
		_ = f.mem.Delete(ctx, info.Name)
		return model.CollectionInfo{}, false, err
	}
	return got, true, nil
}

func (f *File) Get(ctx context.Context, name string) (model.CollectionInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mem.Get(ctx, name)
}

func (f *File) List(ctx context.Context) ([]model.CollectionInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mem.List(ctx)
}

func (f *File) Delete(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := f.mem.Get(ctx, name)
	if err != nil {
		return err
	}
	_ = f.mem.Delete(ctx, name)
	if err := f.flushLocked(ctx); err != nil {
		f.mem.infos[name] = info
		return err
	}
	return nil
}

func (f *File) flushLocked(ctx context.Context) error {
	infos, _ := f.mem.List(ctx)
	data, err := f.codec.Marshal(fileContents{Version: fileFormatVersion, Collections: infos})
	if err != nil {
		return fmt.Errorf("catalog: encode: %w", err)
	}
	if err := fs.WriteFileAtomic(f.fs, f.path, data, 0o644); err != nil {
		return fmt.Errorf("catalog: write %s: %w", f.path, err)
	}
	return nil
}
