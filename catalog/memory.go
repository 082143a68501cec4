package catalog

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/hupe1980/vecsearch/model"
)

// Memory is a process-local catalog.
type Memory struct {
	mu    sync.RWMutex
	infos map[string]model.CollectionInfo
}

// NewMemory creates an empty catalog.
func NewMemory() *Memory {
	return &Memory{infos: make(map[string]model.CollectionInfo)}
}

func (m *Memory) Create(_ context.Context, info model.CollectionInfo) (model.CollectionInfo, bool, error) {
	if err := validate(info); err != nil {
		return model.CollectionInfo{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.infos[info.Name]; ok {
		return resolve(existing, info)
	}
	m.infos[info.Name] = info
	return info, true, nil
}

func (m *Memory) Get(_ context.Context, name string) (model.CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.infos[name]
	if !ok {
		return model.CollectionInfo{}, ErrNotFound
	}
	return info, nil
}

func (m *Memory) List(_ context.Context) ([]model.CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := slices.Collect(maps.Values(m.infos))
	sortByName(out)
	return out, nil
}

func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.infos[name]; !ok {
		return ErrNotFound
	}
	delete(m.infos, name)
	return nil
}
