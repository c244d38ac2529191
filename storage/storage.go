// Package storage has Caches for rule-set documents.
//
// See core.Cache.  The bolt subpackage persists documents on disk.
// Mem just keeps them in memory.
package storage

import (
	"context"
	"sync"
)

// Mem is an in-memory core.Cache.
type Mem struct {
	sync.RWMutex
	docs map[string][]byte
}

func NewMem() *Mem {
	return &Mem{
		docs: make(map[string][]byte),
	}
}

func (m *Mem) Get(ctx context.Context, name string) ([]byte, error) {
	m.RLock()
	defer m.RUnlock()
	return m.docs[name], nil
}

func (m *Mem) Put(ctx context.Context, name string, bs []byte) error {
	m.Lock()
	defer m.Unlock()
	m.docs[name] = append([]byte(nil), bs...)
	return nil
}

// Names lists what's cached.
func (m *Mem) Names(ctx context.Context) ([]string, error) {
	m.RLock()
	defer m.RUnlock()
	acc := make([]string, 0, len(m.docs))
	for name := range m.docs {
		acc = append(acc, name)
	}
	return acc, nil
}
