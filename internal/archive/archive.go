// Package archive stores raw provider payloads for audit. Implements
// monitor.Archive on Google Cloud Storage or in process memory.
package archive

import (
	"context"
	"fmt"
	"sync"
)

// Memory keeps payloads in a map. Suitable for development and tests;
// contents do not survive a restart.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemory creates a Memory archive.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Put stores data under path and returns a mem:// reference.
func (m *Memory) Put(_ context.Context, path string, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[path] = buf
	return fmt.Sprintf("mem://%s", path), nil
}

// Get reads a stored payload. Test helper.
func (m *Memory) Get(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[path]
	return data, ok
}
