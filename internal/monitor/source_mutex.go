package monitor

import "sync"

// sourceMutexManager hands out one lock per source id so at most one polling
// cycle runs per source. TryLock never blocks: an overlapping trigger for a
// source already mid-cycle is skipped, not queued.
type sourceMutexManager struct {
	mapLock sync.Mutex
	busy    map[string]struct{}
}

func newSourceMutexManager() *sourceMutexManager {
	return &sourceMutexManager{busy: make(map[string]struct{})}
}

// TryLock claims the source for one cycle. Returns false if a cycle is
// already running.
func (m *sourceMutexManager) TryLock(sourceID string) bool {
	m.mapLock.Lock()
	defer m.mapLock.Unlock()
	if _, running := m.busy[sourceID]; running {
		return false
	}
	m.busy[sourceID] = struct{}{}
	return true
}

// Unlock releases the source.
func (m *sourceMutexManager) Unlock(sourceID string) {
	m.mapLock.Lock()
	defer m.mapLock.Unlock()
	delete(m.busy, sourceID)
}
