package utils

import "sync"

// MutexMap provides a mutex per key. Entries are reference counted and
// removed once no goroutine holds or waits on the key, so the map does not
// grow with the number of users seen over the process lifetime.
type MutexMap struct {
	edit    sync.Mutex
	waiters map[string]int
	mutexes map[string]*sync.Mutex
}

func NewMutexMap() *MutexMap {
	return &MutexMap{
		waiters: make(map[string]int),
		mutexes: make(map[string]*sync.Mutex),
	}
}

func (m *MutexMap) Lock(key string) {
	m.edit.Lock()
	mu := m.mutexes[key]
	if mu == nil {
		mu = &sync.Mutex{}
		m.mutexes[key] = mu
	}
	m.waiters[key]++
	m.edit.Unlock()

	mu.Lock()
}

func (m *MutexMap) Unlock(key string) {
	m.edit.Lock()
	defer m.edit.Unlock()

	mu := m.mutexes[key]
	if mu == nil {
		panic("utils: unlock of unknown key " + key)
	}

	mu.Unlock()
	m.waiters[key]--
	if m.waiters[key] == 0 {
		delete(m.mutexes, key)
		delete(m.waiters, key)
	}
}
