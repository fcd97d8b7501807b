package tokenstore

import (
	"sync"
	"time"
)

// Memory is a Store that keeps values in process memory. The zero value is ready to use.
type Memory struct {
	lock   sync.Mutex
	values map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	data, ok := m.values[key]
	if !ok {
		return "", false, nil
	}
	value, ok, err := open(data)
	if err == nil && !ok {
		delete(m.values, key)
	}
	return value, ok, err
}

func (m *Memory) Set(key, value string, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	data, err := seal(value, ttl)
	if err != nil {
		return err
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.values == nil {
		m.values = make(map[string][]byte)
	}
	m.values[key] = data
	return nil
}

func (m *Memory) Remove(key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.values, key)
	return nil
}

// Len returns the number of stored values, including expired values not yet read.
func (m *Memory) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.values)
}
