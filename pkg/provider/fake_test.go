package provider

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

type memStore struct {
	name string

	mu     sync.Mutex
	values map[string]string
	labels map[string]map[string]string
	puts   int
	fail   map[string]error
}

func newMemStore(name string) *memStore {
	return &memStore{
		name:   name,
		values: map[string]string{},
		labels: map[string]map[string]string{},
		fail:   map[string]error{},
	}
}

func (m *memStore) Name() string { return m.name }

func (m *memStore) Get(_ context.Context, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[name]; err != nil {
		return "", false, err
	}
	v, ok := m.values[name]
	return v, ok, nil
}

func (m *memStore) Put(_ context.Context, name, value string, exists bool, labels map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[name]; ok != exists {
		return errors.Errorf("%s: exists=%t does not match store", name, exists)
	}
	m.values[name] = value
	m.labels[name] = labels
	m.puts++
	return nil
}

type panicStore struct{}

func (panicStore) Name() string { return "panic" }

func (panicStore) Get(context.Context, string) (string, bool, error) {
	panic("boom")
}

func (panicStore) Put(context.Context, string, string, bool, map[string]string) error {
	return nil
}
