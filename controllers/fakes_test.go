package controllers

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	v1 "github.com/contentful-labs/gitops-secret-syncer/api/v1"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/extract"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/notify"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/provider"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/sops"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/source"
)

type fakeResolver struct {
	mu       sync.Mutex
	artifact *source.Artifact
	err      error
	requests []source.Request
}

func (f *fakeResolver) Resolve(_ context.Context, req source.Request) (*source.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.artifact, nil
}

type fakeExtractor struct {
	result *extract.Result
	err    error
	panic  bool
	last   extract.Request
}

func (f *fakeExtractor) Extract(_ context.Context, req extract.Request) (*extract.Result, error) {
	if f.panic {
		panic("extractor exploded")
	}
	f.last = req
	return f.result, f.err
}

type fakeKeys struct {
	key *sops.Key
	err error
}

func (f *fakeKeys) Lookup(string, string) (*sops.Key, error) {
	return f.key, f.err
}

type memStore struct {
	name string

	mu     sync.Mutex
	values map[string]string
	puts   int
	fail   error
}

func newMemStore(name string) *memStore {
	return &memStore{name: name, values: map[string]string{}}
}

func (m *memStore) Name() string { return m.name }

func (m *memStore) Get(_ context.Context, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", false, m.fail
	}
	v, ok := m.values[name]
	return v, ok, nil
}

func (m *memStore) Put(_ context.Context, name, value string, _ bool, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
	m.puts++
	return nil
}

type fakeTargets struct {
	secrets *memStore
	configs *memStore
	err     error
}

func (f *fakeTargets) Target(_ context.Context, spec v1.SecretManagerConfigSpec) (*provider.Target, error) {
	if f.err != nil {
		return nil, f.err
	}
	t := &provider.Target{Provider: spec.Provider.Type, Secrets: f.secrets}
	if spec.ConfigsEnabled() {
		t.Configs = f.configs
	}
	return t, nil
}

type fakeRoleValidator struct {
	allowed bool
}

func (f fakeRoleValidator) IsWhitelisted(context.Context, v1.Provider, string) (bool, error) {
	return f.allowed, nil
}

type fakeNotifier struct {
	ensured []string
	drifts  []notify.Drift
	err     error
}

func (f *fakeNotifier) Ensure(_ context.Context, smc *v1.SecretManagerConfig) error {
	f.ensured = append(f.ensured, smc.Name)
	return f.err
}

func (f *fakeNotifier) Drift(_ context.Context, _ *v1.SecretManagerConfig, d notify.Drift) error {
	f.drifts = append(f.drifts, d)
	return f.err
}

var errBoom = errors.New("boom")
