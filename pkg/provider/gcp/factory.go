/*

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package gcp

import (
	"context"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"

	v1 "github.com/contentful-labs/gitops-secret-syncer/api/v1"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/provider"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

const (
	clientCacheSize = 64
	cloudPlatform   = "https://www.googleapis.com/auth/cloud-platform"
)

// ClientFunc opens a Secret Manager client, impersonating serviceAccount
// when it is set.
type ClientFunc func(ctx context.Context, serviceAccount string) (SecretManagerAPI, error)

// NewClient uses workload identity, or impersonates serviceAccount through it.
func NewClient(ctx context.Context, serviceAccount string) (SecretManagerAPI, error) {
	var opts []option.ClientOption
	if serviceAccount != "" {
		ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
			TargetPrincipal: serviceAccount,
			Scopes:          []string{cloudPlatform},
		})
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to impersonate %s", serviceAccount)
		}
		opts = append(opts, option.WithTokenSource(ts))
	}
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create Secret Manager client")
	}
	return client, nil
}

// Factory caches one client per service account. Clients refresh tokens
// with ctx, so it must outlive any single reconcile.
type Factory struct {
	ctx       context.Context
	newClient ClientFunc

	mu      sync.Mutex
	clients *lru.TwoQueueCache
}

func NewFactory(ctx context.Context, newClient ClientFunc) (*Factory, error) {
	if newClient == nil {
		newClient = NewClient
	}
	clients, err := lru.New2Q(clientCacheSize)
	if err != nil {
		return nil, err
	}
	return &Factory{ctx: ctx, newClient: newClient, clients: clients}, nil
}

func (f *Factory) Target(_ context.Context, spec v1.SecretManagerConfigSpec) (*provider.Target, error) {
	gcp := spec.Provider.GCP
	if gcp == nil || gcp.ProjectID == "" {
		return nil, syncerr.New(syncerr.Validation, "provider.gcp.projectId is required")
	}
	if spec.ConfigsEnabled() && spec.Configs.Store == v1.ConfigStoreParameterManager {
		return nil, syncerr.New(syncerr.Validation, "configs.store %s is not supported yet, use %s", v1.ConfigStoreParameterManager, v1.ConfigStoreSecretManager)
	}

	sa := ""
	if gcp.Auth != nil {
		sa = gcp.Auth.ServiceAccountEmail
	}
	client, err := f.client(sa)
	if err != nil {
		return nil, err
	}

	store := &SecretManager{API: client, Project: gcp.ProjectID}
	target := &provider.Target{Secrets: store}
	if spec.ConfigsEnabled() {
		target.Configs = store
	}
	return target, nil
}

func (f *Factory) client(serviceAccount string) (SecretManagerAPI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cached, ok := f.clients.Get(serviceAccount); ok {
		return cached.(SecretManagerAPI), nil
	}
	client, err := f.newClient(f.ctx, serviceAccount)
	if err != nil {
		return nil, err
	}
	f.clients.Add(serviceAccount, client)
	return client, nil
}

// Close releases every cached client.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var first error
	for _, k := range f.clients.Keys() {
		if c, ok := f.clients.Peek(k); ok {
			if err := c.(SecretManagerAPI).Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	f.clients.Purge()
	return first
}
