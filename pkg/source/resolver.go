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

// Package source materializes the GitOps source referenced by a
// SecretManagerConfig on local disk.
package source

import (
	"context"
	"time"

	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

// Request identifies the source object to resolve.
type Request struct {
	Kind      string
	Name      string
	Namespace string

	// Credentials for cloning an Application repository, nil for anonymous.
	Credentials *CredentialsRef

	// PullInterval bounds how stale a branch checkout may be.
	PullInterval time.Duration
}

// CredentialsRef is a fully qualified secret reference.
type CredentialsRef struct {
	Name      string
	Namespace string
}

// Artifact is a source materialized at one revision.
type Artifact struct {
	Kind string
	// Root is the directory to search for configuration files.
	Root string
	// Revision as reported by the source, e.g. main@sha1:0123abc...
	Revision string
	// Fingerprint is the short hash identifying the revision.
	Fingerprint string
}

type Resolver interface {
	Resolve(ctx context.Context, req Request) (*Artifact, error)
}

// Resolvers dispatches on the source kind.
type Resolvers map[string]Resolver

func (r Resolvers) Resolve(ctx context.Context, req Request) (*Artifact, error) {
	resolver, ok := r[req.Kind]
	if !ok {
		return nil, syncerr.New(syncerr.Validation, "unsupported sourceRef.kind %q", req.Kind)
	}
	return resolver.Resolve(ctx, req)
}
