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

package provider

import (
	"context"

	v1 "github.com/contentful-labs/gitops-secret-syncer/api/v1"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

// ManagedByTag marks entries created by the controller.
const (
	ManagedByTag   = "managed-by"
	ManagedByValue = "gitops-secret-syncer"
)

// TargetFactory builds the stores for one resource. Implementations cache
// clients per credential so repeated reconciles reuse them.
type TargetFactory interface {
	Target(ctx context.Context, spec v1.SecretManagerConfigSpec) (*Target, error)
}

// Targets dispatches on spec.provider.type.
type Targets map[string]TargetFactory

func (t Targets) Target(ctx context.Context, spec v1.SecretManagerConfigSpec) (*Target, error) {
	f, ok := t[spec.Provider.Type]
	if !ok {
		return nil, syncerr.New(syncerr.Validation, "unsupported provider type %q", spec.Provider.Type)
	}
	target, err := f.Target(ctx, spec)
	if err != nil {
		if syncerr.KindOf(err) == syncerr.Unexpected {
			return nil, syncerr.Wrap(syncerr.Provider, err, "creating %s clients", spec.Provider.Type)
		}
		return nil, err
	}
	target.Provider = spec.Provider.Type
	return target, nil
}

// Tags merges the managed-by tag into labels.
func Tags(labels map[string]string) map[string]string {
	tags := map[string]string{ManagedByTag: ManagedByValue}
	for k, v := range labels {
		tags[k] = v
	}
	return tags
}
