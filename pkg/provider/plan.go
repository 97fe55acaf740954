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
	"encoding/json"

	v1 "github.com/contentful-labs/gitops-secret-syncer/api/v1"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/extract"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/naming"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

// Labels put on GCP config entries until they move to Parameter Manager.
const (
	EntryTypeLabel   = "syncer-entry-type"
	TargetStoreLabel = "syncer-target-store"
)

// Options are the naming inputs of one resource.
type Options struct {
	Provider    string
	Prefix      string
	Suffix      string
	Environment string

	ConfigsEnabled bool
	// ParameterPath overrides /{prefix}/{environment} for AWS parameters and
	// may be a template.
	ParameterPath string
}

// Plan decides the destination and name of every entry. Later entries win
// when two of the same kind resolve to the same destination. On GCP secrets
// and configs share one store, so a secret and a config with the same name
// is a validation error.
func Plan(entries []extract.Entry, opts Options) ([]Write, error) {
	shared := sharedStore(opts)
	var writes []Write
	index := map[string]int{}
	add := func(w Write) error {
		id := string(w.Kind) + "/" + w.Name
		if shared {
			id = w.Name
		}
		if i, ok := index[id]; ok {
			if prev := writes[i]; prev.Kind != w.Kind {
				return syncerr.New(syncerr.Validation, "%s %q and %s %q both resolve to %q",
					prev.Kind, prev.Key, w.Kind, w.Key, w.Name)
			}
			writes[i] = w
			return nil
		}
		index[id] = len(writes)
		writes = append(writes, w)
		return nil
	}

	blobs := map[string]map[string]string{}
	var blobOrder []string

	for _, e := range entries {
		prefix := opts.Prefix
		if prefix == "" {
			prefix = e.Service
		}

		switch {
		case e.Secret:
			err := add(Write{
				Key:     e.Key,
				Name:    secretName(opts.Provider, naming.ConstructSecretName(prefix, e.Key, opts.Suffix)),
				Value:   e.Value,
				Kind:    KindSecret,
				Entries: 1,
			})
			if err != nil {
				return nil, err
			}
		case !opts.ConfigsEnabled:
			if _, ok := blobs[prefix]; !ok {
				blobs[prefix] = map[string]string{}
				blobOrder = append(blobOrder, prefix)
			}
			blobs[prefix][e.Key] = e.Value
		default:
			w, err := configWrite(e, prefix, opts)
			if err != nil {
				return nil, err
			}
			if err := add(w); err != nil {
				return nil, err
			}
		}
	}

	for _, prefix := range blobOrder {
		// map keys are marshalled in sorted order
		value, err := json.Marshal(blobs[prefix])
		if err != nil {
			return nil, syncerr.Wrap(syncerr.Extract, err, "encoding properties for %s", prefix)
		}
		name := secretName(opts.Provider, naming.PropertiesBlobName(prefix, opts.Suffix))
		err = add(Write{
			Key:        name,
			Name:       name,
			Value:      string(value),
			Kind:       KindSecret,
			Properties: true,
			Entries:    len(blobs[prefix]),
		})
		if err != nil {
			return nil, err
		}
	}
	return writes, nil
}

// sharedStore reports whether configs land in the secret store.
func sharedStore(opts Options) bool {
	return opts.Provider == v1.ProviderGCP && opts.ConfigsEnabled
}

func configWrite(e extract.Entry, prefix string, opts Options) (Write, error) {
	w := Write{Key: e.Key, Value: e.Value, Kind: KindConfig, Properties: true, Entries: 1}
	switch opts.Provider {
	case v1.ProviderAWS:
		path := naming.DefaultParameterPath(prefix, opts.Environment)
		if opts.ParameterPath != "" {
			rendered, err := naming.RenderPath(opts.ParameterPath, naming.PathParams{
				Prefix:      prefix,
				Environment: opts.Environment,
				Service:     e.Service,
			})
			if err != nil {
				return Write{}, syncerr.Wrap(syncerr.Validation, err, "configs.parameterPath")
			}
			path = rendered
		}
		if !naming.ValidParameterPath(path) {
			return Write{}, syncerr.New(syncerr.Validation, "configs.parameterPath %q is not a valid parameter path", path)
		}
		w.Name = naming.ParameterName(path, e.Key)
	case v1.ProviderGCP:
		w.Name = naming.ConstructSecretName(prefix, e.Key, opts.Suffix)
		w.Labels = map[string]string{
			EntryTypeLabel:   "config",
			TargetStoreLabel: "parameter-manager",
		}
	case v1.ProviderAzure:
		w.Name = naming.AppConfigKey(prefix, opts.Environment, e.Key)
	default:
		return Write{}, syncerr.New(syncerr.Validation, "unsupported provider %q", opts.Provider)
	}
	return w, nil
}

func secretName(provider, name string) string {
	if provider == v1.ProviderAzure {
		return naming.KeyVaultSecretName(name)
	}
	return name
}
