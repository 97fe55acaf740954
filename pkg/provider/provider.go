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

// Package provider routes extracted entries to cloud secret and config
// stores and performs idempotent writes.
package provider

import (
	"context"
)

// Kind of destination store.
type Kind string

const (
	KindSecret Kind = "secret"
	KindConfig Kind = "config"
)

// Store is one cloud key/value store. Implementations map not-found to
// found=false rather than an error.
type Store interface {
	// Name identifies the store in metrics and logs, e.g. SecretsManager.
	Name() string
	Get(ctx context.Context, name string) (value string, found bool, err error)
	// Put creates the entry when exists is false, otherwise adds a version
	// or overwrites it.
	Put(ctx context.Context, name, value string, exists bool, labels map[string]string) error
}

// SecretStore receives secret entries and the properties blob.
type SecretStore interface {
	Store
}

// ConfigStore receives one entry per property when config routing is on.
type ConfigStore interface {
	Store
}

// Target is the destination of one resource.
type Target struct {
	Provider string
	Secrets  SecretStore
	// Configs is nil when properties are written as a blob.
	Configs ConfigStore
}

func (t *Target) store(k Kind) Store {
	if k == KindConfig && t.Configs != nil {
		return t.Configs
	}
	return t.Secrets
}

// Write is a planned write of one value.
type Write struct {
	// Key is the source key, or the blob name for the properties blob.
	Key    string
	Name   string
	Value  string
	Kind   Kind
	Labels map[string]string

	// Properties marks writes carrying application.properties values.
	Properties bool

	// Entries is the number of source entries carried, more than one for
	// the properties blob.
	Entries int
}

// Outcome is the result of one Write.
type Outcome struct {
	Key   string
	Name  string
	Kind  Kind
	Store string

	Properties bool
	Entries    int

	// Existed reports whether the entry was present before the write.
	Existed bool

	// Drifted is set when the stored value differs from the desired value.
	Drifted bool
	Written bool
	Err     error
}
