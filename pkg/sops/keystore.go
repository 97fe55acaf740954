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

package sops

import (
	"bytes"
	"sync"

	"filippo.io/age"
	"github.com/awnumar/memguard"
	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
)

// KeySecretNames are the secret names searched for a private key, in order.
var KeySecretNames = []string{"sops-private-key", "sops-gpg-key", "gpg-key"}

// KeyDataKeys are the data keys holding the key material, in order.
var KeyDataKeys = []string{"private-key", "key", "gpg-key"}

type KeyKind string

const (
	KeyAge KeyKind = "age"
	KeyGPG KeyKind = "gpg"
)

var ErrKeysNotSynced = errors.New("SOPS key store has not synced yet")

// Key is private key material sealed in a memguard enclave.
type Key struct {
	Kind      KeyKind
	Name      string
	Namespace string

	enclave *memguard.Enclave
}

// Open returns the plaintext key. Callers must Destroy the buffer.
func (k *Key) Open() (*memguard.LockedBuffer, error) {
	buf, err := k.enclave.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "opening key %s/%s", k.Namespace, k.Name)
	}
	return buf, nil
}

// KeyFromSecret extracts a key from secret. ok is false when the secret
// holds nothing usable.
func KeyFromSecret(secret *corev1.Secret) (key *Key, ok bool) {
	for _, dataKey := range KeyDataKeys {
		material := secret.Data[dataKey]
		if len(material) == 0 {
			continue
		}
		kind, ok := keyKind(material)
		if !ok {
			continue
		}
		// NewEnclave wipes its argument, never hand it the cached object.
		sealed := make([]byte, len(material))
		copy(sealed, material)
		return &Key{
			Kind:      kind,
			Name:      secret.Name,
			Namespace: secret.Namespace,
			enclave:   memguard.NewEnclave(sealed),
		}, true
	}
	return nil, false
}

func keyKind(material []byte) (KeyKind, bool) {
	switch {
	case bytes.Contains(material, []byte("AGE-SECRET-KEY-")):
		if _, err := age.ParseIdentities(bytes.NewReader(material)); err != nil {
			return "", false
		}
		return KeyAge, true
	case bytes.Contains(material, []byte("BEGIN PGP PRIVATE KEY BLOCK")):
		return KeyGPG, true
	}
	return "", false
}

// KeyStore holds the keys found by the watcher.
type KeyStore struct {
	mu     sync.RWMutex
	keys   map[types.NamespacedName]*Key
	synced bool
}

func NewKeyStore() *KeyStore {
	return &KeyStore{keys: map[types.NamespacedName]*Key{}}
}

// Set stores the key from secret, or forgets the secret if it holds none.
func (s *KeyStore) Set(secret *corev1.Secret) {
	name := types.NamespacedName{Namespace: secret.Namespace, Name: secret.Name}
	key, ok := KeyFromSecret(secret)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok {
		delete(s.keys, name)
		return
	}
	s.keys[name] = key
}

func (s *KeyStore) Delete(namespace, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, types.NamespacedName{Namespace: namespace, Name: name})
}

// MarkSynced is called once the initial listing has been processed.
func (s *KeyStore) MarkSynced() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced = true
}

// Lookup searches namespace first, then fallback. A nil key with a nil
// error means no key exists.
func (s *KeyStore) Lookup(namespace, fallback string) (*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.synced {
		return nil, ErrKeysNotSynced
	}
	for _, ns := range []string{namespace, fallback} {
		if ns == "" {
			continue
		}
		for _, name := range KeySecretNames {
			if key, ok := s.keys[types.NamespacedName{Namespace: ns, Name: name}]; ok {
				return key, nil
			}
		}
	}
	return nil, nil
}
