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

// Package extract turns a materialized source into key/value entries, either
// from the canonical environment files or from a kustomize build.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/contentful-labs/gitops-secret-syncer/pkg/sops"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

// Entry is one decoded value. Value is plaintext and must not be logged.
type Entry struct {
	Key     string
	Value   string
	Source  string
	Service string
	Secret  bool
}

// String omits the value.
func (e Entry) String() string {
	return fmt.Sprintf("%s (%s)", e.Key, e.Source)
}

// FileResult records what happened to one discovered file.
type FileResult struct {
	Path      string
	Encrypted bool
	Err       error
}

type Result struct {
	Entries  []Entry
	Files    []FileResult
	Services []string
}

// EncryptedFiles counts files that carried sops metadata.
func (r *Result) EncryptedFiles() int {
	n := 0
	for _, f := range r.Files {
		if f.Encrypted {
			n++
		}
	}
	return n
}

// DecryptFailures returns the encrypted files that could not be read.
func (r *Result) DecryptFailures() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Encrypted && f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

type Decrypter interface {
	Decrypt(ctx context.Context, key *sops.Key, content []byte, format string) ([]byte, error)
}

type Request struct {
	Root          string
	BasePath      string
	KustomizePath string
	Environment   string
	// Prefix names the service of single service layouts.
	Prefix string
	// Key decrypts sops files, nil when none is available.
	Key *sops.Key
}

type Extractor struct {
	Decrypter        Decrypter
	Builder          Builder
	KustomizeTimeout time.Duration
}

// Extract discovers and parses entries. Individual file failures are
// recorded in Result.Files; an error is returned only when every file
// failed or the kustomize build did.
func (x *Extractor) Extract(ctx context.Context, req Request) (*Result, error) {
	if req.KustomizePath != "" {
		return x.kustomize(ctx, req)
	}
	return x.files(ctx, req)
}

func (x *Extractor) files(ctx context.Context, req Request) (*Result, error) {
	logger := log.FromContext(ctx)

	searchRoot, err := SearchRoot(req.Root, req.BasePath)
	if err != nil {
		return nil, err
	}
	fallback := req.Prefix
	if fallback == "" && searchRoot != filepath.Clean(req.Root) {
		fallback = filepath.Base(searchRoot)
	}
	sets, err := Discover(searchRoot, req.Environment, fallback)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if len(sets) == 0 {
		logger.Info("no configuration files found", "basePath", req.BasePath, "environment", req.Environment)
		return result, nil
	}

	services := map[string]bool{}
	failures := 0
	var lastErr error
	for _, set := range sets {
		services[set.Service] = true
		for _, path := range set.Paths() {
			kvs, encrypted, err := x.readFile(ctx, req.Key, path)
			result.Files = append(result.Files, FileResult{Path: path, Encrypted: encrypted, Err: err})
			if err != nil {
				failures++
				lastErr = err
				logger.Info("skipping file", "file", relPath(req.Root, path), "error", err.Error())
				continue
			}
			secret := filepath.Base(path) != PropertiesFile
			for _, kv := range kvs {
				result.Entries = append(result.Entries, Entry{
					Key:     kv.Key,
					Value:   kv.Value,
					Source:  relPath(req.Root, path),
					Service: set.Service,
					Secret:  secret,
				})
			}
		}
	}
	for s := range services {
		result.Services = append(result.Services, s)
	}
	sort.Strings(result.Services)

	if failures == len(result.Files) {
		return result, errors.WithMessagef(lastErr, "all %d discovered files failed", failures)
	}
	return result, nil
}

// readFile loads, decrypts when needed and parses one canonical file.
func (x *Extractor) readFile(ctx context.Context, key *sops.Key, path string) ([]KV, bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, false, syncerr.Wrap(syncerr.Extract, err, "reading %s", filepath.Base(path))
	}

	format := sops.FormatOf(path)
	encrypted := sops.IsEncrypted(content, format)
	if encrypted {
		plain, err := x.Decrypter.Decrypt(ctx, key, content, format)
		if err != nil {
			return nil, true, syncerr.Wrap(syncerr.Decrypt, err, "decrypting %s", filepath.Base(path))
		}
		content = plain
	}

	var kvs []KV
	switch filepath.Base(path) {
	case SecretsYAMLFile:
		kvs, err = ParseYAML(content)
	case PropertiesFile:
		kvs, err = ParseProperties(content)
	default:
		kvs, err = ParseEnv(content)
	}
	if err != nil {
		return nil, encrypted, syncerr.Wrap(syncerr.Extract, err, "%s", filepath.Base(path))
	}
	return kvs, encrypted, nil
}

func (x *Extractor) kustomize(ctx context.Context, req Request) (*Result, error) {
	dir, err := SearchRoot(req.Root, req.KustomizePath)
	if err != nil {
		return nil, err
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return nil, syncerr.New(syncerr.Extract, "kustomizePath %q not found in source", req.KustomizePath)
	}

	buildCtx := ctx
	if x.KustomizeTimeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, x.KustomizeTimeout)
		defer cancel()
	}
	stream, err := x.Builder.Build(buildCtx, dir)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.Extract, err, "kustomizePath %s", req.KustomizePath)
	}
	kvs, err := SecretKVs(stream)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.Extract, err, "kustomizePath %s", req.KustomizePath)
	}

	service := req.Prefix
	if service == "" {
		service = filepath.Base(dir)
	}
	source := relPath(req.Root, dir)
	result := &Result{Services: []string{service}}
	for _, kv := range kvs {
		if bytes.Contains([]byte(kv.Value), []byte("ENC[AES256_GCM,")) {
			return nil, syncerr.New(syncerr.Extract, "kustomize output for %s still contains sops ciphertext in key %s", req.KustomizePath, kv.Key)
		}
		result.Entries = append(result.Entries, Entry{Key: kv.Key, Value: kv.Value, Source: source, Service: service, Secret: true})
	}
	if len(result.Entries) == 0 {
		log.FromContext(ctx).Info("kustomize build produced no secrets", "kustomizePath", req.KustomizePath)
	}
	return result, nil
}

func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}
