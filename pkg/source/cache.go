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

package source

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/contentful-labs/gitops-secret-syncer/pkg/naming"
)

const (
	fluxCacheRoot = "flux-artifact"
	argoCacheRoot = "argocd-repo"
)

var hexRegexp = regexp.MustCompile(`^[0-9a-fA-F]{7,}$`)

// Cache lays out revision directories under Dir as
// {sourceKind}/{namespace}/{name}/{revisionFingerprint}.
type Cache struct {
	Dir string
}

// ParseRevision splits a source-controller revision such as
// "main@sha1:0123abc..." into its branch and hash parts. Bare hashes and
// "sha1:..." forms have no branch.
func ParseRevision(revision string) (branch, hash string, err error) {
	rest := revision
	if i := strings.LastIndex(revision, "@"); i >= 0 {
		branch = revision[:i]
		rest = revision[i+1:]
	}
	if i := strings.Index(rest, ":"); i >= 0 {
		rest = rest[i+1:]
	}
	// pre-v1 source-controller used branch/hash
	if branch == "" && strings.Contains(rest, "/") {
		i := strings.LastIndex(rest, "/")
		branch, rest = rest[:i], rest[i+1:]
	}
	if !hexRegexp.MatchString(rest) {
		return "", "", errors.Errorf("revision %q does not contain a commit hash", revision)
	}
	return branch, strings.ToLower(rest), nil
}

// FluxPath returns the cache directory for a GitRepository revision.
func (c Cache) FluxPath(namespace, name, revision string) (string, error) {
	branch, hash, err := ParseRevision(revision)
	if err != nil {
		return "", err
	}
	if branch == "" {
		branch = "detached"
	}
	dir := naming.SanitizePathComponent(branch) + "-sha-" + hash[:7]
	return filepath.Join(c.Dir, fluxCacheRoot, naming.SanitizePathComponent(namespace), naming.SanitizePathComponent(name), dir), nil
}

// ArgoPath returns the cache directory for an Application revision. The
// revision is hashed since it may be long or contain unsafe characters.
func (c Cache) ArgoPath(namespace, name, revision string) string {
	sum := sha256.Sum256([]byte(namespace + "/" + name + "/" + revision))
	return filepath.Join(c.Dir, argoCacheRoot, naming.SanitizePathComponent(namespace), naming.SanitizePathComponent(name), hex.EncodeToString(sum[:])[:16])
}

// Hit reports whether dir holds a completed extraction or checkout.
func Hit(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

// Touch marks dir as in use so the janitor leaves it alone.
func Touch(dir string) {
	now := time.Now()
	_ = os.Chtimes(dir, now, now)
}

// stagingDir returns a unique sibling of dir to populate before it is
// renamed into place.
func stagingDir(dir string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", errors.Wrapf(err, "creating cache directory for %s", dir)
	}
	tmp := dir + ".tmp-" + uuid.NewString()
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating staging directory %s", tmp)
	}
	return tmp, nil
}

// promote replaces dir with the populated staging directory.
func promote(tmp, dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "removing stale %s", dir)
	}
	if err := os.Rename(tmp, dir); err != nil {
		return errors.Wrapf(err, "moving %s into place", dir)
	}
	return nil
}
