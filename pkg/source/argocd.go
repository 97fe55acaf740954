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
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

var ApplicationGVK = schema.GroupVersionKind{Group: "argoproj.io", Version: "v1alpha1", Kind: "Application"}

var commitRegexp = regexp.MustCompile(`^[0-9a-f]{40}$`)

// fetchedMarker records when a checkout was last refreshed. The directory
// mtime cannot be used since Touch bumps it on every cache hit.
const fetchedMarker = "gitops-secret-syncer-fetched"

type CloneFunc func(ctx context.Context, dir string, opts *git.CloneOptions) (*git.Repository, error)

func plainClone(ctx context.Context, dir string, opts *git.CloneOptions) (*git.Repository, error) {
	return git.PlainCloneContext(ctx, dir, false, opts)
}

// ApplicationResolver clones the git source declared by an ArgoCD
// Application. Commit revisions are immutable and always served from the
// cache; branches and tags are re-cloned once older than the pull interval.
type ApplicationResolver struct {
	Client client.Reader
	// Secrets reads git credentials. It should be an uncached reader so
	// resolving does not start a cluster wide Secret informer. Defaults to
	// Client.
	Secrets client.Reader
	Cache   Cache
	Timeout time.Duration
	Clone   CloneFunc

	now func() time.Time
}

type gitSource struct {
	RepoURL        string
	TargetRevision string
	Path           string
}

func (r *ApplicationResolver) Resolve(ctx context.Context, req Request) (*Artifact, error) {
	logger := log.FromContext(ctx).WithValues("application", req.Namespace+"/"+req.Name)

	app := &unstructured.Unstructured{}
	app.SetGroupVersionKind(ApplicationGVK)
	if err := r.Client.Get(ctx, types.NamespacedName{Namespace: req.Namespace, Name: req.Name}, app); err != nil {
		return nil, lookupError(err, "Application", req)
	}
	src, err := applicationSource(app)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.Source, err, "Application %s/%s", req.Namespace, req.Name)
	}

	dir := r.Cache.ArgoPath(req.Namespace, req.Name, src.TargetRevision)
	if r.fresh(dir, src.TargetRevision, req.PullInterval) {
		logger.V(1).Info("repository cache hit", "revision", src.TargetRevision)
	} else {
		cloneCtx := ctx
		if r.Timeout > 0 {
			var cancel context.CancelFunc
			cloneCtx, cancel = context.WithTimeout(ctx, r.Timeout)
			defer cancel()
		}
		logger.Info("cloning repository", "url", src.RepoURL, "revision", src.TargetRevision)
		if err := r.fetch(cloneCtx, req, src, dir); err != nil {
			return nil, err
		}
	}
	Touch(dir)

	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.Source, err, "opening cached repository %s", dir)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, syncerr.Wrap(syncerr.Source, err, "reading HEAD of %s", dir)
	}
	hash := head.Hash().String()

	root, err := safeJoin(dir, src.Path)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.Validation, err, "Application %s/%s path", req.Namespace, req.Name)
	}
	if _, err := os.Stat(root); err != nil {
		return nil, syncerr.Wrap(syncerr.Source, err, "path %q not found in %s", src.Path, src.RepoURL)
	}

	return &Artifact{
		Kind:        req.Kind,
		Root:        root,
		Revision:    fmt.Sprintf("%s@sha1:%s", src.TargetRevision, hash),
		Fingerprint: hash[:7],
	}, nil
}

func (r *ApplicationResolver) fresh(dir, revision string, pullInterval time.Duration) bool {
	if !Hit(dir) {
		return false
	}
	if commitRegexp.MatchString(revision) {
		return true
	}
	fi, err := os.Stat(filepath.Join(dir, git.GitDirName, fetchedMarker))
	if err != nil {
		return false
	}
	return r.clock().Sub(fi.ModTime()) < pullInterval
}

func (r *ApplicationResolver) secrets() client.Reader {
	if r.Secrets != nil {
		return r.Secrets
	}
	return r.Client
}

func (r *ApplicationResolver) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *ApplicationResolver) clone(ctx context.Context, dir string, opts *git.CloneOptions) (*git.Repository, error) {
	if r.Clone != nil {
		return r.Clone(ctx, dir, opts)
	}
	return plainClone(ctx, dir, opts)
}

// fetch clones into a staging directory and swaps it in.
func (r *ApplicationResolver) fetch(ctx context.Context, req Request, src gitSource, dir string) error {
	scratch := filepath.Join(r.Cache.Dir, "ssh", uuid.NewString())
	defer os.RemoveAll(scratch)
	auth, err := LoadGitAuth(ctx, r.secrets(), req.Credentials, scratch)
	if err != nil {
		return err
	}

	tmp, err := stagingDir(dir)
	if err != nil {
		return syncerr.Wrap(syncerr.Source, err, "preparing cache")
	}
	defer os.RemoveAll(tmp)

	if err := r.checkout(ctx, tmp, src, auth); err != nil {
		return syncerr.Wrap(syncerr.Source, err, "cloning %s at %s", src.RepoURL, src.TargetRevision)
	}
	marker := filepath.Join(tmp, git.GitDirName, fetchedMarker)
	if err := os.WriteFile(marker, []byte(r.clock().UTC().Format(time.RFC3339)), 0o600); err != nil {
		return syncerr.Wrap(syncerr.Source, err, "marking checkout")
	}
	now := r.clock()
	_ = os.Chtimes(marker, now, now)

	if err := promote(tmp, dir); err != nil {
		return syncerr.Wrap(syncerr.Source, err, "caching repository")
	}
	return nil
}

// checkout tries a shallow branch clone, then a shallow tag clone, then a
// full clone resolving the revision locally.
func (r *ApplicationResolver) checkout(ctx context.Context, dir string, src gitSource, auth transport.AuthMethod) error {
	rev := src.TargetRevision
	var attempts []*git.CloneOptions
	switch {
	case rev == "HEAD":
		attempts = append(attempts, &git.CloneOptions{URL: src.RepoURL, Auth: auth, Depth: 1})
	case commitRegexp.MatchString(rev):
		attempts = append(attempts, &git.CloneOptions{URL: src.RepoURL, Auth: auth, NoCheckout: true})
	default:
		attempts = append(attempts,
			&git.CloneOptions{URL: src.RepoURL, Auth: auth, ReferenceName: plumbing.NewBranchReferenceName(rev), SingleBranch: true, Depth: 1},
			&git.CloneOptions{URL: src.RepoURL, Auth: auth, ReferenceName: plumbing.NewTagReferenceName(rev), SingleBranch: true, Depth: 1},
			&git.CloneOptions{URL: src.RepoURL, Auth: auth, NoCheckout: true},
		)
	}

	var firstErr error
	for _, opts := range attempts {
		if err := resetDir(dir); err != nil {
			return err
		}
		repo, err := r.clone(ctx, dir, opts)
		if err == nil && opts.NoCheckout {
			err = checkoutRevision(repo, rev)
		}
		if err == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
		if fatalGitError(err) || ctx.Err() != nil {
			break
		}
	}
	return firstErr
}

func checkoutRevision(repo *git.Repository, rev string) error {
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		hash, err = repo.ResolveRevision(plumbing.Revision(git.DefaultRemoteName + "/" + rev))
	}
	if err != nil {
		return errors.Wrapf(err, "resolving revision %s", rev)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.Wrapf(wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}), "checking out %s", hash)
}

func fatalGitError(err error) bool {
	return stderrors.Is(err, transport.ErrAuthenticationRequired) ||
		stderrors.Is(err, transport.ErrAuthorizationFailed) ||
		stderrors.Is(err, transport.ErrRepositoryNotFound)
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.MkdirAll(dir, 0o755))
}

func applicationSource(app *unstructured.Unstructured) (gitSource, error) {
	src, found, err := unstructured.NestedMap(app.Object, "spec", "source")
	if err != nil {
		return gitSource{}, errors.Wrap(err, "reading spec.source")
	}
	if !found {
		sources, _, err := unstructured.NestedSlice(app.Object, "spec", "sources")
		if err != nil {
			return gitSource{}, errors.Wrap(err, "reading spec.sources")
		}
		for _, s := range sources {
			if m, ok := s.(map[string]interface{}); ok {
				if url, _, _ := unstructured.NestedString(m, "repoURL"); url != "" {
					src = m
					break
				}
			}
		}
	}

	var out gitSource
	out.RepoURL, _, _ = unstructured.NestedString(src, "repoURL")
	out.TargetRevision, _, _ = unstructured.NestedString(src, "targetRevision")
	out.Path, _, _ = unstructured.NestedString(src, "path")
	if out.RepoURL == "" {
		return gitSource{}, errors.New("no git repoURL in spec.source or spec.sources")
	}
	if out.TargetRevision == "" {
		out.TargetRevision = "HEAD"
	}
	return out, nil
}
