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
	"time"

	fluxmeta "github.com/fluxcd/pkg/apis/meta"
	sourcev1 "github.com/fluxcd/source-controller/api/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	apimeta "k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

// GitRepositoryResolver serves FluxCD GitRepository artifacts from the cache,
// downloading them from source-controller on a miss.
type GitRepositoryResolver struct {
	Client     client.Reader
	Cache      Cache
	Downloader *Downloader
	Timeout    time.Duration
}

func (r *GitRepositoryResolver) Resolve(ctx context.Context, req Request) (*Artifact, error) {
	logger := log.FromContext(ctx).WithValues("gitrepository", req.Namespace+"/"+req.Name)

	var repo sourcev1.GitRepository
	if err := r.Client.Get(ctx, types.NamespacedName{Namespace: req.Namespace, Name: req.Name}, &repo); err != nil {
		return nil, lookupError(err, "GitRepository", req)
	}

	if cond := apimeta.FindStatusCondition(repo.Status.Conditions, fluxmeta.ReadyCondition); cond != nil && cond.Status == metav1.ConditionFalse {
		return nil, syncerr.New(syncerr.SourceNotReady, "GitRepository %s/%s is not ready: %s", req.Namespace, req.Name, cond.Message)
	}
	if repo.Status.Artifact == nil || repo.Status.Artifact.URL == "" {
		return nil, syncerr.New(syncerr.SourceNotReady, "GitRepository %s/%s has no artifact yet", req.Namespace, req.Name)
	}

	revision := repo.Status.Artifact.Revision
	dir, err := r.Cache.FluxPath(req.Namespace, req.Name, revision)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.Source, err, "GitRepository %s/%s", req.Namespace, req.Name)
	}
	_, hash, _ := ParseRevision(revision)
	artifact := &Artifact{
		Kind:        req.Kind,
		Root:        dir,
		Revision:    revision,
		Fingerprint: hash[:7],
	}

	if Hit(dir) {
		logger.V(1).Info("artifact cache hit", "revision", revision)
		Touch(dir)
		return artifact, nil
	}

	fetchCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	logger.Info("downloading artifact", "revision", revision)
	if err := r.Downloader.Fetch(fetchCtx, repo.Status.Artifact.URL, repo.Status.Artifact.Digest, dir); err != nil {
		return nil, err
	}
	return artifact, nil
}

// lookupError maps a failed source lookup: a missing object or CRD means the
// source is not there yet, anything else is a source error.
func lookupError(err error, kind string, req Request) error {
	if apierrors.IsNotFound(err) || apimeta.IsNoMatchError(err) {
		return syncerr.Wrap(syncerr.SourceNotReady, err, "%s %s/%s not found", kind, req.Namespace, req.Name)
	}
	return syncerr.Wrap(syncerr.Source, err, "getting %s %s/%s", kind, req.Namespace, req.Name)
}
