package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	fluxmeta "github.com/fluxcd/pkg/apis/meta"
	sourcev1 "github.com/fluxcd/source-controller/api/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

func fluxScheme(t *testing.T) *runtime.Scheme {
	s := runtime.NewScheme()
	if err := sourcev1.AddToScheme(s); err != nil {
		t.Fatal(err)
	}
	return s
}

func gitRepository(url, revision, digest string) *sourcev1.GitRepository {
	repo := &sourcev1.GitRepository{
		ObjectMeta: metav1.ObjectMeta{Name: "app", Namespace: "flux-system"},
	}
	if url != "" {
		repo.Status.Artifact = &fluxmeta.Artifact{URL: url, Revision: revision, Digest: digest}
	}
	return repo
}

func TestGitRepositoryResolverCachesRevision(t *testing.T) {
	body := tarball(t, map[string]string{"profiles/dev/application.secrets.env": "A=1"})
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	revision := "main@sha1:0123456789abcdef0123456789abcdef01234567"
	c := fake.NewClientBuilder().WithScheme(fluxScheme(t)).
		WithObjects(gitRepository(srv.URL+"/artifact.tar.gz", revision, digestOf(body))).Build()
	cacheDir := t.TempDir()
	r := &GitRepositoryResolver{Client: c, Cache: Cache{Dir: cacheDir}, Downloader: &Downloader{}}
	req := Request{Kind: "GitRepository", Name: "app", Namespace: "flux-system"}

	for i := 0; i < 2; i++ {
		art, err := r.Resolve(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		if want := filepath.Join(cacheDir, "flux-artifact/flux-system/app/main-sha-0123456"); art.Root != want {
			t.Errorf("wanted root %s got %s", want, art.Root)
		}
		if art.Fingerprint != "0123456" || art.Revision != revision {
			t.Errorf("unexpected artifact %+v", art)
		}
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("wanted one download got %d", hits)
	}
}

func TestGitRepositoryResolverNotReady(t *testing.T) {
	notReady := gitRepository("http://unused", "main@sha1:0123456789", "")
	notReady.Status.Conditions = []metav1.Condition{{
		Type:    fluxmeta.ReadyCondition,
		Status:  metav1.ConditionFalse,
		Reason:  "GitOperationFailed",
		Message: "auth failed",
	}}

	for _, test := range []struct {
		name string
		repo *sourcev1.GitRepository
	}{
		{name: "missing"},
		{name: "no artifact", repo: gitRepository("", "", "")},
		{name: "ready false", repo: notReady},
	} {
		b := fake.NewClientBuilder().WithScheme(fluxScheme(t))
		if test.repo != nil {
			b = b.WithObjects(test.repo)
		}
		r := &GitRepositoryResolver{Client: b.Build(), Cache: Cache{Dir: t.TempDir()}, Downloader: &Downloader{}}

		_, err := r.Resolve(context.Background(), Request{Kind: "GitRepository", Name: "app", Namespace: "flux-system"})
		if !syncerr.Is(err, syncerr.SourceNotReady) {
			t.Errorf("%s: wanted SourceNotReady got %v", test.name, err)
		}
	}
}

func TestGitRepositoryResolverMalformedRevision(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(fluxScheme(t)).
		WithObjects(gitRepository("http://unused", "main@sha1:zzz", "")).Build()
	r := &GitRepositoryResolver{Client: c, Cache: Cache{Dir: t.TempDir()}, Downloader: &Downloader{}}

	_, err := r.Resolve(context.Background(), Request{Kind: "GitRepository", Name: "app", Namespace: "flux-system"})
	if !syncerr.Is(err, syncerr.Source) {
		t.Errorf("wanted SourceError got %v", err)
	}
}

func TestResolversUnsupportedKind(t *testing.T) {
	_, err := Resolvers{}.Resolve(context.Background(), Request{Kind: "HelmRepository"})
	if !syncerr.Is(err, syncerr.Validation) {
		t.Errorf("wanted ValidationError got %v", err)
	}
}
