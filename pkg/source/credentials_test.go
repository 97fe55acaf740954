package source

import (
	"context"
	"testing"

	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

func TestAuthFromData(t *testing.T) {
	for _, test := range []struct {
		name     string
		data     map[string][]byte
		wantUser string
		wantPass string
		wantNil  bool
	}{
		{name: "anonymous", data: map[string][]byte{}, wantNil: true},
		{name: "basic", data: map[string][]byte{"username": []byte("bot"), "password": []byte("s3cret")}, wantUser: "bot", wantPass: "s3cret"},
		{name: "token only", data: map[string][]byte{"token": []byte("abc")}, wantUser: "x-access-token", wantPass: "abc"},
		{name: "github token with username", data: map[string][]byte{"username": []byte("bot"), "password": []byte("ghp_abc")}, wantUser: "x-access-token", wantPass: "ghp_abc"},
		{name: "username and token", data: map[string][]byte{"username": []byte("bot"), "token": []byte("glpat")}, wantUser: "bot", wantPass: "glpat"},
	} {
		auth, err := authFromData(test.data, t.TempDir())
		if err != nil {
			t.Errorf("%s: %v", test.name, err)
			continue
		}
		if test.wantNil {
			if auth != nil {
				t.Errorf("%s: expected anonymous auth", test.name)
			}
			continue
		}
		basic, ok := auth.(*githttp.BasicAuth)
		if !ok {
			t.Errorf("%s: unexpected auth type %T", test.name, auth)
			continue
		}
		if basic.Username != test.wantUser || basic.Password != test.wantPass {
			t.Errorf("%s: wanted %s/%s got %s/%s", test.name, test.wantUser, test.wantPass, basic.Username, basic.Password)
		}
	}
}

func TestAuthFromDataBadIdentity(t *testing.T) {
	_, err := authFromData(map[string][]byte{"identity": []byte("not a key")}, t.TempDir())
	if !syncerr.Is(err, syncerr.Source) {
		t.Errorf("wanted SourceError got %v", err)
	}
}

func TestLoadGitAuth(t *testing.T) {
	s := runtime.NewScheme()
	_ = clientgoscheme.AddToScheme(s)
	c := fake.NewClientBuilder().WithScheme(s).WithObjects(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "git", Namespace: "argocd"},
		Data:       map[string][]byte{"token": []byte("abc")},
	}).Build()

	auth, err := LoadGitAuth(context.Background(), c, nil, t.TempDir())
	if err != nil || auth != nil {
		t.Errorf("nil ref: wanted anonymous got %v, %v", auth, err)
	}

	auth, err = LoadGitAuth(context.Background(), c, &CredentialsRef{Name: "git", Namespace: "argocd"}, t.TempDir())
	if err != nil || auth == nil {
		t.Errorf("wanted token auth got %v, %v", auth, err)
	}

	_, err = LoadGitAuth(context.Background(), c, &CredentialsRef{Name: "absent", Namespace: "argocd"}, t.TempDir())
	if !syncerr.Is(err, syncerr.Source) {
		t.Errorf("missing secret: wanted SourceError got %v", err)
	}
}
