package extract

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/contentful-labs/gitops-secret-syncer/pkg/command"
)

const rendered = `apiVersion: v1
kind: ConfigMap
metadata:
  name: settings
data:
  ignored: "true"
---
apiVersion: v1
kind: Secret
metadata:
  name: api
data:
  API_KEY: YWJjMTIz
  TOKEN: dG9rZW4=
stringData:
  TOKEN: override
---
`

func TestSecretKVs(t *testing.T) {
	got, err := SecretKVs([]byte(rendered))
	if err != nil {
		t.Fatal(err)
	}
	want := []KV{
		{Key: "API_KEY", Value: "abc123"},
		{Key: "TOKEN", Value: "override"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SecretKVs mismatch (-want +got):\n%s", diff)
	}

	if _, err := SecretKVs([]byte("apiVersion: v1\nkind: Secret\nmetadata:\n  name: s\ndata:\n  A: '%%%'\n")); err == nil {
		t.Error("expected error for invalid base64")
	}
}

type stubRunner struct {
	got command.Command
	out []byte
}

func (s *stubRunner) Run(ctx context.Context, c command.Command) ([]byte, error) {
	s.got = c
	return s.out, nil
}

func TestExecBuilder(t *testing.T) {
	runner := &stubRunner{out: []byte(rendered)}
	b := &ExecBuilder{Runner: runner, Binary: "kustomize"}

	out, err := b.Build(context.Background(), "/src/overlays/dev")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != rendered {
		t.Error("build output not returned")
	}
	if runner.got.Name != "kustomize" || cmp.Diff([]string{"build", "/src/overlays/dev"}, runner.got.Args) != "" {
		t.Errorf("unexpected command %s", runner.got)
	}
}

func TestKrustyBuilder(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"kustomization.yaml": "resources:\n- secret.yaml\n",
		"secret.yaml":        "apiVersion: v1\nkind: Secret\nmetadata:\n  name: s\nstringData:\n  PASSWORD: hunter2\n",
	})

	out, err := KrustyBuilder{}.Build(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	kvs, err := SecretKVs(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(kvs) != 1 || kvs[0].Key != "PASSWORD" || kvs[0].Value != "hunter2" {
		t.Errorf("unexpected entries %+v", kvs)
	}
}
