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

package extract

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/kustomize/api/krusty"
	"sigs.k8s.io/kustomize/kyaml/filesys"

	"github.com/contentful-labs/gitops-secret-syncer/pkg/command"
)

// Builder renders a kustomization directory to a multi-document stream.
type Builder interface {
	Build(ctx context.Context, dir string) ([]byte, error)
}

// ExecBuilder runs the kustomize binary.
type ExecBuilder struct {
	Runner command.Runner
	Binary string
}

func (b *ExecBuilder) Build(ctx context.Context, dir string) ([]byte, error) {
	out, err := b.Runner.Run(ctx, command.Command{
		Name: b.Binary,
		Args: []string{"build", dir},
		Env:  []string{"PATH=" + os.Getenv("PATH"), "HOME=" + os.TempDir()},
	})
	if err != nil {
		return nil, errors.WithMessage(err, "kustomize build")
	}
	return out, nil
}

// KrustyBuilder builds in process with the kustomize API.
type KrustyBuilder struct{}

func (KrustyBuilder) Build(ctx context.Context, dir string) ([]byte, error) {
	k := krusty.MakeKustomizer(krusty.MakeDefaultOptions())
	resources, err := k.Run(filesys.MakeFsOnDisk(), dir)
	if err != nil {
		return nil, errors.Wrap(err, "kustomize build")
	}
	return resources.AsYaml()
}

// SecretKVs decodes every Secret in a rendered stream. data values are
// base64 decoded and stringData is taken as is, overriding data.
func SecretKVs(stream []byte) ([]KV, error) {
	decoder := utilyaml.NewYAMLOrJSONDecoder(bytes.NewReader(stream), 4096)
	var out []KV
	for {
		var doc map[string]interface{}
		if err := decoder.Decode(&doc); err != nil {
			if stderrors.Is(err, io.EOF) {
				break
			}
			return nil, errors.Wrap(err, "decoding kustomize output")
		}
		obj := &unstructured.Unstructured{Object: doc}
		if len(doc) == 0 || obj.GetKind() != "Secret" {
			continue
		}

		var secret corev1.Secret
		if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &secret); err != nil {
			return nil, errors.Wrapf(err, "decoding Secret %s", obj.GetName())
		}
		values := map[string]string{}
		for k, v := range secret.Data {
			values[k] = string(v)
		}
		for k, v := range secret.StringData {
			values[k] = v
		}
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, KV{Key: k, Value: values[k]})
		}
	}
	return out, nil
}
