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

// Package gcp writes entries to Google Secret Manager.
package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/contentful-labs/gitops-secret-syncer/pkg/provider"
)

// SecretManagerAPI is the subset of the Secret Manager client in use.
type SecretManagerAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	Close() error
}

// SecretManager stores every entry as a secret in one project.
type SecretManager struct {
	API     SecretManagerAPI
	Project string
}

func (s *SecretManager) Name() string { return "SecretManager" }

func (s *SecretManager) secretPath(name string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", s.Project, name)
}

// Get reads the latest version. A secret without an enabled version is
// reported as missing, Put then adds one.
func (s *SecretManager) Get(ctx context.Context, name string) (string, bool, error) {
	resp, err := s.API.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: s.secretPath(name) + "/versions/latest",
	})
	if err != nil {
		switch status.Code(err) {
		case codes.NotFound, codes.FailedPrecondition:
			return "", false, nil
		}
		return "", false, errors.WithMessagef(err, "failed accessing secret %s", name)
	}
	if resp.GetPayload() == nil {
		return "", true, nil
	}
	return string(resp.GetPayload().GetData()), true, nil
}

// Put creates the secret with automatic replication when missing and adds
// a version holding value.
func (s *SecretManager) Put(ctx context.Context, name, value string, exists bool, labels map[string]string) error {
	if !exists {
		_, err := s.API.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
			Parent:   "projects/" + s.Project,
			SecretId: name,
			Secret: &secretmanagerpb.Secret{
				Replication: &secretmanagerpb.Replication{
					Replication: &secretmanagerpb.Replication_Automatic_{
						Automatic: &secretmanagerpb.Replication_Automatic{},
					},
				},
				Labels: provider.Tags(labels),
			},
		})
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return errors.WithMessagef(err, "failed creating secret %s", name)
		}
	}

	_, err := s.API.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  s.secretPath(name),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	})
	if err != nil {
		return errors.WithMessagef(err, "failed adding version to secret %s", name)
	}
	return nil
}
