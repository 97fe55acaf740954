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

// Package aws writes entries to AWS Secrets Manager and SSM Parameter Store.
package aws

import (
	"context"
	"sort"

	awssdk "github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/pkg/errors"

	"github.com/contentful-labs/gitops-secret-syncer/pkg/provider"
)

const currentStage = "AWSCURRENT"

// SecretsManager stores secrets and the properties blob.
type SecretsManager struct {
	API secretsmanageriface.SecretsManagerAPI
}

func (s *SecretsManager) Name() string { return "SecretsManager" }

// Get returns the AWSCURRENT value of the secret.
func (s *SecretsManager) Get(ctx context.Context, name string) (string, bool, error) {
	out, err := s.API.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     awssdk.String(name),
		VersionStage: awssdk.String(currentStage),
	})
	if err != nil {
		if code(err) == secretsmanager.ErrCodeResourceNotFoundException {
			return "", false, nil
		}
		return "", false, withCode(err, "can't find %s version for secretID %s", currentStage, name)
	}
	if out.SecretString != nil {
		return *out.SecretString, true, nil
	}
	return string(out.SecretBinary), true, nil
}

// Put creates the secret with tags, or adds a new version to it.
func (s *SecretsManager) Put(ctx context.Context, name, value string, exists bool, labels map[string]string) error {
	if !exists {
		_, err := s.API.CreateSecretWithContext(ctx, &secretsmanager.CreateSecretInput{
			Name:         awssdk.String(name),
			SecretString: awssdk.String(value),
			Tags:         secretTags(labels),
		})
		if err == nil {
			return nil
		}
		// created concurrently, fall through to a new version
		if code(err) != secretsmanager.ErrCodeResourceExistsException {
			return withCode(err, "failed creating secret %s", name)
		}
	}

	_, err := s.API.PutSecretValueWithContext(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     awssdk.String(name),
		SecretString: awssdk.String(value),
	})
	if err != nil {
		return withCode(err, "failed putting value of secret %s", name)
	}
	return nil
}

// ParameterStore stores config entries as String parameters.
type ParameterStore struct {
	API ssmiface.SSMAPI
}

func (p *ParameterStore) Name() string { return "ParameterStore" }

func (p *ParameterStore) Get(ctx context.Context, name string) (string, bool, error) {
	out, err := p.API.GetParameterWithContext(ctx, &ssm.GetParameterInput{
		Name:           awssdk.String(name),
		WithDecryption: awssdk.Bool(true),
	})
	if err != nil {
		if code(err) == ssm.ErrCodeParameterNotFound {
			return "", false, nil
		}
		return "", false, withCode(err, "failed reading parameter %s", name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", false, nil
	}
	return *out.Parameter.Value, true, nil
}

// Put writes the parameter. Tags can only be passed on creation, SSM
// rejects them together with Overwrite.
func (p *ParameterStore) Put(ctx context.Context, name, value string, exists bool, labels map[string]string) error {
	in := &ssm.PutParameterInput{
		Name:      awssdk.String(name),
		Value:     awssdk.String(value),
		Type:      awssdk.String(ssm.ParameterTypeString),
		Tier:      awssdk.String(ssm.ParameterTierIntelligentTiering),
		Overwrite: awssdk.Bool(exists),
	}
	if !exists {
		in.Tags = parameterTags(labels)
	}
	_, err := p.API.PutParameterWithContext(ctx, in)
	if err != nil && !exists && code(err) == ssm.ErrCodeParameterAlreadyExists {
		in.Tags = nil
		in.Overwrite = awssdk.Bool(true)
		_, err = p.API.PutParameterWithContext(ctx, in)
	}
	if err != nil {
		return withCode(err, "failed putting parameter %s", name)
	}
	return nil
}

func code(err error) string {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code()
	}
	return ""
}

func withCode(err error, format string, args ...interface{}) error {
	if c := code(err); c != "" {
		return errors.WithMessagef(err, format+", error code: %s", append(args, c)...)
	}
	return errors.WithMessagef(err, format, args...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func secretTags(labels map[string]string) []*secretsmanager.Tag {
	tags := provider.Tags(labels)
	out := make([]*secretsmanager.Tag, 0, len(tags))
	for _, k := range sortedKeys(tags) {
		out = append(out, &secretsmanager.Tag{Key: awssdk.String(k), Value: awssdk.String(tags[k])})
	}
	return out
}

func parameterTags(labels map[string]string) []*ssm.Tag {
	tags := provider.Tags(labels)
	out := make([]*ssm.Tag, 0, len(tags))
	for _, k := range sortedKeys(tags) {
		out = append(out, &ssm.Tag{Key: awssdk.String(k), Value: awssdk.String(tags[k])})
	}
	return out
}
