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

package aws

import (
	"context"
	"sync"

	awssdk "github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/ssm"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	v1 "github.com/contentful-labs/gitops-secret-syncer/api/v1"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/iam"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/provider"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

const clientCacheSize = 256

// Factory hands out Secrets Manager and SSM clients per region and role.
// Without a role the controller's own identity (IRSA) is used.
type Factory struct {
	arns iam.ARNGetter
	cfgs []*awssdk.Config

	mu       sync.Mutex
	sessions map[string]*session.Session
	clients  *lru.TwoQueueCache
}

type clientSet struct {
	secrets *SecretsManager
	params  *ParameterStore
}

// NewFactory creates a factory; cfgs are applied to every session, e.g.
// the retryer.
func NewFactory(arns iam.ARNGetter, cfgs ...*awssdk.Config) (*Factory, error) {
	clients, err := lru.New2Q(clientCacheSize)
	if err != nil {
		return nil, err
	}
	return &Factory{
		arns:     arns,
		cfgs:     cfgs,
		sessions: map[string]*session.Session{},
		clients:  clients,
	}, nil
}

func (f *Factory) Target(ctx context.Context, spec v1.SecretManagerConfigSpec) (*provider.Target, error) {
	if spec.Provider.AWS == nil || spec.Provider.AWS.Region == "" {
		return nil, syncerr.New(syncerr.Validation, "provider.aws.region is required")
	}
	role := ""
	if spec.Provider.AWS.Auth != nil {
		role = spec.Provider.AWS.Auth.RoleARN
	}

	set, err := f.clientsFor(ctx, spec.Provider.AWS.Region, role)
	if err != nil {
		return nil, err
	}
	target := &provider.Target{Secrets: set.secrets}
	if spec.ConfigsEnabled() {
		target.Configs = set.params
	}
	return target, nil
}

func (f *Factory) clientsFor(ctx context.Context, region, role string) (*clientSet, error) {
	roleARN := ""
	if role != "" {
		var err error
		roleARN, err = f.arns.GetARN(ctx, role)
		if err != nil {
			return nil, syncerr.Wrap(syncerr.Validation, err, "provider.aws.auth.roleArn")
		}
	}

	key := region + "|" + roleARN
	if cached, ok := f.clients.Get(key); ok {
		return cached.(*clientSet), nil
	}

	sess, err := f.session(region)
	if err != nil {
		return nil, err
	}
	cfg := awssdk.NewConfig()
	if roleARN != "" {
		cfg.Credentials = stscreds.NewCredentials(sess, roleARN)
	}
	set := &clientSet{
		secrets: &SecretsManager{API: secretsmanager.New(sess, cfg)},
		params:  &ParameterStore{API: ssm.New(sess, cfg)},
	}
	f.clients.Add(key, set)
	return set, nil
}

func (f *Factory) session(region string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sess, ok := f.sessions[region]; ok {
		return sess, nil
	}
	cfgs := append([]*awssdk.Config{}, f.cfgs...)
	cfgs = append(cfgs, awssdk.NewConfig().WithRegion(region))
	sess, err := session.NewSession(cfgs...)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed creating aws session for %s", region)
	}
	f.sessions[region] = sess
	return sess, nil
}
