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

// Package azure writes secrets to Key Vault and configs to App Configuration.
package azure

import (
	"context"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azappconfig"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/pkg/errors"

	"github.com/contentful-labs/gitops-secret-syncer/pkg/provider"
)

// KeyVaultAPI is the subset of the azsecrets client in use.
type KeyVaultAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
}

// AppConfigAPI is the subset of the azappconfig client in use.
type AppConfigAPI interface {
	GetSetting(ctx context.Context, key string, options *azappconfig.GetSettingOptions) (azappconfig.GetSettingResponse, error)
	SetSetting(ctx context.Context, key string, value *string, options *azappconfig.SetSettingOptions) (azappconfig.SetSettingResponse, error)
}

type KeyVault struct {
	API KeyVaultAPI
}

func (k *KeyVault) Name() string { return "KeyVault" }

// Get reads the latest version of the secret.
func (k *KeyVault) Get(ctx context.Context, name string) (string, bool, error) {
	resp, err := k.API.GetSecret(ctx, name, "", nil)
	if err != nil {
		if notFound(err) {
			return "", false, nil
		}
		return "", false, errors.WithMessagef(err, "failed getting secret %s", name)
	}
	if resp.Value == nil {
		return "", true, nil
	}
	return *resp.Value, true, nil
}

// Put sets a new version; Key Vault creates the secret on first write.
func (k *KeyVault) Put(ctx context.Context, name, value string, _ bool, labels map[string]string) error {
	tags := map[string]*string{}
	for key, v := range provider.Tags(labels) {
		tags[key] = to.Ptr(v)
	}
	_, err := k.API.SetSecret(ctx, name, azsecrets.SetSecretParameters{
		Value: to.Ptr(value),
		Tags:  tags,
	}, nil)
	if err != nil {
		return errors.WithMessagef(err, "failed setting secret %s", name)
	}
	return nil
}

// AppConfig stores config entries as unlabelled key-values.
type AppConfig struct {
	API AppConfigAPI
}

func (a *AppConfig) Name() string { return "AppConfiguration" }

func (a *AppConfig) Get(ctx context.Context, key string) (string, bool, error) {
	resp, err := a.API.GetSetting(ctx, key, nil)
	if err != nil {
		if notFound(err) {
			return "", false, nil
		}
		return "", false, errors.WithMessagef(err, "failed getting setting %s", key)
	}
	if resp.Value == nil {
		return "", true, nil
	}
	return *resp.Value, true, nil
}

func (a *AppConfig) Put(ctx context.Context, key, value string, _ bool, _ map[string]string) error {
	if _, err := a.API.SetSetting(ctx, key, to.Ptr(value), nil); err != nil {
		return errors.WithMessagef(err, "failed setting %s", key)
	}
	return nil
}

func notFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
