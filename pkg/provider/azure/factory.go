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

package azure

import (
	"context"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azappconfig"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	v1 "github.com/contentful-labs/gitops-secret-syncer/api/v1"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/naming"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/provider"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

// Clients opens the Azure clients for a credential.
type Clients interface {
	Credential(clientID string) (azcore.TokenCredential, error)
	KeyVault(vaultURL string, cred azcore.TokenCredential) (KeyVaultAPI, error)
	AppConfig(endpoint string, cred azcore.TokenCredential) (AppConfigAPI, error)
}

// SDKClients uses workload identity when a client id is given, otherwise
// the default credential chain.
type SDKClients struct{}

func (SDKClients) Credential(clientID string) (azcore.TokenCredential, error) {
	if clientID != "" {
		return azidentity.NewWorkloadIdentityCredential(&azidentity.WorkloadIdentityCredentialOptions{ClientID: clientID})
	}
	return azidentity.NewDefaultAzureCredential(nil)
}

func (SDKClients) KeyVault(vaultURL string, cred azcore.TokenCredential) (KeyVaultAPI, error) {
	return azsecrets.NewClient(vaultURL, cred, nil)
}

func (SDKClients) AppConfig(endpoint string, cred azcore.TokenCredential) (AppConfigAPI, error) {
	return azappconfig.NewClient(endpoint, cred, nil)
}

const clientCacheSize = 64

// Factory caches credentials per client id and clients per endpoint.
type Factory struct {
	clients Clients

	mu         sync.Mutex
	creds      *lru.TwoQueueCache
	keyVaults  *lru.TwoQueueCache
	appConfigs *lru.TwoQueueCache
}

func NewFactory(clients Clients) (*Factory, error) {
	if clients == nil {
		clients = SDKClients{}
	}
	f := &Factory{clients: clients}
	for _, c := range []**lru.TwoQueueCache{&f.creds, &f.keyVaults, &f.appConfigs} {
		cache, err := lru.New2Q(clientCacheSize)
		if err != nil {
			return nil, err
		}
		*c = cache
	}
	return f, nil
}

func (f *Factory) Target(_ context.Context, spec v1.SecretManagerConfigSpec) (*provider.Target, error) {
	az := spec.Provider.Azure
	if az == nil || az.VaultName == "" {
		return nil, syncerr.New(syncerr.Validation, "provider.azure.vaultName is required")
	}
	clientID := ""
	if az.Auth != nil {
		clientID = az.Auth.ClientID
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	cred, err := f.credential(clientID)
	if err != nil {
		return nil, err
	}

	vaultURL := naming.KeyVaultURL(az.VaultName)
	var kv *KeyVault
	if cached, ok := f.keyVaults.Get(clientID + "|" + vaultURL); ok {
		kv = cached.(*KeyVault)
	} else {
		api, err := f.clients.KeyVault(vaultURL, cred)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed creating key vault client for %s", vaultURL)
		}
		kv = &KeyVault{API: api}
		f.keyVaults.Add(clientID+"|"+vaultURL, kv)
	}
	target := &provider.Target{Secrets: kv}

	if spec.ConfigsEnabled() {
		endpoint := naming.AppConfigEndpoint(az.VaultName, spec.Configs.AppConfigEndpoint)
		var ac *AppConfig
		if cached, ok := f.appConfigs.Get(clientID + "|" + endpoint); ok {
			ac = cached.(*AppConfig)
		} else {
			api, err := f.clients.AppConfig(endpoint, cred)
			if err != nil {
				return nil, errors.WithMessagef(err, "failed creating app configuration client for %s", endpoint)
			}
			ac = &AppConfig{API: api}
			f.appConfigs.Add(clientID+"|"+endpoint, ac)
		}
		target.Configs = ac
	}
	return target, nil
}

func (f *Factory) credential(clientID string) (azcore.TokenCredential, error) {
	if cached, ok := f.creds.Get(clientID); ok {
		return cached.(azcore.TokenCredential), nil
	}
	cred, err := f.clients.Credential(clientID)
	if err != nil {
		return nil, errors.WithMessage(err, "failed creating azure credential")
	}
	f.creds.Add(clientID, cred)
	return cred, nil
}
