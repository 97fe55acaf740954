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

package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	SourceKindGitRepository = "GitRepository"
	SourceKindApplication   = "Application"

	ProviderAWS   = "aws"
	ProviderGCP   = "gcp"
	ProviderAzure = "azure"

	ConfigStoreSecretManager    = "SecretManager"
	ConfigStoreParameterManager = "ParameterManager"

	// ReconcileAnnotation marks a manually requested reconcile.
	ReconcileAnnotation = "secrets.contentful.com/reconcile"
)

// Phases reported in SecretManagerConfigStatus.Phase
const (
	PhasePending   = "Pending"
	PhaseStarted   = "Started"
	PhaseCloning   = "Cloning"
	PhaseUpdating  = "Updating"
	PhaseReady     = "Ready"
	PhaseFailed    = "Failed"
	PhaseSuspended = "Suspended"
)

// Decryption states reported in SecretManagerConfigStatus.DecryptionStatus
const (
	DecryptionSuccess          = "Success"
	DecryptionTransientFailure = "TransientFailure"
	DecryptionPermanentFailure = "PermanentFailure"
	DecryptionNotApplicable    = "NotApplicable"
)

// ConditionReady is the only condition type maintained on the resource.
const ConditionReady = "Ready"

// CredentialsRef points at a secret holding git credentials
type CredentialsRef struct {
	// Secret Name
	Name string `json:"name"`

	// Secret Namespace, defaults to the SecretManagerConfig namespace
	// +optional
	Namespace string `json:"namespace,omitempty"`
}

// SourceRef references the GitOps object providing the files
type SourceRef struct {
	// Kind of the source object
	// +kubebuilder:validation:Enum=GitRepository;Application
	// +kubebuilder:default=GitRepository
	// +optional
	Kind string `json:"kind,omitempty"`

	// Name of the source object
	Name string `json:"name"`

	// Namespace of the source object
	Namespace string `json:"namespace"`

	// GitCredentials used when cloning an Application source
	// +optional
	GitCredentials *CredentialsRef `json:"gitCredentials,omitempty"`
}

// AWSAuth role to assume, IRSA is used when empty
type AWSAuth struct {
	// +optional
	RoleARN string `json:"roleArn,omitempty"`
}

// AWSProvider aws provider
type AWSProvider struct {
	Region string `json:"region"`

	// +optional
	Auth *AWSAuth `json:"auth,omitempty"`
}

// GCPAuth service account to impersonate, workload identity is used when empty
type GCPAuth struct {
	// +optional
	ServiceAccountEmail string `json:"serviceAccountEmail,omitempty"`
}

// GCPProvider gcp provider
type GCPProvider struct {
	ProjectID string `json:"projectId"`

	// +optional
	Auth *GCPAuth `json:"auth,omitempty"`
}

// AzureAuth workload identity client id
type AzureAuth struct {
	// +optional
	ClientID string `json:"clientId,omitempty"`
}

// AzureProvider azure provider
type AzureProvider struct {
	VaultName string `json:"vaultName"`

	// +optional
	Auth *AzureAuth `json:"auth,omitempty"`
}

// Provider selects exactly one cloud
type Provider struct {
	// +kubebuilder:validation:Enum=aws;gcp;azure
	Type string `json:"type"`

	// +optional
	AWS *AWSProvider `json:"aws,omitempty"`

	// +optional
	GCP *GCPProvider `json:"gcp,omitempty"`

	// +optional
	Azure *AzureProvider `json:"azure,omitempty"`
}

// SecretsConfig secrets config
type SecretsConfig struct {
	// Environment profile directory to sync, e.g. dev or prod
	Environment string `json:"environment"`

	// KustomizePath switches to kustomize build mode when set
	// +optional
	KustomizePath string `json:"kustomizePath,omitempty"`

	// BasePath within the artifact to search from
	// +optional
	BasePath string `json:"basePath,omitempty"`

	// +optional
	Prefix string `json:"prefix,omitempty"`

	// +optional
	Suffix string `json:"suffix,omitempty"`
}

// ConfigsConfig routes application.properties entries to a config store
type ConfigsConfig struct {
	// +optional
	Enabled bool `json:"enabled,omitempty"`

	// ParameterPath for AWS Parameter Store, may be a template
	// +optional
	ParameterPath string `json:"parameterPath,omitempty"`

	// Store used for GCP configs
	// +kubebuilder:validation:Enum=SecretManager;ParameterManager
	// +optional
	Store string `json:"store,omitempty"`

	// AppConfigEndpoint for Azure App Configuration
	// +optional
	AppConfigEndpoint string `json:"appConfigEndpoint,omitempty"`
}

// NotificationProviderRef names a FluxCD notification Provider
type NotificationProviderRef struct {
	Name string `json:"name"`

	// Namespace of the Provider, defaults to the SecretManagerConfig namespace
	// +optional
	Namespace string `json:"namespace,omitempty"`
}

// FluxCDNotifications alert through a FluxCD Provider, GitRepository sources only
type FluxCDNotifications struct {
	ProviderRef NotificationProviderRef `json:"providerRef"`
}

// NotificationSubscription is one ArgoCD notifications subscription
type NotificationSubscription struct {
	// Trigger name, e.g. drift-detected
	Trigger string `json:"trigger"`
	// Service name, e.g. slack
	Service string `json:"service"`
	// Channel, e.g. #secrets-alerts
	Channel string `json:"channel"`
}

// ArgoCDNotifications subscribe the source Application, Application sources only
type ArgoCDNotifications struct {
	Subscriptions []NotificationSubscription `json:"subscriptions"`
}

// Notifications configure drift alerts
type Notifications struct {
	// +optional
	FluxCD *FluxCDNotifications `json:"fluxcd,omitempty"`
	// +optional
	ArgoCD *ArgoCDNotifications `json:"argocd,omitempty"`
}

// SecretManagerConfigSpec defines the desired state of SecretManagerConfig
type SecretManagerConfigSpec struct {
	SourceRef SourceRef `json:"sourceRef"`

	Provider Provider `json:"provider"`

	Secrets SecretsConfig `json:"secrets"`

	// +optional
	Configs *ConfigsConfig `json:"configs,omitempty"`

	// +kubebuilder:default="1m"
	// +optional
	ReconcileInterval string `json:"reconcileInterval,omitempty"`

	// +kubebuilder:default="5m"
	// +optional
	GitRepositoryPullInterval string `json:"gitRepositoryPullInterval,omitempty"`

	// DiffDiscovery reports cloud values that drifted from git
	// +kubebuilder:default=true
	// +optional
	DiffDiscovery *bool `json:"diffDiscovery,omitempty"`

	// TriggerUpdate writes changed values, only reports them when false
	// +kubebuilder:default=true
	// +optional
	TriggerUpdate *bool `json:"triggerUpdate,omitempty"`

	// Notifications about drift, requires diffDiscovery
	// +optional
	Notifications *Notifications `json:"notifications,omitempty"`

	// +optional
	Suspend bool `json:"suspend,omitempty"`
}

// SyncState tracks one synced name
type SyncState struct {
	Exists      bool  `json:"exists"`
	UpdateCount int32 `json:"updateCount"`
}

// SyncStatus sync status
type SyncStatus struct {
	// +optional
	Secrets map[string]SyncState `json:"secrets,omitempty"`

	// +optional
	Properties map[string]SyncState `json:"properties,omitempty"`
}

// SecretManagerConfigStatus defines the observed state of SecretManagerConfig
type SecretManagerConfigStatus struct {
	// +optional
	Phase string `json:"phase,omitempty"`

	// +optional
	Description string `json:"description,omitempty"`

	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// +optional
	LastReconcileTime *metav1.Time `json:"lastReconcileTime,omitempty"`

	// +optional
	NextReconcileTime *metav1.Time `json:"nextReconcileTime,omitempty"`

	// Revision of the source that was last synced
	// +optional
	Revision string `json:"revision,omitempty"`

	// +optional
	SecretsSynced int32 `json:"secretsSynced"`

	// +optional
	SecretsUpdated int32 `json:"secretsUpdated"`

	// +optional
	PropertiesSynced int32 `json:"propertiesSynced"`

	// +optional
	Sync *SyncStatus `json:"sync,omitempty"`

	// +optional
	DecryptionStatus string `json:"decryptionStatus,omitempty"`

	// +optional
	LastDecryptionAttempt *metav1.Time `json:"lastDecryptionAttempt,omitempty"`

	// +optional
	LastDecryptionError string `json:"lastDecryptionError,omitempty"`

	// +optional
	SOPSKeyAvailable bool `json:"sopsKeyAvailable"`

	// +optional
	SOPSKeySecretName string `json:"sopsKeySecretName,omitempty"`

	// +optional
	SOPSKeyNamespace string `json:"sopsKeyNamespace,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=smc
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Synced",type=integer,JSONPath=`.status.secretsSynced`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// SecretManagerConfig is the Schema for the secretmanagerconfigs API
type SecretManagerConfig struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   SecretManagerConfigSpec   `json:"spec,omitempty"`
	Status SecretManagerConfigStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// SecretManagerConfigList contains a list of SecretManagerConfig
type SecretManagerConfigList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []SecretManagerConfig `json:"items"`
}

// SourceKind returns the source kind, GitRepository when unset.
func (s SecretManagerConfigSpec) SourceKind() string {
	if s.SourceRef.Kind == "" {
		return SourceKindGitRepository
	}
	return s.SourceRef.Kind
}

// DiffDiscoveryEnabled defaults to true.
func (s SecretManagerConfigSpec) DiffDiscoveryEnabled() bool {
	return s.DiffDiscovery == nil || *s.DiffDiscovery
}

// TriggerUpdateEnabled defaults to true.
func (s SecretManagerConfigSpec) TriggerUpdateEnabled() bool {
	return s.TriggerUpdate == nil || *s.TriggerUpdate
}

// ConfigsEnabled reports whether properties go to the config store.
func (s SecretManagerConfigSpec) ConfigsEnabled() bool {
	return s.Configs != nil && s.Configs.Enabled
}

func init() {
	SchemeBuilder.Register(&SecretManagerConfig{}, &SecretManagerConfigList{})
}
