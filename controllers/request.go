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

package controllers

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/validation"

	v1 "github.com/contentful-labs/gitops-secret-syncer/api/v1"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/iam"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/source"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

const (
	defaultReconcileInterval = time.Minute
	defaultPullInterval      = 5 * time.Minute
	minInterval              = time.Minute
	maxPathLength            = 4096
)

var (
	intervalRegexp   = regexp.MustCompile(`^(\d+)([smhd])$`)
	affixRegexp      = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	awsRegionRegexp  = regexp.MustCompile(`^((af|ap|ca|cn|eu|il|me|mx|sa|us)(-gov|-iso[a-z]?)?-[a-z]+-\d+|local)$`)
	roleNameRegexp   = regexp.MustCompile(`^[\w+=,.@/-]{1,512}$`)
	gcpProjectRegexp = regexp.MustCompile(`^[a-z][a-z0-9-]{4,28}[a-z0-9]$`)
	azureVaultRegexp = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]{1,22}[a-zA-Z0-9]$`)
)

// SyncRequest is the validated snapshot of one SecretManagerConfig taken at
// the start of a reconcile.
type SyncRequest struct {
	Key        types.NamespacedName
	Generation int64

	Source   source.Request
	Spec     v1.SecretManagerConfigSpec
	Provider string `validate:"oneof=aws gcp azure"`

	Environment   string `validate:"required,k8slabel"`
	BasePath      string `validate:"omitempty,safepath"`
	KustomizePath string `validate:"omitempty,safepath"`
	Prefix        string `validate:"omitempty,affix"`
	Suffix        string `validate:"omitempty,affix"`

	ConfigsEnabled bool
	ParameterPath  string

	ReconcileInterval time.Duration
	DiffDiscovery     bool
	TriggerUpdate     bool
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	register := func(tag string, fn func(string) bool) {
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return fn(fl.Field().String())
		})
	}
	register("k8sname", func(s string) bool { return len(validation.IsDNS1123Subdomain(s)) == 0 })
	register("k8snamespace", func(s string) bool { return len(validation.IsDNS1123Label(s)) == 0 })
	register("k8slabel", func(s string) bool { return len(validation.IsValidLabelValue(s)) == 0 })
	register("safepath", safePath)
	register("affix", affixRegexp.MatchString)
	register("awsregion", awsRegionRegexp.MatchString)
	register("awsrole", func(s string) bool {
		if iam.IsFullARN(s) {
			return iam.IsValidARN(s)
		}
		return roleNameRegexp.MatchString(s)
	})
	register("gcpproject", gcpProjectRegexp.MatchString)
	register("azurevault", func(s string) bool {
		return azureVaultRegexp.MatchString(s) || strings.HasPrefix(s, "https://")
	})
	return v
}

// safePath accepts relative paths that stay inside the source root.
func safePath(s string) bool {
	if len(s) > maxPathLength || filepath.IsAbs(s) {
		return false
	}
	if clean := filepath.Clean(s); clean == ".." || strings.HasPrefix(clean, "../") {
		return false
	}
	for _, c := range s {
		if c == 0 || unicode.IsControl(c) {
			return false
		}
	}
	return true
}

// ParseInterval parses <n>[smhd]. Intervals below one minute are rejected.
func ParseInterval(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	m := intervalRegexp.FindStringSubmatch(s)
	if m == nil {
		return 0, errors.Errorf("interval %q must be <number><s|m|h|d>", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "interval %q", s)
	}
	unit := map[string]time.Duration{"s": time.Second, "m": time.Minute, "h": time.Hour, "d": 24 * time.Hour}[m[2]]
	d := time.Duration(n) * unit
	if d < minInterval {
		return 0, errors.Errorf("interval %q is below the minimum of %s", s, minInterval)
	}
	return d, nil
}

// newSyncRequest validates smc and snapshots its spec. Every error is a
// ValidationError.
func newSyncRequest(smc *v1.SecretManagerConfig) (*SyncRequest, error) {
	spec := smc.Spec
	req := &SyncRequest{
		Key:        types.NamespacedName{Namespace: smc.Namespace, Name: smc.Name},
		Generation: smc.Generation,
		Spec:       spec,
		Provider:   spec.Provider.Type,
		Source: source.Request{
			Kind:      spec.SourceKind(),
			Name:      spec.SourceRef.Name,
			Namespace: spec.SourceRef.Namespace,
		},
		Environment:    spec.Secrets.Environment,
		BasePath:       spec.Secrets.BasePath,
		KustomizePath:  spec.Secrets.KustomizePath,
		Prefix:         spec.Secrets.Prefix,
		Suffix:         spec.Secrets.Suffix,
		ConfigsEnabled: spec.ConfigsEnabled(),
		DiffDiscovery:  spec.DiffDiscoveryEnabled(),
		TriggerUpdate:  spec.TriggerUpdateEnabled(),
	}
	if spec.Configs != nil {
		req.ParameterPath = spec.Configs.ParameterPath
	}
	if creds := spec.SourceRef.GitCredentials; creds != nil {
		ns := creds.Namespace
		if ns == "" {
			ns = smc.Namespace
		}
		req.Source.Credentials = &source.CredentialsRef{Name: creds.Name, Namespace: ns}
	}

	fail := func(err error, field string) error {
		return syncerr.Wrap(syncerr.Validation, err, "%s", field)
	}

	var err error
	if req.ReconcileInterval, err = ParseInterval(spec.ReconcileInterval, defaultReconcileInterval); err != nil {
		return nil, fail(err, "reconcileInterval")
	}
	if req.Source.PullInterval, err = ParseInterval(spec.GitRepositoryPullInterval, defaultPullInterval); err != nil {
		return nil, fail(err, "gitRepositoryPullInterval")
	}

	switch req.Source.Kind {
	case v1.SourceKindGitRepository, v1.SourceKindApplication:
	default:
		return nil, syncerr.New(syncerr.Validation, "sourceRef.kind %q is not supported", req.Source.Kind)
	}
	checks := []fieldCheck{
		{"sourceRef.name", req.Source.Name, "required,k8sname"},
		{"sourceRef.namespace", req.Source.Namespace, "required,k8snamespace"},
	}
	if c := req.Source.Credentials; c != nil {
		checks = append(checks,
			fieldCheck{"sourceRef.gitCredentials.name", c.Name, "required,k8sname"},
			fieldCheck{"sourceRef.gitCredentials.namespace", c.Namespace, "required,k8snamespace"},
		)
	}
	checks = append(checks, providerChecks(spec.Provider)...)
	for _, c := range checks {
		if err := validate.Var(c.value, c.tag); err != nil {
			return nil, syncerr.New(syncerr.Validation, "%s %q is invalid (%s)", c.field, c.value, failedTag(err))
		}
	}

	if err := validate.Struct(req); err != nil {
		return nil, syncerr.New(syncerr.Validation, "%s", describe(err))
	}
	return req, nil
}

type fieldCheck struct {
	field, value, tag string
}

func providerChecks(p v1.Provider) []fieldCheck {
	switch p.Type {
	case v1.ProviderAWS:
		if p.AWS == nil {
			return []fieldCheck{{"provider.aws", "", "required"}}
		}
		checks := []fieldCheck{{"provider.aws.region", p.AWS.Region, "required,awsregion"}}
		if p.AWS.Auth != nil && p.AWS.Auth.RoleARN != "" {
			checks = append(checks, fieldCheck{"provider.aws.auth.roleArn", p.AWS.Auth.RoleARN, "awsrole"})
		}
		return checks
	case v1.ProviderGCP:
		if p.GCP == nil {
			return []fieldCheck{{"provider.gcp", "", "required"}}
		}
		checks := []fieldCheck{{"provider.gcp.projectId", p.GCP.ProjectID, "required,gcpproject"}}
		if p.GCP.Auth != nil && p.GCP.Auth.ServiceAccountEmail != "" {
			checks = append(checks, fieldCheck{"provider.gcp.auth.serviceAccountEmail", p.GCP.Auth.ServiceAccountEmail, "email"})
		}
		return checks
	case v1.ProviderAzure:
		if p.Azure == nil {
			return []fieldCheck{{"provider.azure", "", "required"}}
		}
		checks := []fieldCheck{{"provider.azure.vaultName", p.Azure.VaultName, "required,azurevault"}}
		if p.Azure.Auth != nil && p.Azure.Auth.ClientID != "" {
			checks = append(checks, fieldCheck{"provider.azure.auth.clientId", p.Azure.Auth.ClientID, "uuid"})
		}
		return checks
	}
	return nil
}

func failedTag(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Tag()
	}
	return err.Error()
}

var fieldNames = map[string]string{
	"Provider":      "provider.type",
	"Environment":   "secrets.environment",
	"BasePath":      "secrets.basePath",
	"KustomizePath": "secrets.kustomizePath",
	"Prefix":        "secrets.prefix",
	"Suffix":        "secrets.suffix",
}

// describe turns validator errors into spec field paths.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fieldNames[fe.Field()]
		if name == "" {
			name = fe.Field()
		}
		msgs = append(msgs, name+" "+strconv.Quote(fe.Value().(string))+" is invalid ("+fe.Tag()+")")
	}
	return strings.Join(msgs, "; ")
}
