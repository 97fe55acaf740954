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

// Package rolevalidator restricts the cloud identities a namespace may use.
// A namespace opts in with an annotation holding a JSON list of allowed
// identities; namespaces without it may use any identity.
package rolevalidator

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1 "github.com/contentful-labs/gitops-secret-syncer/api/v1"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/iam"
)

// AllowedIdentitiesAnnotation lists identities as a JSON array, e.g.
// ["reader", "arn:aws:iam::123456789012:role/writer", "sa@p.iam.gserviceaccount.com"].
const AllowedIdentitiesAnnotation = "secrets.contentful.com/allowed-identities"

type NamespaceGetter interface {
	Get(ctx context.Context, name string) (*corev1.Namespace, error)
}

// ClientNamespaceGetter reads namespaces through a (cached) client.
type ClientNamespaceGetter struct {
	Client client.Reader
}

func (g ClientNamespaceGetter) Get(ctx context.Context, name string) (*corev1.Namespace, error) {
	var ns corev1.Namespace
	if err := g.Client.Get(ctx, types.NamespacedName{Name: name}, &ns); err != nil {
		return nil, err
	}
	return &ns, nil
}

type RoleValidator struct {
	arnGetter      iam.ARNGetter
	nsCache        NamespaceGetter
	annotationName string
}

// NewRoleValidator returns a validator reading annotationName, or
// AllowedIdentitiesAnnotation when empty.
func NewRoleValidator(getter iam.ARNGetter, nsCache NamespaceGetter, annotationName string) *RoleValidator {
	if annotationName == "" {
		annotationName = AllowedIdentitiesAnnotation
	}
	return &RoleValidator{
		arnGetter:      getter,
		nsCache:        nsCache,
		annotationName: annotationName,
	}
}

// Identity returns the identity the provider block asks for, empty when the
// controller's own workload identity is used.
func Identity(p v1.Provider) string {
	switch {
	case p.AWS != nil && p.AWS.Auth != nil:
		return p.AWS.Auth.RoleARN
	case p.GCP != nil && p.GCP.Auth != nil:
		return p.GCP.Auth.ServiceAccountEmail
	case p.Azure != nil && p.Azure.Auth != nil:
		return p.Azure.Auth.ClientID
	}
	return ""
}

// IsWhitelisted reports whether resources in namespace may use the identity
// of provider p.
func (rv *RoleValidator) IsWhitelisted(ctx context.Context, p v1.Provider, namespace string) (bool, error) {
	ns, err := rv.nsCache.Get(ctx, namespace)
	if err != nil {
		return false, errors.WithMessagef(err, "failed getting namespace %s", namespace)
	}

	annotation, annotationFound := ns.Annotations[rv.annotationName]
	if !annotationFound {
		return true, nil
	}

	// an annotated namespace must not fall back to the controller identity
	identity := Identity(p)
	if identity == "" {
		return false, nil
	}

	var allowed []string
	if err := json.Unmarshal([]byte(annotation), &allowed); err != nil {
		return false, errors.WithMessagef(err, "invalid %s annotation on namespace %s", rv.annotationName, namespace)
	}

	if p.Type == v1.ProviderAWS {
		return rv.isRoleAllowed(ctx, identity, allowed)
	}
	for _, a := range allowed {
		if strings.EqualFold(a, identity) {
			return true, nil
		}
	}
	return false, nil
}

func (rv *RoleValidator) isRoleAllowed(ctx context.Context, role string, allowedRoles []string) (bool, error) {
	roleArn, err := rv.arnGetter.GetARN(ctx, role)
	if err != nil {
		return false, errors.WithMessagef(err, "failed getting ARN for role %s", role)
	}

	for _, allowedRole := range allowedRoles {
		// GCP and Azure identities may share the list
		if !iam.IsFullARN(allowedRole) && strings.Contains(allowedRole, "@") {
			continue
		}
		allowedRoleArn, err := rv.arnGetter.GetARN(ctx, allowedRole)
		if err != nil {
			return false, errors.WithMessagef(err, "failed getting ARN for role %s", allowedRole)
		}
		if roleArn == allowedRoleArn {
			return true, nil
		}
	}
	return false, nil
}
