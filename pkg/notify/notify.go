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

// Package notify wires drift alerts into the GitOps tool that owns a source:
// a FluxCD Alert for GitRepository sources and ArgoCD notification
// subscriptions for Application sources.
package notify

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"strings"
	"time"

	eventv1 "github.com/fluxcd/pkg/apis/event/v1beta1"
	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/events"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	v1 "github.com/contentful-labs/gitops-secret-syncer/api/v1"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/source"
)

const (
	ControllerName = "gitops-secret-syncer"

	AlertPrefix = "secret-drift-alert-"
	// DriftMessagePrefix starts every drift message, the Alert only lets
	// these through.
	DriftMessagePrefix  = "secret drift detected"
	ReasonDriftDetected = "DriftDetected"

	SubscribeAnnotationPrefix = "notifications.argoproj.io/subscribe."
	DriftTrigger              = "drift-detected"
	// DriftAnnotation is set on the Application on every drift, ArgoCD
	// triggers fire on its value.
	DriftAnnotation = "secrets.contentful.com/drift-detected-at"

	maxListedEntries = 10
)

var AlertGVK = schema.GroupVersionKind{Group: "notification.toolkit.fluxcd.io", Version: "v1beta3", Kind: "Alert"}

// Drift is what one reconcile found changed outside of git.
type Drift struct {
	Revision string
	Entries  []string
}

func (d Drift) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s in %d entries", DriftMessagePrefix, len(d.Entries))
	if d.Revision != "" {
		fmt.Fprintf(&b, " at %s", d.Revision)
	}
	listed := d.Entries
	if len(listed) > maxListedEntries {
		listed = listed[:maxListedEntries]
	}
	b.WriteString(": " + strings.Join(listed, ", "))
	if rest := len(d.Entries) - len(listed); rest > 0 {
		fmt.Fprintf(&b, " and %d more", rest)
	}
	return b.String()
}

// Notifier keeps drift alert wiring in place and reports drift through it.
type Notifier struct {
	Client   client.Client
	Recorder events.EventRecorder
	// Events forwards drift to FluxCD, nil disables forwarding.
	Events *FluxEvents

	now func() time.Time
}

// Ensure creates or updates the Alert or the Application subscriptions that
// smc.spec.notifications asks for. Settings for the other GitOps tool are
// ignored so one template serves both.
func (n *Notifier) Ensure(ctx context.Context, smc *v1.SecretManagerConfig) error {
	cfg := smc.Spec.Notifications
	if cfg == nil {
		return nil
	}
	switch kind := smc.Spec.SourceKind(); {
	case kind == v1.SourceKindGitRepository && cfg.FluxCD != nil:
		return n.ensureAlert(ctx, smc, cfg.FluxCD.ProviderRef)
	case kind == v1.SourceKindApplication && cfg.ArgoCD != nil:
		return n.subscribe(ctx, smc, cfg.ArgoCD.Subscriptions)
	}
	return nil
}

// Drift records a warning event on smc and hands the drift to the
// configured GitOps tool.
func (n *Notifier) Drift(ctx context.Context, smc *v1.SecretManagerConfig, d Drift) error {
	msg := d.Message()
	if n.Recorder != nil {
		n.Recorder.Eventf(smc, nil, corev1.EventTypeWarning, ReasonDriftDetected, "Sync", "%s", msg)
	}

	cfg := smc.Spec.Notifications
	if cfg == nil {
		return nil
	}
	src := sourceKey(smc)
	switch kind := smc.Spec.SourceKind(); {
	case kind == v1.SourceKindGitRepository && cfg.FluxCD != nil && n.Events != nil:
		return n.Events.Post(ctx, eventv1.Event{
			InvolvedObject: corev1.ObjectReference{
				APIVersion: "source.toolkit.fluxcd.io/v1",
				Kind:       v1.SourceKindGitRepository,
				Name:       src.Name,
				Namespace:  src.Namespace,
			},
			Severity:  eventv1.EventSeverityInfo,
			Timestamp: metav1.NewTime(n.clock()),
			Message:   msg,
			Reason:    ReasonDriftDetected,
			Metadata: map[string]string{
				"revision":            d.Revision,
				"secretmanagerconfig": smc.Namespace + "/" + smc.Name,
			},
			ReportingController: ControllerName,
		})
	case kind == v1.SourceKindApplication && cfg.ArgoCD != nil:
		app, err := n.application(ctx, src)
		if err != nil {
			return err
		}
		stamp := n.clock().UTC().Format(time.RFC3339)
		return n.annotate(ctx, app, func(a map[string]string) {
			a[DriftAnnotation] = stamp
		})
	}
	return nil
}

func (n *Notifier) ensureAlert(ctx context.Context, smc *v1.SecretManagerConfig, ref v1.NotificationProviderRef) error {
	ns := ref.Namespace
	if ns == "" {
		ns = smc.Namespace
	}
	src := sourceKey(smc)

	alert := &unstructured.Unstructured{}
	alert.SetGroupVersionKind(AlertGVK)
	alert.SetName(AlertPrefix + smc.Name)
	alert.SetNamespace(ns)
	op, err := controllerutil.CreateOrUpdate(ctx, n.Client, alert, func() error {
		spec := map[string]interface{}{
			"providerRef":   map[string]interface{}{"name": ref.Name},
			"eventSeverity": eventv1.EventSeverityInfo,
			"eventSources": []interface{}{map[string]interface{}{
				"kind":      v1.SourceKindGitRepository,
				"name":      src.Name,
				"namespace": src.Namespace,
			}},
			"inclusionList": []interface{}{"^" + regexp.QuoteMeta(DriftMessagePrefix)},
		}
		if err := unstructured.SetNestedField(alert.Object, spec, "spec"); err != nil {
			return err
		}
		// owner references cannot cross namespaces
		if ns != smc.Namespace {
			return nil
		}
		return controllerutil.SetControllerReference(smc, alert, n.Client.Scheme())
	})
	if err != nil {
		return errors.WithMessagef(err, "failed to ensure Alert %s/%s", ns, alert.GetName())
	}
	if op != controllerutil.OperationResultNone {
		log.FromContext(ctx).Info("drift alert "+string(op), "alert", ns+"/"+alert.GetName())
	}
	return nil
}

func (n *Notifier) subscribe(ctx context.Context, smc *v1.SecretManagerConfig, subs []v1.NotificationSubscription) error {
	app, err := n.application(ctx, sourceKey(smc))
	if err != nil {
		return err
	}
	want := map[string]string{}
	for _, s := range subs {
		want[SubscribeAnnotationPrefix+s.Trigger+"."+s.Service] = s.Channel
	}
	return n.annotate(ctx, app, func(a map[string]string) {
		for k := range a {
			if _, ok := want[k]; !ok && strings.HasPrefix(k, SubscribeAnnotationPrefix+DriftTrigger+".") {
				delete(a, k)
			}
		}
		maps.Copy(a, want)
	})
}

func (n *Notifier) application(ctx context.Context, key types.NamespacedName) (*unstructured.Unstructured, error) {
	app := &unstructured.Unstructured{}
	app.SetGroupVersionKind(source.ApplicationGVK)
	if err := n.Client.Get(ctx, key, app); err != nil {
		return nil, errors.WithMessagef(err, "failed to get Application %s", key)
	}
	return app, nil
}

// annotate merge patches the annotations changed by mutate.
func (n *Notifier) annotate(ctx context.Context, obj *unstructured.Unstructured, mutate func(map[string]string)) error {
	orig := obj.DeepCopy()
	annotations := maps.Clone(obj.GetAnnotations())
	if annotations == nil {
		annotations = map[string]string{}
	}
	mutate(annotations)
	if maps.Equal(annotations, orig.GetAnnotations()) {
		return nil
	}
	obj.SetAnnotations(annotations)
	if err := n.Client.Patch(ctx, obj, client.MergeFrom(orig)); err != nil {
		return errors.WithMessagef(err, "failed to annotate %s %s/%s", obj.GetKind(), obj.GetNamespace(), obj.GetName())
	}
	return nil
}

func (n *Notifier) clock() time.Time {
	if n.now != nil {
		return n.now()
	}
	return time.Now()
}

func sourceKey(smc *v1.SecretManagerConfig) types.NamespacedName {
	ns := smc.Spec.SourceRef.Namespace
	if ns == "" {
		ns = smc.Namespace
	}
	return types.NamespacedName{Namespace: ns, Name: smc.Spec.SourceRef.Name}
}
