package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	eventv1 "github.com/fluxcd/pkg/apis/event/v1beta1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/events"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	v1 "github.com/contentful-labs/gitops-secret-syncer/api/v1"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/source"
)

func testScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	s := runtime.NewScheme()
	require.NoError(t, v1.AddToScheme(s))
	for _, gvk := range []schema.GroupVersionKind{AlertGVK, source.ApplicationGVK} {
		s.AddKnownTypeWithName(gvk, &unstructured.Unstructured{})
		s.AddKnownTypeWithName(gvk.GroupVersion().WithKind(gvk.Kind+"List"), &unstructured.UnstructuredList{})
	}
	return s
}

func smcFor(kind string, notifications *v1.Notifications) *v1.SecretManagerConfig {
	return &v1.SecretManagerConfig{
		ObjectMeta: metav1.ObjectMeta{Name: "billing", Namespace: "team", UID: "uid-1"},
		Spec: v1.SecretManagerConfigSpec{
			SourceRef:     v1.SourceRef{Kind: kind, Name: "apps", Namespace: "gitops"},
			Notifications: notifications,
		},
	}
}

func application(annotations map[string]string) *unstructured.Unstructured {
	app := &unstructured.Unstructured{}
	app.SetGroupVersionKind(source.ApplicationGVK)
	app.SetName("apps")
	app.SetNamespace("gitops")
	app.SetAnnotations(annotations)
	return app
}

func getApplication(t *testing.T, c client.Client) *unstructured.Unstructured {
	t.Helper()
	app := &unstructured.Unstructured{}
	app.SetGroupVersionKind(source.ApplicationGVK)
	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Namespace: "gitops", Name: "apps"}, app))
	return app
}

func TestDriftMessage(t *testing.T) {
	d := Drift{Revision: "main@sha1:0123abc", Entries: []string{"svc-a", "svc-b"}}
	assert.Equal(t, "secret drift detected in 2 entries at main@sha1:0123abc: svc-a, svc-b", d.Message())

	var many []string
	for i := 0; i < 12; i++ {
		many = append(many, "e")
	}
	assert.Contains(t, Drift{Entries: many}.Message(), "and 2 more")
}

func TestEnsureFluxAlert(t *testing.T) {
	smc := smcFor(v1.SourceKindGitRepository, &v1.Notifications{
		FluxCD: &v1.FluxCDNotifications{ProviderRef: v1.NotificationProviderRef{Name: "slack"}},
	})
	c := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(smc).Build()
	n := &Notifier{Client: c}

	require.NoError(t, n.Ensure(context.Background(), smc))
	require.NoError(t, n.Ensure(context.Background(), smc))

	alert := &unstructured.Unstructured{}
	alert.SetGroupVersionKind(AlertGVK)
	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Namespace: "team", Name: "secret-drift-alert-billing"}, alert))

	provider, _, _ := unstructured.NestedString(alert.Object, "spec", "providerRef", "name")
	assert.Equal(t, "slack", provider)
	sources, _, _ := unstructured.NestedSlice(alert.Object, "spec", "eventSources")
	assert.Equal(t, []interface{}{map[string]interface{}{"kind": "GitRepository", "name": "apps", "namespace": "gitops"}}, sources)
	inclusion, _, _ := unstructured.NestedStringSlice(alert.Object, "spec", "inclusionList")
	assert.Equal(t, []string{"^secret drift detected"}, inclusion)

	owners := alert.GetOwnerReferences()
	require.Len(t, owners, 1)
	assert.Equal(t, "billing", owners[0].Name)
}

func TestEnsureFluxAlertInProviderNamespace(t *testing.T) {
	smc := smcFor(v1.SourceKindGitRepository, &v1.Notifications{
		FluxCD: &v1.FluxCDNotifications{ProviderRef: v1.NotificationProviderRef{Name: "slack", Namespace: "flux-system"}},
	})
	c := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(smc).Build()

	require.NoError(t, (&Notifier{Client: c}).Ensure(context.Background(), smc))

	alert := &unstructured.Unstructured{}
	alert.SetGroupVersionKind(AlertGVK)
	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Namespace: "flux-system", Name: "secret-drift-alert-billing"}, alert))
	assert.Empty(t, alert.GetOwnerReferences())
}

func TestEnsureArgoCDSubscriptions(t *testing.T) {
	smc := smcFor(v1.SourceKindApplication, &v1.Notifications{
		ArgoCD: &v1.ArgoCDNotifications{Subscriptions: []v1.NotificationSubscription{
			{Trigger: "drift-detected", Service: "slack", Channel: "#secrets-alerts"},
		}},
		FluxCD: &v1.FluxCDNotifications{ProviderRef: v1.NotificationProviderRef{Name: "ignored"}},
	})
	c := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(application(map[string]string{
		"notifications.argoproj.io/subscribe.drift-detected.email":   "old@example.com",
		"notifications.argoproj.io/subscribe.on-sync-failed.webhook": "ops",
	})).Build()

	require.NoError(t, (&Notifier{Client: c}).Ensure(context.Background(), smc))

	assert.Equal(t, map[string]string{
		"notifications.argoproj.io/subscribe.drift-detected.slack":   "#secrets-alerts",
		"notifications.argoproj.io/subscribe.on-sync-failed.webhook": "ops",
	}, getApplication(t, c).GetAnnotations())
}

func TestEnsureWithoutNotifications(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(testScheme(t)).Build()
	assert.NoError(t, (&Notifier{Client: c}).Ensure(context.Background(), smcFor(v1.SourceKindApplication, nil)))
}

func TestDriftMarksApplication(t *testing.T) {
	smc := smcFor(v1.SourceKindApplication, &v1.Notifications{ArgoCD: &v1.ArgoCDNotifications{}})
	c := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(application(nil)).Build()
	recorder := events.NewFakeRecorder(4)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	n := &Notifier{Client: c, Recorder: recorder, now: func() time.Time { return now }}

	require.NoError(t, n.Drift(context.Background(), smc, Drift{Revision: "abc1234", Entries: []string{"svc-a"}}))

	assert.Equal(t, "2026-10-19T12:00:00Z", getApplication(t, c).GetAnnotations()[DriftAnnotation])
	select {
	case e := <-recorder.Events:
		assert.Equal(t, "Warning DriftDetected secret drift detected in 1 entries at abc1234: svc-a", e)
	default:
		t.Error("no event recorded")
	}
}

func TestDriftPostsFluxEvent(t *testing.T) {
	received := make(chan eventv1.Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e eventv1.Event
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		received <- e
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	smc := smcFor(v1.SourceKindGitRepository, &v1.Notifications{
		FluxCD: &v1.FluxCDNotifications{ProviderRef: v1.NotificationProviderRef{Name: "slack"}},
	})
	n := &Notifier{Events: NewFluxEvents(srv.URL, time.Second)}

	require.NoError(t, n.Drift(context.Background(), smc, Drift{Revision: "main@sha1:0123abc", Entries: []string{"svc-a"}}))

	e := <-received
	assert.Equal(t, "GitRepository", e.InvolvedObject.Kind)
	assert.Equal(t, "apps", e.InvolvedObject.Name)
	assert.Equal(t, "gitops", e.InvolvedObject.Namespace)
	assert.Equal(t, ReasonDriftDetected, e.Reason)
	assert.Equal(t, "main@sha1:0123abc", e.Metadata["revision"])
	assert.Equal(t, ControllerName, e.ReportingController)
}

func TestFluxEventsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewFluxEvents(srv.URL, time.Second).Post(context.Background(), eventv1.Event{Message: "x"})
	assert.ErrorContains(t, err, "400")
}
