package controllers

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	v1 "github.com/contentful-labs/gitops-secret-syncer/api/v1"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/config"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/extract"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/metrics"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/provider"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/sops"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/source"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

var testKey = types.NamespacedName{Namespace: "team", Name: "billing"}

func newSMC(mutate ...func(*v1.SecretManagerConfig)) *v1.SecretManagerConfig {
	smc := &v1.SecretManagerConfig{
		ObjectMeta: metav1.ObjectMeta{Namespace: testKey.Namespace, Name: testKey.Name, Generation: 3},
		Spec: v1.SecretManagerConfigSpec{
			SourceRef: v1.SourceRef{Kind: v1.SourceKindGitRepository, Name: "apps", Namespace: "flux-system"},
			Provider: v1.Provider{
				Type: v1.ProviderAWS,
				AWS:  &v1.AWSProvider{Region: "eu-west-1"},
			},
			Secrets: v1.SecretsConfig{Environment: "dev", Suffix: "dev"},
		},
	}
	for _, m := range mutate {
		m(smc)
	}
	return smc
}

type harness struct {
	client    client.Client
	r         *SecretManagerConfigReconciler
	resolver  *fakeResolver
	extractor *fakeExtractor
	keys      *fakeKeys
	targets   *fakeTargets
	now       time.Time
}

func newHarness(t *testing.T, smc *v1.SecretManagerConfig) *harness {
	t.Helper()
	scheme := runtime.NewScheme()
	require.NoError(t, clientgoscheme.AddToScheme(scheme))
	require.NoError(t, v1.AddToScheme(scheme))

	builder := fake.NewClientBuilder().WithScheme(scheme).WithStatusSubresource(&v1.SecretManagerConfig{})
	if smc != nil {
		builder = builder.WithObjects(smc)
	}
	h := &harness{
		client: builder.Build(),
		resolver: &fakeResolver{artifact: &source.Artifact{
			Kind:        v1.SourceKindGitRepository,
			Root:        "/cache/flux-artifact/flux-system/apps/main-sha-0123abc",
			Revision:    "main@sha1:0123abcdef",
			Fingerprint: "0123abc",
		}},
		extractor: &fakeExtractor{result: &extract.Result{
			Entries: []extract.Entry{
				{Key: "API_KEY", Value: "abc123", Service: "billing", Secret: true},
				{Key: "db.host", Value: "db.local", Service: "billing"},
			},
			Files: []extract.FileResult{
				{Path: "billing/deployment-configuration/profiles/dev/application.secrets.env"},
				{Path: "billing/deployment-configuration/profiles/dev/application.properties"},
			},
			Services: []string{"billing"},
		}},
		keys: &fakeKeys{},
		targets: &fakeTargets{
			secrets: newMemStore("SecretsManager"),
			configs: newMemStore("ParameterStore"),
		},
		now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}
	h.r = &SecretManagerConfigReconciler{
		Client:       h.client,
		Log:          testr.New(t),
		Sources:      h.resolver,
		Extractor:    h.extractor,
		Keys:         h.keys,
		Targets:      h.targets,
		Router:       &provider.Router{Concurrency: 2},
		PodNamespace: "syncer-system",
		Requeue: config.RequeueConfig{
			NotReady: 30 * time.Second,
			Error:    60 * time.Second,
			ErrorMax: 10 * time.Minute,
		},
		now: func() time.Time { return h.now },
	}
	return h
}

func (h *harness) reconcile(t *testing.T) ctrl.Result {
	t.Helper()
	res, err := h.r.Reconcile(context.Background(), ctrl.Request{NamespacedName: testKey})
	require.NoError(t, err)
	return res
}

func (h *harness) status(t *testing.T) v1.SecretManagerConfigStatus {
	t.Helper()
	var smc v1.SecretManagerConfig
	require.NoError(t, h.client.Get(context.Background(), testKey, &smc))
	return smc.Status
}

func readyCondition(st v1.SecretManagerConfigStatus) *metav1.Condition {
	for i := range st.Conditions {
		if st.Conditions[i].Type == v1.ConditionReady {
			return &st.Conditions[i]
		}
	}
	return nil
}

func TestReconcileSyncsEntries(t *testing.T) {
	h := newHarness(t, newSMC())

	res := h.reconcile(t)
	assert.Equal(t, time.Minute, res.RequeueAfter)

	st := h.status(t)
	assert.Equal(t, v1.PhaseReady, st.Phase)
	assert.Equal(t, "main@sha1:0123abcdef", st.Revision)
	assert.Equal(t, int64(3), st.ObservedGeneration)
	assert.Equal(t, int32(1), st.SecretsSynced)
	assert.Equal(t, int32(2), st.SecretsUpdated)
	assert.Equal(t, int32(1), st.PropertiesSynced)
	assert.Equal(t, v1.DecryptionNotApplicable, st.DecryptionStatus)
	assert.False(t, st.SOPSKeyAvailable)
	require.NotNil(t, st.NextReconcileTime)
	assert.Equal(t, h.now.Add(time.Minute).Unix(), st.NextReconcileTime.Unix())

	cond := readyCondition(st)
	require.NotNil(t, cond)
	assert.Equal(t, metav1.ConditionTrue, cond.Status)
	assert.Equal(t, ReasonSynced, cond.Reason)

	assert.Equal(t, "abc123", h.targets.secrets.values["billing-api_key-dev"])
	assert.JSONEq(t, `{"db.host":"db.local"}`, h.targets.secrets.values["billing-properties-dev"])
	assert.Equal(t, v1.SyncState{Exists: true, UpdateCount: 1}, st.Sync.Secrets["billing-api_key-dev"])
	assert.Equal(t, v1.SyncState{Exists: true, UpdateCount: 1}, st.Sync.Properties["billing-properties-dev"])

	assert.Equal(t, "flux-system", h.resolver.requests[0].Namespace)
	assert.Equal(t, 5*time.Minute, h.resolver.requests[0].PullInterval)
	assert.Equal(t, "dev", h.extractor.last.Environment)

	// unchanged entries are not written again
	h.reconcile(t)
	assert.Equal(t, 2, h.targets.secrets.puts)
	st = h.status(t)
	assert.Equal(t, int32(0), st.SecretsUpdated)
	assert.Equal(t, int32(1), st.Sync.Secrets["billing-api_key-dev"].UpdateCount)
}

func TestReconcileRoutesConfigs(t *testing.T) {
	h := newHarness(t, newSMC(func(smc *v1.SecretManagerConfig) {
		smc.Spec.Configs = &v1.ConfigsConfig{Enabled: true, ParameterPath: "/svc/dev"}
	}))

	h.reconcile(t)
	assert.Equal(t, "db.local", h.targets.configs.values["/svc/dev/db.host"])
	assert.NotContains(t, h.targets.secrets.values, "billing-properties-dev")
	assert.Equal(t, int32(1), h.status(t).PropertiesSynced)
}

func TestReconcileSourceNotReady(t *testing.T) {
	h := newHarness(t, newSMC())
	h.resolver.err = syncerr.New(syncerr.SourceNotReady, "GitRepository flux-system/apps has no artifact yet")

	before := testutil.ToFloat64(metrics.ReconcileErrors.WithLabelValues(syncerr.SourceNotReady.String()))
	for i := 0; i < 3; i++ {
		res := h.reconcile(t)
		assert.Equal(t, 30*time.Second, res.RequeueAfter)
	}
	after := testutil.ToFloat64(metrics.ReconcileErrors.WithLabelValues(syncerr.SourceNotReady.String()))
	assert.Equal(t, before, after)

	st := h.status(t)
	assert.Equal(t, v1.PhasePending, st.Phase)
	assert.Equal(t, syncerr.SourceNotReady.String(), readyCondition(st).Reason)
}

func TestReconcileSourceErrorBacksOff(t *testing.T) {
	h := newHarness(t, newSMC())
	h.resolver.err = syncerr.Wrap(syncerr.Source, errBoom, "downloading artifact")

	before := testutil.ToFloat64(metrics.ReconcileErrors.WithLabelValues(syncerr.Source.String()))
	var delays []time.Duration
	for i := 0; i < 4; i++ {
		delays = append(delays, h.reconcile(t).RequeueAfter)
	}
	assert.Equal(t, []time.Duration{time.Minute, time.Minute, 2 * time.Minute, 3 * time.Minute}, delays)
	assert.Equal(t, before+4, testutil.ToFloat64(metrics.ReconcileErrors.WithLabelValues(syncerr.Source.String())))

	st := h.status(t)
	assert.Equal(t, v1.PhaseFailed, st.Phase)
	assert.Contains(t, st.Description, "boom")

	// a success resets the backoff
	h.resolver.err = nil
	h.reconcile(t)
	h.resolver.err = errBoom
	assert.Equal(t, time.Minute, h.reconcile(t).RequeueAfter)
}

func TestReconcileValidationIsTerminal(t *testing.T) {
	for _, test := range []struct {
		name   string
		mutate func(*v1.SecretManagerConfig)
	}{
		{name: "kind", mutate: func(s *v1.SecretManagerConfig) { s.Spec.SourceRef.Kind = "Bucket" }},
		{name: "environment", mutate: func(s *v1.SecretManagerConfig) { s.Spec.Secrets.Environment = "" }},
		{name: "region", mutate: func(s *v1.SecretManagerConfig) { s.Spec.Provider.AWS.Region = "moon-1" }},
		{name: "interval", mutate: func(s *v1.SecretManagerConfig) { s.Spec.ReconcileInterval = "30s" }},
		{name: "parameter path", mutate: func(s *v1.SecretManagerConfig) {
			s.Spec.Configs = &v1.ConfigsConfig{Enabled: true, ParameterPath: "no-slash"}
		}},
	} {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t, newSMC(test.mutate))
			before := testutil.ToFloat64(metrics.ReconcileErrors.WithLabelValues(syncerr.Validation.String()))
			res := h.reconcile(t)
			assert.Zero(t, res.RequeueAfter)
			assert.Equal(t, before+1, testutil.ToFloat64(metrics.ReconcileErrors.WithLabelValues(syncerr.Validation.String())))

			st := h.status(t)
			assert.Equal(t, v1.PhaseFailed, st.Phase)
			assert.Equal(t, syncerr.Validation.String(), readyCondition(st).Reason)
			assert.Nil(t, st.NextReconcileTime)
			assert.Zero(t, h.targets.secrets.puts)
		})
	}
}

func TestReconcileSuspended(t *testing.T) {
	h := newHarness(t, newSMC(func(s *v1.SecretManagerConfig) { s.Spec.Suspend = true }))

	res := h.reconcile(t)
	assert.Zero(t, res.RequeueAfter)
	assert.Equal(t, v1.PhaseSuspended, h.status(t).Phase)
	assert.Empty(t, h.resolver.requests)
}

func TestReconcileRecoversPanics(t *testing.T) {
	h := newHarness(t, newSMC())
	h.extractor.panic = true

	res := h.reconcile(t)
	assert.Equal(t, time.Minute, res.RequeueAfter)
	st := h.status(t)
	assert.Equal(t, v1.PhaseFailed, st.Phase)
	assert.Equal(t, syncerr.Unexpected.String(), readyCondition(st).Reason)
}

func TestReconcileWaitsForKeys(t *testing.T) {
	h := newHarness(t, newSMC())
	h.keys.err = sops.ErrKeysNotSynced

	res := h.reconcile(t)
	assert.Equal(t, 30*time.Second, res.RequeueAfter)
	assert.Equal(t, v1.PhasePending, h.status(t).Phase)
}

func TestReconcileDecryptionStatus(t *testing.T) {
	h := newHarness(t, newSMC())
	h.extractor.result.Files = []extract.FileResult{
		{Path: "a/application.secrets.env", Encrypted: true},
		{Path: "a/application.secrets.yaml", Encrypted: true, Err: syncerr.Wrap(syncerr.Decrypt, sops.ErrNoKey, "decrypting")},
	}

	h.reconcile(t)
	st := h.status(t)
	assert.Equal(t, v1.PhaseReady, st.Phase)
	assert.Equal(t, v1.DecryptionPermanentFailure, st.DecryptionStatus)
	assert.Contains(t, st.LastDecryptionError, "no SOPS private key")
	assert.NotNil(t, st.LastDecryptionAttempt)
}

func TestReconcileAllFilesFailed(t *testing.T) {
	h := newHarness(t, newSMC())
	h.extractor.err = syncerr.Wrap(syncerr.Decrypt, context.DeadlineExceeded, "decrypting")
	h.extractor.result.Files = []extract.FileResult{
		{Path: "a/application.secrets.env", Encrypted: true, Err: h.extractor.err},
	}

	res := h.reconcile(t)
	assert.Equal(t, time.Minute, res.RequeueAfter)
	st := h.status(t)
	assert.Equal(t, v1.PhaseFailed, st.Phase)
	assert.Equal(t, v1.DecryptionTransientFailure, st.DecryptionStatus)
	assert.Zero(t, h.targets.secrets.puts)
}

func TestReconcileProviderFailure(t *testing.T) {
	h := newHarness(t, newSMC())
	h.targets.secrets.fail = errBoom

	res := h.reconcile(t)
	assert.Equal(t, time.Minute, res.RequeueAfter)
	st := h.status(t)
	assert.Equal(t, v1.PhaseFailed, st.Phase)
	assert.Equal(t, syncerr.Provider.String(), readyCondition(st).Reason)
}

func TestReconcileTriggerUpdateDisabled(t *testing.T) {
	off := false
	h := newHarness(t, newSMC(func(s *v1.SecretManagerConfig) { s.Spec.TriggerUpdate = &off }))
	h.targets.secrets.values["billing-api_key-dev"] = "old"

	h.reconcile(t)
	assert.Zero(t, h.targets.secrets.puts)
	assert.Equal(t, "old", h.targets.secrets.values["billing-api_key-dev"])
	assert.Equal(t, v1.PhaseReady, h.status(t).Phase)
}

func TestReconcileNotifiesDrift(t *testing.T) {
	h := newHarness(t, newSMC())
	n := &fakeNotifier{}
	h.r.Notifier = n
	h.targets.secrets.values["billing-api_key-dev"] = "old"

	h.reconcile(t)
	assert.Equal(t, []string{"billing"}, n.ensured)
	require.Len(t, n.drifts, 1)
	assert.Equal(t, []string{"billing-api_key-dev"}, n.drifts[0].Entries)
	assert.Equal(t, "main@sha1:0123abcdef", n.drifts[0].Revision)

	// in sync now, nothing more to report
	h.reconcile(t)
	assert.Len(t, n.ensured, 2)
	assert.Len(t, n.drifts, 1)
}

func TestReconcileNotificationFailureIsIgnored(t *testing.T) {
	h := newHarness(t, newSMC())
	h.r.Notifier = &fakeNotifier{err: errBoom}
	h.targets.secrets.values["billing-api_key-dev"] = "old"

	h.reconcile(t)
	assert.Equal(t, v1.PhaseReady, h.status(t).Phase)
	assert.Equal(t, "abc123", h.targets.secrets.values["billing-api_key-dev"])
}

func TestReconcileDriftWithoutDiffDiscovery(t *testing.T) {
	off := false
	h := newHarness(t, newSMC(func(s *v1.SecretManagerConfig) { s.Spec.DiffDiscovery = &off }))
	n := &fakeNotifier{}
	h.r.Notifier = n
	h.targets.secrets.values["billing-api_key-dev"] = "old"

	h.reconcile(t)
	assert.Empty(t, n.drifts)
}

func TestReconcileForbiddenIdentity(t *testing.T) {
	h := newHarness(t, newSMC(func(s *v1.SecretManagerConfig) {
		s.Spec.Provider.AWS.Auth = &v1.AWSAuth{RoleARN: "writer"}
	}))
	h.r.RoleValidator = fakeRoleValidator{allowed: false}

	res := h.reconcile(t)
	assert.Zero(t, res.RequeueAfter)
	st := h.status(t)
	assert.Equal(t, ReasonForbidden, readyCondition(st).Reason)
	assert.Empty(t, h.resolver.requests)
}

func TestReconcileSOPSKeyStatus(t *testing.T) {
	h := newHarness(t, newSMC())
	h.keys.key = &sops.Key{Kind: sops.KeyAge, Name: "sops-private-key", Namespace: "syncer-system"}

	h.reconcile(t)
	st := h.status(t)
	assert.True(t, st.SOPSKeyAvailable)
	assert.Equal(t, "sops-private-key", st.SOPSKeySecretName)
	assert.Equal(t, "syncer-system", st.SOPSKeyNamespace)
	assert.Same(t, h.keys.key, h.extractor.last.Key)
}

func TestReconcileDeleted(t *testing.T) {
	h := newHarness(t, nil)
	res := h.reconcile(t)
	assert.Zero(t, res)
}

func TestReconcileNothingToSync(t *testing.T) {
	h := newHarness(t, newSMC())
	h.extractor.result = &extract.Result{}

	res := h.reconcile(t)
	assert.Equal(t, time.Minute, res.RequeueAfter)
	st := h.status(t)
	assert.Equal(t, v1.PhaseReady, st.Phase)
	assert.Zero(t, st.SecretsSynced)
	assert.Zero(t, h.targets.secrets.puts)
}
