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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	v1 "github.com/contentful-labs/gitops-secret-syncer/api/v1"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/config"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/extract"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/metrics"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/notify"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/provider"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/rolevalidator"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/sops"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/source"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

type SourceResolver interface {
	Resolve(ctx context.Context, req source.Request) (*source.Artifact, error)
}

type EntryExtractor interface {
	Extract(ctx context.Context, req extract.Request) (*extract.Result, error)
}

type KeyLookup interface {
	Lookup(namespace, fallback string) (*sops.Key, error)
}

type RoleValidator interface {
	IsWhitelisted(ctx context.Context, p v1.Provider, namespace string) (bool, error)
}

type DriftNotifier interface {
	Ensure(ctx context.Context, smc *v1.SecretManagerConfig) error
	Drift(ctx context.Context, smc *v1.SecretManagerConfig, d notify.Drift) error
}

// SecretManagerConfigReconciler syncs the files of a GitOps source into the
// configured cloud secret and config stores.
type SecretManagerConfigReconciler struct {
	client.Client
	Log logr.Logger

	Sources       SourceResolver
	Extractor     EntryExtractor
	Keys          KeyLookup
	Targets       provider.TargetFactory
	Router        *provider.Router
	RoleValidator RoleValidator
	Notifier      DriftNotifier

	// PodNamespace holds the fallback SOPS key.
	PodNamespace            string
	Requeue                 config.RequeueConfig
	MaxConcurrentReconciles int

	once    sync.Once
	backoff *fibonacciBackoff
	states  *metrics.States
	now     func() time.Time
}

const (
	LogFieldSMC      = "SecretManagerConfig"
	LogFieldRevision = "revision"
	LogFieldProvider = "provider"
	LogFieldSecret   = "secret"
	LogFieldFile     = "file"
)

// +kubebuilder:rbac:groups=secrets.contentful.com,resources=secretmanagerconfigs,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=secrets.contentful.com,resources=secretmanagerconfigs/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=source.toolkit.fluxcd.io,resources=gitrepositories,verbs=get;list;watch
// +kubebuilder:rbac:groups=argoproj.io,resources=applications,verbs=get;list;watch;patch
// +kubebuilder:rbac:groups=core,resources=secrets,verbs=get;list;watch
// +kubebuilder:rbac:groups=core,resources=namespaces,verbs=get;list;watch
// +kubebuilder:rbac:groups=notification.toolkit.fluxcd.io,resources=alerts,verbs=get;create;update
// +kubebuilder:rbac:groups=events.k8s.io,resources=events,verbs=create;patch

func (r *SecretManagerConfigReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	r.init()
	start := r.clock()
	key := req.NamespacedName.String()
	logger := r.Log.WithValues(LogFieldSMC, key)
	ctx = log.IntoContext(ctx, logger)

	var smc v1.SecretManagerConfig
	if err := r.Get(ctx, req.NamespacedName, &smc); err != nil {
		if k8serrors.IsNotFound(err) {
			logger.Info("unable to fetch SecretManagerConfig, was maybe deleted")
			r.states.Delete(key)
			r.backoff.Reset(key)
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, errors.WithMessagef(err, "failed fetching SecretManagerConfig %s", key)
	}

	if trigger, ok := smc.Annotations[v1.ReconcileAnnotation]; ok {
		logger.Info("reconcile requested", "trigger", "annotation", "value", trigger)
	}

	if smc.Spec.Suspend {
		err := r.updateStatus(ctx, req.NamespacedName, func(st *v1.SecretManagerConfigStatus) {
			suspendedStatus(st, smc.Generation, r.clock())
		})
		r.observe(metrics.ResultSuspended, start)
		return ctrl.Result{}, errors.WithMessage(err, "failed to update status")
	}

	sr, report, err := r.run(ctx, &smc)
	return r.finish(ctx, &smc, sr, report, err, start)
}

// run is the body of a reconcile. Panics are converted into Unexpected errors.
func (r *SecretManagerConfigReconciler) run(ctx context.Context, smc *v1.SecretManagerConfig) (sr *SyncRequest, report *syncReport, err error) {
	report = &syncReport{}
	defer func() {
		if p := recover(); p != nil {
			err = syncerr.FromPanic(p)
		}
	}()

	sr, err = newSyncRequest(smc)
	if err != nil {
		return nil, report, err
	}
	r.ensureNotifications(ctx, smc)
	sr, err = r.sync(ctx, sr, report)
	if len(report.drifted) > 0 {
		r.notifyDrift(ctx, smc, report)
	}
	return sr, report, err
}

// Notification failures are logged and never fail the reconcile.
func (r *SecretManagerConfigReconciler) ensureNotifications(ctx context.Context, smc *v1.SecretManagerConfig) {
	if r.Notifier == nil {
		return
	}
	if err := r.Notifier.Ensure(ctx, smc); err != nil {
		log.FromContext(ctx).Error(err, "failed to set up drift notifications")
	}
}

func (r *SecretManagerConfigReconciler) notifyDrift(ctx context.Context, smc *v1.SecretManagerConfig, report *syncReport) {
	if r.Notifier == nil {
		return
	}
	d := notify.Drift{Revision: report.revision, Entries: report.drifted}
	if err := r.Notifier.Drift(ctx, smc, d); err != nil {
		log.FromContext(ctx).Error(err, "failed to send drift notification")
	}
}

func (r *SecretManagerConfigReconciler) sync(ctx context.Context, sr *SyncRequest, report *syncReport) (*SyncRequest, error) {
	logger := log.FromContext(ctx).WithValues(LogFieldProvider, sr.Provider)

	if r.RoleValidator != nil {
		allowed, err := r.RoleValidator.IsWhitelisted(ctx, sr.Spec.Provider, sr.Key.Namespace)
		if err != nil {
			return sr, syncerr.Wrap(syncerr.Source, err, "failed verifying provider identity")
		}
		if !allowed {
			return sr, &forbiddenError{syncerr.New(syncerr.Validation, "identity %q is not allowed in namespace %s", rolevalidator.Identity(sr.Spec.Provider), sr.Key.Namespace)}
		}
	}

	if err := r.setPhase(ctx, sr.Key, v1.PhaseCloning, fmt.Sprintf("resolving %s %s/%s", sr.Source.Kind, sr.Source.Namespace, sr.Source.Name)); err != nil {
		return sr, errors.WithMessage(err, "failed to update status")
	}
	artifact, err := r.Sources.Resolve(ctx, sr.Source)
	if err != nil {
		return sr, err
	}
	report.revision = artifact.Revision
	logger = logger.WithValues(LogFieldRevision, artifact.Revision)

	key, err := r.Keys.Lookup(sr.Key.Namespace, r.PodNamespace)
	if err != nil {
		if errors.Is(err, sops.ErrKeysNotSynced) {
			return sr, syncerr.Wrap(syncerr.SourceNotReady, err, "waiting for SOPS keys")
		}
		return sr, err
	}
	report.keyChecked = true
	if key != nil {
		report.keyAvailable = true
		report.keyName = key.Name
		report.keyNamespace = key.Namespace
	}

	result, err := r.Extractor.Extract(ctx, extract.Request{
		Root:          artifact.Root,
		BasePath:      sr.BasePath,
		KustomizePath: sr.KustomizePath,
		Environment:   sr.Environment,
		Prefix:        sr.Prefix,
		Key:           key,
	})
	recordDecryption(report, result)
	if err != nil {
		return sr, err
	}
	for _, f := range result.Files {
		if f.Err != nil {
			logger.Info("file skipped", LogFieldFile, f.Path, "error", f.Err.Error(), "kind", syncerr.KindOf(f.Err).String())
		}
	}

	writes, err := provider.Plan(result.Entries, provider.Options{
		Provider:       sr.Provider,
		Prefix:         sr.Prefix,
		Suffix:         sr.Suffix,
		Environment:    sr.Environment,
		ConfigsEnabled: sr.ConfigsEnabled,
		ParameterPath:  sr.ParameterPath,
	})
	if err != nil {
		return sr, err
	}
	if len(writes) == 0 {
		logger.Info("nothing to sync", "environment", sr.Environment)
		report.outcomes = []provider.Outcome{}
		return sr, nil
	}

	target, err := r.Targets.Target(ctx, sr.Spec)
	if err != nil {
		return sr, err
	}

	if err := r.setPhase(ctx, sr.Key, v1.PhaseUpdating, fmt.Sprintf("syncing %d entries", len(writes))); err != nil {
		return sr, errors.WithMessage(err, "failed to update status")
	}
	outcomes := r.Router.Sync(ctx, target, writes, sr.TriggerUpdate)
	report.outcomes = outcomes

	for _, o := range outcomes {
		metrics.EntriesSynced.WithLabelValues(sr.Provider, o.Store).Inc()
		switch {
		case o.Err != nil:
			metrics.EntryErrors.WithLabelValues(sr.Provider, o.Store).Inc()
			logger.Error(o.Err, "failed syncing entry", LogFieldSecret, o.Name)
		case o.Written:
			metrics.EntriesWritten.WithLabelValues(sr.Provider, o.Store).Inc()
			logger.Info("updated entry", LogFieldSecret, o.Name, "store", o.Store, "created", !o.Existed)
		}
		if o.Drifted && sr.DiffDiscovery {
			report.drifted = append(report.drifted, o.Name)
			metrics.DriftDetected.WithLabelValues(sr.Provider, o.Store).Inc()
			logger.Info("cloud value differs from git", LogFieldSecret, o.Name, "store", o.Store, "overwritten", o.Written)
		} else if o.Drifted && !sr.TriggerUpdate {
			logger.Info("update pending, triggerUpdate is disabled", LogFieldSecret, o.Name)
		}
	}
	return sr, provider.Failed(outcomes)
}

// finish writes the status, records metrics and picks the requeue delay.
func (r *SecretManagerConfigReconciler) finish(ctx context.Context, smc *v1.SecretManagerConfig, sr *SyncRequest, report *syncReport, err error, start time.Time) (ctrl.Result, error) {
	logger := log.FromContext(ctx)
	key := client.ObjectKeyFromObject(smc)
	now := r.clock()

	var result ctrl.Result
	var mutate func(*v1.SecretManagerConfigStatus)
	var outcome string

	switch {
	case err == nil:
		r.backoff.Reset(key.String())
		r.states.Set(key.String(), true)
		result.RequeueAfter = sr.ReconcileInterval
		outcome = metrics.ResultSuccess
		description := fmt.Sprintf("synced %d entries", countEntries(report.outcomes))
		if report.revision != "" {
			description += " from " + report.revision
		}
		logger.Info("reconciled", LogFieldRevision, report.revision, "entries", countEntries(report.outcomes))
		mutate = func(st *v1.SecretManagerConfigStatus) {
			applyReport(st, report, now)
			readyStatus(st, smc.Generation, description, now, result.RequeueAfter)
		}

	case syncerr.Is(err, syncerr.SourceNotReady):
		result.RequeueAfter = r.Requeue.NotReady
		outcome = metrics.ResultNotReady
		metrics.SourceNotReady.Inc()
		logger.Info("source not ready", "reason", err.Error())
		mutate = func(st *v1.SecretManagerConfigStatus) {
			applyReport(st, report, now)
			failedStatus(st, smc.Generation, err, "", now, result.RequeueAfter)
		}

	case !syncerr.Retryable(err):
		r.states.Set(key.String(), false)
		outcome = metrics.ResultValidation
		logger.Error(err, "invalid SecretManagerConfig, waiting for a spec change")
		reason := ""
		var forbidden *forbiddenError
		if errors.As(err, &forbidden) {
			reason = ReasonForbidden
		}
		mutate = func(st *v1.SecretManagerConfigStatus) {
			applyReport(st, report, now)
			failedStatus(st, smc.Generation, err, reason, now, 0)
		}

	default:
		r.states.Set(key.String(), false)
		result.RequeueAfter = r.backoff.Next(key.String())
		outcome = metrics.ResultError
		logger.Error(err, "reconcile failed", "kind", syncerr.KindOf(err).String(), "retryIn", result.RequeueAfter.String())
		mutate = func(st *v1.SecretManagerConfigStatus) {
			applyReport(st, report, now)
			failedStatus(st, smc.Generation, err, "", now, result.RequeueAfter)
		}
	}
	if syncerr.Counted(err) {
		metrics.ReconcileErrors.WithLabelValues(syncerr.KindOf(err).String()).Inc()
	}
	r.observe(outcome, start)

	if serr := r.updateStatus(ctx, key, mutate); serr != nil {
		if k8serrors.IsNotFound(serr) {
			return ctrl.Result{}, nil
		}
		logger.Error(serr, "failed to update SecretManagerConfig status")
		return result, nil
	}
	return result, nil
}

func (r *SecretManagerConfigReconciler) observe(result string, start time.Time) {
	metrics.Reconciles.WithLabelValues(result).Inc()
	metrics.ReconcileDuration.WithLabelValues(result).Observe(r.clock().Sub(start).Seconds())
}

func recordDecryption(report *syncReport, result *extract.Result) {
	if result == nil {
		return
	}
	report.decryptAttempt = result.EncryptedFiles() > 0
	if !report.decryptAttempt {
		report.decryption = v1.DecryptionNotApplicable
		return
	}
	failures := result.DecryptFailures()
	if len(failures) == 0 {
		report.decryption = v1.DecryptionSuccess
		return
	}
	metrics.DecryptFailures.Add(float64(len(failures)))
	report.decryption = v1.DecryptionPermanentFailure
	report.decryptError = failures[0].Err.Error()
	for _, f := range failures {
		if sops.Transient(f.Err) {
			report.decryption = v1.DecryptionTransientFailure
			report.decryptError = f.Err.Error()
			break
		}
	}
}

func countEntries(outcomes []provider.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err == nil {
			n += o.Entries
		}
	}
	return n
}

// forbiddenError marks a provider identity rejected by the namespace.
type forbiddenError struct {
	error
}

func (e *forbiddenError) Unwrap() error { return e.error }

func (r *SecretManagerConfigReconciler) init() {
	r.once.Do(func() {
		r.backoff = newFibonacciBackoff(r.Requeue.Error, r.Requeue.ErrorMax)
		r.states = metrics.NewStates()
	})
}

func (r *SecretManagerConfigReconciler) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *SecretManagerConfigReconciler) SetupWithManager(mgr ctrl.Manager) error {
	if r.Requeue.Error <= 0 {
		r.Requeue = config.Default().Requeue
	}
	r.init()
	if r.Router == nil {
		r.Router = &provider.Router{Concurrency: 1}
	}

	return ctrl.NewControllerManagedBy(mgr).
		For(&v1.SecretManagerConfig{}, builder.WithPredicates(predicate.Or[client.Object](
			predicate.GenerationChangedPredicate{},
			predicate.AnnotationChangedPredicate{},
		))).
		WithOptions(controller.Options{MaxConcurrentReconciles: r.MaxConcurrentReconciles}).
		Complete(r)
}
