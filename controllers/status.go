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
	"time"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/util/retry"

	v1 "github.com/contentful-labs/gitops-secret-syncer/api/v1"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/provider"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

// Ready condition reasons.
const (
	ReasonSynced    = "Synced"
	ReasonSuspended = "Suspended"
	ReasonForbidden = "IdentityNotAllowed"
)

// syncReport collects what one reconcile did, for the status write.
type syncReport struct {
	revision string
	outcomes []provider.Outcome
	drifted  []string

	decryption     string
	decryptAttempt bool
	decryptError   string

	keyChecked   bool
	keyAvailable bool
	keyName      string
	keyNamespace string
}

// updateStatus re-reads the resource and applies mutate, retrying on
// conflicts with concurrent writers.
func (r *SecretManagerConfigReconciler) updateStatus(ctx context.Context, key types.NamespacedName, mutate func(*v1.SecretManagerConfigStatus)) error {
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		var smc v1.SecretManagerConfig
		if err := r.Get(ctx, key, &smc); err != nil {
			return err
		}
		mutate(&smc.Status)
		return r.Status().Update(ctx, &smc)
	})
}

// setPhase records a progress phase.
func (r *SecretManagerConfigReconciler) setPhase(ctx context.Context, key types.NamespacedName, phase, description string) error {
	return r.updateStatus(ctx, key, func(st *v1.SecretManagerConfigStatus) {
		st.Phase = phase
		st.Description = description
	})
}

func applyReport(st *v1.SecretManagerConfigStatus, report *syncReport, now time.Time) {
	if report == nil {
		return
	}
	if report.revision != "" {
		st.Revision = report.revision
	}
	if report.decryptAttempt {
		t := metav1.NewTime(now)
		st.LastDecryptionAttempt = &t
	}
	if report.decryption != "" {
		st.DecryptionStatus = report.decryption
		st.LastDecryptionError = report.decryptError
	}
	if report.keyChecked {
		st.SOPSKeyAvailable = report.keyAvailable
		st.SOPSKeySecretName = report.keyName
		st.SOPSKeyNamespace = report.keyNamespace
	}

	if report.outcomes == nil {
		return
	}
	var synced, updated, properties int32
	if st.Sync == nil {
		st.Sync = &v1.SyncStatus{}
	}
	if st.Sync.Secrets == nil {
		st.Sync.Secrets = map[string]v1.SyncState{}
	}
	if st.Sync.Properties == nil {
		st.Sync.Properties = map[string]v1.SyncState{}
	}
	for _, o := range report.outcomes {
		if o.Err != nil {
			continue
		}
		states := st.Sync.Secrets
		if o.Properties {
			states = st.Sync.Properties
			properties += int32(o.Entries)
		} else {
			synced += int32(o.Entries)
		}
		state := states[o.Name]
		state.Exists = o.Existed || o.Written
		if o.Written {
			state.UpdateCount++
			updated++
		}
		states[o.Name] = state
	}
	st.SecretsSynced = synced
	st.SecretsUpdated = updated
	st.PropertiesSynced = properties
}

// readyStatus marks a successful sync.
func readyStatus(st *v1.SecretManagerConfigStatus, generation int64, description string, now time.Time, next time.Duration) {
	st.Phase = v1.PhaseReady
	st.Description = description
	st.ObservedGeneration = generation
	setTimes(st, now, next)
	meta.SetStatusCondition(&st.Conditions, metav1.Condition{
		Type:               v1.ConditionReady,
		Status:             metav1.ConditionTrue,
		Reason:             ReasonSynced,
		Message:            description,
		ObservedGeneration: generation,
	})
}

// failedStatus records err. Waiting on a source keeps the resource Pending.
func failedStatus(st *v1.SecretManagerConfigStatus, generation int64, err error, reason string, now time.Time, next time.Duration) {
	st.Phase = v1.PhaseFailed
	if syncerr.Is(err, syncerr.SourceNotReady) {
		st.Phase = v1.PhasePending
	}
	if reason == "" {
		reason = syncerr.KindOf(err).String()
	}
	st.Description = err.Error()
	st.ObservedGeneration = generation
	setTimes(st, now, next)
	meta.SetStatusCondition(&st.Conditions, metav1.Condition{
		Type:               v1.ConditionReady,
		Status:             metav1.ConditionFalse,
		Reason:             reason,
		Message:            err.Error(),
		ObservedGeneration: generation,
	})
}

func suspendedStatus(st *v1.SecretManagerConfigStatus, generation int64, now time.Time) {
	st.Phase = v1.PhaseSuspended
	st.Description = "reconciliation is suspended"
	st.ObservedGeneration = generation
	setTimes(st, now, 0)
	meta.SetStatusCondition(&st.Conditions, metav1.Condition{
		Type:               v1.ConditionReady,
		Status:             metav1.ConditionFalse,
		Reason:             ReasonSuspended,
		Message:            "reconciliation is suspended",
		ObservedGeneration: generation,
	})
}

func setTimes(st *v1.SecretManagerConfigStatus, now time.Time, next time.Duration) {
	t := metav1.NewTime(now)
	st.LastReconcileTime = &t
	if next <= 0 {
		st.NextReconcileTime = nil
		return
	}
	n := metav1.NewTime(now.Add(next))
	st.NextReconcileTime = &n
}
