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

// Package metrics holds the controller's Prometheus collectors. They are
// served by the controller-runtime metrics endpoint.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const namespace = "gitops_secret_syncer"

// Reconcile results.
const (
	ResultSuccess    = "success"
	ResultError      = "error"
	ResultNotReady   = "not_ready"
	ResultValidation = "validation"
	ResultSuspended  = "suspended"
)

var (
	Reconciles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciles_total",
		Help:      "Reconciliations by result",
	}, []string{"result"})

	// ReconcileErrors is never incremented while waiting on a source.
	ReconcileErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_errors_total",
		Help:      "Failed reconciliations by error kind",
	}, []string{"kind"})

	SourceNotReady = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_not_ready_total",
		Help:      "Reconciliations that waited on a GitOps source",
	})

	ReconcileDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of reconciliations",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"result"})

	EntriesSynced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entries_synced_total",
		Help:      "Entries checked against a cloud store",
	}, []string{"provider", "store"})

	EntriesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entries_written_total",
		Help:      "Entries that created a new version in a cloud store",
	}, []string{"provider", "store"})

	EntryErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entry_errors_total",
		Help:      "Entries that failed to sync",
	}, []string{"provider", "store"})

	DriftDetected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "drift_detected_total",
		Help:      "Cloud values that differed from git",
	}, []string{"provider", "store"})

	DecryptFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decrypt_failures_total",
		Help:      "Files that failed to decrypt",
	})

	Resources = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "resources",
		Help:      "SecretManagerConfigs by sync state",
	}, []string{"state"})
)

func init() {
	metrics.Registry.MustRegister(
		Reconciles,
		ReconcileErrors,
		SourceNotReady,
		ReconcileDuration,
		EntriesSynced,
		EntriesWritten,
		EntryErrors,
		DriftDetected,
		DecryptFailures,
		Resources,
	)
}

// States tracks the last sync state of each resource and publishes the
// totals on Resources.
type States struct {
	mu     sync.Mutex
	states map[string]bool
}

func NewStates() *States {
	return &States{states: map[string]bool{}}
}

// Set records whether the resource key last synced successfully.
func (s *States) Set(key string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = ok
	s.publish()
}

// Delete forgets a removed resource.
func (s *States) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key)
	s.publish()
}

func (s *States) publish() {
	ready, failing := 0, 0
	for _, ok := range s.states {
		if ok {
			ready++
		} else {
			failing++
		}
	}
	Resources.WithLabelValues("ready").Set(float64(ready))
	Resources.WithLabelValues("failing").Set(float64(failing))
}
