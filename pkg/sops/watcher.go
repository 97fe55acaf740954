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

package sops

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
)

// Watcher keeps a KeyStore in sync with the SOPS key secrets of all
// namespaces. Only secrets named after KeySecretNames are listed.
type Watcher struct {
	client kubernetes.Interface
	store  *KeyStore
	resync time.Duration
	log    logr.Logger
}

func NewWatcher(client kubernetes.Interface, store *KeyStore, log logr.Logger) *Watcher {
	return &Watcher{
		client: client,
		store:  store,
		resync: 10 * time.Minute,
		log:    log,
	}
}

// Start implements manager.Runnable.
func (w *Watcher) Start(ctx context.Context) error {
	eventHandler := w.handler()

	var synced []cache.InformerSynced
	for _, name := range KeySecretNames {
		_, informer := cache.NewInformerWithOptions(cache.InformerOptions{
			ListerWatcher: w.listWatch(ctx, name),
			ObjectType:    &corev1.Secret{},
			Handler:       eventHandler,
			ResyncPeriod:  w.resync,
		})
		go informer.Run(ctx.Done())
		synced = append(synced, informer.HasSynced)
	}

	if !cache.WaitForCacheSync(ctx.Done(), synced...) {
		return fmt.Errorf("failed to sync SOPS key cache")
	}
	w.store.MarkSynced()
	w.log.Info("SOPS key cache synced")

	<-ctx.Done()
	return nil
}

// handler mirrors key secrets into the store.
func (w *Watcher) handler() cache.ResourceEventHandler {
	return &cache.FilteringResourceEventHandler{
		FilterFunc: func(obj interface{}) bool {
			secret, ok := asSecret(obj)
			return ok && isKeySecretName(secret.Name)
		},
		Handler: cache.ResourceEventHandlerFuncs{
			AddFunc: func(obj interface{}) {
				secret, _ := asSecret(obj)
				w.store.Set(secret)
				w.log.V(1).Info("SOPS key secret observed", "namespace", secret.Namespace, "name", secret.Name)
			},
			UpdateFunc: func(_, obj interface{}) {
				secret, _ := asSecret(obj)
				w.store.Set(secret)
			},
			DeleteFunc: func(obj interface{}) {
				secret, _ := asSecret(obj)
				w.store.Delete(secret.Namespace, secret.Name)
				w.log.Info("SOPS key secret removed", "namespace", secret.Namespace, "name", secret.Name)
			},
		},
	}
}

// NeedLeaderElection implements manager.LeaderElectionRunnable.
func (w *Watcher) NeedLeaderElection() bool {
	return false
}

func (w *Watcher) listWatch(ctx context.Context, name string) *cache.ListWatch {
	selector := fields.OneTermEqualSelector("metadata.name", name).String()
	secrets := w.client.CoreV1().Secrets(metav1.NamespaceAll)
	return &cache.ListWatch{
		ListFunc: func(opts metav1.ListOptions) (runtime.Object, error) {
			opts.FieldSelector = selector
			return secrets.List(ctx, opts)
		},
		WatchFunc: func(opts metav1.ListOptions) (watch.Interface, error) {
			opts.FieldSelector = selector
			return secrets.Watch(ctx, opts)
		},
	}
}

func asSecret(obj interface{}) (*corev1.Secret, bool) {
	if tombstone, ok := obj.(cache.DeletedFinalStateUnknown); ok {
		obj = tombstone.Obj
	}
	secret, ok := obj.(*corev1.Secret)
	return secret, ok
}

func isKeySecretName(name string) bool {
	for _, n := range KeySecretNames {
		if n == name {
			return true
		}
	}
	return false
}
