package sops

import (
	"testing"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/tools/cache"
)

func TestWatcherHandler(t *testing.T) {
	store := NewKeyStore()
	store.MarkSynced()
	w := NewWatcher(fake.NewClientset(), store, logr.Discard())
	h := w.handler()

	h.OnAdd(keySecret("team", "sops-gpg-key", "key", gpgKey), true)
	h.OnAdd(keySecret("team", "unrelated", "key", gpgKey), false)
	h.OnAdd(&corev1.ConfigMap{}, false)

	key, _ := store.Lookup("team", "")
	if key == nil || key.Name != "sops-gpg-key" {
		t.Fatalf("wanted sops-gpg-key got %+v", key)
	}
	if len(store.keys) != 1 {
		t.Errorf("unrelated secrets were stored: %d keys", len(store.keys))
	}

	h.OnDelete(cache.DeletedFinalStateUnknown{
		Key: "team/sops-gpg-key",
		Obj: keySecret("team", "sops-gpg-key", "key", gpgKey),
	})
	if key, _ := store.Lookup("team", ""); key != nil {
		t.Errorf("tombstoned key still present")
	}
}
