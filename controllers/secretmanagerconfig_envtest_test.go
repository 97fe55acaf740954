package controllers

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	v1 "github.com/contentful-labs/gitops-secret-syncer/api/v1"
)

var _ = Describe("SecretManagerConfig controller", func() {
	const (
		timeout  = 20 * time.Second
		interval = 250 * time.Millisecond
	)

	newResource := func(name string) *v1.SecretManagerConfig {
		return &v1.SecretManagerConfig{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: testNamespace},
			Spec: v1.SecretManagerConfigSpec{
				SourceRef: v1.SourceRef{Kind: v1.SourceKindGitRepository, Name: "apps", Namespace: "flux-system"},
				Provider: v1.Provider{
					Type: v1.ProviderAWS,
					AWS:  &v1.AWSProvider{Region: "us-west-2"},
				},
				Secrets: v1.SecretsConfig{Environment: "prod", Suffix: "prod"},
			},
		}
	}

	phaseOf := func(key types.NamespacedName) func() string {
		return func() string {
			var smc v1.SecretManagerConfig
			if err := k8sClient.Get(ctx, key, &smc); err != nil {
				return ""
			}
			return smc.Status.Phase
		}
	}

	It("syncs the extracted entries and reports Ready", func() {
		smc := newResource("orders")
		Expect(k8sClient.Create(ctx, smc)).To(Succeed())
		key := types.NamespacedName{Namespace: testNamespace, Name: "orders"}

		Eventually(phaseOf(key), timeout, interval).Should(Equal(v1.PhaseReady))

		var got v1.SecretManagerConfig
		Expect(k8sClient.Get(ctx, key, &got)).To(Succeed())
		Expect(got.Status.Revision).To(Equal("main@sha1:89abcdef0123"))
		Expect(got.Status.SecretsSynced).To(Equal(int32(1)))
		Expect(got.Status.PropertiesSynced).To(Equal(int32(1)))
		Expect(got.Status.NextReconcileTime).NotTo(BeNil())

		suiteSecrets.mu.Lock()
		defer suiteSecrets.mu.Unlock()
		Expect(suiteSecrets.values).To(HaveKeyWithValue("orders-db_password-prod", "cupofcoffee"))
		Expect(suiteSecrets.values).To(HaveKeyWithValue("orders-properties-prod", `{"db.name":"orders"}`))
	})

	It("marks an invalid resource Failed without retrying", func() {
		smc := newResource("bad-region")
		smc.Spec.Provider.AWS.Region = "nowhere"
		Expect(k8sClient.Create(ctx, smc)).To(Succeed())
		key := types.NamespacedName{Namespace: testNamespace, Name: "bad-region"}

		Eventually(phaseOf(key), timeout, interval).Should(Equal(v1.PhaseFailed))
		var got v1.SecretManagerConfig
		Expect(k8sClient.Get(ctx, key, &got)).To(Succeed())
		Expect(got.Status.NextReconcileTime).To(BeNil())
	})

	It("stops at Suspended", func() {
		smc := newResource("paused")
		smc.Spec.Suspend = true
		Expect(k8sClient.Create(ctx, smc)).To(Succeed())

		Eventually(phaseOf(types.NamespacedName{Namespace: testNamespace, Name: "paused"}), timeout, interval).
			Should(Equal(v1.PhaseSuspended))
	})
})
