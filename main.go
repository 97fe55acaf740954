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

package main

import (
	"context"
	"flag"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	awsclient "github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sts"
	sourcev1 "github.com/fluxcd/source-controller/api/v1"
	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	uzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	secretsv1 "github.com/contentful-labs/gitops-secret-syncer/api/v1"
	"github.com/contentful-labs/gitops-secret-syncer/controllers"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/command"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/config"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/extract"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/iam"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/notify"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/provider"
	awsprovider "github.com/contentful-labs/gitops-secret-syncer/pkg/provider/aws"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/provider/azure"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/provider/gcp"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/rolevalidator"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/sops"
	"github.com/contentful-labs/gitops-secret-syncer/pkg/source"
	// +kubebuilder:scaffold:imports
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	_ = clientgoscheme.AddToScheme(scheme)
	_ = sourcev1.AddToScheme(scheme)

	_ = secretsv1.AddToScheme(scheme)
	// +kubebuilder:scaffold:scheme
}

// flagMappings maps command line flags onto configuration keys.
var flagMappings = map[string]string{
	"metrics-addr":           "metricsaddr",
	"health-probe-addr":      "probeaddr",
	"enable-leader-election": "leaderelection",
	"log-level":              "loglevel",
	"events-addr":            "eventsaddr",
}

func newLogger(level string) (logr.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return logr.Discard(), errors.Wrapf(err, "invalid log level %q", level)
	}
	logCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	atomicLevel := uzap.NewAtomicLevelAt(lvl)
	stackTraceLevel := uzap.NewAtomicLevelAt(zapcore.PanicLevel)
	return zap.New(
		zap.Encoder(zapcore.NewJSONEncoder(logCfg)),
		zap.Level(&atomicLevel),
		zap.StacktraceLevel(&stackTraceLevel),
	), nil
}

// startupDelay spreads the first reconciles of freshly started replicas so
// they do not hit the cloud APIs at the same time.
func startupDelay(max time.Duration, rnd *rand.Rand) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rnd.Int63n(int64(max)))
}

func newExtractor(cfg config.Config) *extract.Extractor {
	runner := command.ExecRunner{}
	var builder extract.Builder = &extract.ExecBuilder{Runner: runner, Binary: cfg.Kustomize.Binary}
	if cfg.Kustomize.Mode == "builtin" {
		builder = extract.KrustyBuilder{}
	}
	return &extract.Extractor{
		Decrypter: &sops.Decryptor{
			Runner:     runner,
			SOPSBinary: cfg.SOPS.Binary,
			GPGBinary:  cfg.SOPS.GPGBinary,
			WorkDir:    filepath.Join(cfg.Cache.Dir, "sops"),
			Timeout:    cfg.Timeouts.Decrypt,
		},
		Builder:          builder,
		KustomizeTimeout: cfg.Timeouts.Kustomize,
	}
}

func newTargets(ctx context.Context, arns iam.ARNGetter, awsCfg *aws.Config) (provider.Targets, func(), error) {
	awsFactory, err := awsprovider.NewFactory(arns, awsCfg)
	if err != nil {
		return nil, nil, err
	}
	gcpFactory, err := gcp.NewFactory(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	azureFactory, err := azure.NewFactory(nil)
	if err != nil {
		return nil, nil, err
	}
	targets := provider.Targets{
		secretsv1.ProviderAWS:   awsFactory,
		secretsv1.ProviderGCP:   gcpFactory,
		secretsv1.ProviderAzure: azureFactory,
	}
	closeFn := func() {
		if err := gcpFactory.Close(); err != nil {
			setupLog.Error(err, "closing gcp clients")
		}
	}
	return targets, closeFn, nil
}

func realMain() int {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to a YAML configuration file.")
	flag.String("metrics-addr", ":8080", "The address the metric endpoint binds to.")
	flag.String("health-probe-addr", ":8081", "The address the probe endpoint binds to.")
	flag.Bool("enable-leader-election", false,
		"Enable leader election for controller manager. Enabling this will ensure there is only one active controller manager.")
	flag.String("log-level", "info", "One of debug, info, warn or error.")
	flag.String("events-addr", "", "The address of the FluxCD notification-controller event endpoint.")
	flag.Parse()

	cfg, err := config.Load(configPath, flag.CommandLine, flagMappings)
	if err != nil {
		setupLog.Error(err, "unable to load configuration")
		return 1
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		setupLog.Error(err, "unable to create logger")
		return 1
	}
	ctrl.SetLogger(logger)

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: cfg.MetricsAddr},
		HealthProbeBindAddress: cfg.ProbeAddr,
		LeaderElection:         cfg.LeaderElection,
		LeaderElectionID:       cfg.LeaderElectionID,
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		return 1
	}

	ctx := ctrl.SetupSignalHandler()

	retry5Cfg := request.WithRetryer(aws.NewConfig(), awsclient.DefaultRetryer{NumMaxRetries: 5})
	sess, err := session.NewSession(retry5Cfg)
	if err != nil {
		setupLog.Error(err, "unable to create aws session")
		return 1
	}
	arnClient := iam.NewARNClientWithCache(&iam.Resolver{BaseARN: iam.STSBaseARN(sts.New(sess))})

	targets, closeTargets, err := newTargets(ctx, arnClient, retry5Cfg)
	if err != nil {
		setupLog.Error(err, "unable to create provider clients")
		return 1
	}
	defer closeTargets()

	clientset, err := kubernetes.NewForConfig(mgr.GetConfig())
	if err != nil {
		setupLog.Error(err, "unable to create kubernetes clientset")
		return 1
	}
	keys := sops.NewKeyStore()
	if err = mgr.Add(sops.NewWatcher(clientset, keys, ctrl.Log.WithName("sops"))); err != nil {
		setupLog.Error(err, "unable to add SOPS key watcher")
		return 1
	}

	cache := source.Cache{Dir: cfg.Cache.Dir}
	if err = mgr.Add(&source.Janitor{
		Cache:    cache,
		MaxAge:   cfg.Cache.MaxAge,
		Interval: cfg.Cache.JanitorInterval,
		Log:      ctrl.Log.WithName("janitor"),
	}); err != nil {
		setupLog.Error(err, "unable to add cache janitor")
		return 1
	}

	sources := source.Resolvers{
		secretsv1.SourceKindGitRepository: &source.GitRepositoryResolver{
			Client:     mgr.GetClient(),
			Cache:      cache,
			Downloader: &source.Downloader{HTTP: &http.Client{Timeout: cfg.Timeouts.Download}},
			Timeout:    cfg.Timeouts.Download,
		},
		secretsv1.SourceKindApplication: &source.ApplicationResolver{
			Client:  mgr.GetClient(),
			Secrets: mgr.GetAPIReader(),
			Cache:   cache,
			Timeout: cfg.Timeouts.Git,
		},
	}

	// namespaces annotated with allowed identities restrict which cloud
	// identities their resources may use
	roleValidator := rolevalidator.NewRoleValidator(
		arnClient,
		rolevalidator.ClientNamespaceGetter{Client: mgr.GetClient()},
		rolevalidator.AllowedIdentitiesAnnotation,
	)

	notifier := &notify.Notifier{
		Client:   mgr.GetClient(),
		Recorder: mgr.GetEventRecorder(notify.ControllerName),
	}
	if cfg.EventsAddr != "" {
		notifier.Events = notify.NewFluxEvents(cfg.EventsAddr, cfg.Timeouts.Download)
	}

	r := &controllers.SecretManagerConfigReconciler{
		Client:                  mgr.GetClient(),
		Log:                     ctrl.Log.WithName("controllers").WithName("SecretManagerConfig"),
		Sources:                 sources,
		Extractor:               newExtractor(cfg),
		Keys:                    keys,
		Targets:                 targets,
		Router:                  &provider.Router{Concurrency: cfg.Sync.Concurrency, Timeout: cfg.Timeouts.Provider},
		RoleValidator:           roleValidator,
		Notifier:                notifier,
		PodNamespace:            cfg.PodNamespace,
		Requeue:                 cfg.Requeue,
		MaxConcurrentReconciles: cfg.MaxConcurrentReconciles,
	}

	delay := startupDelay(cfg.StartupJitter, rand.New(rand.NewSource(time.Now().UnixNano())))
	setupLog.Info("delaying startup", "delay", delay.String())
	time.Sleep(delay)

	if err = r.SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "SecretManagerConfig")
		return 1
	}
	// +kubebuilder:scaffold:builder

	if err = mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		return 1
	}
	if err = mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		return 1
	}

	setupLog.Info("starting manager")
	if err = mgr.Start(ctx); err != nil {
		setupLog.Error(err, "problem running manager")
		return 1
	}

	return 0
}

func main() {
	// Call realMain so that defers work properly, since os.Exit won't
	// call defers.
	os.Exit(realMain())
}
