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

// Package config loads the controller configuration from struct defaults, an
// optional YAML file and SYNCER__ prefixed environment variables.
package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

const EnvPrefix = "SYNCER"

type Config struct {
	MetricsAddr      string `koanf:"metricsaddr" validate:"required"`
	ProbeAddr        string `koanf:"probeaddr"`
	LeaderElection   bool   `koanf:"leaderelection"`
	LeaderElectionID string `koanf:"leaderelectionid" validate:"required"`
	// PodNamespace is where the controller runs, used for the fallback SOPS key.
	PodNamespace            string        `koanf:"podnamespace" validate:"required"`
	MaxConcurrentReconciles int           `koanf:"maxconcurrentreconciles" validate:"min=1"`
	StartupJitter           time.Duration `koanf:"startupjitter" validate:"min=0"`
	LogLevel                string        `koanf:"loglevel" validate:"oneof=debug info warn error"`
	// EventsAddr is the FluxCD notification-controller event endpoint.
	EventsAddr string `koanf:"eventsaddr" validate:"omitempty,url"`

	Cache     CacheConfig     `koanf:"cache"`
	Requeue   RequeueConfig   `koanf:"requeue"`
	Timeouts  TimeoutConfig   `koanf:"timeouts"`
	Sync      SyncConfig      `koanf:"sync"`
	Kustomize KustomizeConfig `koanf:"kustomize"`
	SOPS      SOPSConfig      `koanf:"sops"`
}

type CacheConfig struct {
	Dir             string        `koanf:"dir" validate:"required"`
	MaxAge          time.Duration `koanf:"maxage" validate:"min=0"`
	JanitorInterval time.Duration `koanf:"janitorinterval" validate:"min=0"`
}

type RequeueConfig struct {
	NotReady time.Duration `koanf:"notready" validate:"gt=0"`
	Error    time.Duration `koanf:"error" validate:"gt=0"`
	ErrorMax time.Duration `koanf:"errormax" validate:"gtefield=Error"`
}

type TimeoutConfig struct {
	Download  time.Duration `koanf:"download" validate:"gt=0"`
	Git       time.Duration `koanf:"git" validate:"gt=0"`
	Decrypt   time.Duration `koanf:"decrypt" validate:"gt=0"`
	Kustomize time.Duration `koanf:"kustomize" validate:"gt=0"`
	Provider  time.Duration `koanf:"provider" validate:"gt=0"`
}

type SyncConfig struct {
	// Concurrency bounds parallel provider writes within one reconcile.
	Concurrency int `koanf:"concurrency" validate:"min=1"`
}

type KustomizeConfig struct {
	Mode   string `koanf:"mode" validate:"oneof=exec builtin"`
	Binary string `koanf:"binary"`
}

type SOPSConfig struct {
	Binary    string `koanf:"binary" validate:"required"`
	GPGBinary string `koanf:"gpgbinary" validate:"required"`
}

// Default returns the built-in configuration.
func Default() Config {
	ns := os.Getenv("POD_NAMESPACE")
	if ns == "" {
		ns = "gitops-secret-syncer-system"
	}
	return Config{
		MetricsAddr:             ":8080",
		ProbeAddr:               ":8081",
		LeaderElectionID:        "gitops-secret-syncer.secrets.contentful.com",
		PodNamespace:            ns,
		MaxConcurrentReconciles: 4,
		LogLevel:                "info",
		Cache: CacheConfig{
			Dir:             "/tmp/gitops-secret-syncer",
			MaxAge:          24 * time.Hour,
			JanitorInterval: time.Hour,
		},
		Requeue: RequeueConfig{
			NotReady: 30 * time.Second,
			Error:    60 * time.Second,
			ErrorMax: 10 * time.Minute,
		},
		Timeouts: TimeoutConfig{
			Download:  2 * time.Minute,
			Git:       2 * time.Minute,
			Decrypt:   30 * time.Second,
			Kustomize: time.Minute,
			Provider:  30 * time.Second,
		},
		Sync: SyncConfig{
			Concurrency: 8,
		},
		Kustomize: KustomizeConfig{
			Mode:   "exec",
			Binary: "kustomize",
		},
		SOPS: SOPSConfig{
			Binary:    "sops",
			GPGBinary: "gpg",
		},
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.WithMessage(err, "invalid controller configuration")
	}
	return nil
}
