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

package config

import (
	"flag"
	"os"
	"strings"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// Loader merges, lowest priority first: defaults, YAML file, environment, flags.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
}

func NewLoader(envPrefix string) *Loader {
	return &Loader{
		k:         koanf.New("."),
		envPrefix: envPrefix + "__",
	}
}

// Load reads defaults, the optional file at configPath and the environment.
// SYNCER__CACHE__MAXAGE maps to cache.maxage.
func (l *Loader) Load(defaults Config, configPath string) error {
	if err := l.k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return errors.Wrap(err, "failed to load defaults")
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return errors.Errorf("config file not found: %s", configPath)
		}
		if err := l.k.Load(file.Provider(configPath), koanfyaml.Parser()); err != nil {
			return errors.Wrap(err, "failed to load config file")
		}
	}

	envProvider := env.Provider(l.envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	})
	if err := l.k.Load(envProvider, nil); err != nil {
		return errors.Wrap(err, "failed to load environment variables")
	}

	return nil
}

// LoadFlags applies flags that were set explicitly on the command line.
func (l *Loader) LoadFlags(flags *flag.FlagSet, mappings map[string]string) error {
	var err error
	flags.Visit(func(f *flag.Flag) {
		key, ok := mappings[f.Name]
		if !ok || err != nil {
			return
		}
		if setErr := l.k.Set(key, f.Value.String()); setErr != nil {
			err = errors.WithMessagef(setErr, "flag %s", f.Name)
		}
	})
	return err
}

// Config unmarshals and validates the merged configuration.
func (l *Loader) Config() (Config, error) {
	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to unmarshal configuration")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load is the one-call form used by main.
func Load(configPath string, flags *flag.FlagSet, mappings map[string]string) (Config, error) {
	l := NewLoader(EnvPrefix)
	if err := l.Load(Default(), configPath); err != nil {
		return Config{}, err
	}
	if flags != nil {
		if err := l.LoadFlags(flags, mappings); err != nil {
			return Config{}, err
		}
	}
	return l.Config()
}
