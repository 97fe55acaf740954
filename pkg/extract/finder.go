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

package extract

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

// Canonical file names inside an environment directory.
const (
	SecretsEnvFile  = "application.secrets.env"
	SecretsYAMLFile = "application.secrets.yaml"
	PropertiesFile  = "application.properties"
)

const (
	deploymentConfigurationDir = "deployment-configuration"
	profilesDir                = "profiles"
	defaultService             = "default-service"
)

// FileSet is the set of canonical files found for one service.
type FileSet struct {
	Service     string
	Dir         string
	SecretsEnv  string
	SecretsYAML string
	Properties  string
}

// Paths lists the files that exist, secrets first.
func (f FileSet) Paths() []string {
	var out []string
	for _, p := range []string{f.SecretsEnv, f.SecretsYAML, f.Properties} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SearchRoot joins basePath onto root. An empty or "." basePath is root
// itself; paths escaping root are rejected.
func SearchRoot(root, basePath string) (string, error) {
	if filepath.IsAbs(basePath) {
		return "", syncerr.New(syncerr.Validation, "basePath %q must be relative", basePath)
	}
	target := filepath.Join(root, basePath)
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", syncerr.New(syncerr.Validation, "basePath %q escapes the source root", basePath)
	}
	return target, nil
}

// Discover walks searchRoot for environment directories. Supported layouts:
//
//	{root}/**/deployment-configuration/profiles/{env}
//	{root}/**/deployment-configuration/{env}
//	{root}/**/profiles/{env}
//
// Only the directory named after environment is entered.
func Discover(searchRoot, environment, fallbackService string) ([]FileSet, error) {
	if _, err := os.Stat(searchRoot); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, syncerr.Wrap(syncerr.Extract, err, "reading %s", searchRoot)
	}

	seen := map[string]bool{}
	var sets []FileSet
	add := func(envDir, service string) {
		if seen[envDir] {
			return
		}
		seen[envDir] = true
		if set, ok := collect(envDir, service); ok {
			sets = append(sets, set)
		}
	}

	err := filepath.WalkDir(searchRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}

		switch d.Name() {
		case deploymentConfigurationDir:
			service := serviceName(filepath.Dir(path), searchRoot, fallbackService)
			add(filepath.Join(path, profilesDir, environment), service)
			add(filepath.Join(path, environment), service)
		case profilesDir:
			parent := filepath.Dir(path)
			if filepath.Base(parent) == deploymentConfigurationDir {
				// handled when the parent was visited
				return nil
			}
			add(filepath.Join(path, environment), serviceName(parent, searchRoot, fallbackService))
		}
		return nil
	})
	if err != nil {
		return nil, syncerr.Wrap(syncerr.Extract, err, "walking %s", searchRoot)
	}

	sort.Slice(sets, func(i, j int) bool {
		if sets[i].Service != sets[j].Service {
			return sets[i].Service < sets[j].Service
		}
		return sets[i].Dir < sets[j].Dir
	})
	return sets, nil
}

// serviceName uses the owning directory name unless it is the search root,
// where the fallback applies.
func serviceName(dir, searchRoot, fallback string) string {
	if dir != searchRoot {
		return filepath.Base(dir)
	}
	if fallback != "" {
		return fallback
	}
	return defaultService
}

func collect(envDir, service string) (FileSet, bool) {
	set := FileSet{Service: service, Dir: envDir}
	for name, field := range map[string]*string{
		SecretsEnvFile:  &set.SecretsEnv,
		SecretsYAMLFile: &set.SecretsYAML,
		PropertiesFile:  &set.Properties,
	} {
		path := filepath.Join(envDir, name)
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			*field = path
		}
	}
	return set, len(set.Paths()) > 0
}
