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

package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

// Keys read from a git credentials secret.
const (
	IdentityKey    = "identity"
	KnownHostsKey  = "known_hosts"
	UsernameKey    = "username"
	PasswordKey    = "password"
	TokenKey       = "token"
	GitHubTokenKey = "githubToken"
)

// tokenUser is accepted by GitHub and GitLab for token basic auth.
const tokenUser = "x-access-token"

var githubTokenPrefixes = []string{"ghp_", "github_pat_", "gho_"}

// LoadGitAuth reads ref and returns the matching transport auth. A nil ref
// means anonymous access.
func LoadGitAuth(ctx context.Context, c client.Reader, ref *CredentialsRef, scratchDir string) (transport.AuthMethod, error) {
	if ref == nil {
		return nil, nil
	}
	var secret corev1.Secret
	if err := c.Get(ctx, types.NamespacedName{Namespace: ref.Namespace, Name: ref.Name}, &secret); err != nil {
		return nil, syncerr.Wrap(syncerr.Source, err, "reading git credentials %s/%s", ref.Namespace, ref.Name)
	}
	auth, err := authFromData(secret.Data, scratchDir)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.Source, err, "git credentials %s/%s", ref.Namespace, ref.Name)
	}
	return auth, nil
}

func authFromData(data map[string][]byte, scratchDir string) (transport.AuthMethod, error) {
	if identity := data[IdentityKey]; len(identity) > 0 {
		keys, err := gitssh.NewPublicKeys("git", identity, string(data[PasswordKey]))
		if err != nil {
			return nil, syncerr.Wrap(syncerr.Source, err, "parsing ssh identity")
		}
		if knownHosts := data[KnownHostsKey]; len(knownHosts) > 0 {
			path := filepath.Join(scratchDir, "known_hosts")
			if err := os.MkdirAll(scratchDir, 0o700); err != nil {
				return nil, err
			}
			if err := os.WriteFile(path, knownHosts, 0o600); err != nil {
				return nil, err
			}
			callback, err := gitssh.NewKnownHostsCallback(path)
			if err != nil {
				return nil, syncerr.Wrap(syncerr.Source, err, "parsing known_hosts")
			}
			keys.HostKeyCallback = callback
		} else {
			keys.HostKeyCallback = ssh.InsecureIgnoreHostKey()
		}
		return keys, nil
	}

	username := string(data[UsernameKey])
	password := string(data[PasswordKey])
	token := string(data[TokenKey])
	if token == "" {
		token = string(data[GitHubTokenKey])
	}
	if password == "" {
		password = token
	}

	if password == "" {
		return nil, nil
	}
	if username == "" || isGitHubToken(password) {
		username = tokenUser
	}
	return &githttp.BasicAuth{Username: username, Password: password}, nil
}

func isGitHubToken(s string) bool {
	for _, prefix := range githubTokenPrefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
