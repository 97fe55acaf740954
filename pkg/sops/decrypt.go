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
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/contentful-labs/gitops-secret-syncer/pkg/command"
)

var ErrNoKey = errors.New("no SOPS private key available")

// Decryptor shells out to sops. Key material only ever exists in a
// gpg-home-{uuid} directory private to one Decrypt call.
type Decryptor struct {
	Runner     command.Runner
	SOPSBinary string
	GPGBinary  string
	WorkDir    string
	Timeout    time.Duration
}

// Decrypt returns the plaintext of content, which is in the given sops
// format.
func (d *Decryptor) Decrypt(ctx context.Context, key *Key, content []byte, format string) ([]byte, error) {
	if key == nil {
		return nil, ErrNoKey
	}
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	home := filepath.Join(d.WorkDir, "gpg-home-"+uuid.NewString())
	if err := os.MkdirAll(home, 0o700); err != nil {
		return nil, errors.Wrap(err, "creating key directory")
	}
	defer os.RemoveAll(home)

	material, err := key.Open()
	if err != nil {
		return nil, err
	}
	defer material.Destroy()

	env := []string{"PATH=" + os.Getenv("PATH"), "HOME=" + home}
	switch key.Kind {
	case KeyGPG:
		env = append(env, "GNUPGHOME="+home)
		if err := d.importGPG(ctx, env, material.Bytes()); err != nil {
			return nil, err
		}
		env = append(env, "GNUPG_TRUST_MODEL=always")
	case KeyAge:
		keyFile := filepath.Join(home, "keys.txt")
		if err := os.WriteFile(keyFile, material.Bytes(), 0o600); err != nil {
			return nil, errors.Wrap(err, "writing age key")
		}
		env = append(env, "SOPS_AGE_KEY_FILE="+keyFile)
	default:
		return nil, errors.Errorf("unsupported key kind %q", key.Kind)
	}

	out, err := d.Runner.Run(ctx, command.Command{
		Name:  d.SOPSBinary,
		Args:  []string{"-d", "--input-type", format, "--output-type", format, "/dev/stdin"},
		Env:   env,
		Stdin: content,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "sops decrypt")
	}
	return out, nil
}

func (d *Decryptor) importGPG(ctx context.Context, env []string, key []byte) error {
	gpg := func(stdin []byte, args ...string) ([]byte, error) {
		return d.Runner.Run(ctx, command.Command{
			Name:  d.GPGBinary,
			Args:  append([]string{"--batch", "--yes"}, args...),
			Env:   env,
			Stdin: stdin,
		})
	}

	if _, err := gpg(key, "--pinentry-mode", "loopback", "--import"); err != nil {
		return errors.WithMessage(err, "importing gpg key")
	}
	listing, err := gpg(nil, "--with-colons", "--list-secret-keys")
	if err != nil {
		return errors.WithMessage(err, "listing gpg keys")
	}
	var trust bytes.Buffer
	for _, fpr := range fingerprints(listing) {
		trust.WriteString(fpr + ":6:\n")
	}
	if trust.Len() == 0 {
		return errors.New("gpg key import produced no secret keys")
	}
	if _, err := gpg(trust.Bytes(), "--import-ownertrust"); err != nil {
		return errors.WithMessage(err, "setting gpg ownertrust")
	}
	return nil
}

// fingerprints parses fpr records from gpg --with-colons output.
func fingerprints(listing []byte) []string {
	var out []string
	seen := map[string]bool{}
	s := bufio.NewScanner(bytes.NewReader(listing))
	for s.Scan() {
		fields := strings.Split(s.Text(), ":")
		if len(fields) > 9 && fields[0] == "fpr" && fields[9] != "" && !seen[fields[9]] {
			seen[fields[9]] = true
			out = append(out, fields[9])
		}
	}
	return out
}

// Transient reports whether a decrypt failure may succeed on retry.
func Transient(err error) bool {
	return stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) || stderrors.Is(err, ErrKeysNotSynced)
}
