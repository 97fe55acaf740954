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
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

var gzipMagic = []byte{0x1f, 0x8b}

// maxFileSize caps a single extracted file.
const maxFileSize = 64 << 20

// Downloader fetches and unpacks source-controller artifacts.
type Downloader struct {
	HTTP *http.Client
}

func (d *Downloader) client() *http.Client {
	if d.HTTP != nil {
		return d.HTTP
	}
	return http.DefaultClient
}

// Fetch downloads url, checks digest ("sha256:<hex>", optional) and extracts
// the tarball into dest. dest is only created once extraction succeeded.
func (d *Downloader) Fetch(ctx context.Context, url, digest, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return syncerr.Wrap(syncerr.Source, err, "invalid artifact url %q", url)
	}
	resp, err := d.client().Do(req)
	if err != nil {
		return syncerr.Wrap(syncerr.Source, err, "downloading artifact %s", url)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return syncerr.New(syncerr.SourceNotReady, "artifact %s not found", url)
	case resp.StatusCode != http.StatusOK:
		return syncerr.New(syncerr.Source, "downloading artifact %s: unexpected status %s", url, resp.Status)
	}

	tmp, err := stagingDir(dest)
	if err != nil {
		return syncerr.Wrap(syncerr.Source, err, "preparing cache")
	}
	defer os.RemoveAll(tmp)

	hash := sha256.New()
	body := bufio.NewReader(io.TeeReader(resp.Body, hash))
	magic, err := body.Peek(len(gzipMagic))
	if err != nil || !bytes.Equal(magic, gzipMagic) {
		return syncerr.New(syncerr.Source, "artifact %s is not a gzip archive", url)
	}

	n, err := untar(body, tmp)
	if err != nil {
		return syncerr.Wrap(syncerr.Source, err, "extracting artifact %s", url)
	}
	// drain padding so the digest covers the whole body
	if _, err := io.Copy(io.Discard, body); err != nil {
		return syncerr.Wrap(syncerr.Source, err, "reading artifact %s", url)
	}
	if err := verifyDigest(digest, hash.Sum(nil)); err != nil {
		return syncerr.Wrap(syncerr.Source, err, "artifact %s", url)
	}
	if n == 0 {
		return syncerr.New(syncerr.Source, "artifact %s is empty", url)
	}

	if err := promote(tmp, dest); err != nil {
		return syncerr.Wrap(syncerr.Source, err, "caching artifact")
	}
	return nil
}

func verifyDigest(digest string, sum []byte) error {
	if digest == "" {
		return nil
	}
	algo, want, ok := strings.Cut(digest, ":")
	if !ok || algo != "sha256" {
		// unsupported algorithms are not verified
		return nil
	}
	if got := hex.EncodeToString(sum); !strings.EqualFold(got, want) {
		return errors.Errorf("digest mismatch: wanted %s got sha256:%s", digest, got)
	}
	return nil
}

// untar extracts regular files and directories from a gzipped tarball,
// returning the number of files written. Links are skipped.
func untar(r io.Reader, dest string) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, errors.Wrap(err, "opening gzip stream")
	}
	defer gz.Close()

	files := 0
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return files, errors.Wrap(err, "reading tar entry")
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return files, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, errors.WithStack(err)
			}
		case tar.TypeReg:
			if hdr.Size > maxFileSize {
				return files, errors.Errorf("%s exceeds %d bytes", hdr.Name, maxFileSize)
			}
			if err := writeFile(target, tr, hdr.Size); err != nil {
				return files, err
			}
			files++
		}
	}
}

func writeFile(path string, r io.Reader, size int64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WithStack(err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := io.CopyN(f, r, size); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.WithStack(f.Close())
}

// safeJoin rejects entries that would land outside dest.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, name)
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("illegal path in archive: %s", name)
	}
	return target, nil
}
