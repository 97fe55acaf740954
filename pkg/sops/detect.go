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

// Package sops detects and decrypts SOPS encrypted files. Every decrypt
// runs against a throwaway key directory that is removed afterwards.
package sops

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/getsops/sops/v3"
	"github.com/getsops/sops/v3/stores/dotenv"
	"github.com/getsops/sops/v3/stores/json"
	"github.com/getsops/sops/v3/stores/yaml"
)

// Formats understood by the sops binary.
const (
	FormatYAML   = "yaml"
	FormatJSON   = "json"
	FormatDotenv = "dotenv"
	FormatBinary = "binary"
)

// FormatOf picks the sops input type from a file name.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	case ".env":
		return FormatDotenv
	default:
		return FormatBinary
	}
}

type encryptedLoader interface {
	LoadEncryptedFile(in []byte) (sops.Tree, error)
}

func loaderFor(format string) encryptedLoader {
	switch format {
	case FormatYAML:
		return &yaml.Store{}
	case FormatJSON:
		return &json.Store{}
	case FormatDotenv:
		return &dotenv.Store{}
	default:
		return &json.BinaryStore{}
	}
}

// encryptedValueMarker prefixes every value sops encrypts.
var encryptedValueMarker = []byte("ENC[AES256_GCM,")

// IsEncrypted reports whether content carries sops metadata. Line oriented
// files also count when any value carries the encrypted value marker.
func IsEncrypted(content []byte, format string) bool {
	if format == FormatDotenv && bytes.Contains(content, encryptedValueMarker) {
		return true
	}
	// cheap reject before handing the document to a store
	if !bytes.Contains(content, []byte("sops")) {
		return false
	}
	tree, err := loaderFor(format).LoadEncryptedFile(content)
	if err != nil {
		return false
	}
	return tree.Metadata.Version != "" || len(tree.Metadata.KeyGroups) > 0 || tree.Metadata.MessageAuthenticationCode != ""
}
