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

package naming

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// SanitizePathComponent makes s safe to use as a single directory name.
func SanitizePathComponent(s string) string {
	s = strings.NewReplacer("@", "-", "/", "-", ":", "-", "\\", "-", " ", "-", "\t", "-", "\n", "-", "\r", "-").Replace(s)
	s = strings.ReplaceAll(s, "..", "-")

	var b strings.Builder
	for _, c := range s {
		if isAlnum(c) || c == '-' || c == '_' || c == '.' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// ConstructSecretName builds {prefix}-{key}-{suffix}, skipping empty parts.
// The key is lowercased; dots, slashes and other characters that are not
// valid in a secret name become underscores.
func ConstructSecretName(prefix, key, suffix string) string {
	parts := make([]string, 0, 3)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, strings.ToLower(key))
	if s := strings.TrimLeft(suffix, "-"); s != "" {
		parts = append(parts, s)
	}
	return SanitizeSecretName(strings.Join(parts, "-"))
}

// SanitizeSecretName replaces invalid characters with '_', collapses dashes
// and trims dashes from both ends.
func SanitizeSecretName(name string) string {
	var b strings.Builder
	prevDash := false
	for _, c := range name {
		switch {
		case c == '-':
			if prevDash {
				continue
			}
			prevDash = true
			b.WriteRune(c)
			continue
		case c == '.' || c == '/' || c == ' ':
			c = '_'
		case isAlnum(c) || c == '_':
		default:
			c = '_'
		}
		prevDash = false
		b.WriteRune(c)
	}
	return strings.Trim(b.String(), "-")
}

// PropertiesBlobName is the secret holding all properties as one JSON
// document when config routing is disabled.
func PropertiesBlobName(prefix, suffix string) string {
	return ConstructSecretName(prefix, "properties", suffix)
}

// DefaultParameterPath is /{prefix}/{environment}.
func DefaultParameterPath(prefix, environment string) string {
	return fmt.Sprintf("/%s/%s", prefix, environment)
}

// ParameterName joins a parameter path and key. Dots in the key are kept,
// anything outside [A-Za-z0-9._-] becomes '_'.
func ParameterName(path, key string) string {
	var b strings.Builder
	for _, c := range key {
		if isAlnum(c) || c == '.' || c == '_' || c == '-' {
			b.WriteRune(c)
		} else {
			b.WriteRune('_')
		}
	}
	return strings.TrimRight(path, "/") + "/" + b.String()
}

// AppConfigKey is {prefix}:{environment}:{key}.
func AppConfigKey(prefix, environment, key string) string {
	return fmt.Sprintf("%s:%s:%s", prefix, environment, key)
}

// KeyVaultSecretName maps a secret name onto the Key Vault alphabet.
func KeyVaultSecretName(name string) string {
	var b strings.Builder
	for _, c := range name {
		if isAlnum(c) || c == '-' {
			b.WriteRune(c)
		} else {
			b.WriteRune('-')
		}
	}
	return SanitizeSecretName(b.String())
}

// KeyVaultURL returns the vault URL, accepting either a name or a URL.
func KeyVaultURL(vault string) string {
	if strings.HasPrefix(vault, "https://") {
		return vault
	}
	return fmt.Sprintf("https://%s.vault.azure.net/", vault)
}

// AppConfigEndpoint returns the override when set, otherwise derives the
// store name from the vault name.
func AppConfigEndpoint(vault, override string) string {
	if override != "" {
		return override
	}
	name := vault
	if strings.HasPrefix(name, "https://") {
		name = strings.TrimPrefix(name, "https://")
		name = strings.SplitN(name, ".", 2)[0]
	}
	if strings.HasSuffix(name, "-vault") {
		name = strings.TrimSuffix(name, "-vault") + "-appconfig"
	}
	return fmt.Sprintf("https://%s.azconfig.io", name)
}

func isAlnum(c rune) bool {
	return c < unicode.MaxASCII && (unicode.IsLetter(c) || unicode.IsDigit(c))
}

var parameterPathRegexp = regexp.MustCompile(`^/[A-Za-z0-9._-]+(/[A-Za-z0-9._-]+)*$`)

// ValidParameterPath checks a rendered Parameter Store path.
func ValidParameterPath(path string) bool {
	return parameterPathRegexp.MatchString(path)
}
