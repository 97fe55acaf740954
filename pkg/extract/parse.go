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
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// KV is one parsed pair. Parsers keep file order.
type KV struct {
	Key   string
	Value string
}

// ParseEnv reads KEY=VALUE lines. Blank lines and # comments are skipped and
// matching surrounding quotes are stripped from values.
func ParseEnv(content []byte) ([]KV, error) {
	return parseLines(content, func(line string) (string, string, bool) {
		if strings.HasPrefix(line, "#") {
			return "", "", false
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return "", "", false
		}
		return strings.TrimSpace(key), unquote(strings.TrimSpace(value)), true
	})
}

// ParseProperties reads java style properties: # and ! comments, the first
// '=' or ':' separates key and value.
func ParseProperties(content []byte) ([]KV, error) {
	return parseLines(content, func(line string) (string, string, bool) {
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			return "", "", false
		}
		i := strings.IndexAny(line, "=:")
		if i < 0 {
			return "", "", false
		}
		return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
	})
}

func parseLines(content []byte, parse func(string) (string, string, bool)) ([]KV, error) {
	var out []KV
	s := bufio.NewScanner(bytes.NewReader(content))
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		if key, value, ok := parse(line); ok && key != "" {
			out = append(out, KV{Key: key, Value: value})
		}
	}
	if err := s.Err(); err != nil {
		return nil, errors.Wrapf(err, "after %d entries", len(out))
	}
	return out, nil
}

const maxLineSize = 1 << 20

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// ParseYAML flattens a YAML document: nested maps join with '.', list items
// get an [i] suffix. Keys come out sorted.
func ParseYAML(content []byte) ([]KV, error) {
	var doc interface{}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing yaml")
	}
	flat := map[string]string{}
	if err := flatten("", doc, flat); err != nil {
		return nil, err
	}
	out := make([]KV, 0, len(flat))
	for k, v := range flat {
		out = append(out, KV{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func flatten(prefix string, v interface{}, out map[string]string) error {
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}

	switch t := v.(type) {
	case nil:
		if prefix != "" {
			out[prefix] = ""
		}
	case map[string]interface{}:
		for k, child := range t {
			if err := flatten(join(k), child, out); err != nil {
				return err
			}
		}
	case map[interface{}]interface{}:
		for k, child := range t {
			if err := flatten(join(fmt.Sprint(k)), child, out); err != nil {
				return err
			}
		}
	case []interface{}:
		for i, child := range t {
			if err := flatten(fmt.Sprintf("%s[%d]", prefix, i), child, out); err != nil {
				return err
			}
		}
	default:
		if prefix == "" {
			return errors.New("yaml document is a bare scalar")
		}
		out[prefix] = scalar(t)
	}
	return nil
}

func scalar(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}
