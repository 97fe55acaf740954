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
	"bytes"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

// PathParams are the values available to a parameter path template.
type PathParams struct {
	Prefix      string
	Environment string
	Service     string
}

// RenderPath renders a configs.parameterPath. Plain paths are returned as is,
// templates get the sprig function map, e.g. `/{{ .Service | lower }}/{{ .Environment }}`.
func RenderPath(path string, params PathParams) (string, error) {
	if !strings.Contains(path, "{{") {
		return path, nil
	}

	tpl, err := template.New("parameterPath").
		Option("missingkey=error").
		Funcs(sprig.TxtFuncMap()).
		Parse(path)
	if err != nil {
		return "", errors.Wrap(err, "error parsing parameterPath template")
	}

	buf := new(bytes.Buffer)
	if err = tpl.Execute(buf, params); err != nil {
		return "", errors.Wrap(err, "error executing parameterPath template")
	}

	return strings.TrimSpace(buf.String()), nil
}
