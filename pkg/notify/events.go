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

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	eventv1 "github.com/fluxcd/pkg/apis/event/v1beta1"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

// FluxEvents posts events to the FluxCD notification-controller, which
// routes them to the Alerts watching the involved object.
type FluxEvents struct {
	Addr string
	HTTP *retryablehttp.Client
}

func NewFluxEvents(addr string, timeout time.Duration) *FluxEvents {
	c := retryablehttp.NewClient()
	c.HTTPClient.Timeout = timeout
	c.RetryWaitMax = 5 * time.Second
	c.Logger = nil
	return &FluxEvents{Addr: addr, HTTP: c}
}

func (f *FluxEvents) Post(ctx context.Context, e eventv1.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, f.Addr, body)
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return errors.WithMessagef(err, "failed posting event to %s", f.Addr)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Errorf("posting event to %s: unexpected status %s", f.Addr, resp.Status)
	}
	return nil
}
