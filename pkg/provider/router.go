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

package provider

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/contentful-labs/gitops-secret-syncer/pkg/syncerr"
)

// Router applies planned writes to a Target.
type Router struct {
	// Concurrency bounds parallel writes within one Sync.
	Concurrency int
	// Timeout applies to each entry, covering both the read and the write.
	Timeout time.Duration
}

// Sync reads every destination and writes the values that differ. With
// apply false nothing is written and outcomes only report drift. A failing
// entry never stops the others.
func (r *Router) Sync(ctx context.Context, target *Target, writes []Write, apply bool) []Outcome {
	outcomes := make([]Outcome, len(writes))

	var g errgroup.Group
	limit := r.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i := range writes {
		i := i
		g.Go(func() error {
			outcomes[i] = r.write(ctx, target, writes[i], apply)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (r *Router) write(ctx context.Context, target *Target, w Write, apply bool) (out Outcome) {
	store := target.store(w.Kind)
	out = Outcome{
		Key:        w.Key,
		Name:       w.Name,
		Kind:       w.Kind,
		Store:      store.Name(),
		Properties: w.Properties,
		Entries:    w.Entries,
	}
	defer func() {
		if p := recover(); p != nil {
			out.Err = syncerr.FromPanic(p)
		}
	}()

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	current, found, err := store.Get(ctx, w.Name)
	if err != nil {
		out.Err = syncerr.Wrap(syncerr.Provider, err, "reading %s from %s", w.Name, store.Name())
		return out
	}
	out.Existed = found
	if found && current == w.Value {
		return out
	}
	out.Drifted = found
	if !apply {
		return out
	}

	if err := store.Put(ctx, w.Name, w.Value, found, w.Labels); err != nil {
		out.Err = syncerr.Wrap(syncerr.Provider, err, "writing %s to %s", w.Name, store.Name())
		return out
	}
	out.Written = true
	return out
}

// Failed aggregates per-entry errors into one ProviderError, nil when all
// entries succeeded.
func Failed(outcomes []Outcome) error {
	var first error
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			if first == nil {
				first = o.Err
			}
		}
	}
	if failed == 0 {
		return nil
	}
	return syncerr.Wrap(syncerr.Provider, errors.WithMessagef(first, "%d of %d entries failed, first", failed, len(outcomes)), "sync")
}
