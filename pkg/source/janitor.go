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
	"time"

	"github.com/go-logr/logr"
)

// Janitor evicts revision directories that have not been served for MaxAge.
// It runs on every replica since each one has its own cache.
type Janitor struct {
	Cache    Cache
	MaxAge   time.Duration
	Interval time.Duration
	Log      logr.Logger
}

// Start implements manager.Runnable.
func (j *Janitor) Start(ctx context.Context) error {
	if j.MaxAge <= 0 || j.Interval <= 0 {
		j.Log.Info("cache janitor disabled")
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			removed := j.Prune(now)
			if removed > 0 {
				j.Log.Info("evicted cached revisions", "count", removed)
			}
		}
	}
}

// NeedLeaderElection implements manager.LeaderElectionRunnable.
func (j *Janitor) NeedLeaderElection() bool {
	return false
}

// Prune removes revision directories, and abandoned staging directories,
// last modified before now-MaxAge.
func (j *Janitor) Prune(now time.Time) int {
	cutoff := now.Add(-j.MaxAge)
	removed := 0
	for _, root := range []string{fluxCacheRoot, argoCacheRoot} {
		revisions, _ := filepath.Glob(filepath.Join(j.Cache.Dir, root, "*", "*", "*"))
		for _, dir := range revisions {
			fi, err := os.Stat(dir)
			if err != nil || !fi.IsDir() || !fi.ModTime().Before(cutoff) {
				continue
			}
			if err := os.RemoveAll(dir); err != nil {
				j.Log.Error(err, "failed to evict cached revision", "dir", dir)
				continue
			}
			removed++
		}
	}
	return removed
}
