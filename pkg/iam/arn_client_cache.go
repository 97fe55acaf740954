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

package iam

import (
	"context"
	"sync"
)

// ArnClientCached memoizes resolved ARNs. Failures are not cached.
type ArnClientCached struct {
	mu        sync.Mutex
	arnCache  map[string]string
	arnGetter ARNGetter
}

func NewARNClientWithCache(getter ARNGetter) *ArnClientCached {
	return &ArnClientCached{
		arnCache:  map[string]string{},
		arnGetter: getter,
	}
}

func (ag *ArnClientCached) GetARN(ctx context.Context, role string) (string, error) {
	ag.mu.Lock()
	arn, ok := ag.arnCache[role]
	ag.mu.Unlock()
	if ok {
		return arn, nil
	}

	arn, err := ag.arnGetter.GetARN(ctx, role)
	if err != nil {
		return "", err
	}

	ag.mu.Lock()
	ag.arnCache[role] = arn
	ag.mu.Unlock()
	return arn, nil
}
