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

package controllers

import (
	"sync"
	"time"
)

// fibonacciBackoff hands out base*fib(n) per key, capped at max. A success
// resets the key.
type fibonacciBackoff struct {
	base, max time.Duration

	mu       sync.Mutex
	attempts map[string]int
}

func newFibonacciBackoff(base, max time.Duration) *fibonacciBackoff {
	return &fibonacciBackoff{base: base, max: max, attempts: map[string]int{}}
}

// Next returns the delay for the next retry of key and records the attempt.
func (b *fibonacciBackoff) Next(key string) time.Duration {
	b.mu.Lock()
	n := b.attempts[key]
	b.attempts[key] = n + 1
	b.mu.Unlock()

	prev, cur := time.Duration(0), b.base
	for i := 0; i < n; i++ {
		prev, cur = cur, prev+cur
		if cur >= b.max {
			return b.max
		}
	}
	if cur > b.max {
		return b.max
	}
	return cur
}

func (b *fibonacciBackoff) Reset(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.attempts, key)
}
