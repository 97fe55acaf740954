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

// Package syncerr classifies reconcile failures so the controller can pick a
// requeue policy and decide whether to count the failure as an error.
package syncerr

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	// Unexpected is anything that was not classified, including recovered panics.
	Unexpected Kind = iota
	Validation
	SourceNotReady
	Source
	Decrypt
	Extract
	Provider
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "ValidationError"
	case SourceNotReady:
		return "SourceNotReady"
	case Source:
		return "SourceError"
	case Decrypt:
		return "DecryptError"
	case Extract:
		return "ExtractError"
	case Provider:
		return "ProviderError"
	default:
		return "UnexpectedError"
	}
}

// Error carries a Kind through an error chain.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error of kind k with a formatted message.
func New(k Kind, format string, args ...interface{}) error {
	return &Error{Kind: k, Err: errors.Errorf(format, args...)}
}

// Wrap classifies err as kind k. A nil err stays nil.
func Wrap(k Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Err: errors.WithMessagef(err, format, args...)}
}

// KindOf returns the first Kind found in the chain. Context deadlines are
// reported as Source errors so timeouts always take the retry path.
func KindOf(err error) Kind {
	if err == nil {
		return Unexpected
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return Source
	}
	return Unexpected
}

// Is reports whether err is of kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// Retryable is false only for validation failures.
func Retryable(err error) bool {
	return KindOf(err) != Validation
}

// Counted reports whether the failure should increment the error metric.
// Waiting on a GitOps source is expected and never counted.
func Counted(err error) bool {
	return err != nil && KindOf(err) != SourceNotReady
}

// FromPanic converts a recovered value into an Unexpected error.
func FromPanic(r interface{}) error {
	return &Error{Kind: Unexpected, Err: fmt.Errorf("recovered from panic: %v", r)}
}
