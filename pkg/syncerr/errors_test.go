package syncerr

import (
	"context"
	"testing"

	"github.com/pkg/errors"
)

func TestKindOf(t *testing.T) {
	for _, test := range []struct {
		name      string
		err       error
		kind      Kind
		retryable bool
		counted   bool
	}{
		{
			name:      "validation",
			err:       New(Validation, "sourceRef.name is required"),
			kind:      Validation,
			retryable: false,
			counted:   true,
		},
		{
			name:      "not ready wrapped twice",
			err:       errors.WithMessage(New(SourceNotReady, "artifact not published"), "resolving source"),
			kind:      SourceNotReady,
			retryable: true,
			counted:   false,
		},
		{
			name:      "provider",
			err:       Wrap(Provider, errors.New("throttled"), "writing %s", "app-db"),
			kind:      Provider,
			retryable: true,
			counted:   true,
		},
		{
			name:      "deadline",
			err:       errors.WithMessage(context.DeadlineExceeded, "git fetch"),
			kind:      Source,
			retryable: true,
			counted:   true,
		},
		{
			name:      "plain error",
			err:       errors.New("boom"),
			kind:      Unexpected,
			retryable: true,
			counted:   true,
		},
		{
			name:      "panic",
			err:       FromPanic("nil map"),
			kind:      Unexpected,
			retryable: true,
			counted:   true,
		},
	} {
		if got := KindOf(test.err); got != test.kind {
			t.Errorf("%s: kind wanted %s got %s", test.name, test.kind, got)
		}
		if got := Retryable(test.err); got != test.retryable {
			t.Errorf("%s: retryable wanted %t got %t", test.name, test.retryable, got)
		}
		if got := Counted(test.err); got != test.counted {
			t.Errorf("%s: counted wanted %t got %t", test.name, test.counted, got)
		}
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(Source, nil, "unused"); err != nil {
		t.Errorf("expected nil, got %s", err)
	}
}
