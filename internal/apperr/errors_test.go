package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindsMatchSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{Connection(nil, "not connected"), ErrConnection},
		{Protocol(nil, "bad line"), ErrProtocol},
		{Validation(nil, "path is required"), ErrValidation},
		{Query(errors.New("syntax"), "query failed"), ErrQuery},
		{NotFound("note not found: %s", "a.md"), ErrNotFound},
	}
	for _, c := range cases {
		if !errors.Is(c.err, c.want) {
			t.Errorf("%v does not match %v", c.err, c.want)
		}
	}
	if errors.Is(NotFound("x"), ErrQuery) {
		t.Error("not-found error must not match ErrQuery")
	}
}

func TestWrappedCause(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("graphsync: upsert: %w", Query(cause, "store rejected upsert"))
	if !errors.Is(err, cause) {
		t.Error("cause lost through wrapping")
	}
	if KindOf(err) != KindQuery {
		t.Errorf("kind = %q, want %q", KindOf(err), KindQuery)
	}
	if err.Error() != "graphsync: upsert: store rejected upsert: boom" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if KindOf(errors.New("plain")) != "" {
		t.Error("plain errors have no kind")
	}
}
