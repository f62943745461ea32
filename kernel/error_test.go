package kernel

import (
	"errors"
	"fmt"
	"testing"
)

func TestKernelError(t *testing.T) {
	specs := []struct {
		err *Error
		exp string
	}{
		{&Error{Message: "error message"}, "error message"},
		{&Error{Module: "foo", Message: "error message"}, "foo: error message"},
	}

	for specIndex, spec := range specs {
		if got := spec.err.Error(); got != spec.exp {
			t.Errorf("[spec %d] expected err.Error() to return %q; got %q", specIndex, spec.exp, got)
		}
	}
}

func TestKernelErrorWrapping(t *testing.T) {
	errBase := &Error{Module: "foo", Message: "unsupported value"}
	wrapped := fmt.Errorf("%w: 24", errBase)

	if !errors.Is(wrapped, errBase) {
		t.Fatal("expected errors.Is to match the wrapped kernel error")
	}

	if exp, got := "foo: unsupported value: 24", wrapped.Error(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}
}
