package brep

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("disk on fire")
	for _, test := range []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindInternal},
		{name: "foreign", err: io.EOF, want: KindInternal},
		{name: "direct", err: Errorf(KindFormat, "op", "bad byte %d", 3), want: KindFormat},
		{name: "wrapped by fmt", err: fmt.Errorf("reading: %w", Errorf(KindCapacity, "op", "too big")), want: KindCapacity},
		{name: "wrap foreign", err: Wrap(cause, KindValidation, "op"), want: KindValidation},
		{name: "wrap keeps kind", err: Wrap(Errorf(KindDegenerate, "inner", "flat"), KindInternal, "outer"), want: KindDegenerate},
		{name: "cancelled", err: Cancelled("op"), want: KindCancelled},
	} {
		if got := KindOf(test.err); got != test.want {
			t.Errorf("%s: got %v. want %v", test.name, got, test.want)
		}
	}
	if Wrap(nil, KindFormat, "op") != nil {
		t.Error("wrapping nil returned an error")
	}
	if err := Wrap(cause, KindValidation, "op"); !errors.Is(err, cause) {
		t.Errorf("wrapped error lost its cause: %v", err)
	}
}

func TestErrorMessage(t *testing.T) {
	err := Errorf(KindFormat, "mesh.stl", "triangle %d is truncated", 7).WithHint("re-export the file")
	msg := err.Error()
	for _, want := range []string{"mesh.stl: ", "triangle 7", "hint: re-export the file"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q lacks %q", msg, want)
		}
	}
	if KindFormat.String() != "format" || Kind(99).String() != "Kind(99)" {
		t.Errorf("kind strings got %q and %q", KindFormat, Kind(99))
	}
}

func TestCancelled(t *testing.T) {
	err := fmt.Errorf("outer: %w", Cancelled("decimate"))
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("got %v. want cancellation", err)
	}
	if errors.Is(Errorf(KindFormat, "op", "x"), ErrCancelled) {
		t.Error("format error matched cancellation")
	}
}
