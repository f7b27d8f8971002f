package errs

import (
	"errors"
	"testing"
)

func TestKindStringCoversAllConstructors(t *testing.T) {
	cases := []struct {
		err  *Error
		kind Kind
		want string
	}{
		{Config("cfg", errors.New("x")), KindConfig, "ConfigError"},
		{Device("cam0", true, errors.New("x")), KindDevice, "DeviceError"},
		{IO("recorder", errors.New("x")), KindIO, "IoError"},
		{Starvation("metrics", errors.New("x")), KindStarvation, "StarvationWarning"},
		{Logic("detector", errors.New("x")), KindLogic, "LogicError"},
	}
	for _, c := range cases {
		if c.err.Kind != c.kind {
			t.Fatalf("got Kind %v, want %v", c.err.Kind, c.kind)
		}
		if got := c.err.Kind.String(); got != c.want {
			t.Fatalf("Kind.String() = %q, want %q", got, c.want)
		}
	}
}

func TestErrorUnwrapsToCause(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := IO("recorder", cause)
	if !errors.Is(wrapped, cause) {
		t.Fatal("errors.Is should find the wrapped cause")
	}
}

func TestFatalFlagsMatchKindSemantics(t *testing.T) {
	if !Config("cfg", errors.New("x")).Fatal {
		t.Fatal("ConfigError should always be fatal")
	}
	if !Logic("x", errors.New("x")).Fatal {
		t.Fatal("LogicError should always be fatal")
	}
	if IO("x", errors.New("x")).Fatal {
		t.Fatal("IoError should never be fatal")
	}
	if Starvation("x", errors.New("x")).Fatal {
		t.Fatal("StarvationWarning should never be fatal")
	}
	if Device("x", false, errors.New("x")).Fatal {
		t.Fatal("Device(fatal=false) should not report Fatal")
	}
	if !Device("x", true, errors.New("x")).Fatal {
		t.Fatal("Device(fatal=true) should report Fatal")
	}
}

func TestErrorMessageIncludesComponentAndKind(t *testing.T) {
	err := IO("recorder", errors.New("disk full"))
	msg := err.Error()
	if msg == "" {
		t.Fatal("Error() returned empty string")
	}
	want := "[recorder] IoError: disk full"
	if msg != want {
		t.Fatalf("Error() = %q, want %q", msg, want)
	}
}
