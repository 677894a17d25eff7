package vessel

import (
	"errors"
	"testing"
)

func TestErrorCodes(t *testing.T) {
	err := newGenericErrorf(Conflict, "container %s is busy", "abc")
	var le Error
	if !errorAs(err, &le) {
		t.Fatal("not an Error")
	}
	if le.Code() != Conflict {
		t.Fatalf("code %v, want Conflict", le.Code())
	}
	if le.Error() != "container abc is busy" {
		t.Fatalf("message %q", le.Error())
	}
}

func errorAs(err error, target *Error) bool {
	le, ok := err.(Error)
	if ok {
		*target = le
	}
	return ok
}

func TestIsCode(t *testing.T) {
	err := newGenericErrorf(NotFound, "nope")
	if !IsCode(err, NotFound) {
		t.Fatal("IsCode missed the code")
	}
	if IsCode(err, Conflict) {
		t.Fatal("IsCode matched the wrong code")
	}
	if IsCode(errors.New("plain"), NotFound) {
		t.Fatal("IsCode matched a plain error")
	}
	if IsCode(nil, NotFound) {
		t.Fatal("IsCode matched nil")
	}
}

func TestGenericErrorKeepsExistingCode(t *testing.T) {
	inner := newGenericErrorf(Timeout, "survived kill")
	wrapped := newGenericError(inner, SystemError)
	if !IsCode(wrapped, Timeout) {
		t.Fatalf("wrapping replaced the code: %v", wrapped)
	}
}

func TestErrorCodeStrings(t *testing.T) {
	codes := []ErrorCode{
		InvalidSpec, ResourceUnavailable, PermissionDenied, StartFailed,
		InvalidStateTransition, NotFound, Conflict, Timeout, SystemError,
	}
	seen := make(map[string]bool)
	for _, c := range codes {
		s := c.String()
		if s == "" || s == "Unknown error" {
			t.Errorf("code %d has no name", c)
		}
		if seen[s] {
			t.Errorf("duplicate name %q", s)
		}
		seen[s] = true
	}
}
