package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"no route", NewNoRouteError("a/b", "a"), IsNoRoute, true},
		{"no parent is not no route", NewNoParentError(".."), IsNoRoute, false},
		{"no parent", NewNoParentError(".."), IsNoParent, true},
		{"duplicate", NewDuplicateTopicError("t"), IsDuplicateTopic, true},
		{"unknown", NewUnknownTopicError("t"), IsUnknownTopic, true},
		{"delivery is link down", NewDeliveryError("t", 0, 1), IsLinkDown, true},
		{"link closed sentinel", ErrLinkClosed, IsLinkDown, true},
		{"bind", NewBindError(":1", nil), IsPortBind, true},
		{"auth", NewAuthError("p", 401, ""), IsAuthFailure, true},
		{"wrapped with fmt", fmt.Errorf("start: %w", NewAuthError("p", 403, "")), IsAuthFailure, true},
		{"not running", Wrap(ErrNotRunning, "subscribe"), IsNotRunning, true},
		{"nil", nil, IsLinkDown, false},
		{"plain", errors.New("x"), IsUnknownTopic, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.err); got != tt.want {
				t.Errorf("got %v, want %v for %v", got, tt.want, tt.err)
			}
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	if GetErrorCode(nil) != CodeOK {
		t.Error("nil should map to OK")
	}
	if GetErrorCode(errors.New("x")) != CodeInternal {
		t.Error("plain errors should map to INTERNAL")
	}
	if GetErrorCode(fmt.Errorf("ctx: %w", NewNoParentError(".."))) != CodeNoParent {
		t.Error("wrapped route error should keep its code")
	}
}

func TestWrapKeepsRoot(t *testing.T) {
	root := errors.New("root")
	err := Wrap(Wrap(root, "one"), "two")
	if !Is(err, root) {
		t.Errorf("wrapped error lost its root: %v", err)
	}
	if err.Error() != "two: one: root" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
