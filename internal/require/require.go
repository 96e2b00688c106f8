// Package require provides minimal, dependency-free test assertions in
// the style of testify/require, for use in this module's own tests
// without pulling in an external assertion library.
package require

import (
	"errors"
	"reflect"
	"testing"
)

// NoError fails the test immediately if err is non-nil.
func NoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

// Error fails the test immediately if err is nil.
func Error(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an error, got nil")
	}
}

// ErrorIs fails the test immediately unless errors.Is(err, target).
func ErrorIs(t testing.TB, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected error %v to wrap %v", err, target)
	}
}

// Equal fails the test immediately unless want and got are deeply equal.
func Equal(t testing.TB, want, got any) {
	t.Helper()
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("not equal:\n  want: %#v\n  got:  %#v", want, got)
	}
}

// NotEqual fails the test immediately if want and got are deeply equal.
func NotEqual(t testing.TB, want, got any) {
	t.Helper()
	if reflect.DeepEqual(want, got) {
		t.Fatalf("expected values to differ, both: %#v", want)
	}
}

// True fails the test immediately unless cond is true.
func True(t testing.TB, cond bool, msg string) {
	t.Helper()
	if !cond {
		t.Fatalf("expected true: %s", msg)
	}
}

// False fails the test immediately unless cond is false.
func False(t testing.TB, cond bool, msg string) {
	t.Helper()
	if cond {
		t.Fatalf("expected false: %s", msg)
	}
}

// Nil fails the test immediately unless v is nil.
func Nil(t testing.TB, v any) {
	t.Helper()
	if v != nil {
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Slice || rv.Kind() == reflect.Map {
			if rv.IsNil() {
				return
			}
		}
		t.Fatalf("expected nil, got: %#v", v)
	}
}
