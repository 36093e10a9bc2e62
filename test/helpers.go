// Package test has tiny assertion helpers shared by the package tests.
package test

import (
	"reflect"
	"strings"
	"testing"
)

// MustBe uses reflect.DeepEqual to assert that got and want are equal, and
// fails otherwise.
func MustBe(t *testing.T, got, want interface{}, context ...string) {
	var ctx string
	if len(context) > 0 {
		ctx = context[0] + ": "
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("%v'%#v' != '%#v'", ctx, got, want)
	}
}

// ErrNil asserts that the err is nil and fails otherwise.
func ErrNil(t *testing.T, err error, ctx string) {
	if err != nil {
		t.Fatalf("%v: %v", ctx, err)
	}
}

// ErrContains asserts that err is non-nil and mentions substr.
func ErrContains(t *testing.T, err error, substr string) {
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Fatalf("expected error containing %q, got: %v", substr, err)
	}
}

// Uint64Slice implements the sorting interface on []uint64.
type Uint64Slice []uint64

func (p Uint64Slice) Len() int           { return len(p) }
func (p Uint64Slice) Less(i, j int) bool { return p[i] < p[j] }
func (p Uint64Slice) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
