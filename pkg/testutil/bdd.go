// Package testutil holds shared test helpers.
package testutil

import "testing"

// Given, When, and Then wrap t.Run so flow tests read as scenarios without
// a BDD framework. Each phase shows up as its own subtest in output.
func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Given "+desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("When "+desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Then "+desc, fn)
}
