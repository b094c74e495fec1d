package raft_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain guards the whole package against leaked loop() goroutines;
// every test that calls Start must pair it with Stop (or stopAll).
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
