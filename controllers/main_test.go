package controllers

import (
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	// config.Load fatals without a JWT secret; provide one so the test
	// binary can start.
	if os.Getenv("JWT_SECRET") == "" {
		os.Setenv("JWT_SECRET", "test-secret")
	}
	os.Exit(m.Run())
}
