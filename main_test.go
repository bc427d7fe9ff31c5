package main

import (
	"testing"

	"github.com/skippednote/granola-skill/cmd"
)

func TestVersion(t *testing.T) {
	if version != "dev" {
		t.Errorf("Expected default version to be 'dev', got %s", version)
	}
}

func TestSetVersionIntegration(t *testing.T) {
	// SetVersion must accept the build-time formats -ldflags can inject
	for _, v := range []string{"dev", "1.0.0", "v2.0.0-rc1"} {
		cmd.SetVersion(v)
	}
}
