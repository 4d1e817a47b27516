//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/pkg/errors"
)

const binaryName = "dbheartbeat"

// Check dependent tools are present and the correct version.
func CheckDeps() error {
	checks := []struct {
		name  string
		check func() error
	}{
		{"go", goCheck},
		{"docker", dockerCheck},
		{"golangci-lint", golangciLintCheck},
	}
	failures := false
	for _, check := range checks {
		fmt.Printf("Checking %s... ", check.name)
		if err := check.check(); err != nil {
			fmt.Printf("FAILED\nReason: %v\n", err)
			failures = true
		} else {
			fmt.Println("PASSED")
		}
	}
	if failures {
		return errors.New("check(s) failed.")
	}
	return nil
}

// Build the dbheartbeat binary into ./bin.
func Build() error {
	mg.Deps(goCheck, makeLocalBin)
	return sh.RunWith(map[string]string{"CGO_ENABLED": "0"},
		"go", "build", "-o", binaryWithExt("bin/"+binaryName), "./cmd/"+binaryName)
}

// Run the service against a local sqlite database, writing every two seconds.
func Demo() error {
	mg.Deps(Build)
	return sh.RunWithV(map[string]string{
		"DB_DRIVER":                 "sqlite",
		"DB_NAME":                   "heartbeat.db",
		"DB_WRITE_INTERVAL_SECONDS": "2",
	}, binaryWithExt("bin/"+binaryName), "run")
}

// Remove build and test output.
func Clean() {
	fmt.Println("Cleaning...")
	for _, path := range []string{"bin", "test_reports", "heartbeat.db"} {
		os.RemoveAll(path)
	}
}
