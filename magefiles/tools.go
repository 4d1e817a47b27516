//go:build mage
// +build mage

package main

import (
	"fmt"
	"runtime"
	"strings"

	semver "github.com/Masterminds/semver/v3"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/pkg/errors"
)

const (
	GO_VERSION_CONSTRAINT            = ">= 1.18.0"
	DOCKER_VERSION_CONSTRAINT        = ">= 20.10.0"
	GOLANGCI_LINT_VERSION_CONSTRAINT = ">= 1.50.0"
)

func binaryWithExt(name string) string {
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("%s.exe", name)
	}
	return name
}

// checkVersion runs binary with args and checks the version found in the given output field.
func checkVersion(binary string, args []string, field int, trim string, constraint string) error {
	output, err := sh.Output(binaryWithExt(binary), args...)
	if err != nil {
		return errors.Errorf("error running version cmd: %v", err)
	}
	fields := strings.Fields(output)
	if len(fields) <= field {
		return errors.Errorf("unexpected version cmd output: %s", output)
	}
	version, err := semver.NewVersion(strings.Trim(fields[field], trim))
	if err != nil {
		return errors.Errorf("error parsing version: %v", err)
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return errors.Errorf("error parsing constraint: %v", err)
	}
	if !c.Check(version) {
		return errors.Errorf("found version %v but it failed constraint %v", version, c)
	}
	return nil
}

// go version go1.18.10 linux/amd64
func goCheck() error {
	return checkVersion("go", []string{"version"}, 2, "go", GO_VERSION_CONSTRAINT)
}

// Docker version 20.10.17, build 100c701
func dockerCheck() error {
	return checkVersion("docker", []string{"--version"}, 2, ",", DOCKER_VERSION_CONSTRAINT)
}

// golangci-lint has version v1.52.2 built from ...
func golangciLintCheck() error {
	return checkVersion("golangci-lint", []string{"--version"}, 3, "v", GOLANGCI_LINT_VERSION_CONSTRAINT)
}

func dockerRun(args ...string) error {
	return sh.Run(binaryWithExt("docker"), args...)
}

// Linting Check
func CheckLint() error {
	mg.Deps(golangciLintCheck)
	output, err := sh.Output(binaryWithExt("golangci-lint"), "run", "--timeout", "10m")
	fmt.Println(output)
	return err
}

// Fixing Linting
func LintFix() error {
	mg.Deps(golangciLintCheck)
	output, err := sh.Output(binaryWithExt("golangci-lint"), "run", "--fix", "--timeout", "10m")
	fmt.Println(output)
	return err
}
