//go:build mage
// +build mage

package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var Gotestsum string

var LocalBin = filepath.Join(os.Getenv("PWD"), "/bin")

func makeLocalBin() error {
	if _, err := os.Stat(LocalBin); os.IsNotExist(err) {
		err = os.MkdirAll(LocalBin, os.ModePerm)
		if err != nil {
			return err
		}
	}
	return nil
}

// Gotestsum downloads gotestsum locally if necessary
func gotestsum() error {
	mg.Deps(makeLocalBin)
	Gotestsum = filepath.Join(LocalBin, "/gotestsum")

	if _, err := os.Stat(Gotestsum); os.IsNotExist(err) {
		fmt.Println(Gotestsum)
		cmd := exec.Command("go", "install", "gotest.tools/gotestsum@v1.8.2")
		cmd.Env = append(os.Environ(), "GOBIN="+LocalBin)
		return cmd.Run()
	}
	return nil
}

// Tests runs every unit test with the race detector and writes coverage to test_reports.
func Tests() error {
	mg.Deps(gotestsum)
	if err := os.MkdirAll("test_reports", os.ModePerm); err != nil {
		return err
	}
	packages, err := sh.Output("go", "list", "./cmd/...", "./internal/...")
	if err != nil {
		return err
	}
	return runtest("test_reports/coverage.out", "unit.txt", strings.Fields(packages)...)
}

// TestsPostgres starts a throwaway postgres container and runs the check command against it,
// once through pgx and once through lib/pq.
func TestsPostgres() error {
	mg.Deps(Build, dockerCheck)
	if err := dockerRun("run", "-d", "--rm", "--name=dbheartbeat-postgres", "-p", "5432:5432",
		"-e", "POSTGRES_PASSWORD=psw", "-e", "POSTGRES_DB=timestamp", "postgres:14.2"); err != nil {
		return err
	}
	defer func() {
		_ = dockerRun("stop", "dbheartbeat-postgres")
	}()

	for _, driver := range []string{"pgx", "postgres"} {
		env := map[string]string{
			"DB_DRIVER":              driver,
			"DB_HOST":                "localhost",
			"DB_USER":                "postgres",
			"DB_PASSWORD":            "psw",
			"DB_NAME":                "timestamp",
			"DB_CONNECT_RETRIES":     "10",
			"DB_CONNECT_RETRY_DELAY": "1s",
		}
		if err := sh.RunWithV(env, binaryWithExt("bin/"+binaryName), "ensure-schema"); err != nil {
			return err
		}
		if err := sh.RunWithV(env, binaryWithExt("bin/"+binaryName), "check"); err != nil {
			return err
		}
	}
	return nil
}

func runtest(coverageFileName, outputFileName string, packages ...string) error {
	args := []string{"--", "-race"}
	if coverageFileName != "" {
		args = append(args, "-coverprofile", coverageFileName)
	}
	args = append(args, packages...)

	cmd := exec.Command(Gotestsum, args...)

	file, err := os.OpenFile(filepath.Join("test_reports", outputFileName), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	cmd.Stdout = io.MultiWriter(os.Stdout, file)
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
