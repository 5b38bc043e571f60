//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// BootstrapTools installs all tools needed to build and test sbatchman.
// For the list of tools this will install, see tools.yaml in the root directory
func BootstrapTools() error {
	mg.Deps(goCheck)
	type ToolsList struct {
		Tools []string
	}

	tools := &ToolsList{}
	if err := readYaml("tools.yaml", tools); err != nil {
		return err
	}
	for _, tool := range tools.Tools {
		if err := goRun("install", tool); err != nil {
			return err
		}
	}
	return nil
}

// Check dependent tools are present and the correct version.
func CheckDeps() error {
	checks := []struct {
		name  string
		check func() error
	}{
		{"go", goCheck},
		{"bash", bashCheck},
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

// Removes build outputs and test reports.
func Clean() {
	fmt.Println("Cleaning...")
	for _, path := range []string{"bin", "dist", "test_reports"} {
		os.RemoveAll(path)
	}
}

func readYaml(filename string, out interface{}) error {
	bytes, err := os.ReadFile(filename)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(yaml.Unmarshal(bytes, out))
}
