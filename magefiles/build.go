//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const buildPackage = "github.com/armadaproject/sbatchman/internal/sbatchman/build"

// Build compiles the sbatchman binary into ./bin, stamping it with version information.
// The version is taken from $SBATCHMAN_VERSION, defaulting to the most recent git tag.
func Build() error {
	mg.Deps(goCheck, makeLocalBin)
	version := os.Getenv("SBATCHMAN_VERSION")
	if version == "" {
		tag, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
		if err != nil {
			tag = "dev"
		}
		version = tag
	}
	commit, err := sh.Output("git", "rev-parse", "--short", "HEAD")
	if err != nil {
		commit = "unknown"
	}

	ldflags := strings.Join([]string{
		fmt.Sprintf("-X %s.ReleaseVersion=%s", buildPackage, version),
		fmt.Sprintf("-X %s.GitCommit=%s", buildPackage, commit),
		fmt.Sprintf("-X %s.BuildTime=%s", buildPackage, time.Now().UTC().Format(time.RFC3339)),
	}, " ")
	return goRunWith(
		map[string]string{"CGO_ENABLED": "0"},
		"build", "-ldflags", ldflags, "-o", filepath.Join(LocalBin, binaryWithExt("sbatchman")), "./cmd/sbatchman",
	)
}
