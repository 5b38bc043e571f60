// Package configuration locates the sbatchman workspace and loads its settings.
package configuration

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"

	"github.com/armadaproject/sbatchman/internal/sbatchman/repository"
)

const (
	DirName          = ".sbatchman"
	SettingsFileName = "sbatchman.conf"
)

// Workspace is a directory containing a .sbatchman directory, which holds the settings file, the database and
// the directories of launched jobs.
type Workspace struct {
	Root string
	Dir  string
}

func NewWorkspace(root string) Workspace {
	return Workspace{Root: root, Dir: filepath.Join(root, DirName)}
}

func (w Workspace) SettingsPath() string {
	return filepath.Join(w.Dir, SettingsFileName)
}

func (w Workspace) DatabasePath() string {
	return filepath.Join(w.Dir, repository.DatabaseFileName)
}

// JobsRoot is the directory job directories are created below.
func (w Workspace) JobsRoot() string {
	return w.Dir
}

// Init creates the workspace directory in root together with an empty settings file.
// Existing settings are left untouched.
func Init(root string) (Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Workspace{}, errors.WithStack(err)
	}
	w := NewWorkspace(abs)
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return Workspace{}, errors.Wrapf(err, "could not create %s", w.Dir)
	}
	if _, err := os.Stat(w.SettingsPath()); os.IsNotExist(err) {
		if err := SaveLocalSettings(w, Settings{}); err != nil {
			return Workspace{}, err
		}
	}
	return w, nil
}

// Discover looks for a workspace in start and its parents, stopping after stop or at the filesystem root.
func Discover(start, stop string) (Workspace, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return Workspace{}, errors.WithStack(err)
	}
	if stop != "" {
		if stop, err = filepath.Abs(stop); err != nil {
			return Workspace{}, errors.WithStack(err)
		}
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, DirName)); err == nil && info.IsDir() {
			return NewWorkspace(dir), nil
		}
		parent := filepath.Dir(dir)
		if dir == stop || parent == dir {
			return Workspace{}, &ErrWorkspaceNotFound{Start: start}
		}
		dir = parent
	}
}

// DiscoverFromWorkingDirectory looks for a workspace from the working directory up to the user's home directory.
func DiscoverFromWorkingDirectory() (Workspace, error) {
	wd, err := os.Getwd()
	if err != nil {
		return Workspace{}, errors.WithStack(err)
	}
	home, err := homedir.Dir()
	if err != nil {
		home = ""
	}
	return Discover(wd, home)
}
