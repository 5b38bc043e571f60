// Package sbatchman implements the operations of the sbatchman command line tool.
package sbatchman

import (
	"io"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/armadaproject/sbatchman/internal/common/config"
	"github.com/armadaproject/sbatchman/internal/common/util"
	"github.com/armadaproject/sbatchman/internal/sbatchman/configuration"
	"github.com/armadaproject/sbatchman/internal/sbatchman/expression"
	"github.com/armadaproject/sbatchman/internal/sbatchman/repository"
)

const (
	SQLiteDatabase = "sqlite"
	MemoryDatabase = "memory"
)

type App struct {
	// Parameters passed to the CLI by the user.
	Params *Params
	// Out is used to write the output. Defaults to standard out,
	// but can be overridden in tests to make assertions on the applications's output.
	Out io.Writer
	// Clock stamps job records and logs. Tests use a fixed clock.
	Clock util.Clock
	// Evaluator runs the expressions embedded in templates.
	Evaluator expression.Evaluator

	repository repository.Repository
	closeRepo  func()
	logger     *log.Entry
}

// Params struct holds all user-customizable parameters.
// Using a single struct for all CLI commands ensures that all flags are distinct
// and that they can be provided either dynamically on a command line, or
// statically in a config file that's reused between command runs.
type Params struct {
	// WorkingDir is where the workspace is looked for. Empty means the process working directory.
	WorkingDir string
	// Database selects the job store. The memory store lives only as long as the App.
	Database string `validate:"oneof=sqlite memory"`
	// GlobalSettings is the user-wide settings file. Empty means $HOME/.config/sbatchman/config.yaml.
	GlobalSettings string
	// Parallel is the number of jobs launched at once.
	Parallel int `validate:"gte=0"`
	Verbose  bool
}

// New instantiates an App with default parameters, including standard output.
func New() *App {
	return &App{
		Params:    &Params{Database: SQLiteDatabase},
		Out:       os.Stdout,
		Clock:     &util.DefaultClock{},
		Evaluator: expression.NewCELEvaluator(),
		logger:    log.NewEntry(log.StandardLogger()),
	}
}

// WithLogger replaces the logger used by the App.
func (a *App) WithLogger(logger *log.Entry) *App {
	a.logger = logger
	return a
}

func (a *App) validateParams() error {
	return config.Validate(a.Params)
}

func (a *App) log() *log.Entry {
	if a.logger == nil {
		a.logger = log.NewEntry(log.StandardLogger())
	}
	return a.logger
}

func (a *App) clock() util.Clock {
	if a.Clock == nil {
		a.Clock = &util.DefaultClock{}
	}
	return a.Clock
}

func (a *App) workingDir() (string, error) {
	if a.Params.WorkingDir != "" {
		return a.Params.WorkingDir, nil
	}
	wd, err := os.Getwd()
	return wd, errors.WithStack(err)
}

// workspace finds the workspace enclosing the working directory, searching up to the home directory.
func (a *App) workspace() (configuration.Workspace, error) {
	start, err := a.workingDir()
	if err != nil {
		return configuration.Workspace{}, err
	}
	home, err := homedir.Dir()
	if err != nil {
		a.log().WithError(err).Debug("could not determine home directory; searching up to /")
		home = ""
	}
	return configuration.Discover(start, home)
}

func (a *App) settings(w configuration.Workspace) (configuration.Settings, error) {
	globalPath := a.Params.GlobalSettings
	if globalPath == "" {
		path, err := configuration.GlobalSettingsPath()
		if err != nil {
			a.log().WithError(err).Debug("could not locate global settings")
		}
		globalPath = path
	}
	return configuration.LoadSettings(w, globalPath)
}

// repo opens the job store of w on first use.
func (a *App) repo(w configuration.Workspace) (repository.Repository, error) {
	if a.repository != nil {
		return a.repository, nil
	}
	if err := a.validateParams(); err != nil {
		return nil, err
	}
	switch a.Params.Database {
	case MemoryDatabase:
		r, err := repository.NewMemoryRepository(a.clock(), a.log())
		if err != nil {
			return nil, err
		}
		a.repository, a.closeRepo = r, func() {}
	default:
		r, closeRepo, err := repository.NewSQLiteRepository(w.DatabasePath(), a.clock(), a.log())
		if err != nil {
			return nil, err
		}
		a.repository, a.closeRepo = r, closeRepo
	}
	return a.repository, nil
}

// Close releases the job store.
func (a *App) Close() {
	if a.closeRepo != nil {
		a.closeRepo()
	}
	a.repository, a.closeRepo = nil, nil
}
