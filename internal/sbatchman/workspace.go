package sbatchman

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/armadaproject/sbatchman/internal/sbatchman/configuration"
	"github.com/armadaproject/sbatchman/internal/sbatchman/repository"
)

// Init creates a workspace, with its settings file and database, in the working directory.
func (a *App) Init() error {
	dir, err := a.workingDir()
	if err != nil {
		return err
	}
	w, err := configuration.Init(dir)
	if err != nil {
		return err
	}
	if _, err := a.repo(w); err != nil {
		return errors.WithMessage(err, "could not create database")
	}
	fmt.Fprintf(a.Out, "Initialised sbatchman workspace in %s\n", w.Dir)
	return nil
}

// SetClusterName makes name the default cluster of the workspace.
func (a *App) SetClusterName(ctx context.Context, name string) error {
	w, err := a.workspace()
	if err != nil {
		return err
	}
	r, err := a.repo(w)
	if err != nil {
		return err
	}
	if _, err := r.GetClusterByName(ctx, name); err != nil {
		var notFound *repository.ErrNotFound
		if !errors.As(err, &notFound) {
			return err
		}
		a.log().Warnf("cluster %s has not been configured yet", name)
	}

	settings, err := configuration.LoadSettings(w, "")
	if err != nil {
		return err
	}
	settings.ClusterName = name
	if err := configuration.SaveLocalSettings(w, settings); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Cluster set to %s\n", name)
	return nil
}
