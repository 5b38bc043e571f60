package configuration

import "fmt"

// ErrWorkspaceNotFound is returned when no .sbatchman directory exists between the start directory and the
// directory where the search stops.
type ErrWorkspaceNotFound struct {
	Start string
}

func (err *ErrWorkspaceNotFound) Error() string {
	return fmt.Sprintf("could not find a %s directory in %s or any of its parents; run `sbatchman init` first", DirName, err.Start)
}

// ErrNoClusterSet is returned when a command needs a cluster and none was given or configured.
type ErrNoClusterSet struct{}

func (err *ErrNoClusterSet) Error() string {
	return fmt.Sprintf("no cluster given and none configured; pass one or run `sbatchman set-cluster-name` (or set %s)", ClusterNameEnvVar)
}
