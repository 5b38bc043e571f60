package configuration

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"sigs.k8s.io/yaml"
)

// ClusterNameEnvVar overrides the configured cluster name.
const ClusterNameEnvVar = "SBATCHMAN_CLUSTER_NAME"

const globalSettingsPath = "~/.config/sbatchman/config.yaml"

type Settings struct {
	// ClusterName is the cluster jobs are launched on when none is given explicitly.
	ClusterName string `json:"cluster_name,omitempty" mapstructure:"cluster_name"`
}

// GlobalSettingsPath is where settings shared by every workspace of the user live.
func GlobalSettingsPath() (string, error) {
	path, err := homedir.Expand(globalSettingsPath)
	return path, errors.WithStack(err)
}

// LoadSettings layers the global settings file, the workspace settings file and the environment, later
// sources overriding earlier ones. Missing files are skipped.
func LoadSettings(w Workspace, globalPath string) (Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.BindEnv("cluster_name", ClusterNameEnvVar); err != nil {
		return Settings{}, errors.WithStack(err)
	}

	for _, path := range []string{globalPath, w.SettingsPath()} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Settings{}, errors.Wrapf(err, "error reading settings from %s", path)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return Settings{}, errors.WithStack(err)
	}
	return settings, nil
}

// SaveLocalSettings writes the workspace settings file. Empty fields are left out so that they do not mask
// global settings.
func SaveLocalSettings(w Workspace, settings Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := os.MkdirAll(filepath.Dir(w.SettingsPath()), 0o755); err != nil {
		return errors.WithStack(err)
	}
	if err := os.WriteFile(w.SettingsPath(), data, 0o644); err != nil {
		return errors.Wrapf(err, "error writing settings to %s", w.SettingsPath())
	}
	return nil
}

// ResolveCluster picks the cluster to use: explicit if given, otherwise the configured one.
func (s Settings) ResolveCluster(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if s.ClusterName != "" {
		return s.ClusterName, nil
	}
	return "", &ErrNoClusterSet{}
}
