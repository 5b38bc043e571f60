package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/armadaproject/sbatchman/internal/common/logging"
	"github.com/armadaproject/sbatchman/internal/sbatchman"
)

const envPrefix = "SBATCHMAN"

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sbatchman",
		Short: "sbatchman launches and tracks batches of jobs on local machines and HPC clusters.",
		Long: `sbatchman launches and tracks batches of jobs on local machines and HPC clusters.

Jobs and clusters are described in YAML files. A job file declares variables and job templates referencing
them as ${name}; one job is launched for every combination of the values of the variables it references.

State is kept in a .sbatchman directory created by 'sbatchman init' and found by searching the working
directory and its parents. Global flags can also be set with SBATCHMAN_ environment variables,
e.g. SBATCHMAN_DATABASE=memory.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().Bool("verbose", false, "Log debug information")
	cmd.PersistentFlags().String("database", sbatchman.SQLiteDatabase, "Job store to use: sqlite or memory")
	cmd.PersistentFlags().String("dir", "", "Directory to run in instead of the working directory")
	cmd.PersistentFlags().String("global-settings", "", "User-wide settings file (default $HOME/.config/sbatchman/config.yaml)")
	for _, name := range []string{"verbose", "database", "dir", "global-settings"} {
		_ = viper.BindPFlag(name, cmd.PersistentFlags().Lookup(name))
	}

	cmd.AddCommand(
		initCmd(sbatchman.New()),
		configureCmd(sbatchman.New()),
		clustersCmd(sbatchman.New()),
		setClusterNameCmd(sbatchman.New()),
		launchCmd(sbatchman.New()),
		jobsCmd(sbatchman.New()),
		logCmd(sbatchman.New()),
		versionCmd(sbatchman.New()),
	)

	return cmd
}

func initParams(cmd *cobra.Command, app *sbatchman.App) error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	app.Out = cmd.OutOrStdout()
	app.Params.Verbose = viper.GetBool("verbose")
	app.Params.Database = viper.GetString("database")
	app.Params.WorkingDir = viper.GetString("dir")
	app.Params.GlobalSettings = viper.GetString("global-settings")

	if app.Params.Verbose {
		return logging.Configure(logging.Config{Level: "debug", Format: "text"})
	}
	return nil
}
