package jobs

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// scriptBuilder assembles a job script section by section.
type scriptBuilder struct {
	sb strings.Builder
}

// header writes the interpreter line, any scheduler directives, a metadata comment block and the change to the
// working directory.
func (b *scriptBuilder) header(job *Job, cc ClusterConfig, basePath string, directives []string) error {
	workDir, err := filepath.Abs(basePath)
	if err != nil {
		return errors.Wrapf(err, "could not resolve working directory %s", basePath)
	}
	b.sb.WriteString("#!/bin/bash\n")
	for _, d := range directives {
		b.sb.WriteString(d)
		b.sb.WriteString("\n")
	}
	b.sb.WriteString("# --- Metadata ---\n")
	fmt.Fprintf(&b.sb, "# Job: %s (id %d)\n", job.Name, job.Id)
	if cc.Cluster != nil {
		fmt.Fprintf(&b.sb, "# Cluster: %s (%s)\n", cc.Cluster.Name, cc.Cluster.Scheduler)
	}
	if cc.Config != nil {
		fmt.Fprintf(&b.sb, "# Config: %s\n", cc.Config.Name)
	}
	b.sb.WriteString("# ----------------\n")
	fmt.Fprintf(&b.sb, "\n# Set Working Directory\ncd \"%s\"\n", workDir)
	return nil
}

// environment exports every env entry of the config in key order. Strings are quoted and other values are written
// as JSON literals.
func (b *scriptBuilder) environment(env map[string]any) error {
	if len(env) == 0 {
		return nil
	}
	keys := maps.Keys(env)
	slices.Sort(keys)
	b.sb.WriteString("\n# Environment\n")
	for _, k := range keys {
		switch v := env[k].(type) {
		case string:
			fmt.Fprintf(&b.sb, "export %s=\"%s\"\n", k, strings.ReplaceAll(v, `"`, `\"`))
		default:
			literal, err := marshal(v)
			if err != nil {
				return errors.WithMessagef(err, "could not export %s", k)
			}
			fmt.Fprintf(&b.sb, "export %s=%s\n", k, literal)
		}
	}
	return nil
}

// commands writes the pre, main and post stages. The exit status of the main command is kept in SBM_EXIT_CODE.
func (b *scriptBuilder) commands(job *Job) {
	if job.Preprocess != "" {
		b.sb.WriteString("\n# Preprocessing\n")
		b.sb.WriteString(job.Preprocess)
		b.sb.WriteString("\n\n")
	}
	b.sb.WriteString("\n# Main command\n")
	b.sb.WriteString(job.Command)
	b.sb.WriteString("\n\n" + ExitCodeVariable + "=$?")
	if job.Postprocess != "" {
		b.sb.WriteString("\n# Postprocessing\n")
		b.sb.WriteString(job.Postprocess)
		b.sb.WriteString("\n")
	}
}

// footer records the exit status in the job log and exits with it.
func (b *scriptBuilder) footer(job *Job) error {
	logPath, err := filepath.Abs(job.LogPath())
	if err != nil {
		return errors.Wrapf(err, "could not resolve log path %s", job.LogPath())
	}
	command, err := BashLogCommand(ExitCodeVariable, logPath)
	if err != nil {
		return err
	}
	b.sb.WriteString("\n" + command + "\n")
	b.sb.WriteString("\nexit $" + ExitCodeVariable + "\n")
	return nil
}

func (b *scriptBuilder) String() string {
	return b.sb.String()
}

func buildScript(job *Job, cc ClusterConfig, basePath string, directives []string) (string, error) {
	b := &scriptBuilder{}
	if err := b.header(job, cc, basePath, directives); err != nil {
		return "", err
	}
	var env map[string]any
	if cc.Config != nil {
		env = cc.Config.Env
	}
	if err := b.environment(env); err != nil {
		return "", err
	}
	b.commands(job)
	if err := b.footer(job); err != nil {
		return "", err
	}
	return b.String(), nil
}

// slurmDirectives turns config flags into #SBATCH lines. Underscores in flag names become dashes and a true
// boolean flag is written without a value.
func slurmDirectives(job *Job, flags map[string]any) []string {
	directives := []string{
		"#SBATCH --job-name=" + job.Name,
		"#SBATCH --output=" + job.StdoutPath(),
		"#SBATCH --error=" + job.StderrPath(),
	}
	keys := maps.Keys(flags)
	slices.Sort(keys)
	for _, k := range keys {
		name := strings.ReplaceAll(k, "_", "-")
		switch v := flags[k].(type) {
		case bool:
			if v {
				directives = append(directives, "#SBATCH --"+name)
			}
		default:
			directives = append(directives, fmt.Sprintf("#SBATCH --%s=%v", name, v))
		}
	}
	return directives
}

// pbsDirectives turns config flags into #PBS lines. queue selects the queue and every other flag is a resource.
func pbsDirectives(job *Job, flags map[string]any) []string {
	directives := []string{
		"#PBS -N " + job.Name,
		"#PBS -o " + job.StdoutPath(),
		"#PBS -e " + job.StderrPath(),
	}
	keys := maps.Keys(flags)
	slices.Sort(keys)
	for _, k := range keys {
		if k == "queue" {
			directives = append(directives, fmt.Sprintf("#PBS -q %v", flags[k]))
			continue
		}
		directives = append(directives, fmt.Sprintf("#PBS -l %s=%v", k, flags[k]))
	}
	return directives
}
