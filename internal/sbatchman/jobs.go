package sbatchman

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openconfig/goyang/pkg/indent"

	"github.com/armadaproject/sbatchman/internal/common/util"
	"github.com/armadaproject/sbatchman/internal/sbatchman/jobs"
	"github.com/armadaproject/sbatchman/internal/sbatchman/repository"
)

const timeFormat = "2006-01-02 15:04:05"

// Jobs prints the jobs matching filter.
func (a *App) Jobs(ctx context.Context, filter repository.JobFilter) error {
	w, err := a.workspace()
	if err != nil {
		return err
	}
	r, err := a.repo(w)
	if err != nil {
		return err
	}
	summaries, err := r.ListJobs(ctx, filter)
	if err != nil {
		return err
	}
	tsb := util.NewTabbedStringBuilder(1, 1, 2, ' ', 0)
	tsb.Row("ID", "NAME", "CLUSTER", "CONFIG", "STATUS", "SUBMITTED", "ENDED")
	for _, s := range summaries {
		tsb.Row(s.Job.Id, s.Job.Name, s.ClusterName, s.ConfigName, s.Job.Status, formatTime(&s.Job.SubmitTime), formatTime(s.Job.EndTime))
	}
	fmt.Fprint(a.Out, tsb.String())
	return nil
}

// Log prints the state of a job as recorded in its log file.
func (a *App) Log(ctx context.Context, id int64) error {
	w, err := a.workspace()
	if err != nil {
		return err
	}
	r, err := a.repo(w)
	if err != nil {
		return err
	}
	job, err := r.GetJob(ctx, id)
	if err != nil {
		return err
	}
	reconstruction, err := jobs.Reconstruct(job.LogPath())
	if err != nil {
		return err
	}

	logged := reconstruction.Job
	tsb := util.NewTabbedStringBuilder(1, 1, 1, ' ', 0)
	tsb.Writef("Job:\t%d\n", logged.Id)
	tsb.Writef("Name:\t%s\n", logged.Name)
	tsb.Writef("Status:\t%s\n", logged.Status)
	tsb.Writef("Directory:\t%s\n", logged.Directory)
	if reconstruction.Pid != nil {
		tsb.Writef("Pid:\t%d\n", *reconstruction.Pid)
	}
	tsb.Writef("Exit code:\t%s\n", formatCode(reconstruction.ExitCode))
	tsb.Writef("Process exit code:\t%s\n", formatCode(reconstruction.ProcessExitCode))
	fmt.Fprint(a.Out, tsb.String())

	for _, section := range []struct{ title, text string }{
		{"Preprocess", logged.Preprocess},
		{"Command", logged.Command},
		{"Postprocess", logged.Postprocess},
	} {
		if section.text == "" {
			continue
		}
		fmt.Fprintf(a.Out, "%s:\n", section.title)
		fmt.Fprint(a.Out, indent.String("  ", strings.TrimRight(section.text, "\n")+"\n"))
	}

	if len(reconstruction.Timeline) > 0 {
		var timeline strings.Builder
		for _, entry := range reconstruction.Timeline {
			fmt.Fprintf(&timeline, "%s  %s\n", entry.Timestamp, strings.Trim(string(entry.Data), `"`))
		}
		fmt.Fprintln(a.Out, "Timeline:")
		fmt.Fprint(a.Out, indent.String("  ", timeline.String()))
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeFormat)
}

func formatCode(code *int) string {
	if code == nil {
		return "-"
	}
	return strconv.Itoa(*code)
}
