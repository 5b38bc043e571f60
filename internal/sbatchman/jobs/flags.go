package jobs

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// LocalFlags are the config flags the local scheduler understands.
type LocalFlags struct {
	// Time is the wall-clock limit, HH:MM:SS or D-HH:MM:SS.
	Time string `mapstructure:"time"`
}

func DecodeLocalFlags(flags map[string]any) (LocalFlags, error) {
	var out LocalFlags
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, errors.WithStack(err)
	}
	if err := decoder.Decode(flags); err != nil {
		return out, errors.Wrap(err, "invalid local scheduler flags")
	}
	return out, nil
}

var allowedFlags = map[SchedulerKind][]string{
	LocalKind: {"time"},
	SlurmKind: {
		"account", "constraint", "cpus_per_task", "exclusive", "gpus", "gres", "mail_type", "mail_user", "mem",
		"mem_per_cpu", "nodes", "ntasks", "ntasks_per_node", "partition", "qos", "reservation", "time",
	},
	PbsKind: {"account", "mem", "ncpus", "ngpus", "nodes", "queue", "select", "walltime"},
}

// AllowsFlag reports whether configs of a cluster using this scheduler may set the flag.
func (k SchedulerKind) AllowsFlag(name string) bool {
	return slices.Contains(allowedFlags[k], name)
}

// AllowedFlags lists the flags configs of a cluster using this scheduler may set.
func (k SchedulerKind) AllowedFlags() []string {
	return slices.Clone(allowedFlags[k])
}
