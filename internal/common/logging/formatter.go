package logging

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// CommandLineFormatter prints only the message, so that log output reads like normal command-line output.
// Warnings and errors are prefixed with their level and any fields are appended as key=value pairs.
type CommandLineFormatter struct{}

func (f *CommandLineFormatter) Format(entry *log.Entry) ([]byte, error) {
	var sb strings.Builder
	if entry.Level <= log.WarnLevel {
		sb.WriteString(strings.ToUpper(entry.Level.String()))
		sb.WriteString(": ")
	}
	sb.WriteString(entry.Message)
	if entry.Level <= log.WarnLevel && len(entry.Data) > 0 {
		for _, key := range sortedKeys(entry.Data) {
			if key == Stacktrace {
				continue
			}
			sb.WriteString(fmt.Sprintf(" %s=%v", key, entry.Data[key]))
		}
	}
	sb.WriteString("\n")
	return []byte(sb.String()), nil
}
